package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/magneticlabs/credits-backend/pkg/enums"
)

// CreditTransaction is an append-only ledger row. BalanceAfter snapshots the
// total balance immediately after the mutation so the ledger replays to the
// current balance.
type CreditTransaction struct {
	ID           uuid.UUID             `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Type         enums.TransactionType `gorm:"column:type;type:transaction_type;not null"`
	Amount       int                   `gorm:"column:amount;not null"`
	Source       string                `gorm:"column:source;not null"`
	BalanceAfter int                   `gorm:"column:balance_after;not null"`
	Metadata     json.RawMessage       `gorm:"column:metadata;type:jsonb"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
}
