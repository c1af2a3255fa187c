package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/magneticlabs/credits-backend/pkg/enums"
)

// CreditSubscription is the optional monthly credit add-on, independent of
// the user's base plan. One active row per user.
type CreditSubscription struct {
	ID                     uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID                 uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	Tier                   string                   `gorm:"column:tier;not null"`
	CreditsPerMonth        int                      `gorm:"column:credits_per_month;not null"`
	Price                  decimal.Decimal          `gorm:"column:price;type:numeric(12,2);not null;default:0"`
	Status                 enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'active'"`
	NextRenewalAt          time.Time                `gorm:"column:next_renewal_at;not null"`
	ExternalSubscriptionID string                   `gorm:"column:external_subscription_id;index"`
	CancelledAt            *time.Time               `gorm:"column:cancelled_at"`
	CreatedAt              time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
