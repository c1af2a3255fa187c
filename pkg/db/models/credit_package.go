package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditPackage is a purchasable bundle of credits. One-time packages land in
// the bonus bucket; recurring packages create or refresh a CreditSubscription.
type CreditPackage struct {
	ID                uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name              string          `gorm:"column:name;not null"`
	Credits           int             `gorm:"column:credits;not null"`
	Price             decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null;default:0"`
	Recurring         bool            `gorm:"column:recurring;not null;default:false"`
	Tier              string          `gorm:"column:tier"`
	ExternalProductID string          `gorm:"column:external_product_id;uniqueIndex"`
	Active            bool            `gorm:"column:active;not null"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
