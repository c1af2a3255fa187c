package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Plan captures the admin-configured catalog entry for a base plan. The
// engines read plans, they never mutate them.
type Plan struct {
	ID                 uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Slug               string          `gorm:"column:slug;not null;uniqueIndex"`
	Name               string          `gorm:"column:name;not null"`
	DisplayOrder       int             `gorm:"column:display_order;not null;default:0"`
	InitialCredits     int             `gorm:"column:initial_credits;not null;default:0"`
	MonthlyCredits     int             `gorm:"column:monthly_credits;not null;default:0"`
	HasMonthlyRenewal  bool            `gorm:"column:has_monthly_renewal;not null;default:false"`
	CreditsExpireDays  *int            `gorm:"column:credits_expire_days"`
	CanBuyExtraCredits bool            `gorm:"column:can_buy_extra_credits;not null;default:false"`
	Price              decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null;default:0"`
	Features           pq.StringArray  `gorm:"column:features;type:text[];default:ARRAY[]::text[]"`
	CRMTag             string          `gorm:"column:crm_tag"`
	ExternalProductID  string          `gorm:"column:external_product_id;index"`
	Active             bool            `gorm:"column:active;not null"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
