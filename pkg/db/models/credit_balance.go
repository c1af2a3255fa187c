package models

import (
	"time"

	"github.com/google/uuid"
)

// CreditBalance holds the three spendable buckets for a user. Buckets never
// go negative; Total is the amount the consumption engine may debit.
type CreditBalance struct {
	UserID              uuid.UUID  `gorm:"column:user_id;type:uuid;primaryKey"`
	PlanCredits         int        `gorm:"column:plan_credits;not null;default:0"`
	SubscriptionCredits int        `gorm:"column:subscription_credits;not null;default:0"`
	BonusCredits        int        `gorm:"column:bonus_credits;not null;default:0"`
	PlanCreditsExpireAt *time.Time `gorm:"column:plan_credits_expire_at"`
	CycleStartDate      *time.Time `gorm:"column:cycle_start_date"`
	CycleEndDate        *time.Time `gorm:"column:cycle_end_date"`
	CreatedAt           time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// Total returns the spendable balance across all buckets.
func (b *CreditBalance) Total() int {
	if b == nil {
		return 0
	}
	return b.PlanCredits + b.SubscriptionCredits + b.BonusCredits
}

// PlanCreditsExpired reports whether the plan bucket has passed its
// expiration timestamp as of now.
func (b *CreditBalance) PlanCreditsExpired(now time.Time) bool {
	if b == nil || b.PlanCreditsExpireAt == nil {
		return false
	}
	return !now.Before(*b.PlanCreditsExpireAt)
}
