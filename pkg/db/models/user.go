package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the projection of a platform account the credit engine needs:
// identity plus the current plan assignment.
type User struct {
	ID             uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email          string     `gorm:"column:email;not null;uniqueIndex"`
	Name           string     `gorm:"column:name"`
	CurrentPlanID  *uuid.UUID `gorm:"column:current_plan_id;type:uuid;index"`
	PlanVerifiedAt *time.Time `gorm:"column:plan_verified_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
