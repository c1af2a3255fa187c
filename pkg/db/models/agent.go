package models

import (
	"time"

	"github.com/google/uuid"
)

// Agent is a configurable chat persona. CreditCost overrides the default
// per-action cost; MessagePackageSize controls the chat billing cadence.
type Agent struct {
	ID                 uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name               string    `gorm:"column:name;not null"`
	CreditCost         int       `gorm:"column:credit_cost;not null;default:1"`
	MessagePackageSize int       `gorm:"column:message_package_size;not null;default:5"`
	Active             bool      `gorm:"column:active;not null"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
