package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/magneticlabs/credits-backend/pkg/enums"
)

// WebhookEvent is the audit log of every payload the provider delivered,
// whatever the outcome. The (provider, event_id) unique index deduplicates
// redeliveries when the provider sends an event id.
type WebhookEvent struct {
	ID        uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Provider  string                   `gorm:"column:provider;not null;uniqueIndex:idx_webhook_events_provider_event"`
	EventID   *string                  `gorm:"column:event_id;uniqueIndex:idx_webhook_events_provider_event"`
	EventType string                   `gorm:"column:event_type"`
	Payload   json.RawMessage          `gorm:"column:payload;type:jsonb"`
	Status    enums.WebhookEventStatus `gorm:"column:status;type:webhook_event_status;not null"`
	Error     string                   `gorm:"column:error"`
	CreatedAt time.Time                `gorm:"column:created_at;autoCreateTime"`
}
