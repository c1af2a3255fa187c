package entitlement

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/magneticlabs/credits-backend/pkg/db/models"
	"github.com/magneticlabs/credits-backend/pkg/enums"
)

// EventRepository persists the webhook audit log.
type EventRepository struct {
	db *gorm.DB
}

// NewEventRepository constructs a webhook event repository.
func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create appends an audit row. The (provider, event_id) unique index rejects
// redeliveries when the provider repeats an event id.
func (r *EventRepository) Create(ctx context.Context, event *models.WebhookEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// UpdateStatus records the final outcome of a stored event.
func (r *EventRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.WebhookEventStatus, errMsg string) error {
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "error": errMsg}).Error
}

// FindByProviderEvent looks up a stored delivery by its provider event id.
func (r *EventRepository) FindByProviderEvent(ctx context.Context, provider, eventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := r.db.WithContext(ctx).
		First(&event, "provider = ? AND event_id = ?", provider, eventID).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}
