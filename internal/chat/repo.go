package chat

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/magneticlabs/credits-backend/pkg/db/models"
)

// Repository reads chat history. The credit engine never writes messages;
// it only counts them to decide whether a chat turn starts a new package.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a chat repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CountUserMessages returns how many user-authored messages the conversation
// already holds.
func (r *Repository) CountUserMessages(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ChatMessage{}).
		Where("conversation_id = ? AND role = ?", conversationID, "user").
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
