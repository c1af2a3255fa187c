package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is read-only input to the chat billing cadence: the engine
// counts prior user-authored messages per conversation.
type ChatMessage struct {
	ID             uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	ConversationID uuid.UUID `gorm:"column:conversation_id;type:uuid;not null;index"`
	UserID         uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	Role           string    `gorm:"column:role;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
