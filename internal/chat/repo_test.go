package chat

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/magneticlabs/credits-backend/pkg/db/models"
)

func setupChatTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS chat_messages (
  id TEXT PRIMARY KEY,
  conversation_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  role TEXT NOT NULL,
  created_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func TestCountUserMessages(t *testing.T) {
	db := setupChatTestDB(t)
	repo := NewRepository(db)

	conversationID := uuid.New()
	userID := uuid.New()
	now := time.Now().UTC()

	for i, role := range []string{"user", "assistant", "user", "assistant", "user"} {
		msg := &models.ChatMessage{
			ID:             uuid.New(),
			ConversationID: conversationID,
			UserID:         userID,
			Role:           role,
			CreatedAt:      now.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, db.Create(msg).Error)
	}

	// assistant turns never count toward the billing cadence
	count, err := repo.CountUserMessages(context.Background(), conversationID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	count, err = repo.CountUserMessages(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Zero(t, count)
}
