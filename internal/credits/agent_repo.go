package credits

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/magneticlabs/credits-backend/pkg/db/models"
)

// AgentRepository reads agent billing configuration.
type AgentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
}

type agentRepository struct {
	db *gorm.DB
}

// NewAgentRepository returns an agent repository bound to the provided database.
func NewAgentRepository(db *gorm.DB) AgentRepository {
	return &agentRepository{db: db}
}

func (r *agentRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	var agent models.Agent
	if err := r.db.WithContext(ctx).First(&agent, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &agent, nil
}
