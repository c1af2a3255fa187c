package credits

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/magneticlabs/credits-backend/pkg/db/models"
	"github.com/magneticlabs/credits-backend/pkg/enums"
)

// DefaultMessagePackageSize is the chat billing cadence when the agent does
// not configure one: one charge covers this many user messages.
const DefaultMessagePackageSize = 5

var defaultActionCosts = map[enums.ConsumeAction]int{
	enums.ConsumeActionScriptGeneration: 3,
	enums.ConsumeActionScriptAdjustment: 1,
	enums.ConsumeActionChatMessages:     1,
}

// resolveCost returns the credit cost for an action. When an agent id is
// supplied and resolves to a configured agent, that agent's credit_cost wins;
// an unknown agent id falls back to the action default silently.
func (s *service) resolveCost(ctx context.Context, action enums.ConsumeAction, agentID *uuid.UUID) (int, *models.Agent, error) {
	cost := defaultActionCosts[action]

	if agentID == nil || *agentID == uuid.Nil {
		return cost, nil, nil
	}

	agent, err := s.agents.FindByID(ctx, *agentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return cost, nil, nil
		}
		return 0, nil, err
	}
	if agent.CreditCost > 0 {
		cost = agent.CreditCost
	}
	return cost, agent, nil
}

// packageSize returns the chat cadence length for an agent.
func packageSize(agent *models.Agent) int {
	if agent == nil || agent.MessagePackageSize <= 0 {
		return DefaultMessagePackageSize
	}
	return agent.MessagePackageSize
}
