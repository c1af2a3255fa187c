package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/magneticlabs/credits-backend/api/middleware"
	"github.com/magneticlabs/credits-backend/api/responses"
	"github.com/magneticlabs/credits-backend/api/validators"
	"github.com/magneticlabs/credits-backend/internal/credits"
	"github.com/magneticlabs/credits-backend/internal/ledger"
	"github.com/magneticlabs/credits-backend/pkg/enums"
	pkgerrors "github.com/magneticlabs/credits-backend/pkg/errors"
	"github.com/magneticlabs/credits-backend/pkg/logger"
)

type consumePayload struct {
	Action         string `json:"action" validate:"required"`
	AgentID        string `json:"agent_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	ScriptID       string `json:"script_id,omitempty"`
}

// consumeResponse is flat rather than enveloped: the mobile client reads
// credits_consumed and balance at the top level.
type consumeResponse struct {
	Success         bool                    `json:"success"`
	CreditsConsumed int                     `json:"credits_consumed"`
	Balance         credits.BalanceSnapshot `json:"balance"`
}

func parseOptionalUUID(raw, field string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+field)
	}
	return &id, nil
}

// CreditsConsume charges the authenticated user for one action.
func CreditsConsume(svc credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credits service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(ctx)
		if userID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var payload consumePayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		action, err := enums.ParseConsumeAction(payload.Action)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action"))
			return
		}

		agentID, err := parseOptionalUUID(payload.AgentID, "agent_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		conversationID, err := parseOptionalUUID(payload.ConversationID, "conversation_id")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.Consume(ctx, credits.ConsumeParams{
			UserID: userID,
			Action: action,
			Metadata: credits.ConsumeMetadata{
				AgentID:        agentID,
				ConversationID: conversationID,
				ScriptID:       strings.TrimSpace(payload.ScriptID),
			},
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteJSON(w, http.StatusOK, consumeResponse{
			Success:         true,
			CreditsConsumed: result.CreditsConsumed,
			Balance:         result.Balance,
		})
	}
}

// CreditsBalance returns the authenticated user's bucket balances.
func CreditsBalance(svc credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credits service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(ctx)
		if userID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		view, err := svc.GetBalance(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CreditsTransactions returns the user's ledger page by page, newest first.
func CreditsTransactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}

		userID := middleware.UserIDFromContext(ctx)
		if userID == uuid.Nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		page, err := svc.ListEntries(ctx, userID, params)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"transactions": page.Entries,
			"next_cursor":  page.NextCursor,
		})
	}
}
