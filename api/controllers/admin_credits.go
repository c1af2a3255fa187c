package controllers

import (
	"net/http"
	"strings"

	"github.com/magneticlabs/credits-backend/api/responses"
	"github.com/magneticlabs/credits-backend/api/validators"
	"github.com/magneticlabs/credits-backend/internal/credits"
	pkgerrors "github.com/magneticlabs/credits-backend/pkg/errors"
	"github.com/magneticlabs/credits-backend/pkg/logger"
)

type adjustCreditsPayload struct {
	Amount int    `json:"amount" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

// AdminCreditsAdjust applies a manual balance correction to one user.
// Positive amounts land in the bonus bucket; negative amounts debit in the
// standard plan, subscription, bonus order.
func AdminCreditsAdjust(svc credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credits service unavailable"))
			return
		}

		userID, err := pathUUID(r, "userId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload adjustCreditsPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.AdminAdjust(ctx, credits.AdminAdjustParams{
			UserID: userID,
			Amount: payload.Amount,
			Reason: strings.TrimSpace(payload.Reason),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminCreditsAudit reports whether a user's balance matches the replayed
// ledger, for back-office drift checks.
func AdminCreditsAudit(svc credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credits service unavailable"))
			return
		}

		userID, err := pathUUID(r, "userId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		audit, err := svc.LedgerAudit(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, audit)
	}
}
