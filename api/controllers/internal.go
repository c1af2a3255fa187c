package controllers

import (
	"context"
	"net/http"

	"github.com/magneticlabs/credits-backend/api/responses"
	"github.com/magneticlabs/credits-backend/internal/entitlement"
	"github.com/magneticlabs/credits-backend/internal/renewal"
	pkgerrors "github.com/magneticlabs/credits-backend/pkg/errors"
	"github.com/magneticlabs/credits-backend/pkg/logger"
)

type reconcileRunner interface {
	Run(ctx context.Context) (*entitlement.ReconcileSummary, error)
}

// Sweep results are flat bodies: ops scripts read the counters at the top
// level.
type renewalRunResponse struct {
	Success bool `json:"success"`
	*renewal.Summary
}

type reconcileRunResponse struct {
	Success bool `json:"success"`
	*entitlement.ReconcileSummary
}

// RenewalsRun triggers a full renewal sweep on demand. The cron worker runs
// the same sweep daily; this endpoint exists for manual replays.
func RenewalsRun(svc renewal.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "renewal service unavailable"))
			return
		}

		summary, err := svc.Run(ctx)
		if err != nil {
			// Partial failures still carry a summary worth reporting.
			if summary == nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if logg != nil {
				logg.Warn(logg.WithFields(ctx, map[string]any{
					"errors": summary.Errors,
					"error":  err.Error(),
				}), "renewal sweep finished with errors")
			}
		}
		responses.WriteJSON(w, http.StatusOK, renewalRunResponse{Success: true, Summary: summary})
	}
}

// ReconcileRun triggers a CRM entitlement reconciliation sweep.
func ReconcileRun(svc reconcileRunner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile service unavailable"))
			return
		}

		summary, err := svc.Run(ctx)
		if err != nil {
			if summary == nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if logg != nil {
				logg.Warn(logg.WithFields(ctx, map[string]any{
					"errors": summary.Errors,
					"error":  err.Error(),
				}), "reconcile sweep finished with errors")
			}
		}
		responses.WriteJSON(w, http.StatusOK, reconcileRunResponse{Success: true, ReconcileSummary: summary})
	}
}
