package cron

import (
	"context"
	"fmt"

	"github.com/magneticlabs/credits-backend/internal/entitlement"
	"github.com/magneticlabs/credits-backend/pkg/logger"
)

type reconcileRunner interface {
	Run(ctx context.Context) (*entitlement.ReconcileSummary, error)
}

type reconcileJob struct {
	logg      *logger.Logger
	reconcile reconcileRunner
}

// NewReconcileJob wraps the CRM plan reconciliation sweep as a scheduled job.
func NewReconcileJob(logg *logger.Logger, svc reconcileRunner) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if svc == nil {
		return nil, fmt.Errorf("reconcile service required")
	}
	return &reconcileJob{logg: logg, reconcile: svc}, nil
}

func (j *reconcileJob) Name() string { return "plan-reconcile" }

func (j *reconcileJob) Run(ctx context.Context) error {
	summary, err := j.reconcile.Run(ctx)
	if summary != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"checked":    summary.Checked,
			"updated":    summary.Updated,
			"downgraded": summary.Downgraded,
			"errors":     summary.Errors,
		})
		j.logg.Info(logCtx, "plan reconciliation finished")
	}
	return err
}
