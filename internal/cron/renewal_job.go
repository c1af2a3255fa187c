package cron

import (
	"context"
	"fmt"

	"github.com/magneticlabs/credits-backend/internal/renewal"
	"github.com/magneticlabs/credits-backend/pkg/logger"
)

type renewalRunner interface {
	Run(ctx context.Context) (*renewal.Summary, error)
}

type renewalJob struct {
	logg    *logger.Logger
	renewal renewalRunner
}

// NewRenewalJob wraps the renewal engine as a scheduled job. The engine
// isolates per-item failures itself, so a partial run still reports the
// counts it managed.
func NewRenewalJob(logg *logger.Logger, svc renewalRunner) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if svc == nil {
		return nil, fmt.Errorf("renewal service required")
	}
	return &renewalJob{logg: logg, renewal: svc}, nil
}

func (j *renewalJob) Name() string { return "credit-renewal" }

func (j *renewalJob) Run(ctx context.Context) error {
	summary, err := j.renewal.Run(ctx)
	if summary != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"renewed_plans":         summary.RenewedPlans,
			"renewed_subscriptions": summary.RenewedSubscriptions,
			"trials_expired":        summary.TrialsExpired,
			"skipped":               summary.Skipped,
			"errors":                summary.Errors,
		})
		j.logg.Info(logCtx, "renewal sweep finished")
	}
	return err
}
