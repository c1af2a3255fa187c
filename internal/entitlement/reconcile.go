package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/magneticlabs/credits-backend/internal/credits"
	"github.com/magneticlabs/credits-backend/internal/crm"
	"github.com/magneticlabs/credits-backend/internal/users"
	"github.com/magneticlabs/credits-backend/pkg/db/models"
	"github.com/magneticlabs/credits-backend/pkg/enums"
	pkgerrors "github.com/magneticlabs/credits-backend/pkg/errors"
	"github.com/magneticlabs/credits-backend/pkg/logger"
)

// DefaultReconcileBatch caps how many users one page of the sweep loads.
const DefaultReconcileBatch = 500

// ReconcileSummary reports the aggregate outcome of one CRM sweep.
type ReconcileSummary struct {
	Checked     int       `json:"checked"`
	Updated     int       `json:"updated"`
	Downgraded  int       `json:"downgraded"`
	Errors      int       `json:"errors"`
	ProcessedAt time.Time `json:"processed_at"`
}

type planResolver interface {
	ResolvePlanByTags(ctx context.Context, tags []string) (*models.Plan, error)
}

// ReconcileServiceParams wires the CRM reconciliation sweep.
type ReconcileServiceParams struct {
	Tx         credits.TxRunner
	Users      *users.Repository
	Tags       crm.TagReader
	Plans      planResolver
	Transition *Transitioner
	Logger     *logger.Logger
	BatchSize  int
	Now        func() time.Time
}

// ReconcileService walks every user with a plan and realigns the assignment
// with what the CRM tags currently entitle them to. The CRM is the source of
// truth here; the webhook path is just the fast lane.
type ReconcileService struct {
	tx         credits.TxRunner
	users      *users.Repository
	tags       crm.TagReader
	plans      planResolver
	transition *Transitioner
	logg       *logger.Logger
	batchSize  int
	now        func() time.Time
}

// NewReconcileService builds the CRM reconciliation sweep.
func NewReconcileService(params ReconcileServiceParams) (*ReconcileService, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user repository required")
	}
	if params.Tags == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tag reader required")
	}
	if params.Plans == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan resolver required")
	}
	if params.Transition == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transitioner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = DefaultReconcileBatch
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ReconcileService{
		tx:         params.Tx,
		users:      params.Users,
		tags:       params.Tags,
		plans:      params.Plans,
		transition: params.Transition,
		logg:       params.Logger,
		batchSize:  batch,
		now:        now,
	}, nil
}

// Run sweeps all users holding a plan. Per-user failures are counted and the
// sweep keeps going.
func (s *ReconcileService) Run(ctx context.Context) (*ReconcileSummary, error) {
	summary := &ReconcileSummary{ProcessedAt: s.now()}
	var errs error

	after := uuid.Nil
	for {
		page, err := s.users.ListWithPlan(ctx, after, s.batchSize)
		if err != nil {
			return summary, multierr.Append(errs, fmt.Errorf("listing users: %w", err))
		}
		if len(page) == 0 {
			break
		}
		for i := range page {
			user := page[i]
			summary.Checked++
			if err := s.reconcileUser(ctx, &user, summary); err != nil {
				summary.Errors++
				errs = multierr.Append(errs, fmt.Errorf("user %s: %w", user.ID, err))
				s.logg.Error(s.logg.WithField(ctx, "user_id", user.ID.String()), "plan reconciliation failed", err)
			}
		}
		after = page[len(page)-1].ID
	}

	return summary, errs
}

func (s *ReconcileService) reconcileUser(ctx context.Context, user *models.User, summary *ReconcileSummary) error {
	tags, err := s.tags.ContactTags(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("fetching crm tags: %w", err)
	}

	entitled, err := s.plans.ResolvePlanByTags(ctx, tags)
	if err != nil {
		return fmt.Errorf("resolving plan: %w", err)
	}

	switch {
	case entitled == nil:
		if err := s.applyChange(ctx, user, nil); err != nil {
			return err
		}
		summary.Downgraded++
	case user.CurrentPlanID != nil && *user.CurrentPlanID == entitled.ID:
		// still entitled to the same plan: refresh the verification stamp
		return s.applyChange(ctx, user, entitled)
	default:
		if err := s.applyChange(ctx, user, entitled); err != nil {
			return err
		}
		summary.Updated++
	}
	return nil
}

func (s *ReconcileService) applyChange(ctx context.Context, user *models.User, plan *models.Plan) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.transition.ApplyPlanChange(ctx, tx, user, plan, enums.PlanChangeTriggerTagSync)
	})
}
