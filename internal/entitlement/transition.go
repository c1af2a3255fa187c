package entitlement

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/magneticlabs/credits-backend/internal/credits"
	"github.com/magneticlabs/credits-backend/internal/ledger"
	"github.com/magneticlabs/credits-backend/internal/plans"
	"github.com/magneticlabs/credits-backend/internal/users"
	"github.com/magneticlabs/credits-backend/pkg/db/models"
	"github.com/magneticlabs/credits-backend/pkg/enums"
	pkgerrors "github.com/magneticlabs/credits-backend/pkg/errors"
)

// planCycle is the base-plan cycle length. Plans renew in 30-day periods,
// not calendar months.
const planCycle = 30 * 24 * time.Hour

// Transitioner is the single place plan assignments change. Webhooks, CRM
// reconciliation and admin tooling all funnel through ApplyPlanChange so the
// grant rules stay in one spot.
type Transitioner struct {
	users    *users.Repository
	plans    *plans.Repository
	balances credits.BalanceRepository
	ledger   ledger.Repository
	now      func() time.Time
}

// TransitionerParams wires the transition function.
type TransitionerParams struct {
	Users    *users.Repository
	Plans    *plans.Repository
	Balances credits.BalanceRepository
	Ledger   ledger.Repository
	Now      func() time.Time
}

// NewTransitioner builds the plan transition helper.
func NewTransitioner(params TransitionerParams) (*Transitioner, error) {
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user repository required")
	}
	if params.Plans == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan repository required")
	}
	if params.Balances == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "balance repository required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repository required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Transitioner{
		users:    params.Users,
		plans:    params.Plans,
		balances: params.Balances,
		ledger:   params.Ledger,
		now:      now,
	}, nil
}

// ApplyPlanChange moves a user between base plans inside the caller's
// transaction. A nil toPlan clears the assignment without touching the
// balance: entitlement loss never claws back credits already granted. A first
// assignment grants the plan's initial credits; a move to a higher-ranked
// plan with monthly renewal grants its monthly allotment and restarts the
// cycle. Downgrades and lateral moves switch the assignment only, and the
// same plan only refreshes plan_verified_at.
func (t *Transitioner) ApplyPlanChange(ctx context.Context, tx *gorm.DB, user *models.User, toPlan *models.Plan, trigger enums.PlanChangeTrigger) error {
	if user == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user is required")
	}
	if !trigger.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown plan change trigger")
	}

	now := t.now()
	userRepo := t.users.WithTx(tx)

	if toPlan == nil {
		if user.CurrentPlanID == nil {
			return nil
		}
		user.CurrentPlanID = nil
		user.PlanVerifiedAt = &now
		return userRepo.Save(ctx, user)
	}

	if user.CurrentPlanID != nil && *user.CurrentPlanID == toPlan.ID {
		user.PlanVerifiedAt = &now
		return userRepo.Save(ctx, user)
	}

	// rank the move against the outgoing plan; a dangling plan id counts
	// as no previous plan
	var fromPlan *models.Plan
	if user.CurrentPlanID != nil {
		previous, err := t.plans.WithTx(tx).FindByID(ctx, *user.CurrentPlanID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		fromPlan = previous
	}

	planID := toPlan.ID
	user.CurrentPlanID = &planID
	user.PlanVerifiedAt = &now
	if err := userRepo.Save(ctx, user); err != nil {
		return err
	}

	switch {
	case fromPlan == nil:
		return t.grantPlanCredits(ctx, tx, user, toPlan, toPlan.InitialCredits, trigger, now)
	case toPlan.DisplayOrder > fromPlan.DisplayOrder && toPlan.HasMonthlyRenewal:
		return t.grantPlanCredits(ctx, tx, user, toPlan, toPlan.MonthlyCredits, trigger, now)
	default:
		return nil
	}
}

func (t *Transitioner) grantPlanCredits(ctx context.Context, tx *gorm.DB, user *models.User, plan *models.Plan, granted int, trigger enums.PlanChangeTrigger, now time.Time) error {
	balances := t.balances.WithTx(tx)

	balance, err := balances.FindForUpdate(ctx, user.ID)
	created := false
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			return err
		}
		balance = &models.CreditBalance{UserID: user.ID}
		created = true
	}

	balance.PlanCredits = granted
	balance.PlanCreditsExpireAt = nil

	switch {
	case plan.HasMonthlyRenewal:
		start := now
		end := now.Add(planCycle)
		balance.CycleStartDate = &start
		balance.CycleEndDate = &end
	case plan.CreditsExpireDays != nil && *plan.CreditsExpireDays > 0:
		start := now
		expire := now.AddDate(0, 0, *plan.CreditsExpireDays)
		balance.PlanCreditsExpireAt = &expire
		balance.CycleStartDate = &start
		balance.CycleEndDate = &expire
	default:
		balance.CycleStartDate = nil
		balance.CycleEndDate = nil
	}

	if created {
		if err := balances.Create(ctx, balance); err != nil {
			return err
		}
	} else if err := balances.Save(ctx, balance); err != nil {
		return err
	}

	if granted == 0 {
		return nil
	}

	entry := &models.CreditTransaction{
		UserID:       user.ID,
		Type:         enums.TransactionTypePlanRenewal,
		Amount:       granted,
		Source:       trigger.String(),
		BalanceAfter: balance.Total(),
	}
	return t.ledger.WithTx(tx).Create(ctx, entry)
}
