package renewal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/magneticlabs/credits-backend/internal/credits"
	"github.com/magneticlabs/credits-backend/internal/ledger"
	"github.com/magneticlabs/credits-backend/pkg/db/models"
	"github.com/magneticlabs/credits-backend/pkg/enums"
	"github.com/magneticlabs/credits-backend/pkg/logger"
)

// renewalPeriod is the plan cycle length. The product bills plan cycles in
// 30-day periods, not calendar months.
const renewalPeriod = 30 * 24 * time.Hour

// DefaultBatchSize caps how many due rows one run picks up per sweep.
const DefaultBatchSize = 500

// Summary reports the aggregate outcome of one renewal run.
type Summary struct {
	RenewedPlans         int       `json:"renewed_plans"`
	RenewedSubscriptions int       `json:"renewed_subscriptions"`
	TrialsExpired        int       `json:"trials_expired"`
	Skipped              int       `json:"skipped"`
	Errors               int       `json:"errors"`
	ProcessedAt          time.Time `json:"processed_at"`
}

// Service runs the periodic renewal sweeps.
type Service interface {
	Run(ctx context.Context) (*Summary, error)
}

// ServiceParams wires the renewal engine.
type ServiceParams struct {
	Tx            credits.TxRunner
	Balances      credits.BalanceRepository
	Subscriptions credits.SubscriptionRepository
	Users         credits.UserFinder
	Plans         credits.PlanFinder
	Ledger        ledger.Repository
	Logger        *logger.Logger
	BatchSize     int
	Now           func() time.Time
}

type service struct {
	tx            credits.TxRunner
	balances      credits.BalanceRepository
	subscriptions credits.SubscriptionRepository
	users         credits.UserFinder
	plans         credits.PlanFinder
	ledger        ledger.Repository
	logg          *logger.Logger
	batchSize     int
	now           func() time.Time
}

// NewService builds the renewal engine from its dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Balances == nil {
		return nil, fmt.Errorf("balance repository required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user finder required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan finder required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		tx:            params.Tx,
		balances:      params.Balances,
		subscriptions: params.Subscriptions,
		users:         params.Users,
		plans:         params.Plans,
		ledger:        params.Ledger,
		logg:          params.Logger,
		batchSize:     batch,
		now:           now,
	}, nil
}

// Run executes the plan-cycle sweep and the subscription sweep. Every row is
// processed in its own transaction; one failure is counted and logged, never
// fatal to the batch.
func (s *service) Run(ctx context.Context) (*Summary, error) {
	now := s.now()
	summary := &Summary{ProcessedAt: now}
	var errs error

	due, err := s.balances.ListDueCycles(ctx, now, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("listing due plan cycles: %w", err)
	}
	for _, balance := range due {
		if err := s.renewPlanCycle(ctx, balance.UserID, now, summary); err != nil {
			summary.Errors++
			errs = multierr.Append(errs, fmt.Errorf("plan cycle user %s: %w", balance.UserID, err))
			s.logg.Error(s.logg.WithField(ctx, "user_id", balance.UserID.String()), "plan cycle renewal failed", err)
		}
	}

	dueSubs, err := s.subscriptions.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return summary, multierr.Append(errs, fmt.Errorf("listing due subscriptions: %w", err))
	}
	for _, sub := range dueSubs {
		if err := s.renewSubscription(ctx, sub.ID, now, summary); err != nil {
			summary.Errors++
			errs = multierr.Append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
			s.logg.Error(s.logg.WithField(ctx, "subscription_id", sub.ID.String()), "subscription renewal failed", err)
		}
	}

	return summary, errs
}

func (s *service) renewPlanCycle(ctx context.Context, userID uuid.UUID, now time.Time, summary *Summary) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}
	if user.CurrentPlanID == nil {
		// balance without a plan assignment: nothing to renew
		summary.Skipped++
		return nil
	}
	plan, err := s.plans.FindByID(ctx, *user.CurrentPlanID)
	if err != nil {
		return fmt.Errorf("loading plan: %w", err)
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		balances := s.balances.WithTx(tx)

		balance, err := balances.FindForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		// another run got here first
		if balance.CycleEndDate == nil || balance.CycleEndDate.After(now) {
			summary.Skipped++
			return nil
		}

		if plan.HasMonthlyRenewal {
			return s.applyMonthlyRenewal(ctx, tx, balances, balance, plan, now, summary)
		}
		return s.expireTrial(ctx, tx, balances, balance, summary)
	})
}

func (s *service) applyMonthlyRenewal(ctx context.Context, tx *gorm.DB, balances credits.BalanceRepository, balance *models.CreditBalance, plan *models.Plan, now time.Time, summary *Summary) error {
	balance.PlanCredits = plan.MonthlyCredits
	// add-on credits are renewed by their own sweep, never carried over
	balance.SubscriptionCredits = 0
	balance.PlanCreditsExpireAt = nil

	start := now
	end := now.Add(renewalPeriod)
	if balance.CycleEndDate != nil {
		advanced := balance.CycleEndDate.Add(renewalPeriod)
		if advanced.After(now) {
			start = *balance.CycleEndDate
			end = advanced
		}
	}
	balance.CycleStartDate = &start
	balance.CycleEndDate = &end

	if err := balances.Save(ctx, balance); err != nil {
		return err
	}

	entry := &models.CreditTransaction{
		UserID:       balance.UserID,
		Type:         enums.TransactionTypePlanRenewal,
		Amount:       plan.MonthlyCredits,
		Source:       "monthly_renewal",
		BalanceAfter: balance.Total(),
	}
	if err := s.ledger.WithTx(tx).Create(ctx, entry); err != nil {
		return err
	}

	summary.RenewedPlans++
	return nil
}

func (s *service) expireTrial(ctx context.Context, tx *gorm.DB, balances credits.BalanceRepository, balance *models.CreditBalance, summary *Summary) error {
	previous := balance.PlanCredits

	balance.PlanCredits = 0
	balance.SubscriptionCredits = 0
	balance.PlanCreditsExpireAt = nil
	// one-way transition: no new cycle is ever scheduled
	balance.CycleStartDate = nil
	balance.CycleEndDate = nil

	if err := balances.Save(ctx, balance); err != nil {
		return err
	}

	entry := &models.CreditTransaction{
		UserID:       balance.UserID,
		Type:         enums.TransactionTypeConsumption,
		Amount:       -previous,
		Source:       "trial_expired",
		BalanceAfter: balance.Total(),
	}
	if err := s.ledger.WithTx(tx).Create(ctx, entry); err != nil {
		return err
	}

	summary.TrialsExpired++
	return nil
}

func (s *service) renewSubscription(ctx context.Context, subID uuid.UUID, now time.Time, summary *Summary) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		subs := s.subscriptions.WithTx(tx)
		balances := s.balances.WithTx(tx)

		sub, err := subs.FindByID(ctx, subID)
		if err != nil {
			return err
		}
		if sub.Status != enums.SubscriptionStatusActive || sub.NextRenewalAt.After(now) {
			summary.Skipped++
			return nil
		}

		balance, err := balances.FindForUpdate(ctx, sub.UserID)
		if err != nil {
			return fmt.Errorf("loading balance: %w", err)
		}

		// reset, not add: unused add-on credits never roll over
		balance.SubscriptionCredits = sub.CreditsPerMonth
		if err := balances.Save(ctx, balance); err != nil {
			return err
		}

		next := sub.NextRenewalAt.AddDate(0, 1, 0)
		if !next.After(now) {
			next = now.AddDate(0, 1, 0)
		}
		sub.NextRenewalAt = next
		if err := subs.Save(ctx, sub); err != nil {
			return err
		}

		entry := &models.CreditTransaction{
			UserID:       sub.UserID,
			Type:         enums.TransactionTypeSubscriptionRenewal,
			Amount:       sub.CreditsPerMonth,
			Source:       "subscription_renewal",
			BalanceAfter: balance.Total(),
		}
		if err := s.ledger.WithTx(tx).Create(ctx, entry); err != nil {
			return err
		}

		summary.RenewedSubscriptions++
		return nil
	})
}
