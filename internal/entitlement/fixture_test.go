package entitlement

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/magneticlabs/credits-backend/internal/credits"
	"github.com/magneticlabs/credits-backend/internal/ledger"
	"github.com/magneticlabs/credits-backend/internal/plans"
	"github.com/magneticlabs/credits-backend/internal/users"
	"github.com/magneticlabs/credits-backend/pkg/db/models"
	pkgerrors "github.com/magneticlabs/credits-backend/pkg/errors"
	"github.com/magneticlabs/credits-backend/pkg/logger"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fakeCatalog struct {
	products map[string]*plans.ProductMatch
}

func (f *fakeCatalog) ResolveProduct(ctx context.Context, productID string) (*plans.ProductMatch, error) {
	match, ok := f.products[productID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown product")
	}
	return match, nil
}

type fakeTagReader struct {
	tags map[string][]string
	errs map[string]error
}

func (f *fakeTagReader) ContactTags(ctx context.Context, email string) ([]string, error) {
	if err, ok := f.errs[email]; ok {
		return nil, err
	}
	return f.tags[email], nil
}

type fakePlanResolver struct {
	byTag map[string]*models.Plan
}

func (f *fakePlanResolver) ResolvePlanByTags(ctx context.Context, tags []string) (*models.Plan, error) {
	var best *models.Plan
	for _, tag := range tags {
		plan, ok := f.byTag[tag]
		if !ok {
			continue
		}
		if best == nil || plan.DisplayOrder > best.DisplayOrder {
			best = plan
		}
	}
	return best, nil
}

type fixture struct {
	db         *gorm.DB
	tx         *gormTxRunner
	users      *users.Repository
	plans      *plans.Repository
	balances   credits.BalanceRepository
	subs       credits.SubscriptionRepository
	ledger     ledger.Repository
	events     *EventRepository
	transition *Transitioner
	logg       *logger.Logger
	now        time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()

	// fixtures reuse emails across tests, so every test gets its own database
	dsn := "file:entitlement_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schemas := []string{
		`CREATE TABLE IF NOT EXISTS plans (
  id TEXT PRIMARY KEY,
  slug TEXT NOT NULL,
  name TEXT NOT NULL,
  display_order INTEGER NOT NULL DEFAULT 0,
  initial_credits INTEGER NOT NULL DEFAULT 0,
  monthly_credits INTEGER NOT NULL DEFAULT 0,
  has_monthly_renewal INTEGER NOT NULL DEFAULT 0,
  credits_expire_days INTEGER,
  can_buy_extra_credits INTEGER NOT NULL DEFAULT 0,
  price TEXT NOT NULL DEFAULT '0',
  features TEXT,
  crm_tag TEXT,
  external_product_id TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT,
  current_plan_id TEXT,
  plan_verified_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS credit_balances (
  user_id TEXT PRIMARY KEY,
  plan_credits INTEGER NOT NULL DEFAULT 0,
  subscription_credits INTEGER NOT NULL DEFAULT 0,
  bonus_credits INTEGER NOT NULL DEFAULT 0,
  plan_credits_expire_at DATETIME,
  cycle_start_date DATETIME,
  cycle_end_date DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS credit_transactions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  type TEXT NOT NULL,
  amount INTEGER NOT NULL,
  source TEXT NOT NULL,
  balance_after INTEGER NOT NULL,
  metadata TEXT,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS credit_subscriptions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  tier TEXT NOT NULL,
  credits_per_month INTEGER NOT NULL,
  price TEXT NOT NULL DEFAULT '0',
  status TEXT NOT NULL DEFAULT 'active',
  next_renewal_at DATETIME NOT NULL,
  external_subscription_id TEXT,
  cancelled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS webhook_events (
  id TEXT PRIMARY KEY,
  provider TEXT NOT NULL,
  event_id TEXT,
  event_type TEXT,
  payload TEXT,
  status TEXT NOT NULL,
  error TEXT,
  created_at DATETIME,
  UNIQUE (provider, event_id)
);`,
	}
	for _, schema := range schemas {
		require.NoError(t, db.Exec(schema).Error)
	}

	now := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	userRepo := users.NewRepository(db)
	planRepo := plans.NewRepository(db)
	balanceRepo := credits.NewBalanceRepository(db)
	ledgerRepo := ledger.NewRepository(db)

	transition, err := NewTransitioner(TransitionerParams{
		Users:    userRepo,
		Plans:    planRepo,
		Balances: balanceRepo,
		Ledger:   ledgerRepo,
		Now:      func() time.Time { return now },
	})
	require.NoError(t, err)

	return &fixture{
		db:         db,
		tx:         &gormTxRunner{db: db},
		users:      userRepo,
		plans:      planRepo,
		balances:   balanceRepo,
		subs:       credits.NewSubscriptionRepository(db),
		ledger:     ledgerRepo,
		events:     NewEventRepository(db),
		transition: transition,
		logg:       logger.New(logger.Options{ServiceName: "entitlement-test", Output: io.Discard}),
		now:        now,
	}
}

func (f *fixture) seedPlan(t *testing.T, plan *models.Plan) *models.Plan {
	t.Helper()

	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	if plan.Name == "" {
		plan.Name = plan.Slug
	}
	require.NoError(t, f.db.Create(plan).Error)
	return plan
}

func (f *fixture) seedUser(t *testing.T, email string, planID *uuid.UUID) *models.User {
	t.Helper()

	user := &models.User{ID: uuid.New(), Email: email, CurrentPlanID: planID}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

func (f *fixture) seedBalance(t *testing.T, userID uuid.UUID, plan, sub, bonus int) {
	t.Helper()

	balance := &models.CreditBalance{
		UserID:              userID,
		PlanCredits:         plan,
		SubscriptionCredits: sub,
		BonusCredits:        bonus,
	}
	require.NoError(t, f.db.Create(balance).Error)
}

func (f *fixture) balance(t *testing.T, userID uuid.UUID) *models.CreditBalance {
	t.Helper()

	var balance models.CreditBalance
	require.NoError(t, f.db.First(&balance, "user_id = ?", userID).Error)
	return &balance
}

func (f *fixture) ledgerRows(t *testing.T, userID uuid.UUID) []models.CreditTransaction {
	t.Helper()

	var rows []models.CreditTransaction
	require.NoError(t, f.db.Where("user_id = ?", userID).Find(&rows).Error)
	return rows
}

func (f *fixture) reloadUser(t *testing.T, id uuid.UUID) *models.User {
	t.Helper()

	var user models.User
	require.NoError(t, f.db.First(&user, "id = ?", id).Error)
	return &user
}
