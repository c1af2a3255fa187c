package entitlement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magneticlabs/credits-backend/pkg/db/models"
	pkgerrors "github.com/magneticlabs/credits-backend/pkg/errors"
)

func newReconcileService(t *testing.T, f *fixture, tags *fakeTagReader, resolver *fakePlanResolver) *ReconcileService {
	t.Helper()

	svc, err := NewReconcileService(ReconcileServiceParams{
		Tx:         f.tx,
		Users:      f.users,
		Tags:       tags,
		Plans:      resolver,
		Transition: f.transition,
		Logger:     f.logg,
		BatchSize:  2,
		Now:        func() time.Time { return f.now },
	})
	require.NoError(t, err)
	return svc
}

func TestReconcile_Run(t *testing.T) {
	f := setup(t)

	basic := f.seedPlan(t, &models.Plan{Slug: "basic", InitialCredits: 30, MonthlyCredits: 30, HasMonthlyRenewal: true, DisplayOrder: 10})
	premium := f.seedPlan(t, &models.Plan{Slug: "premium", InitialCredits: 120, MonthlyCredits: 120, HasMonthlyRenewal: true, DisplayOrder: 20})

	// still tagged for their current plan
	steady := f.seedUser(t, "steady@example.com", &basic.ID)
	f.seedBalance(t, steady.ID, 12, 0, 0)
	// tags now entitle a higher plan
	upgraded := f.seedUser(t, "upgraded@example.com", &basic.ID)
	f.seedBalance(t, upgraded.ID, 12, 0, 0)
	// tags dropped entirely
	lapsed := f.seedUser(t, "lapsed@example.com", &basic.ID)
	f.seedBalance(t, lapsed.ID, 12, 0, 3)

	tags := &fakeTagReader{tags: map[string][]string{
		"steady@example.com":   {"tag-basic"},
		"upgraded@example.com": {"tag-basic", "tag-premium"},
		"lapsed@example.com":   {},
	}}
	resolver := &fakePlanResolver{byTag: map[string]*models.Plan{
		"tag-basic":   basic,
		"tag-premium": premium,
	}}

	svc := newReconcileService(t, f, tags, resolver)
	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Checked)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Downgraded)
	assert.Zero(t, summary.Errors)

	// steady keeps the plan, verification stamp refreshed
	stored := f.reloadUser(t, steady.ID)
	require.NotNil(t, stored.CurrentPlanID)
	assert.Equal(t, basic.ID, *stored.CurrentPlanID)
	assert.NotNil(t, stored.PlanVerifiedAt)
	assert.Equal(t, 12, f.balance(t, steady.ID).PlanCredits)

	// upgraded moves to premium and gets its allotment
	stored = f.reloadUser(t, upgraded.ID)
	require.NotNil(t, stored.CurrentPlanID)
	assert.Equal(t, premium.ID, *stored.CurrentPlanID)
	assert.Equal(t, 120, f.balance(t, upgraded.ID).PlanCredits)

	// lapsed loses the assignment but keeps earned credits
	stored = f.reloadUser(t, lapsed.ID)
	assert.Nil(t, stored.CurrentPlanID)
	balance := f.balance(t, lapsed.ID)
	assert.Equal(t, 12, balance.PlanCredits)
	assert.Equal(t, 3, balance.BonusCredits)
}

func TestReconcile_CRMErrorIsIsolated(t *testing.T) {
	f := setup(t)

	basic := f.seedPlan(t, &models.Plan{Slug: "basic", InitialCredits: 30, MonthlyCredits: 30, HasMonthlyRenewal: true, DisplayOrder: 10})
	broken := f.seedUser(t, "broken@example.com", &basic.ID)
	healthy := f.seedUser(t, "healthy@example.com", &basic.ID)
	f.seedBalance(t, healthy.ID, 5, 0, 0)

	tags := &fakeTagReader{
		tags: map[string][]string{"healthy@example.com": {"tag-basic"}},
		errs: map[string]error{"broken@example.com": pkgerrors.New(pkgerrors.CodeDependency, "crm unavailable")},
	}
	resolver := &fakePlanResolver{byTag: map[string]*models.Plan{"tag-basic": basic}}

	svc := newReconcileService(t, f, tags, resolver)
	summary, err := svc.Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 1, summary.Errors)

	// the failing user is untouched, the healthy one still got verified
	assert.NotNil(t, f.reloadUser(t, healthy.ID).PlanVerifiedAt)
	assert.NotNil(t, f.reloadUser(t, broken.ID).CurrentPlanID)
}
