package plans

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/magneticlabs/credits-backend/pkg/db/models"
)

func setupPlansTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	plans := `
CREATE TABLE IF NOT EXISTS plans (
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
);`
	packages := `
CREATE TABLE IF NOT EXISTS credit_packages (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  credits INTEGER NOT NULL,
  price TEXT NOT NULL DEFAULT '0',
  recurring INTEGER NOT NULL DEFAULT 0,
  tier TEXT,
  external_product_id TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(plans).Error)
	require.NoError(t, db.Exec(packages).Error)
	return db
}

func seedPlan(t *testing.T, db *gorm.DB, slug, crmTag string, order int, active bool) *models.Plan {
	t.Helper()

	plan := &models.Plan{
		ID:           uuid.New(),
		Slug:         slug,
		Name:         slug,
		DisplayOrder: order,
		CRMTag:       crmTag,
		Active:       active,
	}
	require.NoError(t, db.Create(plan).Error)
	return plan
}

func TestRepositoryFindBestByCRMTags(t *testing.T) {
	db := setupPlansTestDB(t)
	repo := NewRepository(db)

	seedPlan(t, db, "tags-free", "tag-free", 0, true)
	seedPlan(t, db, "tags-basic", "tag-basic", 10, true)
	premium := seedPlan(t, db, "tags-premium", "tag-premium", 20, true)
	seedPlan(t, db, "tags-legacy", "tag-legacy", 99, false)

	// the highest display_order among matching active plans wins
	got, err := repo.FindBestByCRMTags(context.Background(), []string{"tag-basic", "tag-premium", "tag-legacy"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, premium.ID, got.ID)

	got, err = repo.FindBestByCRMTags(context.Background(), []string{"tag-unknown"})
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = repo.FindBestByCRMTags(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepositoryFindByExternalProductID_activeOnly(t *testing.T) {
	db := setupPlansTestDB(t)
	repo := NewRepository(db)

	plan := seedPlan(t, db, "ext-premium", "", 0, true)
	plan.ExternalProductID = "ext-prod-1"
	require.NoError(t, db.Save(plan).Error)

	retired := seedPlan(t, db, "ext-retired", "", 0, false)
	retired.ExternalProductID = "ext-prod-2"
	require.NoError(t, db.Save(retired).Error)

	got, err := repo.FindByExternalProductID(context.Background(), "ext-prod-1")
	require.NoError(t, err)
	assert.Equal(t, plan.ID, got.ID)

	_, err = repo.FindByExternalProductID(context.Background(), "ext-prod-2")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryCreatePersistsInactive(t *testing.T) {
	db := setupPlansTestDB(t)

	// a zero-value Active must not be swallowed by a column default on insert
	retired := seedPlan(t, db, "created-retired", "", 0, false)

	var stored models.Plan
	require.NoError(t, db.First(&stored, "id = ?", retired.ID).Error)
	assert.False(t, stored.Active)
}

func TestPackageRepositoryRoundTrip(t *testing.T) {
	db := setupPlansTestDB(t)
	repo := NewPackageRepository(db)

	pkg := &models.CreditPackage{
		ID:                uuid.New(),
		Name:              "Booster 50",
		Credits:           50,
		ExternalProductID: "pkg-prod-1",
		Active:            true,
	}
	_, err := repo.Create(context.Background(), pkg)
	require.NoError(t, err)

	got, err := repo.FindByExternalProductID(context.Background(), "pkg-prod-1")
	require.NoError(t, err)
	assert.Equal(t, 50, got.Credits)

	got.Active = false
	require.NoError(t, repo.Update(context.Background(), got))

	_, err = repo.FindByExternalProductID(context.Background(), "pkg-prod-1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
