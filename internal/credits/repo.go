package credits

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/magneticlabs/credits-backend/pkg/db/models"
)

// BalanceRepository manages persistence for credit balances.
type BalanceRepository interface {
	WithTx(tx *gorm.DB) BalanceRepository
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error)
	// FindForUpdate loads the balance row under a SELECT ... FOR UPDATE lock.
	// Callers must hold an open transaction.
	FindForUpdate(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error)
	Create(ctx context.Context, balance *models.CreditBalance) error
	Save(ctx context.Context, balance *models.CreditBalance) error
	// ListDueCycles returns balances whose cycle ended at or before now,
	// oldest first, capped at limit.
	ListDueCycles(ctx context.Context, now time.Time, limit int) ([]models.CreditBalance, error)
}

type balanceRepository struct {
	db *gorm.DB
}

// NewBalanceRepository returns a balance repository bound to the provided database.
func NewBalanceRepository(db *gorm.DB) BalanceRepository {
	return &balanceRepository{db: db}
}

func (r *balanceRepository) WithTx(tx *gorm.DB) BalanceRepository {
	if tx == nil {
		return r
	}
	return &balanceRepository{db: tx}
}

func (r *balanceRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error) {
	var balance models.CreditBalance
	if err := r.db.WithContext(ctx).First(&balance, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *balanceRepository) FindForUpdate(ctx context.Context, userID uuid.UUID) (*models.CreditBalance, error) {
	query := r.db.WithContext(ctx)
	// sqlite serializes writers on its own and rejects FOR UPDATE
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var balance models.CreditBalance
	if err := query.First(&balance, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *balanceRepository) Create(ctx context.Context, balance *models.CreditBalance) error {
	return r.db.WithContext(ctx).Create(balance).Error
}

func (r *balanceRepository) Save(ctx context.Context, balance *models.CreditBalance) error {
	return r.db.WithContext(ctx).Save(balance).Error
}

func (r *balanceRepository) ListDueCycles(ctx context.Context, now time.Time, limit int) ([]models.CreditBalance, error) {
	query := r.db.WithContext(ctx).
		Where("cycle_end_date IS NOT NULL AND cycle_end_date <= ?", now).
		Order("cycle_end_date ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var balances []models.CreditBalance
	if err := query.Find(&balances).Error; err != nil {
		return nil, err
	}
	return balances, nil
}
