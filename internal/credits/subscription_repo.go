package credits

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/magneticlabs/credits-backend/pkg/db/models"
	"github.com/magneticlabs/credits-backend/pkg/enums"
)

// SubscriptionRepository manages the monthly credit add-on rows.
type SubscriptionRepository interface {
	WithTx(tx *gorm.DB) SubscriptionRepository
	Create(ctx context.Context, sub *models.CreditSubscription) error
	Save(ctx context.Context, sub *models.CreditSubscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CreditSubscription, error)
	FindActiveByUserID(ctx context.Context, userID uuid.UUID) (*models.CreditSubscription, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.CreditSubscription, error)
	// ListDue returns active subscriptions whose renewal is at or before now,
	// oldest first, capped at limit.
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.CreditSubscription, error)
}

type subscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository returns a subscription repository bound to the provided database.
func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) WithTx(tx *gorm.DB) SubscriptionRepository {
	if tx == nil {
		return r
	}
	return &subscriptionRepository{db: tx}
}

func (r *subscriptionRepository) Create(ctx context.Context, sub *models.CreditSubscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *subscriptionRepository) Save(ctx context.Context, sub *models.CreditSubscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

func (r *subscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.CreditSubscription, error) {
	var sub models.CreditSubscription
	if err := r.db.WithContext(ctx).First(&sub, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) FindActiveByUserID(ctx context.Context, userID uuid.UUID) (*models.CreditSubscription, error) {
	var sub models.CreditSubscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, enums.SubscriptionStatusActive).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) FindByExternalID(ctx context.Context, externalID string) (*models.CreditSubscription, error) {
	var sub models.CreditSubscription
	err := r.db.WithContext(ctx).
		Where("external_subscription_id = ?", externalID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *subscriptionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]models.CreditSubscription, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND next_renewal_at <= ?", enums.SubscriptionStatusActive, now).
		Order("next_renewal_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var subs []models.CreditSubscription
	if err := query.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}
