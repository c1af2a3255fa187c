package plans

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/magneticlabs/credits-backend/pkg/db/models"
)

// Repository exposes plan catalog persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a plan repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx rebinds the repository to a transaction handle.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a new plan row.
func (r *Repository) Create(ctx context.Context, plan *models.Plan) (*models.Plan, error) {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(plan).Error; err != nil {
		return nil, err
	}
	return plan, nil
}

// Update persists plan changes.
func (r *Repository) Update(ctx context.Context, plan *models.Plan) error {
	return r.db.WithContext(ctx).Save(plan).Error
}

// FindByID fetches a plan by primary key.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).First(&plan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// FindBySlug fetches a plan by its unique slug.
func (r *Repository) FindBySlug(ctx context.Context, slug string) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.WithContext(ctx).First(&plan, "slug = ?", slug).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// FindByExternalProductID fetches the active plan mapped to a provider product.
func (r *Repository) FindByExternalProductID(ctx context.Context, productID string) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.WithContext(ctx).
		Where("external_product_id = ? AND active = ?", productID, true).
		First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// FindBestByCRMTags returns the active plan with the highest display_order
// among those whose crm_tag appears in tags. A nil result with nil error
// means no tag matched a plan.
func (r *Repository) FindBestByCRMTags(ctx context.Context, tags []string) (*models.Plan, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	var matched []models.Plan
	err := r.db.WithContext(ctx).
		Where("crm_tag IN ? AND active = ?", tags, true).
		Order("display_order DESC").
		Limit(1).
		Find(&matched).Error
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, nil
	}
	return &matched[0], nil
}

// List returns the catalog ordered for display. When activeOnly is set,
// deactivated plans are filtered out.
func (r *Repository) List(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	query := r.db.WithContext(ctx).Model(&models.Plan{}).Order("display_order ASC, slug ASC")
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var rows []models.Plan
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
