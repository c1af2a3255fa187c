package plans

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/magneticlabs/credits-backend/pkg/db/models"
)

// PackageRepository exposes credit package persistence operations.
type PackageRepository struct {
	db *gorm.DB
}

// NewPackageRepository constructs a package repository tied to the provided GORM DB.
func NewPackageRepository(db *gorm.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

// WithTx rebinds the repository to a transaction handle.
func (r *PackageRepository) WithTx(tx *gorm.DB) *PackageRepository {
	if tx == nil {
		return r
	}
	return &PackageRepository{db: tx}
}

// Create inserts a new credit package row.
func (r *PackageRepository) Create(ctx context.Context, pkg *models.CreditPackage) (*models.CreditPackage, error) {
	if pkg.ID == uuid.Nil {
		pkg.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(pkg).Error; err != nil {
		return nil, err
	}
	return pkg, nil
}

// Update persists package changes.
func (r *PackageRepository) Update(ctx context.Context, pkg *models.CreditPackage) error {
	return r.db.WithContext(ctx).Save(pkg).Error
}

// FindByID fetches a package by primary key.
func (r *PackageRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.CreditPackage, error) {
	var pkg models.CreditPackage
	if err := r.db.WithContext(ctx).First(&pkg, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &pkg, nil
}

// FindByExternalProductID fetches the active package mapped to a provider product.
func (r *PackageRepository) FindByExternalProductID(ctx context.Context, productID string) (*models.CreditPackage, error) {
	var pkg models.CreditPackage
	err := r.db.WithContext(ctx).
		Where("external_product_id = ? AND active = ?", productID, true).
		First(&pkg).Error
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

// List returns all packages, optionally filtered to active ones.
func (r *PackageRepository) List(ctx context.Context, activeOnly bool) ([]models.CreditPackage, error) {
	query := r.db.WithContext(ctx).Model(&models.CreditPackage{}).Order("credits ASC")
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var rows []models.CreditPackage
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
