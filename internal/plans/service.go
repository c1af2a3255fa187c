package plans

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/magneticlabs/credits-backend/pkg/db/models"
	pkgerrors "github.com/magneticlabs/credits-backend/pkg/errors"
)

type planRepository interface {
	Create(ctx context.Context, plan *models.Plan) (*models.Plan, error)
	Update(ctx context.Context, plan *models.Plan) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	FindBySlug(ctx context.Context, slug string) (*models.Plan, error)
	FindByExternalProductID(ctx context.Context, productID string) (*models.Plan, error)
	FindBestByCRMTags(ctx context.Context, tags []string) (*models.Plan, error)
	List(ctx context.Context, activeOnly bool) ([]models.Plan, error)
}

type packageRepository interface {
	Create(ctx context.Context, pkg *models.CreditPackage) (*models.CreditPackage, error)
	Update(ctx context.Context, pkg *models.CreditPackage) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.CreditPackage, error)
	FindByExternalProductID(ctx context.Context, productID string) (*models.CreditPackage, error)
	List(ctx context.Context, activeOnly bool) ([]models.CreditPackage, error)
}

// Service exposes catalog reads plus the admin mutations. Plans are
// deactivated, never deleted, so historical ledger context stays resolvable.
type Service interface {
	GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	GetPlanBySlug(ctx context.Context, slug string) (*models.Plan, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error)
	CreatePlan(ctx context.Context, input PlanInput) (*models.Plan, error)
	UpdatePlan(ctx context.Context, id uuid.UUID, input PlanInput) (*models.Plan, error)
	DeactivatePlan(ctx context.Context, id uuid.UUID) error

	ListPackages(ctx context.Context, activeOnly bool) ([]models.CreditPackage, error)
	CreatePackage(ctx context.Context, input PackageInput) (*models.CreditPackage, error)
	UpdatePackage(ctx context.Context, id uuid.UUID, input PackageInput) (*models.CreditPackage, error)

	// ResolveProduct maps a payment-provider product id to either a plan or
	// a credit package, plans first.
	ResolveProduct(ctx context.Context, productID string) (*ProductMatch, error)
	// ResolvePlanByTags picks the plan a CRM tag set entitles the user to.
	ResolvePlanByTags(ctx context.Context, tags []string) (*models.Plan, error)
}

// ProductMatch holds the catalog entry a provider product id resolved to.
// Exactly one of Plan or Package is set.
type ProductMatch struct {
	Plan    *models.Plan
	Package *models.CreditPackage
}

// PlanInput carries the admin-editable plan fields.
type PlanInput struct {
	Slug               string          `json:"slug" validate:"required"`
	Name               string          `json:"name" validate:"required"`
	DisplayOrder       int             `json:"display_order"`
	InitialCredits     int             `json:"initial_credits" validate:"gte=0"`
	MonthlyCredits     int             `json:"monthly_credits" validate:"gte=0"`
	HasMonthlyRenewal  bool            `json:"has_monthly_renewal"`
	CreditsExpireDays  *int            `json:"credits_expire_days"`
	CanBuyExtraCredits bool            `json:"can_buy_extra_credits"`
	Price              decimal.Decimal `json:"price"`
	Features           []string        `json:"features"`
	CRMTag             string          `json:"crm_tag"`
	ExternalProductID  string          `json:"external_product_id"`
}

// PackageInput carries the admin-editable credit package fields.
type PackageInput struct {
	Name              string          `json:"name" validate:"required"`
	Credits           int             `json:"credits" validate:"gt=0"`
	Price             decimal.Decimal `json:"price"`
	Recurring         bool            `json:"recurring"`
	Tier              string          `json:"tier"`
	ExternalProductID string          `json:"external_product_id"`
}

type service struct {
	plans    planRepository
	packages packageRepository
}

// NewService wires the catalog service with its repositories.
func NewService(plans planRepository, packages packageRepository) (Service, error) {
	if plans == nil {
		return nil, fmt.Errorf("plan repository required")
	}
	if packages == nil {
		return nil, fmt.Errorf("package repository required")
	}
	return &service{plans: plans, packages: packages}, nil
}

func (s *service) GetPlan(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id is required")
	}
	plan, err := s.plans.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading plan")
	}
	return plan, nil
}

func (s *service) GetPlanBySlug(ctx context.Context, slug string) (*models.Plan, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan slug is required")
	}
	plan, err := s.plans.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading plan")
	}
	return plan, nil
}

func (s *service) ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	return s.plans.List(ctx, activeOnly)
}

func validatePlanInput(input PlanInput) error {
	if strings.TrimSpace(input.Slug) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan slug is required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan name is required")
	}
	if input.InitialCredits < 0 || input.MonthlyCredits < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan credits cannot be negative")
	}
	if input.CreditsExpireDays != nil && *input.CreditsExpireDays <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "credits expire days must be positive")
	}
	return nil
}

func (s *service) CreatePlan(ctx context.Context, input PlanInput) (*models.Plan, error) {
	if err := validatePlanInput(input); err != nil {
		return nil, err
	}

	plan := &models.Plan{
		Slug:               strings.TrimSpace(input.Slug),
		Name:               strings.TrimSpace(input.Name),
		DisplayOrder:       input.DisplayOrder,
		InitialCredits:     input.InitialCredits,
		MonthlyCredits:     input.MonthlyCredits,
		HasMonthlyRenewal:  input.HasMonthlyRenewal,
		CreditsExpireDays:  input.CreditsExpireDays,
		CanBuyExtraCredits: input.CanBuyExtraCredits,
		Price:              input.Price,
		Features:           input.Features,
		CRMTag:             strings.TrimSpace(input.CRMTag),
		ExternalProductID:  strings.TrimSpace(input.ExternalProductID),
		Active:             true,
	}

	created, err := s.plans.Create(ctx, plan)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating plan")
	}
	return created, nil
}

func (s *service) UpdatePlan(ctx context.Context, id uuid.UUID, input PlanInput) (*models.Plan, error) {
	if err := validatePlanInput(input); err != nil {
		return nil, err
	}

	plan, err := s.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}

	plan.Slug = strings.TrimSpace(input.Slug)
	plan.Name = strings.TrimSpace(input.Name)
	plan.DisplayOrder = input.DisplayOrder
	plan.InitialCredits = input.InitialCredits
	plan.MonthlyCredits = input.MonthlyCredits
	plan.HasMonthlyRenewal = input.HasMonthlyRenewal
	plan.CreditsExpireDays = input.CreditsExpireDays
	plan.CanBuyExtraCredits = input.CanBuyExtraCredits
	plan.Price = input.Price
	plan.Features = input.Features
	plan.CRMTag = strings.TrimSpace(input.CRMTag)
	plan.ExternalProductID = strings.TrimSpace(input.ExternalProductID)

	if err := s.plans.Update(ctx, plan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating plan")
	}
	return plan, nil
}

func (s *service) DeactivatePlan(ctx context.Context, id uuid.UUID) error {
	plan, err := s.GetPlan(ctx, id)
	if err != nil {
		return err
	}
	if !plan.Active {
		return nil
	}
	plan.Active = false
	if err := s.plans.Update(ctx, plan); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deactivating plan")
	}
	return nil
}

func (s *service) ListPackages(ctx context.Context, activeOnly bool) ([]models.CreditPackage, error) {
	return s.packages.List(ctx, activeOnly)
}

func validatePackageInput(input PackageInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "package name is required")
	}
	if input.Credits <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "package credits must be positive")
	}
	return nil
}

func (s *service) CreatePackage(ctx context.Context, input PackageInput) (*models.CreditPackage, error) {
	if err := validatePackageInput(input); err != nil {
		return nil, err
	}

	pkg := &models.CreditPackage{
		Name:              strings.TrimSpace(input.Name),
		Credits:           input.Credits,
		Price:             input.Price,
		Recurring:         input.Recurring,
		Tier:              strings.TrimSpace(input.Tier),
		ExternalProductID: strings.TrimSpace(input.ExternalProductID),
		Active:            true,
	}

	created, err := s.packages.Create(ctx, pkg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating credit package")
	}
	return created, nil
}

func (s *service) UpdatePackage(ctx context.Context, id uuid.UUID, input PackageInput) (*models.CreditPackage, error) {
	if err := validatePackageInput(input); err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "package id is required")
	}

	pkg, err := s.packages.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "credit package not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading credit package")
	}

	pkg.Name = strings.TrimSpace(input.Name)
	pkg.Credits = input.Credits
	pkg.Price = input.Price
	pkg.Recurring = input.Recurring
	pkg.Tier = strings.TrimSpace(input.Tier)
	pkg.ExternalProductID = strings.TrimSpace(input.ExternalProductID)

	if err := s.packages.Update(ctx, pkg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating credit package")
	}
	return pkg, nil
}

func (s *service) ResolveProduct(ctx context.Context, productID string) (*ProductMatch, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	plan, err := s.plans.FindByExternalProductID(ctx, productID)
	if err == nil {
		return &ProductMatch{Plan: plan}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolving product to plan")
	}

	pkg, err := s.packages.FindByExternalProductID(ctx, productID)
	if err == nil {
		return &ProductMatch{Package: pkg}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolving product to package")
	}

	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "unknown product id")
}

func (s *service) ResolvePlanByTags(ctx context.Context, tags []string) (*models.Plan, error) {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			cleaned = append(cleaned, tag)
		}
	}
	if len(cleaned) == 0 {
		return nil, nil
	}
	plan, err := s.plans.FindBestByCRMTags(ctx, cleaned)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolving plan by crm tags")
	}
	return plan, nil
}
