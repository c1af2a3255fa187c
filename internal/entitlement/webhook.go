package entitlement

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/magneticlabs/credits-backend/internal/credits"
	"github.com/magneticlabs/credits-backend/internal/ledger"
	"github.com/magneticlabs/credits-backend/internal/plans"
	"github.com/magneticlabs/credits-backend/internal/users"
	"github.com/magneticlabs/credits-backend/pkg/config"
	"github.com/magneticlabs/credits-backend/pkg/db"
	"github.com/magneticlabs/credits-backend/pkg/db/models"
	"github.com/magneticlabs/credits-backend/pkg/enums"
	pkgerrors "github.com/magneticlabs/credits-backend/pkg/errors"
	"github.com/magneticlabs/credits-backend/pkg/logger"
)

// ProviderHotmart is the provider tag stored with every audit row.
const ProviderHotmart = "hotmart"

// Delivery acknowledgement statuses. The endpoint always answers 200 so the
// provider stops retrying; the status tells it what happened.
const (
	AckOK       = "ok"
	AckRejected = "rejected"
	AckError    = "error"
)

// Ack is the body the webhook endpoint returns for every delivery.
type Ack struct {
	Status string `json:"status"`
}

// Delivery is one raw webhook request: the body plus the credentials the
// provider attached.
type Delivery struct {
	Body      []byte
	Signature string
	Token     string
}

// PurchaseEvent is the provider payload shape the engine cares about.
type PurchaseEvent struct {
	ID    string       `json:"id"`
	Event string       `json:"event"`
	Data  PurchaseData `json:"data"`
}

type PurchaseData struct {
	Buyer        Buyer        `json:"buyer"`
	Product      Product      `json:"product"`
	Purchase     Purchase     `json:"purchase"`
	Subscription Subscription `json:"subscription"`
}

type Buyer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type Product struct {
	ID json.Number `json:"id"`
}

type Purchase struct {
	Status      string `json:"status"`
	Transaction string `json:"transaction"`
}

type Subscription struct {
	SubscriberCode string `json:"subscriber_code"`
	Plan           struct {
		Name string `json:"name"`
	} `json:"plan"`
}

type catalogResolver interface {
	ResolveProduct(ctx context.Context, productID string) (*plans.ProductMatch, error)
}

type idempotencyGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
}

// WebhookServiceParams wires the purchase webhook processor.
type WebhookServiceParams struct {
	Tx            credits.TxRunner
	Events        *EventRepository
	Users         *users.Repository
	Catalog       catalogResolver
	Transition    *Transitioner
	Balances      credits.BalanceRepository
	Subscriptions credits.SubscriptionRepository
	Ledger        ledger.Repository
	Guard         idempotencyGuard
	Logger        *logger.Logger
	Config        config.WebhookConfig
	Now           func() time.Time
}

// WebhookService turns provider purchase events into entitlement changes.
type WebhookService struct {
	tx            credits.TxRunner
	events        *EventRepository
	users         *users.Repository
	catalog       catalogResolver
	transition    *Transitioner
	balances      credits.BalanceRepository
	subscriptions credits.SubscriptionRepository
	ledger        ledger.Repository
	guard         idempotencyGuard
	logg          *logger.Logger
	cfg           config.WebhookConfig
	now           func() time.Time
}

// NewWebhookService builds the webhook processor. Guard is optional.
func NewWebhookService(params WebhookServiceParams) (*WebhookService, error) {
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "tx runner required")
	}
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event repository required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user repository required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog resolver required")
	}
	if params.Transition == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transitioner required")
	}
	if params.Balances == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "balance repository required")
	}
	if params.Subscriptions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription repository required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repository required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &WebhookService{
		tx:            params.Tx,
		events:        params.Events,
		users:         params.Users,
		catalog:       params.Catalog,
		transition:    params.Transition,
		balances:      params.Balances,
		subscriptions: params.Subscriptions,
		ledger:        params.Ledger,
		guard:         params.Guard,
		logg:          params.Logger,
		cfg:           params.Config,
		now:           now,
	}, nil
}

// HandleDelivery verifies, records and applies one webhook delivery. It never
// returns an error: every outcome is an Ack so the endpoint can answer 200
// and the provider stops retrying.
func (s *WebhookService) HandleDelivery(ctx context.Context, delivery Delivery) *Ack {
	if !s.verify(delivery) {
		s.audit(ctx, "", "", delivery.Body, enums.WebhookEventStatusRejected, "signature verification failed")
		return &Ack{Status: AckRejected}
	}

	var event PurchaseEvent
	if err := json.Unmarshal(delivery.Body, &event); err != nil {
		s.audit(ctx, "", "", delivery.Body, enums.WebhookEventStatusError, "malformed payload")
		return &Ack{Status: AckError}
	}

	if event.ID != "" && s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			// Redis being down never blocks a delivery; the unique index
			// still catches duplicates.
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook idempotency check failed")
		} else if seen {
			return &Ack{Status: AckOK}
		}
	}

	stored := s.audit(ctx, event.ID, event.Event, delivery.Body, enums.WebhookEventStatusReceived, "")
	if stored == nil {
		// duplicate event id: already handled, acknowledge without re-applying
		return &Ack{Status: AckOK}
	}

	if err := s.apply(ctx, &event); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "event_id", event.ID), "webhook processing failed", err)
		s.finish(ctx, stored, enums.WebhookEventStatusError, err.Error())
		return &Ack{Status: AckError}
	}

	s.finish(ctx, stored, enums.WebhookEventStatusProcessed, "")
	return &Ack{Status: AckOK}
}

// verify checks the HMAC signature when a secret is configured, otherwise
// falls back to the static provider token. With neither configured every
// delivery passes, which only makes sense in dev.
func (s *WebhookService) verify(delivery Delivery) bool {
	if s.cfg.HMACSecret != "" {
		mac := hmac.New(sha256.New, []byte(s.cfg.HMACSecret))
		mac.Write(delivery.Body)
		expected := hex.EncodeToString(mac.Sum(nil))
		provided := strings.TrimSpace(delivery.Signature)
		return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(provided))) == 1
	}
	if s.cfg.LegacyToken != "" {
		return subtle.ConstantTimeCompare([]byte(s.cfg.LegacyToken), []byte(delivery.Token)) == 1
	}
	return true
}

func (s *WebhookService) audit(ctx context.Context, eventID, eventType string, payload []byte, status enums.WebhookEventStatus, errMsg string) *models.WebhookEvent {
	event := &models.WebhookEvent{
		Provider:  ProviderHotmart,
		EventType: eventType,
		Payload:   json.RawMessage(payload),
		Status:    status,
		Error:     errMsg,
	}
	if eventID != "" {
		event.EventID = &eventID
	}
	if err := s.events.Create(ctx, event); err != nil {
		if eventID != "" && db.IsUniqueViolation(err, "") {
			return nil
		}
		// the audit row is best effort; processing continues without it
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "storing webhook audit row failed")
	}
	return event
}

func (s *WebhookService) finish(ctx context.Context, event *models.WebhookEvent, status enums.WebhookEventStatus, errMsg string) {
	if err := s.events.UpdateStatus(ctx, event.ID, status, errMsg); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "updating webhook audit row failed")
	}
}

func (s *WebhookService) apply(ctx context.Context, event *PurchaseEvent) error {
	switch strings.ToUpper(event.Event) {
	case "PURCHASE_APPROVED", "PURCHASE_COMPLETE":
		if !purchaseApproved(event.Data.Purchase.Status) {
			return nil
		}
		return s.applyPurchase(ctx, event)
	case "PURCHASE_REFUNDED", "PURCHASE_CHARGEBACK", "SUBSCRIPTION_CANCELLATION":
		return s.applyCancellation(ctx, event)
	default:
		return nil
	}
}

func purchaseApproved(status string) bool {
	switch strings.ToUpper(status) {
	case "", "APPROVED", "COMPLETED", "COMPLETE":
		return true
	}
	return false
}

func (s *WebhookService) applyPurchase(ctx context.Context, event *PurchaseEvent) error {
	user, err := s.findBuyer(ctx, event.Data.Buyer.Email)
	if err != nil {
		return err
	}

	productID := event.Data.Product.ID.String()
	match, err := s.catalog.ResolveProduct(ctx, productID)
	if err != nil {
		return err
	}

	switch {
	case match.Plan != nil:
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.transition.ApplyPlanChange(ctx, tx, user, match.Plan, enums.PlanChangeTriggerPurchase)
		})
	case match.Package != nil && match.Package.Recurring:
		return s.applyRecurringPackage(ctx, user, match.Package, event)
	case match.Package != nil:
		return s.applyOneTimePackage(ctx, user, match.Package, event)
	default:
		return pkgerrors.New(pkgerrors.CodeInternal, "product resolved to nothing")
	}
}

func (s *WebhookService) applyOneTimePackage(ctx context.Context, user *models.User, pkg *models.CreditPackage, event *PurchaseEvent) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		balances := s.balances.WithTx(tx)

		balance, err := balances.FindForUpdate(ctx, user.ID)
		created := false
		if err != nil {
			if err != gorm.ErrRecordNotFound {
				return err
			}
			balance = &models.CreditBalance{UserID: user.ID}
			created = true
		}

		balance.BonusCredits += pkg.Credits
		if created {
			if err := balances.Create(ctx, balance); err != nil {
				return err
			}
		} else if err := balances.Save(ctx, balance); err != nil {
			return err
		}

		metadata, _ := json.Marshal(map[string]string{
			"package_id":  pkg.ID.String(),
			"transaction": event.Data.Purchase.Transaction,
		})
		entry := &models.CreditTransaction{
			UserID:       user.ID,
			Type:         enums.TransactionTypeBonusPurchase,
			Amount:       pkg.Credits,
			Source:       "package_purchase",
			BalanceAfter: balance.Total(),
			Metadata:     metadata,
		}
		return s.ledger.WithTx(tx).Create(ctx, entry)
	})
}

func (s *WebhookService) applyRecurringPackage(ctx context.Context, user *models.User, pkg *models.CreditPackage, event *PurchaseEvent) error {
	now := s.now()
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		subs := s.subscriptions.WithTx(tx)
		balances := s.balances.WithTx(tx)

		sub, err := subs.FindActiveByUserID(ctx, user.ID)
		if err != nil && err != gorm.ErrRecordNotFound {
			return err
		}
		if sub == nil {
			sub = &models.CreditSubscription{
				UserID:                 user.ID,
				Tier:                   pkg.Tier,
				CreditsPerMonth:        pkg.Credits,
				Price:                  pkg.Price,
				Status:                 enums.SubscriptionStatusActive,
				NextRenewalAt:          now.AddDate(0, 1, 0),
				ExternalSubscriptionID: event.Data.Subscription.SubscriberCode,
			}
			if err := subs.Create(ctx, sub); err != nil {
				return err
			}
		} else {
			sub.Tier = pkg.Tier
			sub.CreditsPerMonth = pkg.Credits
			sub.Price = pkg.Price
			sub.NextRenewalAt = now.AddDate(0, 1, 0)
			if code := event.Data.Subscription.SubscriberCode; code != "" {
				sub.ExternalSubscriptionID = code
			}
			if err := subs.Save(ctx, sub); err != nil {
				return err
			}
		}

		balance, err := balances.FindForUpdate(ctx, user.ID)
		created := false
		if err != nil {
			if err != gorm.ErrRecordNotFound {
				return err
			}
			balance = &models.CreditBalance{UserID: user.ID}
			created = true
		}

		// purchase starts a fresh month: reset, not add
		balance.SubscriptionCredits = pkg.Credits
		if created {
			if err := balances.Create(ctx, balance); err != nil {
				return err
			}
		} else if err := balances.Save(ctx, balance); err != nil {
			return err
		}

		entry := &models.CreditTransaction{
			UserID:       user.ID,
			Type:         enums.TransactionTypeSubscriptionRenewal,
			Amount:       pkg.Credits,
			Source:       "subscription_purchase",
			BalanceAfter: balance.Total(),
		}
		return s.ledger.WithTx(tx).Create(ctx, entry)
	})
}

func (s *WebhookService) applyCancellation(ctx context.Context, event *PurchaseEvent) error {
	user, err := s.findBuyer(ctx, event.Data.Buyer.Email)
	if err != nil {
		return err
	}

	now := s.now()
	if code := event.Data.Subscription.SubscriberCode; code != "" {
		sub, err := s.subscriptions.FindByExternalID(ctx, code)
		if err != nil && err != gorm.ErrRecordNotFound {
			return err
		}
		if sub != nil && sub.Status == enums.SubscriptionStatusActive {
			sub.Status = enums.SubscriptionStatusCancelled
			sub.CancelledAt = &now
			return s.subscriptions.Save(ctx, sub)
		}
		if sub != nil {
			return nil
		}
	}

	// no add-on subscription matched: treat as a base plan cancellation
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.transition.ApplyPlanChange(ctx, tx, user, nil, enums.PlanChangeTriggerCancellation)
	})
}

func (s *WebhookService) findBuyer(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer email missing")
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no account for buyer email")
		}
		return nil, err
	}
	return user, nil
}
