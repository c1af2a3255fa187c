package credits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/magneticlabs/credits-backend/internal/ledger"
	"github.com/magneticlabs/credits-backend/pkg/db/models"
	"github.com/magneticlabs/credits-backend/pkg/enums"
	pkgerrors "github.com/magneticlabs/credits-backend/pkg/errors"
)

// ExhaustedMessage is the product copy returned when a user runs out of credits.
const ExhaustedMessage = "Seus créditos acabaram!"

// TxRunner runs a function inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ChatCounter counts prior user-authored messages in a conversation.
type ChatCounter interface {
	CountUserMessages(ctx context.Context, conversationID uuid.UUID) (int64, error)
}

// UserFinder loads the user projection for balance views.
type UserFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// PlanFinder loads catalog plans for balance views.
type PlanFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
}

// Metrics receives consumption counters. Optional.
type Metrics interface {
	AddConsumed(action string, credits int)
	IncInsufficient(action string)
}

// Service is the consumption engine: cost resolution, lazy expiration,
// priority debiting and the transactional ledger append.
type Service interface {
	Consume(ctx context.Context, params ConsumeParams) (*ConsumeResult, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (*BalanceView, error)
	AdminAdjust(ctx context.Context, params AdminAdjustParams) (*ConsumeResult, error)
	LedgerAudit(ctx context.Context, userID uuid.UUID) (*LedgerAuditView, error)
}

// ConsumeMetadata carries the optional action context. AgentID switches the
// cost to the agent's configured credit_cost; ConversationID activates the
// chat billing cadence.
type ConsumeMetadata struct {
	AgentID        *uuid.UUID `json:"agent_id,omitempty"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	ScriptID       string     `json:"script_id,omitempty"`
}

// ConsumeParams identifies who is being charged for what.
type ConsumeParams struct {
	UserID   uuid.UUID
	Action   enums.ConsumeAction
	Metadata ConsumeMetadata
}

// BalanceSnapshot is the bucket state returned to callers.
type BalanceSnapshot struct {
	PlanCredits         int `json:"plan_credits"`
	SubscriptionCredits int `json:"subscription_credits"`
	BonusCredits        int `json:"bonus_credits"`
	Total               int `json:"total"`
}

// BalanceView is the read-side balance including presentation data.
type BalanceView struct {
	BalanceSnapshot
	PlanCreditsExpireAt *time.Time `json:"plan_credits_expire_at,omitempty"`
	CycleStartDate      *time.Time `json:"cycle_start_date,omitempty"`
	CycleEndDate        *time.Time `json:"cycle_end_date,omitempty"`
	PercentUsed         int        `json:"percent_used"`
}

// ConsumeResult reports the charge outcome. CreditsConsumed is 0 for free
// chat-cadence messages and zero-cost actions; Transaction is nil in those
// cases because no ledger row is written.
type ConsumeResult struct {
	CreditsConsumed int                       `json:"credits_consumed"`
	Balance         BalanceSnapshot           `json:"balance"`
	Transaction     *models.CreditTransaction `json:"-"`
}

// LedgerAuditView compares the stored balance against the replayed ledger.
// Drift is the balance total minus the summed ledger amounts; non-zero drift
// points at mutations applied without a ledger row, such as in-place
// expiration zeroing.
type LedgerAuditView struct {
	Balance     BalanceSnapshot `json:"balance"`
	LedgerTotal int             `json:"ledger_total"`
	Drift       int             `json:"drift"`
	Consistent  bool            `json:"consistent"`
}

// AdminAdjustParams is a back-office balance correction. Positive amounts
// land in the bonus bucket; negative amounts debit in the standard order.
type AdminAdjustParams struct {
	UserID uuid.UUID
	Amount int
	Reason string
}

// ServiceParams wires the consumption engine.
type ServiceParams struct {
	Tx            TxRunner
	Balances      BalanceRepository
	Ledger        ledger.Repository
	Agents        AgentRepository
	Chat          ChatCounter
	Users         UserFinder
	Plans         PlanFinder
	Subscriptions SubscriptionRepository
	Metrics       Metrics
	Now           func() time.Time
}

type service struct {
	tx            TxRunner
	balances      BalanceRepository
	ledger        ledger.Repository
	agents        AgentRepository
	chat          ChatCounter
	users         UserFinder
	plans         PlanFinder
	subscriptions SubscriptionRepository
	metrics       Metrics
	now           func() time.Time
}

// NewService builds the consumption engine from its dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Balances == nil {
		return nil, fmt.Errorf("balance repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Agents == nil {
		return nil, fmt.Errorf("agent repository required")
	}
	if params.Chat == nil {
		return nil, fmt.Errorf("chat counter required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user finder required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan finder required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription repository required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		tx:            params.Tx,
		balances:      params.Balances,
		ledger:        params.Ledger,
		agents:        params.Agents,
		chat:          params.Chat,
		users:         params.Users,
		plans:         params.Plans,
		subscriptions: params.Subscriptions,
		metrics:       params.Metrics,
		now:           now,
	}, nil
}

func snapshot(balance *models.CreditBalance) BalanceSnapshot {
	return BalanceSnapshot{
		PlanCredits:         balance.PlanCredits,
		SubscriptionCredits: balance.SubscriptionCredits,
		BonusCredits:        balance.BonusCredits,
		Total:               balance.Total(),
	}
}

// effectiveSnapshot applies plan-credit expiration virtually, without
// persisting, so read paths never show expired credits as spendable.
func effectiveSnapshot(balance *models.CreditBalance, now time.Time) BalanceSnapshot {
	view := snapshot(balance)
	if balance.PlanCreditsExpired(now) {
		view.Total -= view.PlanCredits
		view.PlanCredits = 0
	}
	return view
}

func noCreditsErr() error {
	return pkgerrors.New(pkgerrors.CodePaymentRequired, ExhaustedMessage).
		WithDetails(map[string]any{"error": "no_credits"})
}

func insufficientErr(balance BalanceSnapshot, required int) error {
	return pkgerrors.New(pkgerrors.CodePaymentRequired, ExhaustedMessage).
		WithDetails(map[string]any{
			"error":    "insufficient_credits",
			"balance":  balance,
			"required": required,
		})
}

func (s *service) Consume(ctx context.Context, params ConsumeParams) (*ConsumeResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !params.Action.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown action %q", params.Action))
	}

	cost, agent, err := s.resolveCost(ctx, params.Action, params.Metadata.AgentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolving action cost")
	}

	now := s.now()

	// chat billing cadence: only the message opening a package is charged
	if params.Action == enums.ConsumeActionChatMessages && params.Metadata.ConversationID != nil {
		count, err := s.chat.CountUserMessages(ctx, *params.Metadata.ConversationID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "counting conversation messages")
		}
		n := int64(packageSize(agent))
		if !(count == 0 || count%n == 0) {
			balance, err := s.balances.FindByUserID(ctx, params.UserID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, noCreditsErr()
				}
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading balance")
			}
			return &ConsumeResult{CreditsConsumed: 0, Balance: effectiveSnapshot(balance, now)}, nil
		}
	}

	if cost == 0 {
		balance, err := s.balances.FindByUserID(ctx, params.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, noCreditsErr()
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading balance")
		}
		return &ConsumeResult{CreditsConsumed: 0, Balance: effectiveSnapshot(balance, now)}, nil
	}

	var (
		result       *ConsumeResult
		insufficient error
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		balances := s.balances.WithTx(tx)

		balance, err := balances.FindForUpdate(ctx, params.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				insufficient = noCreditsErr()
				return nil
			}
			return err
		}

		// lazy expiration is persisted even when the charge then fails
		if balance.PlanCreditsExpired(now) {
			balance.PlanCredits = 0
			balance.PlanCreditsExpireAt = nil
			if err := balances.Save(ctx, balance); err != nil {
				return err
			}
		}

		if balance.Total() < cost {
			insufficient = insufficientErr(snapshot(balance), cost)
			return nil
		}

		debitBuckets(balance, cost)
		if err := balances.Save(ctx, balance); err != nil {
			return err
		}

		metadata, err := json.Marshal(params.Metadata)
		if err != nil {
			return err
		}
		entry := &models.CreditTransaction{
			UserID:       params.UserID,
			Type:         enums.TransactionTypeConsumption,
			Amount:       -cost,
			Source:       params.Action.String(),
			BalanceAfter: balance.Total(),
			Metadata:     metadata,
		}
		if err := s.ledger.WithTx(tx).Create(ctx, entry); err != nil {
			return err
		}

		result = &ConsumeResult{
			CreditsConsumed: cost,
			Balance:         snapshot(balance),
			Transaction:     entry,
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "consuming credits")
	}
	if insufficient != nil {
		if s.metrics != nil {
			s.metrics.IncInsufficient(params.Action.String())
		}
		return nil, insufficient
	}

	if s.metrics != nil {
		s.metrics.AddConsumed(params.Action.String(), result.CreditsConsumed)
	}
	return result, nil
}

// debitBuckets spends in the fixed order plan, subscription, bonus so that
// expiring credits go first and bonus credits are preserved.
func debitBuckets(balance *models.CreditBalance, cost int) {
	remaining := cost

	debit := min(remaining, balance.PlanCredits)
	balance.PlanCredits -= debit
	remaining -= debit

	debit = min(remaining, balance.SubscriptionCredits)
	balance.SubscriptionCredits -= debit
	remaining -= debit

	debit = min(remaining, balance.BonusCredits)
	balance.BonusCredits -= debit
}

func (s *service) GetBalance(ctx context.Context, userID uuid.UUID) (*BalanceView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	balance, err := s.balances.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no credit balance configured")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading balance")
	}

	now := s.now()
	view := &BalanceView{
		BalanceSnapshot: effectiveSnapshot(balance, now),
		CycleStartDate:  balance.CycleStartDate,
		CycleEndDate:    balance.CycleEndDate,
	}
	if !balance.PlanCreditsExpired(now) {
		view.PlanCreditsExpireAt = balance.PlanCreditsExpireAt
	}
	view.PercentUsed = s.percentUsed(ctx, userID, view.BalanceSnapshot)
	return view, nil
}

// percentUsed compares the remaining plan and subscription credits against
// what the current cycle granted. Bonus credits are excluded on both sides;
// a user without grant context reads as 0. Lookup failures degrade to 0
// rather than failing the balance read.
func (s *service) percentUsed(ctx context.Context, userID uuid.UUID, view BalanceSnapshot) int {
	granted := 0

	user, err := s.users.FindByID(ctx, userID)
	if err == nil && user.CurrentPlanID != nil {
		if plan, err := s.plans.FindByID(ctx, *user.CurrentPlanID); err == nil {
			if plan.HasMonthlyRenewal {
				granted += plan.MonthlyCredits
			} else {
				granted += plan.InitialCredits
			}
		}
	}
	if sub, err := s.subscriptions.FindActiveByUserID(ctx, userID); err == nil {
		granted += sub.CreditsPerMonth
	}

	if granted <= 0 {
		return 0
	}
	remaining := view.PlanCredits + view.SubscriptionCredits
	used := granted - remaining
	percent := used * 100 / granted
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

func (s *service) AdminAdjust(ctx context.Context, params AdminAdjustParams) (*ConsumeResult, error) {
	if params.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if params.Amount == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment amount cannot be zero")
	}
	if params.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "adjustment reason is required")
	}

	var (
		result       *ConsumeResult
		insufficient error
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		balances := s.balances.WithTx(tx)

		balance, err := balances.FindForUpdate(ctx, params.UserID)
		created := false
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if params.Amount < 0 {
				insufficient = noCreditsErr()
				return nil
			}
			balance = &models.CreditBalance{UserID: params.UserID}
			created = true
		}

		if params.Amount > 0 {
			balance.BonusCredits += params.Amount
		} else {
			cost := -params.Amount
			if balance.Total() < cost {
				insufficient = insufficientErr(snapshot(balance), cost)
				return nil
			}
			debitBuckets(balance, cost)
		}

		if created {
			if err := balances.Create(ctx, balance); err != nil {
				return err
			}
		} else if err := balances.Save(ctx, balance); err != nil {
			return err
		}

		metadata, err := json.Marshal(map[string]string{"reason": params.Reason})
		if err != nil {
			return err
		}
		entry := &models.CreditTransaction{
			UserID:       params.UserID,
			Type:         enums.TransactionTypeAdminAdjustment,
			Amount:       params.Amount,
			Source:       "admin_adjustment",
			BalanceAfter: balance.Total(),
			Metadata:     metadata,
		}
		if err := s.ledger.WithTx(tx).Create(ctx, entry); err != nil {
			return err
		}

		result = &ConsumeResult{
			CreditsConsumed: params.Amount,
			Balance:         snapshot(balance),
			Transaction:     entry,
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "adjusting credits")
	}
	if insufficient != nil {
		return nil, insufficient
	}
	return result, nil
}

// LedgerAudit replays the summed ledger amounts for a user and compares them
// against the stored balance total.
func (s *service) LedgerAudit(ctx context.Context, userID uuid.UUID) (*LedgerAuditView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	balance, err := s.balances.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no credit balance configured")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading balance")
	}

	sum, err := s.ledger.SumByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "replaying ledger")
	}

	drift := balance.Total() - sum
	return &LedgerAuditView{
		Balance:     snapshot(balance),
		LedgerTotal: sum,
		Drift:       drift,
		Consistent:  drift == 0,
	}, nil
}
