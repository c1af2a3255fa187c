package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/magneticlabs/credits-backend/pkg/db/models"
	"github.com/magneticlabs/credits-backend/pkg/enums"
	"github.com/magneticlabs/credits-backend/pkg/pagination"
)

// Service defines operations over the append-only credit ledger.
type Service interface {
	RecordEntry(ctx context.Context, input RecordEntryInput) (*models.CreditTransaction, error)
	ListEntries(ctx context.Context, userID uuid.UUID, params pagination.Params) (*EntryPage, error)
}

type service struct {
	repo Repository
}

// RecordEntryInput captures the immutable data a ledger entry requires.
// Amount is the signed delta applied to the balance; BalanceAfter snapshots
// the total immediately after the mutation.
type RecordEntryInput struct {
	UserID       uuid.UUID             `json:"user_id"`
	Type         enums.TransactionType `json:"type"`
	Amount       int                   `json:"amount"`
	Source       string                `json:"source"`
	BalanceAfter int                   `json:"balance_after"`
	Metadata     json.RawMessage       `json:"metadata"`
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) RecordEntry(ctx context.Context, input RecordEntryInput) (*models.CreditTransaction, error) {
	if input.UserID == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}
	if !input.Type.IsValid() {
		return nil, fmt.Errorf("invalid transaction type %q", input.Type)
	}
	if strings.TrimSpace(input.Source) == "" {
		return nil, fmt.Errorf("source is required")
	}
	if input.BalanceAfter < 0 {
		return nil, fmt.Errorf("balance after cannot be negative")
	}

	entry := &models.CreditTransaction{
		UserID:       input.UserID,
		Type:         input.Type,
		Amount:       input.Amount,
		Source:       input.Source,
		BalanceAfter: input.BalanceAfter,
		Metadata:     input.Metadata,
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) ListEntries(ctx context.Context, userID uuid.UUID, params pagination.Params) (*EntryPage, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("user id is required")
	}
	return s.repo.ListByUser(ctx, userID, params)
}
