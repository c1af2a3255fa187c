package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/magneticlabs/credits-backend/api/middleware"
	"github.com/magneticlabs/credits-backend/internal/credits"
	"github.com/magneticlabs/credits-backend/internal/ledger"
	"github.com/magneticlabs/credits-backend/pkg/db/models"
	pkgerrors "github.com/magneticlabs/credits-backend/pkg/errors"
	"github.com/magneticlabs/credits-backend/pkg/logger"
	"github.com/magneticlabs/credits-backend/pkg/pagination"
)

func insufficientForTest() error {
	return pkgerrors.New(pkgerrors.CodePaymentRequired, credits.ExhaustedMessage).
		WithDetails(map[string]any{
			"error":    "insufficient_credits",
			"balance":  credits.BalanceSnapshot{BonusCredits: 1, Total: 1},
			"required": 3,
		})
}

type testCreditsService struct {
	consumeFn    func(ctx context.Context, params credits.ConsumeParams) (*credits.ConsumeResult, error)
	getBalanceFn func(ctx context.Context, userID uuid.UUID) (*credits.BalanceView, error)
	adjustFn     func(ctx context.Context, params credits.AdminAdjustParams) (*credits.ConsumeResult, error)
	auditFn      func(ctx context.Context, userID uuid.UUID) (*credits.LedgerAuditView, error)
}

func (s *testCreditsService) Consume(ctx context.Context, params credits.ConsumeParams) (*credits.ConsumeResult, error) {
	if s.consumeFn != nil {
		return s.consumeFn(ctx, params)
	}
	return nil, nil
}

func (s *testCreditsService) GetBalance(ctx context.Context, userID uuid.UUID) (*credits.BalanceView, error) {
	if s.getBalanceFn != nil {
		return s.getBalanceFn(ctx, userID)
	}
	return nil, nil
}

func (s *testCreditsService) AdminAdjust(ctx context.Context, params credits.AdminAdjustParams) (*credits.ConsumeResult, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, params)
	}
	return nil, nil
}

func (s *testCreditsService) LedgerAudit(ctx context.Context, userID uuid.UUID) (*credits.LedgerAuditView, error) {
	if s.auditFn != nil {
		return s.auditFn(ctx, userID)
	}
	return nil, nil
}

type testLedgerService struct {
	listFn func(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ledger.EntryPage, error)
}

func (s *testLedgerService) RecordEntry(context.Context, ledger.RecordEntryInput) (*models.CreditTransaction, error) {
	return nil, nil
}

func (s *testLedgerService) ListEntries(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ledger.EntryPage, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, params)
	}
	return &ledger.EntryPage{}, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func authedRequest(method, target, body string, userID uuid.UUID) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	return req.WithContext(middleware.WithUserID(req.Context(), userID))
}

func TestCreditsConsumeSuccess(t *testing.T) {
	userID := uuid.New()
	svc := &testCreditsService{
		consumeFn: func(ctx context.Context, params credits.ConsumeParams) (*credits.ConsumeResult, error) {
			if params.UserID != userID {
				t.Fatalf("unexpected user %s", params.UserID)
			}
			if string(params.Action) != "script_generation" {
				t.Fatalf("unexpected action %q", params.Action)
			}
			return &credits.ConsumeResult{
				CreditsConsumed: 3,
				Balance: credits.BalanceSnapshot{
					PlanCredits: 7,
					Total:       7,
				},
			}, nil
		},
	}

	req := authedRequest(http.MethodPost, "/api/v1/credits/consume", `{"action":"script_generation"}`, userID)
	resp := httptest.NewRecorder()
	CreditsConsume(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var body struct {
		Success         bool `json:"success"`
		CreditsConsumed int  `json:"credits_consumed"`
		Balance         struct {
			PlanCredits int `json:"plan_credits"`
			Total       int `json:"total"`
		} `json:"balance"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !body.Success || body.CreditsConsumed != 3 || body.Balance.Total != 7 {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestCreditsConsumeInsufficientIsFlat402(t *testing.T) {
	userID := uuid.New()
	svc := &testCreditsService{
		consumeFn: func(ctx context.Context, params credits.ConsumeParams) (*credits.ConsumeResult, error) {
			return nil, insufficientForTest()
		},
	}

	req := authedRequest(http.MethodPost, "/api/v1/credits/consume", `{"action":"script_generation"}`, userID)
	resp := httptest.NewRecorder()
	CreditsConsume(svc, testLogger())(resp, req)

	if resp.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 got %d", resp.Code)
	}
	var body struct {
		Error    string          `json:"error"`
		Message  string          `json:"message"`
		Balance  json.RawMessage `json:"balance"`
		Required int             `json:"required"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if body.Error != "insufficient_credits" {
		t.Fatalf("unexpected error field %q", body.Error)
	}
	if body.Message != credits.ExhaustedMessage {
		t.Fatalf("unexpected message %q", body.Message)
	}
	if body.Required != 3 {
		t.Fatalf("unexpected required %d", body.Required)
	}
	if len(body.Balance) == 0 {
		t.Fatal("expected balance in refusal body")
	}
}

func TestCreditsConsumeUnknownActionRejected(t *testing.T) {
	req := authedRequest(http.MethodPost, "/api/v1/credits/consume", `{"action":"mining"}`, uuid.New())
	resp := httptest.NewRecorder()
	CreditsConsume(&testCreditsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestCreditsConsumeRequiresAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/credits/consume", strings.NewReader(`{"action":"chat_messages"}`))
	resp := httptest.NewRecorder()
	CreditsConsume(&testCreditsService{}, testLogger())(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCreditsBalance(t *testing.T) {
	userID := uuid.New()
	svc := &testCreditsService{
		getBalanceFn: func(ctx context.Context, id uuid.UUID) (*credits.BalanceView, error) {
			if id != userID {
				t.Fatalf("unexpected user %s", id)
			}
			return &credits.BalanceView{
				BalanceSnapshot: credits.BalanceSnapshot{PlanCredits: 10, BonusCredits: 2, Total: 12},
				PercentUsed:     40,
			}, nil
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/credits/balance", "", userID)
	resp := httptest.NewRecorder()
	CreditsBalance(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data struct {
			Total       int `json:"total"`
			PercentUsed int `json:"percent_used"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.Total != 12 || envelope.Data.PercentUsed != 40 {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestCreditsTransactionsPassesPagination(t *testing.T) {
	userID := uuid.New()
	svc := &testLedgerService{
		listFn: func(ctx context.Context, id uuid.UUID, params pagination.Params) (*ledger.EntryPage, error) {
			if params.Limit != 5 || params.Cursor != "abc" {
				t.Fatalf("unexpected params %+v", params)
			}
			return &ledger.EntryPage{NextCursor: "def"}, nil
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/credits/transactions?limit=5&cursor=abc", "", userID)
	resp := httptest.NewRecorder()
	CreditsTransactions(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var envelope struct {
		Data struct {
			NextCursor string `json:"next_cursor"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.NextCursor != "def" {
		t.Fatalf("unexpected cursor %q", envelope.Data.NextCursor)
	}
}

func TestCreditsTransactionsRejectsBadLimit(t *testing.T) {
	req := authedRequest(http.MethodGet, "/api/v1/credits/transactions?limit=many", "", uuid.New())
	resp := httptest.NewRecorder()
	CreditsTransactions(&testLedgerService{}, testLogger())(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
