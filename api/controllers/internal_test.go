package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/magneticlabs/credits-backend/internal/entitlement"
	"github.com/magneticlabs/credits-backend/internal/renewal"
)

type testRenewalService struct {
	runFn func(ctx context.Context) (*renewal.Summary, error)
}

func (s *testRenewalService) Run(ctx context.Context) (*renewal.Summary, error) {
	if s.runFn != nil {
		return s.runFn(ctx)
	}
	return &renewal.Summary{}, nil
}

type testReconcileService struct {
	runFn func(ctx context.Context) (*entitlement.ReconcileSummary, error)
}

func (s *testReconcileService) Run(ctx context.Context) (*entitlement.ReconcileSummary, error) {
	if s.runFn != nil {
		return s.runFn(ctx)
	}
	return &entitlement.ReconcileSummary{}, nil
}

func TestRenewalsRunReportsSummary(t *testing.T) {
	svc := &testRenewalService{
		runFn: func(ctx context.Context) (*renewal.Summary, error) {
			return &renewal.Summary{
				RenewedPlans:         4,
				RenewedSubscriptions: 2,
				ProcessedAt:          time.Now().UTC(),
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/renewals/run", nil)
	resp := httptest.NewRecorder()
	RenewalsRun(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var body struct {
		Success              bool `json:"success"`
		RenewedPlans         int  `json:"renewed_plans"`
		RenewedSubscriptions int  `json:"renewed_subscriptions"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !body.Success || body.RenewedPlans != 4 || body.RenewedSubscriptions != 2 {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestRenewalsRunPartialFailureStillReports(t *testing.T) {
	svc := &testRenewalService{
		runFn: func(ctx context.Context) (*renewal.Summary, error) {
			return &renewal.Summary{RenewedPlans: 1, Errors: 2}, errors.New("2 rows failed")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/renewals/run", nil)
	resp := httptest.NewRecorder()
	RenewalsRun(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for partial failure, got %d", resp.Code)
	}
}

func TestReconcileRunReportsSummary(t *testing.T) {
	svc := &testReconcileService{
		runFn: func(ctx context.Context) (*entitlement.ReconcileSummary, error) {
			return &entitlement.ReconcileSummary{Checked: 10, Updated: 1, Downgraded: 2}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/reconcile/run", nil)
	resp := httptest.NewRecorder()
	ReconcileRun(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	var body struct {
		Success    bool `json:"success"`
		Checked    int  `json:"checked"`
		Downgraded int  `json:"downgraded"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !body.Success || body.Checked != 10 || body.Downgraded != 2 {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestRenewalsRunTotalFailure(t *testing.T) {
	svc := &testRenewalService{
		runFn: func(ctx context.Context) (*renewal.Summary, error) {
			return nil, errors.New("db down")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/renewals/run", nil)
	resp := httptest.NewRecorder()
	RenewalsRun(svc, testLogger())(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", resp.Code)
	}
}
