package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/shapeai4-rgb/shapeai/api/middleware"
	pkgerrors "github.com/shapeai4-rgb/shapeai/pkg/errors"
	"github.com/shapeai4-rgb/shapeai/pkg/payment"
)

type stubBizonOrders struct {
	order  *payment.BizonOrder
	err    error
	lastID string
}

func (s *stubBizonOrders) GetOrder(_ context.Context, orderID string) (*payment.BizonOrder, error) {
	s.lastID = orderID
	if s.err != nil {
		return nil, s.err
	}
	return s.order, nil
}

func postBizonConfirm(handler http.HandlerFunc, userID uuid.UUID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/topups/bizon/confirm", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestBizonConfirmCreditsChargedOrder(t *testing.T) {
	t.Parallel()

	orders := &stubBizonOrders{order: &payment.BizonOrder{
		ID:       "ord_123",
		Status:   "charged",
		Amount:   "19.00",
		Currency: "EUR",
	}}
	svc := &stubTopup{}
	handler := BizonTopupConfirm(orders, svc, testLogger())

	userID := uuid.New()
	rec := postBizonConfirm(handler, userID, `{"orderId": "ord_123", "planId": "standard"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Success     bool `json:"success"`
		TokensAdded int  `json:"tokensAdded"`
		NewBalance  int  `json:"newBalance"`
	}
	decodeData(t, rec, &resp)
	if !resp.Success || resp.TokensAdded != 94 || resp.NewBalance != 104 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	if orders.lastID != "ord_123" {
		t.Fatalf("expected order lookup for ord_123, got %q", orders.lastID)
	}
	if len(svc.confirmations) != 1 {
		t.Fatalf("expected 1 confirmation, got %d", len(svc.confirmations))
	}
	got := svc.confirmations[0]
	if got.UserID != userID {
		t.Fatalf("expected user %s, got %s", userID, got.UserID)
	}
	if got.AmountCents != 1900 || got.Currency != "EUR" || got.Plan != "standard" {
		t.Fatalf("unexpected confirmation: %+v", got)
	}
	if got.Reference != "ord_123" || got.Provider != payment.ProviderBizon {
		t.Fatalf("unexpected reference or provider: %+v", got)
	}
}

func TestBizonConfirmRejectsUnpaidOrder(t *testing.T) {
	t.Parallel()

	orders := &stubBizonOrders{order: &payment.BizonOrder{
		ID:       "ord_456",
		Status:   "created",
		Amount:   "19.00",
		Currency: "EUR",
	}}
	svc := &stubTopup{}
	handler := BizonTopupConfirm(orders, svc, testLogger())

	rec := postBizonConfirm(handler, uuid.New(), `{"orderId": "ord_456"}`)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for unpaid order, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.confirmations) != 0 {
		t.Fatalf("expected no confirmations, got %d", len(svc.confirmations))
	}
}

func TestBizonConfirmRepeatIsAcknowledged(t *testing.T) {
	t.Parallel()

	orders := &stubBizonOrders{order: &payment.BizonOrder{
		ID:       "ord_123",
		Status:   "charged",
		Amount:   "19.00",
		Currency: "EUR",
	}}
	svc := &stubTopup{confirmErr: pkgerrors.New(pkgerrors.CodeIdempotency, "payment already processed")}
	handler := BizonTopupConfirm(orders, svc, testLogger())

	rec := postBizonConfirm(handler, uuid.New(), `{"orderId": "ord_123"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on repeat, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status string `json:"status"`
	}
	decodeData(t, rec, &resp)
	if resp.Status != "already_processed" {
		t.Fatalf("expected already_processed, got %q", resp.Status)
	}
}

func TestBizonConfirmRequiresOrderID(t *testing.T) {
	t.Parallel()

	orders := &stubBizonOrders{}
	svc := &stubTopup{}
	handler := BizonTopupConfirm(orders, svc, testLogger())

	rec := postBizonConfirm(handler, uuid.New(), `{"planId": "lite"}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if orders.lastID != "" {
		t.Fatal("expected no order lookup for invalid payload")
	}
}
