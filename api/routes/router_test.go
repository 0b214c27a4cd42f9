package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shapeai4-rgb/shapeai/internal/ledger"
	"github.com/shapeai4-rgb/shapeai/pkg/config"
	"github.com/shapeai4-rgb/shapeai/pkg/logger"
	"github.com/shapeai4-rgb/shapeai/pkg/pagination"
	"github.com/shapeai4-rgb/shapeai/pkg/payment"
)

const testSecret = "router-test-secret"

type stubLedger struct {
	balance int
}

func (s *stubLedger) GetBalance(context.Context, uuid.UUID) (int, error) {
	return s.balance, nil
}

func (s *stubLedger) HasEnoughTokens(_ context.Context, _ uuid.UUID, required int) (bool, error) {
	return s.balance >= required, nil
}

func (s *stubLedger) Credit(context.Context, ledger.CreditInput) (*ledger.Entry, error) {
	return &ledger.Entry{}, nil
}

func (s *stubLedger) Debit(context.Context, ledger.DebitInput) (*ledger.Entry, error) {
	return &ledger.Entry{}, nil
}

func (s *stubLedger) DebitTx(context.Context, *gorm.DB, ledger.DebitInput) (*ledger.Entry, error) {
	return &ledger.Entry{}, nil
}

func (s *stubLedger) ListTransactions(context.Context, uuid.UUID, pagination.Params) (*ledger.TransactionPage, error) {
	return &ledger.TransactionPage{}, nil
}

func testDeps(t *testing.T) Deps {
	t.Helper()

	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.App.BaseURL = "http://localhost:3000"
	cfg.JWT = config.JWTConfig{Secret: testSecret, Issuer: "shapeai"}

	hook, err := payment.NewTransfermitWebhook(config.TransfermitConfig{WebhookSecret: "hook-secret"})
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}

	return Deps{
		Config:      cfg,
		Logger:      logger.New(logger.Options{Output: io.Discard}),
		Ledger:      &stubLedger{balance: 120},
		Transfermit: hook,
	}
}

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	return NewRouter(testDeps(t))
}

func bearerToken(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "shapeai",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestHealthLive(t *testing.T) {
	t.Parallel()

	router := testRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-ShapeAI-Env"); got != "test" {
		t.Fatalf("expected env header, got %q", got)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	t.Parallel()

	router := testRouter(t)
	for _, path := range []string{
		"/api/v1/tokens/balance",
		"/api/v1/tokens/transactions",
		"/api/v1/plans/",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rec.Code)
		}
	}
}

func TestTokenBalanceWithValidToken(t *testing.T) {
	t.Parallel()

	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tokens/balance", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, uuid.NewString()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Data struct {
			Balance int `json:"balance"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Data.Balance != 120 {
		t.Fatalf("expected balance 120, got %d", envelope.Data.Balance)
	}
}

func TestWebhookRouteSkipsAuthButVerifiesSignature(t *testing.T) {
	t.Parallel()

	router := testRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/transfermit", strings.NewReader(`{}`))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// No bearer token needed, but a bad signature is still rejected.
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestBizonConfirmRouteRequiresProvider(t *testing.T) {
	t.Parallel()

	token := "Bearer " + bearerToken(t, uuid.NewString())
	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/topups/bizon/confirm", strings.NewReader(`{}`))
		req.Header.Set("Authorization", token)
		req.Header.Set("Content-Type", "application/json")
		return req
	}

	rec := httptest.NewRecorder()
	testRouter(t).ServeHTTP(rec, newReq())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without bizon provider, got %d", rec.Code)
	}

	deps := testDeps(t)
	deps.Bizon = &payment.BizonClient{}
	rec = httptest.NewRecorder()
	NewRouter(deps).ServeHTTP(rec, newReq())
	// The empty body fails validation, which proves the route is mounted.
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 with bizon provider, got %d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()

	router := testRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
