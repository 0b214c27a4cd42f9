package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/shapeai4-rgb/shapeai/pkg/config"
	"github.com/shapeai4-rgb/shapeai/pkg/logger"
)

const testSecret = "test-secret"

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: testSecret, Issuer: "shapeai"}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func mintToken(t *testing.T, secret, issuer, subject string, expires time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func serveAuth(t *testing.T, token string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	var gotUserID string
	handler := Auth(testJWTConfig(), testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("GET", "/tokens/balance", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, gotUserID
}

func TestAuthAcceptsValidToken(t *testing.T) {
	userID := uuid.NewString()
	token := mintToken(t, testSecret, "shapeai", userID, time.Now().Add(time.Hour))

	rec, gotUserID := serveAuth(t, token)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotUserID != userID {
		t.Fatalf("expected user id %s in context, got %q", userID, gotUserID)
	}
}

func TestAuthRejectsMissingHeader(t *testing.T) {
	rec, _ := serveAuth(t, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRejectsWrongSecret(t *testing.T) {
	token := mintToken(t, "other-secret", "shapeai", uuid.NewString(), time.Now().Add(time.Hour))
	rec, _ := serveAuth(t, token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	token := mintToken(t, testSecret, "shapeai", uuid.NewString(), time.Now().Add(-time.Hour))
	rec, _ := serveAuth(t, token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRejectsWrongIssuer(t *testing.T) {
	token := mintToken(t, testSecret, "someone-else", uuid.NewString(), time.Now().Add(time.Hour))
	rec, _ := serveAuth(t, token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuthRejectsNonUUIDSubject(t *testing.T) {
	token := mintToken(t, testSecret, "shapeai", "not-a-uuid", time.Now().Add(time.Hour))
	rec, _ := serveAuth(t, token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
