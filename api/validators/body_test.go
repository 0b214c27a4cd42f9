package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/shapeai4-rgb/shapeai/pkg/errors"
)

type calculateBody struct {
	Goals string `json:"goals" validate:"max=500"`
	Days  int    `json:"days" validate:"required,min=1,max=180"`
}

func TestDecodeJSONBodyValid(t *testing.T) {
	req := httptest.NewRequest("POST", "/costs/calculate", strings.NewReader(`{"goals":"lose weight","days":7}`))

	var body calculateBody
	if err := DecodeJSONBody(req, &body); err != nil {
		t.Fatalf("decode valid body: %v", err)
	}
	if body.Days != 7 || body.Goals != "lose weight" {
		t.Fatalf("unexpected decode result: %+v", body)
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/costs/calculate", strings.NewReader(`{"days":7,"bogus":true}`))

	var body calculateBody
	err := DecodeJSONBody(req, &body)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyValidationDetailsUseJSONNames(t *testing.T) {
	req := httptest.NewRequest("POST", "/costs/calculate", strings.NewReader(`{"days":500}`))

	var body calculateBody
	err := DecodeJSONBody(req, &body)
	if err == nil {
		t.Fatal("expected range validation error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %#v", typed.Details())
	}
	if _, ok := details["days"]; !ok {
		t.Fatalf("expected details keyed by json name, got %#v", details)
	}
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest("GET", "/tokens/transactions?limit=50", nil)
	got, err := ParseQueryInt(req, "limit", 25, 1, 100)
	if err != nil {
		t.Fatalf("parse query int: %v", err)
	}
	if got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}

	req = httptest.NewRequest("GET", "/tokens/transactions", nil)
	got, err = ParseQueryInt(req, "limit", 25, 1, 100)
	if err != nil || got != 25 {
		t.Fatalf("expected default 25, got %d (%v)", got, err)
	}

	req = httptest.NewRequest("GET", "/tokens/transactions?limit=9999", nil)
	if _, err := ParseQueryInt(req, "limit", 25, 1, 100); err == nil {
		t.Fatal("expected out of range error")
	}

	req = httptest.NewRequest("GET", "/tokens/transactions?limit=abc", nil)
	if _, err := ParseQueryInt(req, "limit", 25, 1, 100); err == nil {
		t.Fatal("expected non-numeric error")
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello  ", 0); got != "hello" {
		t.Fatalf("expected trimmed string, got %q", got)
	}
	if got := SanitizeString("abcdef", 3); got != "abc" {
		t.Fatalf("expected truncation, got %q", got)
	}
}
