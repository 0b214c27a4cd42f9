package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/shapeai4-rgb/shapeai/pkg/config"
	"github.com/shapeai4-rgb/shapeai/pkg/enums"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestTransfermitVerifySignature(t *testing.T) {
	webhook, err := NewTransfermitWebhook(config.TransfermitConfig{WebhookSecret: "whsec_test"})
	if err != nil {
		t.Fatalf("new webhook: %v", err)
	}

	body := []byte(`{"payment":{"state":"SUCCESS"}}`)
	if !webhook.VerifySignature(body, signBody("whsec_test", body)) {
		t.Fatal("expected valid signature to verify")
	}
	if webhook.VerifySignature(body, signBody("other_secret", body)) {
		t.Fatal("expected signature from wrong secret to fail")
	}
	if webhook.VerifySignature([]byte(`tampered`), signBody("whsec_test", body)) {
		t.Fatal("expected tampered body to fail")
	}
}

func TestNewTransfermitWebhookRequiresSecret(t *testing.T) {
	if _, err := NewTransfermitWebhook(config.TransfermitConfig{}); err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestTransfermitParseEventSuccess(t *testing.T) {
	webhook, err := NewTransfermitWebhook(config.TransfermitConfig{WebhookSecret: "whsec_test"})
	if err != nil {
		t.Fatalf("new webhook: %v", err)
	}

	body := []byte(`{"payment":{"state":"SUCCESS","referenceId":"topup-jane@example.com-123","amount":25.50,"currency":"gbp"}}`)
	conf, err := webhook.ParseEvent(body)
	if err != nil {
		t.Fatalf("parse event: %v", err)
	}
	if conf == nil {
		t.Fatal("expected confirmation for successful payment")
	}
	if conf.UserEmail != "jane@example.com" {
		t.Fatalf("expected email resolved from reference, got %q", conf.UserEmail)
	}
	if conf.Currency != enums.CurrencyGBP {
		t.Fatalf("expected GBP, got %s", conf.Currency)
	}
	if conf.Amount.String() != "25.5" {
		t.Fatalf("unexpected amount: %s", conf.Amount)
	}
	if conf.Plan != enums.TopupPlanCustom {
		t.Fatalf("expected custom plan, got %s", conf.Plan)
	}
}

func TestTransfermitParseEventIgnoresNonSuccess(t *testing.T) {
	webhook, _ := NewTransfermitWebhook(config.TransfermitConfig{WebhookSecret: "whsec_test"})

	cases := map[string]string{
		"pending state":     `{"payment":{"state":"PENDING","referenceId":"topup-jane@example.com","amount":10,"currency":"EUR"}}`,
		"missing payment":   `{"event":"ping"}`,
		"missing reference": `{"payment":{"state":"SUCCESS","referenceId":"","amount":10,"currency":"EUR"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			conf, err := webhook.ParseEvent([]byte(body))
			if err != nil {
				t.Fatalf("parse event: %v", err)
			}
			if conf != nil {
				t.Fatal("expected event to be ignored")
			}
		})
	}
}

func TestTransfermitParseEventRejectsBadAmount(t *testing.T) {
	webhook, _ := NewTransfermitWebhook(config.TransfermitConfig{WebhookSecret: "whsec_test"})

	body := []byte(`{"payment":{"state":"SUCCESS","referenceId":"topup-jane@example.com","amount":-5,"currency":"EUR"}}`)
	if _, err := webhook.ParseEvent(body); err == nil {
		t.Fatal("expected error for negative amount")
	}
}
