package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shapeai4-rgb/shapeai/pkg/config"
	"github.com/shapeai4-rgb/shapeai/pkg/enums"
	pkgerrors "github.com/shapeai4-rgb/shapeai/pkg/errors"
)

// TransfermitSignatureHeader carries the HMAC of the raw webhook body.
const TransfermitSignatureHeader = "x-transfermit-signature"

const transfermitStateSuccess = "SUCCESS"

var errTransfermitSecretRequired = errors.New("transfermit webhook secret is required")

// TransfermitWebhook verifies and parses Transfermit payment notifications.
// Transfermit has no checkout API on our side; the hosted page posts back here.
type TransfermitWebhook struct {
	secret []byte
}

func NewTransfermitWebhook(cfg config.TransfermitConfig) (*TransfermitWebhook, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return nil, errTransfermitSecretRequired
	}
	return &TransfermitWebhook{secret: []byte(secret)}, nil
}

// VerifySignature checks the hex HMAC-SHA256 of the raw body.
func (w *TransfermitWebhook) VerifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, w.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

type transfermitEvent struct {
	Payment *struct {
		State       string      `json:"state"`
		ReferenceID string      `json:"referenceId"`
		Amount      json.Number `json:"amount"`
		Currency    string      `json:"currency"`
	} `json:"payment"`
}

// ParseEvent extracts a confirmation from a verified webhook body. It returns
// (nil, nil) for events that should be acknowledged but not credited.
func (w *TransfermitWebhook) ParseEvent(body []byte) (*Confirmation, error) {
	var event transfermitEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed transfermit payload")
	}
	payment := event.Payment
	if payment == nil || payment.State != transfermitStateSuccess {
		return nil, nil
	}

	amount, err := decimal.NewFromString(payment.Amount.String())
	if err != nil || !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transfermit payment amount")
	}

	currency, err := enums.ParseCurrency(payment.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transfermit currency")
	}

	// Reference IDs are minted as <prefix>-<email>-... at checkout time.
	parts := strings.Split(payment.ReferenceID, "-")
	if len(parts) < 2 || parts[1] == "" {
		return nil, nil
	}

	return &Confirmation{
		Reference: payment.ReferenceID,
		UserEmail: parts[1],
		Amount:    amount,
		Currency:  currency,
		Plan:      enums.TopupPlanCustom,
	}, nil
}
