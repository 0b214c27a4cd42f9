package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/shapeai4-rgb/shapeai/api/responses"
	"github.com/shapeai4-rgb/shapeai/internal/topup"
	"github.com/shapeai4-rgb/shapeai/internal/users"
	pkgerrors "github.com/shapeai4-rgb/shapeai/pkg/errors"
	"github.com/shapeai4-rgb/shapeai/pkg/logger"
	"github.com/shapeai4-rgb/shapeai/pkg/payment"
)

const maxWebhookBody = 1 << 20

// TransfermitWebhook processes payment notifications from Transfermit.
// Only verified SUCCESS events credit tokens. Redeliveries and ignorable
// events get a 200 so the provider stops retrying.
func TransfermitWebhook(
	hook *payment.TransfermitWebhook,
	userRepo *users.Repository,
	topupSvc topup.Service,
	logg *logger.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "failed to read webhook body"))
			return
		}

		signature := r.Header.Get(payment.TransfermitSignatureHeader)
		if !hook.VerifySignature(body, signature) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		confirmation, err := hook.ParseEvent(body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if confirmation == nil {
			responses.WriteSuccess(w, map[string]string{"status": "ignored"})
			return
		}

		user, err := userRepo.FindByEmail(r.Context(), confirmation.UserEmail)
		if err != nil {
			if errors.Is(err, users.ErrNotFound) {
				// Acknowledge so the provider stops redelivering an event
				// no retry can ever match to a user.
				logCtx := logg.WithField(r.Context(), "reference", confirmation.Reference)
				logg.Warn(logCtx, "webhook.transfermit: no user for confirmed payment")
				responses.WriteSuccess(w, map[string]string{"status": "ignored"})
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		amountCents := confirmation.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
		receipt, err := topupSvc.Confirm(r.Context(), topup.ConfirmedPayment{
			UserID:      user.ID,
			Plan:        confirmation.Plan,
			AmountCents: amountCents,
			Currency:    confirmation.Currency,
			Reference:   confirmation.Reference,
			Provider:    "transfermit",
		})
		if err != nil {
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeIdempotency {
				responses.WriteSuccess(w, map[string]string{"status": "already_processed"})
				return
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]any{
			"status":      "processed",
			"tokensAdded": receipt.Tokens,
		})
	}
}
