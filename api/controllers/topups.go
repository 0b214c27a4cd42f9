package controllers

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/shapeai4-rgb/shapeai/api/middleware"
	"github.com/shapeai4-rgb/shapeai/api/responses"
	"github.com/shapeai4-rgb/shapeai/api/validators"
	"github.com/shapeai4-rgb/shapeai/internal/topup"
	"github.com/shapeai4-rgb/shapeai/pkg/config"
	"github.com/shapeai4-rgb/shapeai/pkg/enums"
	pkgerrors "github.com/shapeai4-rgb/shapeai/pkg/errors"
	"github.com/shapeai4-rgb/shapeai/pkg/logger"
	"github.com/shapeai4-rgb/shapeai/pkg/payment"
)

type checkoutRequest struct {
	Plan              string `json:"planId" validate:"omitempty,oneof=lite standard pro custom"`
	CustomAmountCents int64  `json:"customAmount" validate:"omitempty,min=1"`
	Currency          string `json:"currency" validate:"required"`
}

// TopupCheckout starts a provider checkout session for a token purchase.
func TopupCheckout(svc topup.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		currency, err := enums.ParseCurrency(payload.Currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
			return
		}

		input := topup.CheckoutInput{
			CustomAmountCents: payload.CustomAmountCents,
			Currency:          currency,
			UserEmail:         middleware.UserEmailFromContext(r.Context()),
			ClientIP:          clientAddr(r),
		}
		if payload.Plan != "" {
			plan, err := enums.ParseTopupPlan(payload.Plan)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan"))
				return
			}
			input.Plan = plan
		}

		session, err := svc.CreateCheckout(r.Context(), userID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{
			"url":        session.URL,
			"session_id": session.SessionID,
		})
	}
}

// FreeTopupConfirm is the landing endpoint for the free provider: it
// credits the session user directly, for environments without a real
// payment processor.
func FreeTopupConfirm(svc topup.Service, cfg *config.Config, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := r.URL.Query()
		sessionID, err := validators.RequireQuery(r, "sessionId", 128)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		amount, err := validators.ParseQueryInt(r, "amount", 0, 1, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		currency, err := enums.ParseCurrency(query.Get("currency"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid currency"))
			return
		}

		plan := enums.TopupPlanCustom
		if rawPlan := strings.TrimSpace(query.Get("planId")); rawPlan != "" {
			parsed, err := enums.ParseTopupPlan(rawPlan)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan"))
				return
			}
			plan = parsed
		}

		receipt, err := svc.Confirm(r.Context(), topup.ConfirmedPayment{
			UserID:      userID,
			Plan:        plan,
			AmountCents: int64(amount),
			Currency:    currency,
			Reference:   sessionID,
			Provider:    payment.ProviderFree,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		redirectURL := fmt.Sprintf("%s/dashboard?payment_success=true&tokens_added=%d",
			strings.TrimRight(cfg.App.BaseURL, "/"), receipt.Tokens)
		responses.WriteSuccess(w, map[string]any{
			"success":     true,
			"tokensAdded": receipt.Tokens,
			"redirectUrl": redirectURL,
		})
	}
}

// BizonOrderGetter looks up an order's settled state with the acquiring
// provider.
type BizonOrderGetter interface {
	GetOrder(ctx context.Context, orderID string) (*payment.BizonOrder, error)
}

type bizonConfirmRequest struct {
	OrderID string `json:"orderId" validate:"required,max=128"`
	Plan    string `json:"planId" validate:"omitempty,oneof=lite standard pro custom"`
}

// BizonTopupConfirm completes a Bizon purchase. The payment-success page
// posts the order id, the handler re-checks the order with Bizon and
// credits tokens only for a charged order, using the amount and currency
// Bizon reports rather than anything the client claims. The order id is
// the idempotency reference, so reloading the page cannot double-credit.
func BizonTopupConfirm(orders BizonOrderGetter, svc topup.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload bizonConfirmRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan := enums.TopupPlanCustom
		if payload.Plan != "" {
			parsed, err := enums.ParseTopupPlan(payload.Plan)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan"))
				return
			}
			plan = parsed
		}

		order, err := orders.GetOrder(r.Context(), payload.OrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !order.Paid() {
			responses.WriteError(r.Context(), logg, w,
				pkgerrors.New(pkgerrors.CodeConflict, "order is not paid").
					WithDetails(map[string]any{"status": order.Status}))
			return
		}

		amount, err := decimal.NewFromString(order.Amount)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalid order amount"))
			return
		}
		currency, err := enums.ParseCurrency(order.Currency)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unsupported order currency"))
			return
		}

		reference := order.ID
		if reference == "" {
			reference = payload.OrderID
		}
		receipt, err := svc.Confirm(r.Context(), topup.ConfirmedPayment{
			UserID:      userID,
			Plan:        plan,
			AmountCents: amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
			Currency:    currency,
			Reference:   reference,
			Provider:    payment.ProviderBizon,
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
			"success":     true,
			"tokensAdded": receipt.Tokens,
			"newBalance":  receipt.NewBalance,
		})
	}
}

func clientAddr(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
