package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shapeai4-rgb/shapeai/api/responses"
	"github.com/shapeai4-rgb/shapeai/api/validators"
	"github.com/shapeai4-rgb/shapeai/internal/ledger"
	"github.com/shapeai4-rgb/shapeai/pkg/db/models"
	"github.com/shapeai4-rgb/shapeai/pkg/logger"
	"github.com/shapeai4-rgb/shapeai/pkg/pagination"
)

type transactionResponse struct {
	ID          uuid.UUID        `json:"id"`
	Action      string           `json:"action"`
	TokenAmount int              `json:"token_amount"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Currency    *string          `json:"currency,omitempty"`
	Description string           `json:"description"`
	CreatedAt   time.Time        `json:"created_at"`
}

func newTransactionResponse(txn *models.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:          txn.ID,
		Action:      string(txn.Action),
		TokenAmount: txn.TokenAmount,
		Amount:      txn.Amount,
		Description: txn.Description,
		CreatedAt:   txn.CreatedAt,
	}
	if txn.Currency != nil {
		currency := string(*txn.Currency)
		resp.Currency = &currency
	}
	return resp
}

// TokenBalance returns the caller's current token balance.
func TokenBalance(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.GetBalance(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]int{"balance": balance})
	}
}

// TokenTransactions returns the caller's ledger history, newest first.
func TokenTransactions(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListTransactions(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]transactionResponse, 0, len(page.Transactions))
		for i := range page.Transactions {
			items = append(items, newTransactionResponse(&page.Transactions[i]))
		}
		responses.WriteSuccess(w, map[string]any{
			"transactions": items,
			"next_cursor":  page.NextCursor,
		})
	}
}
