package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/shapeai4-rgb/shapeai/api/middleware"
	"github.com/shapeai4-rgb/shapeai/api/responses"
	"github.com/shapeai4-rgb/shapeai/api/validators"
	"github.com/shapeai4-rgb/shapeai/internal/ledger"
	"github.com/shapeai4-rgb/shapeai/internal/pricing"
	pkgerrors "github.com/shapeai4-rgb/shapeai/pkg/errors"
	"github.com/shapeai4-rgb/shapeai/pkg/logger"
)

type costResponse struct {
	WordCount   int               `json:"wordCount"`
	TotalCost   int               `json:"totalCost"`
	Breakdown   pricing.Breakdown `json:"breakdown"`
	Balance     int               `json:"balance"`
	CanGenerate bool              `json:"canGenerate"`
}

// CalculateCost quotes a generation request against the caller's balance
// without charging anything.
func CalculateCost(ledgerSvc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req pricing.Request
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := pricing.Calculate(req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := ledgerSvc.GetBalance(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, costResponse{
			WordCount:   quote.WordCount,
			TotalCost:   quote.TotalCost,
			Breakdown:   quote.Breakdown,
			Balance:     balance,
			CanGenerate: balance >= quote.TotalCost,
		})
	}
}

func requireUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, nil
}
