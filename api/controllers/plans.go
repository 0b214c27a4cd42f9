package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/shapeai4-rgb/shapeai/api/responses"
	"github.com/shapeai4-rgb/shapeai/api/validators"
	planssvc "github.com/shapeai4-rgb/shapeai/internal/plans"
	"github.com/shapeai4-rgb/shapeai/internal/pricing"
	"github.com/shapeai4-rgb/shapeai/pkg/db/models"
	pkgerrors "github.com/shapeai4-rgb/shapeai/pkg/errors"
	"github.com/shapeai4-rgb/shapeai/pkg/logger"
	"github.com/shapeai4-rgb/shapeai/pkg/pagination"
)

type planSummary struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Days       int       `json:"days"`
	KcalTarget int       `json:"kcal_target"`
	Status     string    `json:"status"`
	DietTags   []string  `json:"diet_tags"`
	CreatedAt  time.Time `json:"created_at"`
}

type planDetail struct {
	planSummary
	Content json.RawMessage `json:"content"`
}

type generateResponse struct {
	PlanID      uuid.UUID `json:"planId"`
	Title       string    `json:"title"`
	TokensSpent int       `json:"tokensSpent"`
	NewBalance  int       `json:"newBalance"`
}

func newPlanSummary(plan *models.MealPlan) planSummary {
	return planSummary{
		ID:         plan.ID,
		Title:      plan.Title,
		Days:       plan.Days,
		KcalTarget: plan.KcalTarget,
		Status:     string(plan.Status),
		DietTags:   append([]string(nil), plan.DietTags...),
		CreatedAt:  plan.CreatedAt,
	}
}

// PlansGenerate runs the full generation flow and returns the stored plan id.
func PlansGenerate(svc planssvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		result, err := svc.Generate(r.Context(), userID, req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, generateResponse{
			PlanID:      result.Plan.ID,
			Title:       result.Plan.Title,
			TokensSpent: result.TokensSpent,
			NewBalance:  result.NewBalance,
		})
	}
}

// PlansList returns the caller's plan history, newest first.
func PlansList(svc planssvc.Service, logg *logger.Logger) http.HandlerFunc {
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

		page, err := svc.List(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]planSummary, 0, len(page.Plans))
		for i := range page.Plans {
			items = append(items, newPlanSummary(&page.Plans[i]))
		}
		responses.WriteSuccess(w, map[string]any{
			"plans":       items,
			"next_cursor": page.NextCursor,
		})
	}
}

// PlansGet returns one plan with its full generated content.
func PlansGet(svc planssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		planID, err := uuid.Parse(chi.URLParam(r, "planID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid plan id"))
			return
		}

		plan, err := svc.Get(r.Context(), userID, planID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, planDetail{
			planSummary: newPlanSummary(plan),
			Content:     plan.Content,
		})
	}
}
