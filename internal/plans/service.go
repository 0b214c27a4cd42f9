package plans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/shapeai4-rgb/shapeai/internal/ledger"
	"github.com/shapeai4-rgb/shapeai/internal/pricing"
	"github.com/shapeai4-rgb/shapeai/pkg/db/models"
	"github.com/shapeai4-rgb/shapeai/pkg/enums"
	pkgerrors "github.com/shapeai4-rgb/shapeai/pkg/errors"
	"github.com/shapeai4-rgb/shapeai/pkg/logger"
	"github.com/shapeai4-rgb/shapeai/pkg/metrics"
	"github.com/shapeai4-rgb/shapeai/pkg/openai"
	"github.com/shapeai4-rgb/shapeai/pkg/pagination"
)

const spendReasonPlanGeneration = "plan_generation"

// Service generates meal plans and serves plan history. Generation charges
// tokens only after the AI call succeeds, and the plan row plus the spend
// commit in one database transaction.
type Service interface {
	Generate(ctx context.Context, userID uuid.UUID, req pricing.Request) (*GenerateResult, error)
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*Page, error)
	Get(ctx context.Context, userID, planID uuid.UUID) (*models.MealPlan, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// GenerateResult is a committed generation: the stored plan, what it cost,
// and the balance left after the spend.
type GenerateResult struct {
	Plan        *models.MealPlan
	Quote       *pricing.Quote
	TokensSpent int
	NewBalance  int
}

// Page is one page of plan history in reverse chronological order.
type Page struct {
	Plans      []models.MealPlan
	NextCursor string
}

// generatedPlan is the subset of the model output the service inspects.
// The full document is stored verbatim in MealPlan.Content.
type generatedPlan struct {
	Title   string `json:"title"`
	Targets struct {
		DailyKcal int `json:"daily_kcal"`
	} `json:"targets"`
	Days    json.RawMessage `json:"days"`
	Recipes json.RawMessage `json:"recipes"`
}

type service struct {
	repo   Repository
	ledger ledger.Service
	gen    openai.Generator
	runner txRunner
	flow   *metrics.TokenFlowMetrics
	logg   *logger.Logger
}

// NewService wires the plan generation service. The metrics collector may
// be nil.
func NewService(
	repo Repository,
	ledgerSvc ledger.Service,
	gen openai.Generator,
	runner txRunner,
	flow *metrics.TokenFlowMetrics,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("plans repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if gen == nil {
		return nil, fmt.Errorf("generator required")
	}
	if runner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:   repo,
		ledger: ledgerSvc,
		gen:    gen,
		runner: runner,
		flow:   flow,
		logg:   logg,
	}, nil
}

func (s *service) Generate(ctx context.Context, userID uuid.UUID, req pricing.Request) (*GenerateResult, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	quote, err := pricing.Calculate(req)
	if err != nil {
		return nil, err
	}

	// Reject before spending anything on the AI call. The balance is
	// re-checked atomically at debit time, so this gate is advisory.
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance < quote.TotalCost {
		s.flow.IncInsufficientTokens()
		return nil, pkgerrors.InsufficientTokens(quote.TotalCost, balance)
	}

	prompt, err := userPrompt(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "failed to encode plan request")
	}

	started := time.Now()
	raw, err := s.gen.CompleteJSON(ctx, systemPrompt(req.Days), prompt)
	if err != nil {
		s.flow.ObserveGeneration("failure", time.Since(started))
		return nil, err
	}

	var parsed generatedPlan
	if err := json.Unmarshal(raw, &parsed); err != nil {
		s.flow.ObserveGeneration("failure", time.Since(started))
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "model returned an invalid response format")
	}
	if len(parsed.Days) == 0 || len(parsed.Recipes) == 0 {
		s.flow.ObserveGeneration("failure", time.Since(started))
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "model returned an invalid response format")
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		title = fmt.Sprintf("AI Plan created on %s", time.Now().Format("2006-01-02"))
	}

	plan := &models.MealPlan{
		UserID:     userID,
		Title:      title,
		Days:       req.Days,
		KcalTarget: parsed.Targets.DailyKcal,
		Status:     enums.MealPlanStatusActive,
		DietTags:   pq.StringArray(req.Diet.Types),
		Content:    raw,
	}

	var entry *ledger.Entry
	err = s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, plan); err != nil {
			return err
		}
		var txErr error
		entry, txErr = s.ledger.DebitTx(ctx, tx, ledger.DebitInput{
			UserID:      userID,
			Tokens:      quote.TotalCost,
			Description: spendDescription(req.Days, title, quote.Breakdown.AdditionalOptions),
		})
		return txErr
	})
	if err != nil {
		s.flow.ObserveGeneration("failure", time.Since(started))
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeInsufficientTokens {
			s.flow.IncInsufficientTokens()
		}
		return nil, err
	}

	duration := time.Since(started)
	s.flow.ObserveGeneration("success", duration)
	s.flow.AddTokensSpent(spendReasonPlanGeneration, quote.TotalCost)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":     userID.String(),
		"plan_id":     plan.ID.String(),
		"days":        req.Days,
		"tokens":      quote.TotalCost,
		"new_balance": entry.NewBalance,
		"duration_ms": duration.Milliseconds(),
	})
	s.logg.Info(logCtx, "plans.generated")

	return &GenerateResult{
		Plan:        plan,
		Quote:       quote,
		TokensSpent: quote.TotalCost,
		NewBalance:  entry.NewBalance,
	}, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*Page, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListByUser(ctx, userID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, err
	}

	page := &Page{Plans: rows}
	if len(rows) > limit {
		page.Plans = rows[:limit]
		last := page.Plans[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return page, nil
}

func (s *service) Get(ctx context.Context, userID, planID uuid.UUID) (*models.MealPlan, error) {
	if userID == uuid.Nil || planID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and plan id are required")
	}

	plan, err := s.repo.GetByID(ctx, userID, planID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "meal plan not found")
		}
		return nil, err
	}
	return plan, nil
}

func spendDescription(days int, title string, options []pricing.OptionCost) string {
	desc := fmt.Sprintf("Generated %d-day meal plan: %s", days, title)
	if len(options) == 0 {
		return desc
	}
	names := make([]string, 0, len(options))
	for _, opt := range options {
		names = append(names, opt.Name)
	}
	return desc + " (" + strings.Join(names, ", ") + ")"
}
