package plans

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shapeai4-rgb/shapeai/internal/ledger"
	"github.com/shapeai4-rgb/shapeai/internal/pricing"
	"github.com/shapeai4-rgb/shapeai/pkg/db/models"
	"github.com/shapeai4-rgb/shapeai/pkg/enums"
	pkgerrors "github.com/shapeai4-rgb/shapeai/pkg/errors"
	"github.com/shapeai4-rgb/shapeai/pkg/logger"
	"github.com/shapeai4-rgb/shapeai/pkg/pagination"
)

const validPlanJSON = `{
	"title": "High Protein Week",
	"targets": {"daily_kcal": 2200, "daily_macros": {"protein_g": 160, "fat_g": 70, "carbs_g": 210}},
	"days": [{"day": 1, "summary": {"kcal": 2200}, "meals": []}],
	"recipes": {"r_oats_1": {"title": "Overnight Oats"}},
	"shopping_list": {"by_category": []}
}`

type fakeGenerator struct {
	fn    func(ctx context.Context, system, user string) (json.RawMessage, error)
	calls int
}

func (g *fakeGenerator) CompleteJSON(ctx context.Context, system, user string) (json.RawMessage, error) {
	g.calls++
	if g.fn != nil {
		return g.fn(ctx, system, user)
	}
	return json.RawMessage(validPlanJSON), nil
}

type gormRunner struct {
	db *gorm.DB
}

func (r gormRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type testEnv struct {
	db     *gorm.DB
	svc    Service
	ledger ledger.Service
	gen    *fakeGenerator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	logg := logger.New(logger.Options{Output: io.Discard})
	runner := gormRunner{db: db}

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(db), runner, logg)
	if err != nil {
		t.Fatalf("ledger service: %v", err)
	}

	gen := &fakeGenerator{}
	svc, err := NewService(NewRepository(db), ledgerSvc, gen, runner, nil, logg)
	if err != nil {
		t.Fatalf("plans service: %v", err)
	}

	return &testEnv{db: db, svc: svc, ledger: ledgerSvc, gen: gen}
}

func (e *testEnv) planCount(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	var count int64
	if err := e.db.Model(&models.MealPlan{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		t.Fatalf("count plans: %v", err)
	}
	return count
}

func (e *testEnv) transactionCount(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	var count int64
	if err := e.db.Model(&models.Transaction{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	return count
}

// fifteenWords prices at 40 tokens; with 7 days that is a 180 token quote.
const fifteenWords = "one two three four five six seven eight nine ten eleven twelve thirteen fourteen fifteen"

func TestGeneratePersistsPlanAndDebits(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := seedUser(t, env.db, 200)

	result, err := env.svc.Generate(ctx, userID, pricing.Request{
		FreeText: fifteenWords,
		Days:     7,
		Diet:     pricing.Diet{Types: []string{"keto"}},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	// 40 words + 140 days + 10 diet type.
	if result.TokensSpent != 190 {
		t.Fatalf("expected 190 tokens spent, got %d", result.TokensSpent)
	}
	if result.NewBalance != 10 {
		t.Fatalf("expected balance 10, got %d", result.NewBalance)
	}

	stored, err := env.svc.Get(ctx, userID, result.Plan.ID)
	if err != nil {
		t.Fatalf("get stored plan: %v", err)
	}
	if stored.Title != "High Protein Week" {
		t.Fatalf("expected model title, got %q", stored.Title)
	}
	if stored.KcalTarget != 2200 {
		t.Fatalf("expected kcal target 2200, got %d", stored.KcalTarget)
	}
	if stored.Status != enums.MealPlanStatusActive {
		t.Fatalf("expected active status, got %s", stored.Status)
	}
	if len(stored.DietTags) != 1 || stored.DietTags[0] != "keto" {
		t.Fatalf("expected diet tags [keto], got %v", stored.DietTags)
	}
	if !json.Valid(stored.Content) {
		t.Fatal("stored content is not valid JSON")
	}

	page, err := env.ledger.ListTransactions(ctx, userID, pagination.Params{})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(page.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(page.Transactions))
	}
	txn := page.Transactions[0]
	if txn.TokenAmount != -190 {
		t.Fatalf("expected token amount -190, got %d", txn.TokenAmount)
	}
	want := "Generated 7-day meal plan: High Protein Week (Diet Type: keto)"
	if txn.Description != want {
		t.Fatalf("expected description %q, got %q", want, txn.Description)
	}
}

func TestGenerateRejectsBeforeModelCall(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := seedUser(t, env.db, 50)

	_, err := env.svc.Generate(ctx, userID, pricing.Request{FreeText: fifteenWords, Days: 7})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientTokens {
		t.Fatalf("expected INSUFFICIENT_TOKENS, got %v", err)
	}
	details, ok := typed.Details().(map[string]int)
	if !ok || details["required"] != 180 || details["available"] != 50 || details["shortfall"] != 130 {
		t.Fatalf("unexpected details: %#v", typed.Details())
	}
	if env.gen.calls != 0 {
		t.Fatalf("expected no model call, got %d", env.gen.calls)
	}
	if got := env.planCount(t, userID); got != 0 {
		t.Fatalf("expected no plans, got %d", got)
	}
}

func TestGenerateModelFailureChargesNothing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := seedUser(t, env.db, 500)

	env.gen.fn = func(context.Context, string, string) (json.RawMessage, error) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "model call failed")
	}

	_, err := env.svc.Generate(ctx, userID, pricing.Request{Days: 7})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected DEPENDENCY_ERROR, got %v", err)
	}

	balance, err := env.ledger.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 500 {
		t.Fatalf("expected balance untouched at 500, got %d", balance)
	}
	if got := env.planCount(t, userID); got != 0 {
		t.Fatalf("expected no plans, got %d", got)
	}
	if got := env.transactionCount(t, userID); got != 0 {
		t.Fatalf("expected no transactions, got %d", got)
	}
}

func TestGenerateRejectsMalformedModelOutput(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := seedUser(t, env.db, 500)

	for name, payload := range map[string]string{
		"missing recipes": `{"title": "X", "days": [{"day": 1}]}`,
		"missing days":    `{"title": "X", "recipes": {"r_1": {}}}`,
	} {
		env.gen.fn = func(context.Context, string, string) (json.RawMessage, error) {
			return json.RawMessage(payload), nil
		}
		_, err := env.svc.Generate(ctx, userID, pricing.Request{Days: 7})
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeDependency {
			t.Fatalf("%s: expected DEPENDENCY_ERROR, got %v", name, err)
		}
	}

	balance, err := env.ledger.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 500 {
		t.Fatalf("expected balance untouched at 500, got %d", balance)
	}
}

func TestGenerateFallsBackToDefaultTitle(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := seedUser(t, env.db, 500)

	env.gen.fn = func(context.Context, string, string) (json.RawMessage, error) {
		return json.RawMessage(`{"days": [{"day": 1}], "recipes": {"r_1": {}}}`), nil
	}

	result, err := env.svc.Generate(ctx, userID, pricing.Request{Days: 1})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(result.Plan.Title, "AI Plan created on ") {
		t.Fatalf("expected fallback title, got %q", result.Plan.Title)
	}
}

func TestGenerateRollsBackPlanWhenBalanceDrainedMidFlight(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	userID := seedUser(t, env.db, 200)

	// A competing spend lands while the model call is in flight. The
	// commit-time balance check must reject the debit and roll back the
	// plan row with it.
	env.gen.fn = func(genCtx context.Context, _, _ string) (json.RawMessage, error) {
		if _, err := env.ledger.Debit(genCtx, ledger.DebitInput{
			UserID:      userID,
			Tokens:      150,
			Description: "competing spend",
		}); err != nil {
			t.Fatalf("competing debit: %v", err)
		}
		return json.RawMessage(validPlanJSON), nil
	}

	_, err := env.svc.Generate(ctx, userID, pricing.Request{FreeText: fifteenWords, Days: 7})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeInsufficientTokens {
		t.Fatalf("expected INSUFFICIENT_TOKENS, got %v", err)
	}

	if got := env.planCount(t, userID); got != 0 {
		t.Fatalf("expected plan row rolled back, got %d", got)
	}
	if got := env.transactionCount(t, userID); got != 1 {
		t.Fatalf("expected only the competing transaction, got %d", got)
	}
	balance, err := env.ledger.GetBalance(ctx, userID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if balance != 50 {
		t.Fatalf("expected balance 50, got %d", balance)
	}
}

func TestGenerateRejectsInvalidDays(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	userID := seedUser(t, env.db, 500)

	for _, days := range []int{0, -3, 181} {
		_, err := env.svc.Generate(context.Background(), userID, pricing.Request{Days: days})
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("days %d: expected VALIDATION_ERROR, got %v", days, err)
		}
	}
	if env.gen.calls != 0 {
		t.Fatalf("expected no model calls, got %d", env.gen.calls)
	}
}
