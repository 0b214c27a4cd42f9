package topup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shapeai4-rgb/shapeai/internal/ledger"
	"github.com/shapeai4-rgb/shapeai/pkg/config"
	"github.com/shapeai4-rgb/shapeai/pkg/enums"
	pkgerrors "github.com/shapeai4-rgb/shapeai/pkg/errors"
	"github.com/shapeai4-rgb/shapeai/pkg/logger"
	"github.com/shapeai4-rgb/shapeai/pkg/metrics"
	"github.com/shapeai4-rgb/shapeai/pkg/payment"
)

const (
	idempotencyScope = "topup"
	// defaultIdempotencyTTL guards against provider redeliveries when the
	// config leaves the TTL unset.
	defaultIdempotencyTTL = 30 * 24 * time.Hour

	freeTopupCounterScope = "free_topup_tokens"
	freeTopupCounterTTL   = 48 * time.Hour
)

// Service turns confirmed payments into token credits and starts provider
// checkout sessions.
type Service interface {
	CreateCheckout(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*payment.CheckoutSession, error)
	Confirm(ctx context.Context, input ConfirmedPayment) (*Receipt, error)
}

type idempotencyStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(ctx context.Context, keys ...string) error
}

type tokenCounter interface {
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	IncrByWithTTL(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)
	CounterKey(parts ...string) string
}

// CheckoutInput selects either a fixed plan or a custom amount.
type CheckoutInput struct {
	Plan              enums.TopupPlan
	CustomAmountCents int64
	Currency          enums.Currency
	UserEmail         string
	ClientIP          string
}

// ConfirmedPayment is a provider-verified payment ready to be credited.
// Reference is the provider's stable payment identifier and drives the
// idempotency guard.
type ConfirmedPayment struct {
	UserID      uuid.UUID
	Plan        enums.TopupPlan
	AmountCents int64
	Currency    enums.Currency
	Reference   string
	Provider    string
}

// Receipt is the outcome of a credited payment.
type Receipt struct {
	Tokens     int
	NewBalance int
}

type service struct {
	provider payment.Provider
	ledger   ledger.Service
	idem     idempotencyStore
	counter  tokenCounter
	freeCfg  config.FreeTopupConfig
	idemTTL  time.Duration
	flow     *metrics.TokenFlowMetrics
	logg     *logger.Logger
}

// NewService wires the top-up service. The metrics collector may be nil.
func NewService(
	provider payment.Provider,
	ledgerSvc ledger.Service,
	idem idempotencyStore,
	counter tokenCounter,
	freeCfg config.FreeTopupConfig,
	webhookCfg config.WebhookConfig,
	flow *metrics.TokenFlowMetrics,
	logg *logger.Logger,
) (Service, error) {
	if provider == nil {
		return nil, fmt.Errorf("payment provider required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if idem == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	if counter == nil {
		return nil, fmt.Errorf("token counter required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	idemTTL := webhookCfg.IdempotencyTTL
	if idemTTL <= 0 {
		idemTTL = defaultIdempotencyTTL
	}
	return &service{
		provider: provider,
		ledger:   ledgerSvc,
		idem:     idem,
		counter:  counter,
		freeCfg:  freeCfg,
		idemTTL:  idemTTL,
		flow:     flow,
		logg:     logg,
	}, nil
}

func (s *service) CreateCheckout(ctx context.Context, userID uuid.UUID, input CheckoutInput) (*payment.CheckoutSession, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}

	var amountCents int64
	switch {
	case input.Plan != "" && input.Plan != enums.TopupPlanCustom:
		price, err := PriceFor(input.Plan, input.Currency)
		if err != nil {
			return nil, err
		}
		amountCents = price
	case input.CustomAmountCents >= MinCustomAmountCents:
		amountCents = input.CustomAmountCents
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan or amount")
	}

	plan := input.Plan
	if plan == "" {
		plan = enums.TopupPlanCustom
	}

	session, err := s.provider.CreateCheckout(ctx, payment.CheckoutParams{
		UserID:      userID,
		UserEmail:   input.UserEmail,
		AmountCents: int(amountCents),
		Currency:    input.Currency,
		Plan:        plan,
		Description: checkoutDescription(plan, input.Currency),
		ClientIP:    input.ClientIP,
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":      userID.String(),
		"provider":     s.provider.Name(),
		"plan":         plan.String(),
		"amount_cents": amountCents,
		"currency":     input.Currency.String(),
		"session_id":   session.SessionID,
	})
	s.logg.Info(logCtx, "topup.checkout_created")
	return session, nil
}

// Confirm credits a verified payment exactly once. Redelivered webhooks
// for the same reference return an idempotency error and credit nothing.
func (s *service) Confirm(ctx context.Context, input ConfirmedPayment) (*Receipt, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(input.Reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}

	tokens, err := TokensForPlanAmount(input.Plan, input.AmountCents, input.Currency)
	if err != nil {
		return nil, err
	}
	if tokens <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount yields no tokens")
	}

	idemKey := s.idem.IdempotencyKey(idempotencyScope, input.Reference)
	fresh, err := s.idem.SetNX(ctx, idemKey, "1", s.idemTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency check failed")
	}
	if !fresh {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "payment already processed")
	}

	capKey, err := s.enforceFreeCap(ctx, input, tokens)
	if err != nil {
		s.releaseKey(ctx, idemKey)
		return nil, err
	}

	amount := decimal.NewFromInt(input.AmountCents).Div(decimal.NewFromInt(100))
	currency := input.Currency
	entry, err := s.ledger.Credit(ctx, ledger.CreditInput{
		UserID:      input.UserID,
		Tokens:      tokens,
		Amount:      &amount,
		Currency:    &currency,
		Description: creditDescription(input.Plan, input.Currency),
	})
	if err != nil {
		// Release the guard so the provider's retry can succeed.
		s.releaseKey(ctx, idemKey)
		if capKey != "" {
			if _, rbErr := s.counter.IncrBy(ctx, capKey, int64(-tokens)); rbErr != nil {
				s.logg.Warn(ctx, "topup.free_cap_rollback_failed: "+rbErr.Error())
			}
		}
		return nil, err
	}

	s.flow.AddTokensCredited(input.Provider, tokens)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"user_id":     input.UserID.String(),
		"provider":    input.Provider,
		"reference":   input.Reference,
		"tokens":      tokens,
		"new_balance": entry.NewBalance,
	})
	s.logg.Info(logCtx, "topup.credited")

	return &Receipt{Tokens: tokens, NewBalance: entry.NewBalance}, nil
}

// enforceFreeCap limits how many tokens one user can claim through the
// free provider per day. Paid providers are never capped. Returns the
// counter key consumed so a failed credit can roll it back.
func (s *service) enforceFreeCap(ctx context.Context, input ConfirmedPayment, tokens int) (string, error) {
	if input.Provider != payment.ProviderFree || s.freeCfg.MaxTokensPerDay <= 0 {
		return "", nil
	}

	day := time.Now().UTC().Format("2006-01-02")
	key := s.counter.CounterKey(freeTopupCounterScope, input.UserID.String(), day)
	total, err := s.counter.IncrByWithTTL(ctx, key, int64(tokens), freeTopupCounterTTL)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "free top-up counter failed")
	}
	if total > int64(s.freeCfg.MaxTokensPerDay) {
		if _, rbErr := s.counter.IncrBy(ctx, key, int64(-tokens)); rbErr != nil {
			s.logg.Warn(ctx, "topup.free_cap_rollback_failed: "+rbErr.Error())
		}
		return "", pkgerrors.New(pkgerrors.CodeRateLimit, "daily free top-up limit reached")
	}
	return key, nil
}

func (s *service) releaseKey(ctx context.Context, key string) {
	if err := s.idem.Del(ctx, key); err != nil {
		s.logg.Warn(ctx, "topup.idempotency_release_failed: "+err.Error())
	}
}

func checkoutDescription(plan enums.TopupPlan, currency enums.Currency) string {
	if plan == enums.TopupPlanCustom {
		return fmt.Sprintf("ShapeAI tokens: custom amount (%s)", currency)
	}
	return fmt.Sprintf("ShapeAI tokens: %s plan", plan)
}

func creditDescription(plan enums.TopupPlan, currency enums.Currency) string {
	if plan == "" || plan == enums.TopupPlanCustom {
		return fmt.Sprintf("Top-up: Custom Amount (%s)", currency)
	}
	return fmt.Sprintf("Top-up: %s Plan", titleCase(plan.String()))
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}
