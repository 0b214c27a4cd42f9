package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shapeai4-rgb/shapeai/pkg/config"
	"github.com/shapeai4-rgb/shapeai/pkg/enums"
	"github.com/shapeai4-rgb/shapeai/pkg/logger"
)

const (
	ProviderFree  = "free"
	ProviderBizon = "bizon"
)

// CheckoutParams describes a top-up purchase to start with a provider.
type CheckoutParams struct {
	UserID      uuid.UUID
	UserEmail   string
	AmountCents int
	Currency    enums.Currency
	Plan        enums.TopupPlan
	Description string
	ClientIP    string
}

// CheckoutSession points the buyer at the provider's payment page.
type CheckoutSession struct {
	URL       string
	SessionID string
}

// Confirmation is a provider-verified successful payment.
type Confirmation struct {
	Reference string
	UserEmail string
	Amount    decimal.Decimal
	Currency  enums.Currency
	Plan      enums.TopupPlan
}

// Provider starts checkout sessions with an external payment system.
type Provider interface {
	Name() string
	CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
}

// NewProvider selects the configured payment provider.
func NewProvider(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Payment.Provider))
	switch name {
	case "", ProviderFree:
		return NewFreeProvider(cfg.App.BaseURL), nil
	case ProviderBizon:
		return NewBizonClient(ctx, cfg.Bizon, logg)
	default:
		return nil, fmt.Errorf("unknown payment provider %q", name)
	}
}
