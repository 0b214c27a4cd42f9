package payment

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// FreeProvider skips real payment collection and redirects straight to the
// confirmation endpoint. Intended for development and zero-cost launches.
type FreeProvider struct {
	baseURL string
}

func NewFreeProvider(baseURL string) *FreeProvider {
	return &FreeProvider{baseURL: baseURL}
}

func (p *FreeProvider) Name() string { return ProviderFree }

// CreateCheckout builds a self-redirect URL carrying the purchase parameters.
func (p *FreeProvider) CreateCheckout(_ context.Context, params CheckoutParams) (*CheckoutSession, error) {
	sessionID := fmt.Sprintf("free_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])

	confirm, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	confirm = confirm.JoinPath("/api/v1/topups/free/confirm")

	q := confirm.Query()
	q.Set("userId", params.UserID.String())
	q.Set("amount", strconv.Itoa(params.AmountCents))
	q.Set("currency", string(params.Currency))
	q.Set("sessionId", sessionID)
	if params.Plan != "" {
		q.Set("planId", string(params.Plan))
	}
	confirm.RawQuery = q.Encode()

	return &CheckoutSession{URL: confirm.String(), SessionID: sessionID}, nil
}
