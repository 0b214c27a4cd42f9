package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TokenFlowMetrics records token movement through the platform.
type TokenFlowMetrics struct {
	generationDuration *prometheus.HistogramVec
	plansGenerated     *prometheus.CounterVec
	tokensSpent        *prometheus.CounterVec
	tokensCredited     *prometheus.CounterVec
	insufficientTokens prometheus.Counter
}

// NewTokenFlowMetrics registers the token flow metrics on the provided registerer.
func NewTokenFlowMetrics(reg prometheus.Registerer) *TokenFlowMetrics {
	if reg == nil {
		return &TokenFlowMetrics{}
	}
	generationDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "plan_generation_duration_seconds",
		Help:    "Duration of meal plan generation in seconds.",
		Buckets: []float64{1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"outcome"})
	plansGenerated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plans_generated_total",
		Help: "Meal plan generation attempts by outcome.",
	}, []string{"outcome"})
	tokensSpent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokens_spent_total",
		Help: "Tokens debited from user balances.",
	}, []string{"reason"})
	tokensCredited := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tokens_credited_total",
		Help: "Tokens credited to user balances by payment provider.",
	}, []string{"provider"})
	insufficientTokens := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "insufficient_token_rejections_total",
		Help: "Requests rejected because the balance could not cover the cost.",
	})
	reg.MustRegister(generationDuration, plansGenerated, tokensSpent, tokensCredited, insufficientTokens)
	return &TokenFlowMetrics{
		generationDuration: generationDuration,
		plansGenerated:     plansGenerated,
		tokensSpent:        tokensSpent,
		tokensCredited:     tokensCredited,
		insufficientTokens: insufficientTokens,
	}
}

// ObserveGeneration records a generation attempt with its duration and outcome.
func (m *TokenFlowMetrics) ObserveGeneration(outcome string, duration time.Duration) {
	if m == nil || m.generationDuration == nil {
		return
	}
	label := normalizeLabel(outcome)
	m.generationDuration.WithLabelValues(label).Observe(duration.Seconds())
	m.plansGenerated.WithLabelValues(label).Inc()
}

// AddTokensSpent records tokens debited for the given reason.
func (m *TokenFlowMetrics) AddTokensSpent(reason string, tokens int) {
	if m == nil || m.tokensSpent == nil || tokens <= 0 {
		return
	}
	m.tokensSpent.WithLabelValues(normalizeLabel(reason)).Add(float64(tokens))
}

// AddTokensCredited records tokens credited through the named provider.
func (m *TokenFlowMetrics) AddTokensCredited(provider string, tokens int) {
	if m == nil || m.tokensCredited == nil || tokens <= 0 {
		return
	}
	m.tokensCredited.WithLabelValues(normalizeLabel(provider)).Add(float64(tokens))
}

// IncInsufficientTokens counts a request rejected for lack of balance.
func (m *TokenFlowMetrics) IncInsufficientTokens() {
	if m == nil || m.insufficientTokens == nil {
		return
	}
	m.insufficientTokens.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
