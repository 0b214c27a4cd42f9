package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestTokenFlowMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewTokenFlowMetrics(reg)

	metrics.ObserveGeneration("success", 3*time.Second)
	metrics.AddTokensSpent("plan_generation", 180)
	metrics.AddTokensCredited("transfermit", 210)
	metrics.IncInsufficientTokens()
	metrics.AddTokensSpent("plan_generation", 0)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "plans_generated_total", "outcome", "success"); err != nil {
		t.Fatalf("fetch plans generated: %v", err)
	} else if got != 1 {
		t.Fatalf("expected plans_generated_total=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "tokens_spent_total", "reason", "plan_generation"); err != nil {
		t.Fatalf("fetch tokens spent: %v", err)
	} else if got != 180 {
		t.Fatalf("expected tokens_spent_total=180, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "tokens_credited_total", "provider", "transfermit"); err != nil {
		t.Fatalf("fetch tokens credited: %v", err)
	} else if got != 210 {
		t.Fatalf("expected tokens_credited_total=210, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "plan_generation_duration_seconds", "outcome", "success"); err != nil {
		t.Fatalf("fetch generation duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestTokenFlowMetricsNilSafe(t *testing.T) {
	var metrics *TokenFlowMetrics
	metrics.ObserveGeneration("success", time.Second)
	metrics.AddTokensSpent("plan_generation", 10)
	metrics.AddTokensCredited("free", 10)
	metrics.IncInsufficientTokens()

	empty := NewTokenFlowMetrics(nil)
	empty.ObserveGeneration("", time.Second)
	empty.IncInsufficientTokens()
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
