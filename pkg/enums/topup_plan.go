package enums

import (
	"fmt"
	"strings"
)

// TopupPlan identifies a bundled token package, or the custom-amount path.
type TopupPlan string

const (
	TopupPlanLite     TopupPlan = "lite"
	TopupPlanStandard TopupPlan = "standard"
	TopupPlanPro      TopupPlan = "pro"
	TopupPlanCustom   TopupPlan = "custom"
)

var validTopupPlans = []TopupPlan{
	TopupPlanLite,
	TopupPlanStandard,
	TopupPlanPro,
	TopupPlanCustom,
}

// String implements fmt.Stringer.
func (p TopupPlan) String() string {
	return string(p)
}

// IsValid reports whether the plan is recognized.
func (p TopupPlan) IsValid() bool {
	for _, candidate := range validTopupPlans {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseTopupPlan converts raw input into TopupPlan, case-insensitively.
func ParseTopupPlan(value string) (TopupPlan, error) {
	lower := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validTopupPlans {
		if string(candidate) == lower {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid top-up plan %q", value)
}
