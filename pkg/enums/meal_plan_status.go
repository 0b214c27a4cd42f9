package enums

import "fmt"

// MealPlanStatus tracks the lifecycle of a generated plan.
type MealPlanStatus string

const (
	MealPlanStatusActive   MealPlanStatus = "active"
	MealPlanStatusArchived MealPlanStatus = "archived"
)

var validMealPlanStatuses = []MealPlanStatus{
	MealPlanStatusActive,
	MealPlanStatusArchived,
}

// IsValid reports whether the status is recognized.
func (s MealPlanStatus) IsValid() bool {
	for _, candidate := range validMealPlanStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseMealPlanStatus converts raw input into MealPlanStatus.
func ParseMealPlanStatus(value string) (MealPlanStatus, error) {
	for _, candidate := range validMealPlanStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid meal plan status %q", value)
}
