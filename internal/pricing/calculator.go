package pricing

import (
	"fmt"
	"regexp"
	"strings"

	pkgerrors "github.com/shapeai4-rgb/shapeai/pkg/errors"
)

const (
	// Base word price covers texts of up to ten words.
	BaseGenerationCost = 30
	WordsPerBlock      = 10
	CostPerWordBlock   = 10

	CostPerDay = 20
	MaxDays    = 180

	activityCost            = 5
	calorieMethodCost       = 5
	proteinTargetCost       = 5
	mealsPerDayCost         = 5
	snacksCost              = 5
	intermittentFastingCost = 10
	leftoversCost           = 10
	dietTypeCost            = 10
	cuisineCost             = 5
	allergenCost            = 5
	exclusionsCost          = 10
)

var wordRe = regexp.MustCompile(`\b\w+\b`)

// Goals are the optional nutrition targets a user may pin down instead of
// leaving them on automatic.
type Goals struct {
	Activity      string `json:"activity"`
	CalorieMethod string `json:"calorie_method"`
	ProteinTarget string `json:"protein_target"`
}

// Structure describes how the plan's meals are laid out across a day.
type Structure struct {
	MealsPerDay         string `json:"meals_per_day"`
	Snacks              string `json:"snacks"`
	IntermittentFasting string `json:"if"`
	Leftovers           string `json:"leftovers"`
}

// Diet collects the dietary restriction tags, each charged per selection.
type Diet struct {
	Types      []string `json:"types"`
	Cuisines   []string `json:"cuisines"`
	Allergens  []string `json:"allergens"`
	Exclusions string   `json:"exclusions"`
}

// Request is the pricing input. It is never persisted.
type Request struct {
	FreeText  string    `json:"freeText"`
	Days      int       `json:"days"`
	Goals     Goals     `json:"goals"`
	Structure Structure `json:"structure"`
	Diet      Diet      `json:"diet"`
}

// OptionCost is one selected option with its token price.
type OptionCost struct {
	Name string `json:"name"`
	Cost int    `json:"cost"`
}

// Breakdown itemizes a quote.
type Breakdown struct {
	WordCost          int          `json:"wordCost"`
	DaysCost          int          `json:"daysCost"`
	AdditionalOptions []OptionCost `json:"additionalOptions"`
}

// Quote is the priced result for a request.
type Quote struct {
	WordCount int       `json:"wordCount"`
	TotalCost int       `json:"totalCost"`
	Breakdown Breakdown `json:"breakdown"`
}

// CountWords counts word-boundary tokens. Whitespace-only text yields zero.
func CountWords(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	return len(wordRe.FindAllString(text, -1))
}

// WordCost prices the free text by word count. The base rate covers up to
// ten words; every further block of up to ten words adds a flat surcharge.
func WordCost(wordCount int) int {
	if wordCount <= WordsPerBlock {
		return BaseGenerationCost
	}
	additionalBlocks := (wordCount - WordsPerBlock + WordsPerBlock - 1) / WordsPerBlock
	return BaseGenerationCost + additionalBlocks*CostPerWordBlock
}

// DaysCost prices the plan length. Days outside [1, MaxDays] are rejected.
func DaysCost(days int) (int, error) {
	if days < 1 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "days must be at least 1")
	}
	if days > MaxDays {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("maximum %d days allowed", MaxDays))
	}
	return days * CostPerDay, nil
}

// OptionCosts returns the chargeable options in evaluation order: goals,
// structure, diet types, cuisines, allergens, exclusions. Unset and
// automatic values are free.
func OptionCosts(goals Goals, structure Structure, diet Diet) []OptionCost {
	options := []OptionCost{}

	if chosen(goals.Activity, "auto") {
		options = append(options, OptionCost{Name: "Activity Level", Cost: activityCost})
	}
	if chosen(goals.CalorieMethod, "auto") {
		options = append(options, OptionCost{Name: "Calorie Method", Cost: calorieMethodCost})
	}
	if chosen(goals.ProteinTarget, "auto") {
		options = append(options, OptionCost{Name: "Target Protein", Cost: proteinTargetCost})
	}

	if chosen(structure.MealsPerDay, "3") {
		options = append(options, OptionCost{Name: "Meals Per Day", Cost: mealsPerDayCost})
	}
	if chosen(structure.Snacks, "true") {
		options = append(options, OptionCost{Name: "Snacks", Cost: snacksCost})
	}
	if chosen(structure.IntermittentFasting, "None") {
		options = append(options, OptionCost{Name: "Intermittent Fasting", Cost: intermittentFastingCost})
	}
	if chosen(structure.Leftovers, "None") {
		options = append(options, OptionCost{Name: "Leftovers Strategy", Cost: leftoversCost})
	}

	for _, dietType := range diet.Types {
		options = append(options, OptionCost{Name: fmt.Sprintf("Diet Type: %s", dietType), Cost: dietTypeCost})
	}
	for _, cuisine := range diet.Cuisines {
		options = append(options, OptionCost{Name: fmt.Sprintf("Cuisine: %s", cuisine), Cost: cuisineCost})
	}
	for _, allergen := range diet.Allergens {
		options = append(options, OptionCost{Name: fmt.Sprintf("Allergen: %s", allergen), Cost: allergenCost})
	}
	if strings.TrimSpace(diet.Exclusions) != "" {
		options = append(options, OptionCost{Name: "Exclusions", Cost: exclusionsCost})
	}

	return options
}

// Calculate prices a full request and itemizes the result.
func Calculate(req Request) (*Quote, error) {
	daysCost, err := DaysCost(req.Days)
	if err != nil {
		return nil, err
	}

	wordCount := CountWords(req.FreeText)
	wordCost := WordCost(wordCount)
	options := OptionCosts(req.Goals, req.Structure, req.Diet)

	total := wordCost + daysCost
	for _, option := range options {
		total += option.Cost
	}

	return &Quote{
		WordCount: wordCount,
		TotalCost: total,
		Breakdown: Breakdown{
			WordCost:          wordCost,
			DaysCost:          daysCost,
			AdditionalOptions: options,
		},
	}, nil
}

func chosen(value, unsetSentinel string) bool {
	return value != "" && value != unsetSentinel
}
