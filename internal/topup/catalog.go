package topup

import (
	"github.com/shopspring/decimal"

	"github.com/shapeai4-rgb/shapeai/pkg/enums"
	pkgerrors "github.com/shapeai4-rgb/shapeai/pkg/errors"
)

const (
	// TokensPerEuro is the single fiat-to-token exchange rate. Every
	// credit path converts to EUR first and applies this rate.
	TokensPerEuro = 10

	// MinCustomAmountCents is the smallest accepted custom top-up, in
	// the smallest unit of the chosen currency.
	MinCustomAmountCents = 50
)

// Fixed FX rates, EUR to target currency. Prices were set against these
// rates, so they stay pinned rather than tracking a live feed.
var fxFromEUR = map[enums.Currency]decimal.Decimal{
	enums.CurrencyEUR: decimal.NewFromInt(1),
	enums.CurrencyGBP: decimal.RequireFromString("0.85"),
	enums.CurrencyUSD: decimal.RequireFromString("1.17"),
}

var bonusByPlan = map[enums.TopupPlan]decimal.Decimal{
	enums.TopupPlanLite:     decimal.Zero,
	enums.TopupPlanStandard: decimal.RequireFromString("0.10"),
	enums.TopupPlanPro:      decimal.RequireFromString("0.20"),
	enums.TopupPlanCustom:   decimal.Zero,
}

// Package is one fixed-price token bundle.
type Package struct {
	Plan   enums.TopupPlan
	Tokens int
	// PriceCents is the charge per currency, in the smallest unit.
	PriceCents map[enums.Currency]int64
}

var packages = map[enums.TopupPlan]Package{
	enums.TopupPlanLite: {
		Plan:   enums.TopupPlanLite,
		Tokens: 90,
		PriceCents: map[enums.Currency]int64{
			enums.CurrencyEUR: 900,
			enums.CurrencyGBP: 800,
			enums.CurrencyUSD: 1053,
		},
	},
	enums.TopupPlanStandard: {
		Plan:   enums.TopupPlanStandard,
		Tokens: 210,
		PriceCents: map[enums.Currency]int64{
			enums.CurrencyEUR: 1900,
			enums.CurrencyGBP: 1600,
			enums.CurrencyUSD: 2223,
		},
	},
	enums.TopupPlanPro: {
		Plan:   enums.TopupPlanPro,
		Tokens: 600,
		PriceCents: map[enums.Currency]int64{
			enums.CurrencyEUR: 4900,
			enums.CurrencyGBP: 4200,
			enums.CurrencyUSD: 5733,
		},
	},
}

// PackageFor returns the fixed bundle for the plan, if one exists. The
// custom plan has no bundle.
func PackageFor(plan enums.TopupPlan) (Package, bool) {
	pkg, ok := packages[plan]
	return pkg, ok
}

// PriceFor returns the charge for a fixed plan in the given currency.
func PriceFor(plan enums.TopupPlan, currency enums.Currency) (int64, error) {
	pkg, ok := packages[plan]
	if !ok {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "plan has no fixed price")
	}
	price, ok := pkg.PriceCents[currency]
	if !ok {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}
	return price, nil
}

// TokensForAmount converts a paid amount to tokens: to EUR via the pinned
// FX rates, then ten tokens per euro, floored.
func TokensForAmount(amountCents int64, currency enums.Currency) (int, error) {
	if amountCents <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	rate, ok := fxFromEUR[currency]
	if !ok {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}

	eur := decimal.NewFromInt(amountCents).Div(decimal.NewFromInt(100)).Div(rate)
	return int(eur.Mul(decimal.NewFromInt(TokensPerEuro)).IntPart()), nil
}

// TokensForPlanAmount resolves the token grant for a confirmed payment.
// Fixed plans grant their bundled amount; custom payments convert the
// paid amount, with the plan bonus applied on top.
func TokensForPlanAmount(plan enums.TopupPlan, amountCents int64, currency enums.Currency) (int, error) {
	if pkg, ok := packages[plan]; ok {
		return pkg.Tokens, nil
	}

	base, err := TokensForAmount(amountCents, currency)
	if err != nil {
		return 0, err
	}

	bonus, ok := bonusByPlan[plan]
	if !ok {
		bonus = decimal.Zero
	}
	total := decimal.NewFromInt(int64(base)).Mul(decimal.NewFromInt(1).Add(bonus))
	return int(total.IntPart()), nil
}
