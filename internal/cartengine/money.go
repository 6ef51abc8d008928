package cartengine

import "github.com/shopspring/decimal"

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// RoundMoney rounds to two decimal places and normalises negative zero so
// rendered amounts never show "-0.00".
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	r := d.Round(2)
	if r.IsZero() {
		return decimal.Zero
	}
	return r
}

// taxFromGross extracts the tax portion contained in a gross amount at the
// given percentage rate, at full precision.
func taxFromGross(gross, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return decimal.Zero
	}
	factor := one.Add(rate.Div(hundred))
	return gross.Sub(gross.Div(factor))
}

// netFromGross strips the tax portion from a gross amount.
func netFromGross(gross, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return gross
	}
	return gross.Div(one.Add(rate.Div(hundred)))
}
