package allocate

import (
	"math"

	"github.com/shopspring/decimal"
)

// DefaultRoundToUSD is the order-size increment used when none, or a
// malformed one, is configured.
const DefaultRoundToUSD = 0.01

var defaultIncrement = decimal.NewFromFloat(DefaultRoundToUSD)

func increment(roundTo float64) decimal.Decimal {
	if math.IsNaN(roundTo) || math.IsInf(roundTo, 0) || roundTo <= 0 {
		return defaultIncrement
	}
	return decimal.NewFromFloat(roundTo)
}

// FloorTo rounds amount down to a whole multiple of roundTo. Rounding never
// goes up, so a sum of floored legs cannot exceed the cash it came from.
func FloorTo(amount, roundTo float64) float64 {
	return floorTo(decimal.NewFromFloat(amount), increment(roundTo)).InexactFloat64()
}

func floorTo(amount, inc decimal.Decimal) decimal.Decimal {
	if !amount.IsPositive() {
		return decimal.Zero
	}
	return amount.Div(inc).Floor().Mul(inc)
}

// round2 is the display rounding applied at the Plan boundary.
func round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}
