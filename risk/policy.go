package risk

// Limits are the pre-execution guardrail thresholds.
type Limits struct {
	// MaxPositionPct caps a target's post-buy value as a fraction of
	// total portfolio value. Exceeding it blocks.
	MaxPositionPct float64 `json:"maxPositionPct" yaml:"maxPositionPct"`

	// DailySpendLimit caps executed spend per local calendar day,
	// including the plan being checked. Exceeding it blocks.
	DailySpendLimit float64 `json:"dailySpendLimit" yaml:"dailySpendLimit"`

	// LargeOrderThreshold flags a single leg above this fraction of
	// portfolio value. Advisory only.
	LargeOrderThreshold float64 `json:"largeOrderThreshold" yaml:"largeOrderThreshold"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxPositionPct:      0.5,
		DailySpendLimit:     10000,
		LargeOrderThreshold: 0.1,
	}
}

// Policy-safety thresholds. These only ever produce warnings.
const (
	ConcentrationWarnPct = 0.8
	weightSumEpsilon     = 0.0005
)

// Violation codes.
const (
	CodeWeightSum         = "WEIGHT_SUM"
	CodeConcentration     = "CONCENTRATION"
	CodeMaxInvestHigh     = "MAX_INVEST_ABOVE_DAILY_LIMIT"
	CodeMaxBelowMin       = "MAX_INVEST_BELOW_MIN"
	CodeMinOrderHigh      = "MIN_ORDER_HIGH"
	CodeDailySpendLimit   = "DAILY_SPEND_LIMIT"
	CodeStoreUnreadable   = "STORE_UNREADABLE"
	CodePositionSizeLimit = "POSITION_SIZE_LIMIT"
	CodeLargeOrder        = "LARGE_ORDER"
)
