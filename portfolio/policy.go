package portfolio

// WeightSumEpsilon is the tolerance allowed when target weights are summed.
const WeightSumEpsilon = 0.0005

type DriftKind string

const (
	DriftNone DriftKind = "none"
	DriftBand DriftKind = "band"
)

// Drift selects how far the portfolio may stray from its targets before
// allocation switches from pro-rata to underweights-first.
type Drift struct {
	Kind      DriftKind `json:"kind" yaml:"kind"`
	MaxAbsPct *float64  `json:"maxAbsPct,omitempty" yaml:"maxAbsPct,omitempty"`
}

// Band returns the configured band width, or 0 for kind none.
func (d Drift) Band() float64 {
	if d.Kind != DriftBand || d.MaxAbsPct == nil {
		return 0
	}
	return *d.MaxAbsPct
}

type Target struct {
	Symbol       string  `json:"symbol" yaml:"symbol"`
	TargetWeight float64 `json:"targetWeight" yaml:"targetWeight"`
}

// Policy is the user-declared target allocation plus capital controls.
type Policy struct {
	Version            int      `json:"version" yaml:"version"`
	Name               string   `json:"name" yaml:"name"`
	Targets            []Target `json:"targets" yaml:"targets"`
	CashBufferPct      float64  `json:"cashBufferPct" yaml:"cashBufferPct"`
	MinInvestAmountUSD float64  `json:"minInvestAmountUsd" yaml:"minInvestAmountUsd"`
	MaxInvestAmountUSD float64  `json:"maxInvestAmountUsd" yaml:"maxInvestAmountUsd"`
	MinOrderUSD        float64  `json:"minOrderUsd" yaml:"minOrderUsd"`

	// MaxOrders of zero means one order per target.
	MaxOrders          int   `json:"maxOrders,omitempty" yaml:"maxOrders,omitempty"`
	Drift              Drift `json:"drift" yaml:"drift"`
	AllowMissingPrices bool  `json:"allowMissingPrices" yaml:"allowMissingPrices"`
}

// EffectiveMaxOrders resolves the maxOrders default.
func (p Policy) EffectiveMaxOrders() int {
	if p.MaxOrders > 0 {
		return p.MaxOrders
	}
	return len(p.Targets)
}

// WeightSum adds up all target weights.
func (p Policy) WeightSum() float64 {
	var sum float64
	for _, t := range p.Targets {
		sum += t.TargetWeight
	}
	return sum
}
