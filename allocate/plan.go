package allocate

import "fmt"

type Status string

const (
	StatusPlanned Status = "PLANNED"
	StatusNoop    Status = "NOOP"
)

// Mode is the distribution rule chosen for a plan.
type Mode string

const (
	ModeProRata      Mode = "pro_rata"
	ModeUnderweights Mode = "underweights"
)

// Reason codes attached to legs.
const (
	ReasonUnderweight       = "UNDERWEIGHT"
	ReasonDCA               = "DCA"
	ReasonCashflowRebalance = "CASHFLOW_REBALANCE"
)

// Leg is one proposed buy.
type Leg struct {
	Symbol                 string   `json:"symbol"`
	NotionalUSD            float64  `json:"notionalUsd"`
	TargetWeight           float64  `json:"targetWeight"`
	CurrentWeight          float64  `json:"currentWeight"`
	PostBuyEstimatedWeight float64  `json:"postBuyEstimatedWeight"`
	PriceUSD               float64  `json:"priceUsd"`
	EstimatedQuantity      float64  `json:"estimatedQuantity"`
	ReasonCodes            []string `json:"reasonCodes"`
}

// Plan is the engine output. Notes are append-only.
type Plan struct {
	Status            Status   `json:"status"`
	Mode              Mode     `json:"mode,omitempty"`
	TotalValueUSD     float64  `json:"totalValueUsd"`
	CashUSD           float64  `json:"cashUsd"`
	InvestableCashUSD float64  `json:"investableCashUsd"`
	PlannedSpendUSD   float64  `json:"plannedSpendUsd"`
	Legs              []Leg    `json:"legs"`
	Notes             []string `json:"notes"`
}

func (p *Plan) note(format string, args ...any) {
	p.Notes = append(p.Notes, fmt.Sprintf(format, args...))
}

// Planned reports whether the plan has legs to execute.
func (p Plan) Planned() bool {
	return p.Status == StatusPlanned && len(p.Legs) > 0
}
