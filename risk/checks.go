// Package risk holds the guardrails a plan must pass before execution.
//
// Guardrails detect and report. Whether blocking findings stop execution
// is the caller's decision.
package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/rebalance/allocate"
	"github.com/rustyeddy/rebalance/journal"
	"github.com/rustyeddy/rebalance/portfolio"
)

type Violation struct {
	Code   string `json:"code"`
	Symbol string `json:"symbol,omitempty"`
	Msg    string `json:"msg"`
}

func (v Violation) String() string {
	if v.Symbol != "" {
		return fmt.Sprintf("%s [%s]: %s", v.Code, v.Symbol, v.Msg)
	}
	return fmt.Sprintf("%s: %s", v.Code, v.Msg)
}

type Decision struct {
	Safe     bool        `json:"safe"`
	Blocking []Violation `json:"blocking"`
	Warnings []Violation `json:"warnings"`

	DailySpentUSD float64 `json:"dailySpentUsd"`
}

func newDecision() Decision {
	return Decision{Safe: true, Blocking: []Violation{}, Warnings: []Violation{}}
}

func (d *Decision) block(code, symbol, msg string) {
	d.Blocking = append(d.Blocking, Violation{Code: code, Symbol: symbol, Msg: msg})
	d.Safe = false
}

func (d *Decision) warn(code, symbol, msg string) {
	d.Warnings = append(d.Warnings, Violation{Code: code, Symbol: symbol, Msg: msg})
}

// History is the read side of the run store.
type History interface {
	List(ctx context.Context) ([]journal.RunRecord, error)
}

type Checker struct {
	limits  Limits
	history History
	log     zerolog.Logger
}

// NewChecker builds a checker. history may be nil, meaning no prior spend.
func NewChecker(limits Limits, history History, log zerolog.Logger) *Checker {
	return &Checker{
		limits:  limits,
		history: history,
		log:     log.With().Str("component", "guardrails").Logger(),
	}
}

// Check runs every guardrail against plan as of at, which also fixes the
// local day for the daily spend limit. Plans without legs are safe. No
// check short-circuits another.
func (c *Checker) Check(ctx context.Context, at time.Time, plan allocate.Plan, snap portfolio.Snapshot, policy portfolio.Policy) Decision {
	d := newDecision()
	if !plan.Planned() {
		return d
	}

	holdings := portfolio.AggregatePositions(snap.Positions)
	total := holdings.Equity() + snap.CashUSD

	c.checkPolicy(&d, policy)
	c.checkDailySpend(ctx, &d, at, plan)
	c.checkPositionSize(&d, plan, holdings, total)
	c.checkLargeOrders(&d, plan, total)

	c.log.Debug().
		Bool("safe", d.Safe).
		Int("blocking", len(d.Blocking)).
		Int("warnings", len(d.Warnings)).
		Msg("guardrails evaluated")
	return d
}

func (c *Checker) checkPolicy(d *Decision, p portfolio.Policy) {
	d.Warnings = append(d.Warnings, PolicyWarnings(p, c.limits)...)
}

// PolicyWarnings reports settings that are valid but probably not what
// the author meant. They never block.
func PolicyWarnings(p portfolio.Policy, limits Limits) []Violation {
	var d Decision
	if sum := p.WeightSum(); math.Abs(sum-1) > weightSumEpsilon {
		d.warn(CodeWeightSum, "", fmt.Sprintf("target weights sum to %.4f, not 1", sum))
	}
	for _, t := range p.Targets {
		if t.TargetWeight > ConcentrationWarnPct {
			d.warn(CodeConcentration, t.Symbol,
				fmt.Sprintf("target weight %.2f%% exceeds %.0f%%", 100*t.TargetWeight, 100*ConcentrationWarnPct))
		}
	}
	if p.MaxInvestAmountUSD < p.MinInvestAmountUSD {
		d.warn(CodeMaxBelowMin, "",
			fmt.Sprintf("maxInvestAmountUsd %.2f is below minInvestAmountUsd %.2f; every run will be a no-op", p.MaxInvestAmountUSD, p.MinInvestAmountUSD))
	}
	if limits.DailySpendLimit > 0 && p.MaxInvestAmountUSD > limits.DailySpendLimit {
		d.warn(CodeMaxInvestHigh, "",
			fmt.Sprintf("maxInvestAmountUsd %.2f exceeds daily spend limit %.2f", p.MaxInvestAmountUSD, limits.DailySpendLimit))
	}
	if p.MaxInvestAmountUSD > 0 && p.MinOrderUSD > p.MaxInvestAmountUSD/2 {
		d.warn(CodeMinOrderHigh, "",
			fmt.Sprintf("minOrderUsd %.2f is more than half of maxInvestAmountUsd %.2f", p.MinOrderUSD, p.MaxInvestAmountUSD))
	}
	return d.Warnings
}

// checkDailySpend fails open: an unreadable store is a warning, not a block.
func (c *Checker) checkDailySpend(ctx context.Context, d *Decision, at time.Time, plan allocate.Plan) {
	var spent float64
	if c.history != nil {
		recs, err := c.history.List(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("run history unreadable; skipping daily spend limit")
			d.warn(CodeStoreUnreadable, "", fmt.Sprintf("run history unreadable, daily spend not checked: %v", err))
			return
		}
		for _, r := range journal.OnDay(recs, at) {
			if r.Executed {
				spent += r.Plan.PlannedSpendUSD
			}
		}
	}
	d.DailySpentUSD = spent

	if after := spent + plan.PlannedSpendUSD; after > c.limits.DailySpendLimit {
		d.block(CodeDailySpendLimit, "",
			fmt.Sprintf("daily spend %.2f + planned %.2f = %.2f exceeds limit %.2f",
				spent, plan.PlannedSpendUSD, after, c.limits.DailySpendLimit))
	}
}

func (c *Checker) checkPositionSize(d *Decision, plan allocate.Plan, holdings portfolio.Holdings, total float64) {
	if total <= 0 {
		return
	}
	for _, l := range plan.Legs {
		post := (holdings.Value(l.Symbol) + l.NotionalUSD) / total
		if post > c.limits.MaxPositionPct {
			d.block(CodePositionSizeLimit, l.Symbol,
				fmt.Sprintf("post-buy position %.2f%% exceeds max %.2f%%", 100*post, 100*c.limits.MaxPositionPct))
		}
	}
}

func (c *Checker) checkLargeOrders(d *Decision, plan allocate.Plan, total float64) {
	if total <= 0 {
		return
	}
	for _, l := range plan.Legs {
		frac := l.NotionalUSD / total
		if frac > c.limits.LargeOrderThreshold {
			d.warn(CodeLargeOrder, l.Symbol,
				fmt.Sprintf("order %.2f is %.2f%% of portfolio value (threshold %.2f%%)",
					l.NotionalUSD, 100*frac, 100*c.limits.LargeOrderThreshold))
		}
	}
}
