// Package allocate turns a policy and a broker snapshot into a buy plan.
//
// Allocate is pure: the same inputs always give the same plan. It spends
// only cash; it never proposes sells.
package allocate

import (
	"fmt"
	"math"
	"sort"

	"github.com/rustyeddy/rebalance/portfolio"
	"github.com/shopspring/decimal"
)

// Options tunes a single Allocate call.
type Options struct {
	// RoundToUSD is the order-size increment. Leg notionals are floored
	// to a multiple of it. Zero, negative or non-finite means 0.01.
	RoundToUSD float64

	// NoopIfWithinBand makes a band policy that is within its band
	// produce a NOOP plan instead of a pro-rata one.
	NoopIfWithinBand bool
}

func DefaultOptions() Options {
	return Options{RoundToUSD: DefaultRoundToUSD}
}

// MissingPriceError is returned when a target has no usable price and the
// policy does not allow missing prices.
type MissingPriceError struct {
	Symbol string
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("missing or invalid price for target %q", e.Symbol)
}

// Allocate validates its inputs and computes the plan.
func Allocate(policy portfolio.Policy, snap portfolio.Snapshot, opts Options) (Plan, error) {
	if err := portfolio.ValidatePolicy(policy); err != nil {
		return Plan{}, err
	}
	if err := portfolio.ValidateSnapshot(snap); err != nil {
		return Plan{}, err
	}

	plan := Plan{Legs: []Leg{}, Notes: []string{}}
	inc := increment(opts.RoundToUSD)

	prices, err := resolvePrices(&plan, policy, snap)
	if err != nil {
		return Plan{}, err
	}

	holdings := portfolio.AggregatePositions(snap.Positions)
	total := holdings.Equity() + snap.CashUSD
	plan.TotalValueUSD = total
	plan.CashUSD = snap.CashUSD

	investable := investableCash(&plan, policy, snap.CashUSD, total)
	plan.InvestableCashUSD = investable
	if investable < policy.MinInvestAmountUSD {
		plan.note("investable cash %.2f is below minInvestAmountUsd %.2f; nothing to invest",
			investable, policy.MinInvestAmountUSD)
		return plan.noop(), nil
	}

	weights := currentWeights(policy, holdings, total)

	plan.Mode = selectMode(&plan, policy, weights)
	if plan.Mode == ModeProRata && policy.Drift.Kind == portfolio.DriftBand && opts.NoopIfWithinBand {
		plan.note("portfolio is within its drift band and noopIfWithinBand is set; skipping")
		return plan.noop(), nil
	}

	var raw map[string]decimal.Decimal
	if plan.Mode == ModeUnderweights {
		raw = underweightBuys(&plan, policy, weights, investable)
	} else {
		raw = proRataBuys(&plan, policy, investable)
	}

	legs := make([]Leg, 0, len(policy.Targets))
	for _, t := range policy.Targets {
		notional := floorTo(raw[t.Symbol], inc)
		amount := notional.InexactFloat64()
		if amount <= 0 {
			continue
		}
		if amount < policy.MinOrderUSD {
			plan.note("dropped %s: %.2f is below minOrderUsd %.2f", t.Symbol, amount, policy.MinOrderUSD)
			continue
		}

		leg := Leg{
			Symbol:        t.Symbol,
			NotionalUSD:   amount,
			TargetWeight:  t.TargetWeight,
			CurrentWeight: weights[t.Symbol],
			PriceUSD:      prices[t.Symbol],
		}
		if total > 0 {
			leg.PostBuyEstimatedWeight = (holdings.Value(t.Symbol) + amount) / total
		}
		if leg.PriceUSD > 0 {
			leg.EstimatedQuantity = amount / leg.PriceUSD
		}
		legs = append(legs, leg)
	}

	sortLegs(legs)

	if len(legs) == 0 {
		plan.note("no legs survived rounding and minOrderUsd")
		return plan.noop(), nil
	}

	if maxOrders := policy.EffectiveMaxOrders(); len(legs) > maxOrders {
		dropped := len(legs) - maxOrders
		legs = legs[:maxOrders]
		plan.note("dropped %d smallest leg(s) to respect maxOrders %d", dropped, maxOrders)
	}

	spend := decimal.Zero
	for i := range legs {
		legs[i].ReasonCodes = reasonCodes(legs[i])
		spend = spend.Add(decimal.NewFromFloat(legs[i].NotionalUSD))
	}

	planned := spend.InexactFloat64()
	if planned < policy.MinInvestAmountUSD {
		plan.note("planned spend %.2f after order constraints is below minInvestAmountUsd %.2f; discarding legs",
			planned, policy.MinInvestAmountUSD)
		return plan.noop(), nil
	}

	plan.Status = StatusPlanned
	plan.Legs = legs
	plan.PlannedSpendUSD = planned
	plan.note("planned %d order(s) totalling %.2f", len(legs), planned)
	return plan.rounded(), nil
}

func usablePrice(px float64) bool {
	return px > 0 && !math.IsInf(px, 0) && !math.IsNaN(px)
}

func resolvePrices(plan *Plan, policy portfolio.Policy, snap portfolio.Snapshot) (map[string]float64, error) {
	prices := make(map[string]float64, len(policy.Targets))
	for _, t := range policy.Targets {
		px, ok := snap.PricesUSD[t.Symbol]
		if ok && usablePrice(px) {
			prices[t.Symbol] = px
			continue
		}
		if !policy.AllowMissingPrices {
			return nil, &MissingPriceError{Symbol: t.Symbol}
		}
		plan.note("no usable price for %s; allowMissingPrices is set, continuing", t.Symbol)
	}
	return prices, nil
}

// investableCash applies the cash buffer and the per-run cap.
func investableCash(plan *Plan, policy portfolio.Policy, cash, total float64) float64 {
	buffer := math.Max(0, policy.CashBufferPct*total)
	investable := math.Max(0, cash-buffer)
	if buffer > 0 {
		plan.note("holding back cash buffer of %.2f (%.2f%% of %.2f)", buffer, 100*policy.CashBufferPct, total)
	}
	if investable > policy.MaxInvestAmountUSD {
		plan.note("investable cash %.2f capped at maxInvestAmountUsd %.2f", investable, policy.MaxInvestAmountUSD)
		investable = policy.MaxInvestAmountUSD
	}
	return investable
}

func currentWeights(policy portfolio.Policy, holdings portfolio.Holdings, total float64) map[string]float64 {
	w := make(map[string]float64, len(policy.Targets))
	for _, t := range policy.Targets {
		if total > 0 {
			w[t.Symbol] = holdings.Value(t.Symbol) / total
		} else {
			w[t.Symbol] = 0
		}
	}
	return w
}

func selectMode(plan *Plan, policy portfolio.Policy, weights map[string]float64) Mode {
	if policy.Drift.Kind != portfolio.DriftBand {
		plan.note("drift control disabled; allocating pro-rata to target weights")
		return ModeProRata
	}

	var maxDev float64
	for _, t := range policy.Targets {
		maxDev = math.Max(maxDev, math.Abs(weights[t.Symbol]-t.TargetWeight))
	}

	band := policy.Drift.Band()
	if maxDev > band {
		plan.note("max drift %.2f%% exceeds band %.2f%%; prioritizing underweights", 100*maxDev, 100*band)
		return ModeUnderweights
	}
	plan.note("max drift %.2f%% within band %.2f%%; allocating pro-rata", 100*maxDev, 100*band)
	return ModeProRata
}

// proRataBuys splits cash by target weight. Weights that sum slightly
// above one are scaled down so the legs never outspend the cash.
func proRataBuys(plan *Plan, policy portfolio.Policy, investable float64) map[string]decimal.Decimal {
	cash := decimal.NewFromFloat(investable)
	sum := decimal.Zero
	for _, t := range policy.Targets {
		sum = sum.Add(decimal.NewFromFloat(t.TargetWeight))
	}
	scale := sum.GreaterThan(decimal.NewFromInt(1))
	if scale {
		plan.note("target weights sum to %s; scaling pro-rata buys down", sum.String())
	}

	buys := make(map[string]decimal.Decimal, len(policy.Targets))
	for _, t := range policy.Targets {
		amt := cash.Mul(decimal.NewFromFloat(t.TargetWeight))
		if scale {
			amt = amt.Div(sum)
		}
		buys[t.Symbol] = amt
	}
	return buys
}

// underweightBuys splits cash in proportion to how far each target sits
// below its weight. With nothing underweight it falls back to pro-rata.
func underweightBuys(plan *Plan, policy portfolio.Policy, weights map[string]float64, investable float64) map[string]decimal.Decimal {
	scores := make(map[string]decimal.Decimal, len(policy.Targets))
	sum := decimal.Zero
	for _, t := range policy.Targets {
		s := math.Max(0, t.TargetWeight-weights[t.Symbol])
		scores[t.Symbol] = decimal.NewFromFloat(s)
		sum = sum.Add(scores[t.Symbol])
	}

	if !sum.IsPositive() {
		plan.note("drift exceeds band but no target is underweight; falling back to pro-rata")
		plan.Mode = ModeProRata
		return proRataBuys(plan, policy, investable)
	}

	cash := decimal.NewFromFloat(investable)
	buys := make(map[string]decimal.Decimal, len(policy.Targets))
	for _, t := range policy.Targets {
		buys[t.Symbol] = cash.Mul(scores[t.Symbol]).Div(sum)
	}
	return buys
}

// sortLegs orders by notional descending, then symbol ascending.
func sortLegs(legs []Leg) {
	sort.SliceStable(legs, func(i, j int) bool {
		if legs[i].NotionalUSD != legs[j].NotionalUSD {
			return legs[i].NotionalUSD > legs[j].NotionalUSD
		}
		return legs[i].Symbol < legs[j].Symbol
	})
}

func reasonCodes(l Leg) []string {
	codes := make([]string, 0, 3)
	if l.CurrentWeight < l.TargetWeight {
		codes = append(codes, ReasonUnderweight)
	}
	return append(codes, ReasonDCA, ReasonCashflowRebalance)
}

func (p Plan) noop() Plan {
	p.Status = StatusNoop
	p.Legs = []Leg{}
	p.PlannedSpendUSD = 0
	return p.rounded()
}

// rounded applies two-decimal display rounding to every money field.
func (p Plan) rounded() Plan {
	p.TotalValueUSD = round2(p.TotalValueUSD)
	p.CashUSD = round2(p.CashUSD)
	p.InvestableCashUSD = round2(p.InvestableCashUSD)
	p.PlannedSpendUSD = round2(p.PlannedSpendUSD)
	for i := range p.Legs {
		p.Legs[i].NotionalUSD = round2(p.Legs[i].NotionalUSD)
	}
	return p
}
