package portfolio

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ValidationError names the offending field and why it was rejected.
type ValidationError struct {
	Subject string // "policy" or "snapshot"
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s: %s", e.Subject, e.Field, e.Reason)
}

func policyErr(field, format string, args ...any) error {
	return &ValidationError{Subject: "policy", Field: field, Reason: fmt.Sprintf(format, args...)}
}

func snapshotErr(field, format string, args ...any) error {
	return &ValidationError{Subject: "snapshot", Field: field, Reason: fmt.Sprintf(format, args...)}
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func nonNegative(field string, x float64) error {
	if !finite(x) {
		return policyErr(field, "must be a finite number")
	}
	if x < 0 {
		return policyErr(field, "must be >= 0, got %v", x)
	}
	return nil
}

// ValidatePolicy is the gate between an untrusted policy and the engine.
// Checks run in a fixed order and the first failure is returned.
func ValidatePolicy(p Policy) error {
	// required fields
	if strings.TrimSpace(p.Name) == "" {
		return policyErr("name", "is required")
	}
	if len(p.Targets) == 0 {
		return policyErr("targets", "at least one target is required")
	}
	for i, t := range p.Targets {
		if strings.TrimSpace(t.Symbol) == "" {
			return policyErr(fmt.Sprintf("targets[%d].symbol", i), "is required")
		}
	}

	// numeric ranges
	if p.Version < 0 {
		return policyErr("version", "must be >= 0, got %d", p.Version)
	}
	for i, t := range p.Targets {
		field := fmt.Sprintf("targets[%d].targetWeight", i)
		if !finite(t.TargetWeight) {
			return policyErr(field, "must be a finite number")
		}
		if t.TargetWeight <= 0 || t.TargetWeight > 1 {
			return policyErr(field, "must be in (0, 1], got %v", t.TargetWeight)
		}
	}
	if err := nonNegative("cashBufferPct", p.CashBufferPct); err != nil {
		return err
	}
	if p.CashBufferPct > 1 {
		return policyErr("cashBufferPct", "must be in [0, 1], got %v", p.CashBufferPct)
	}
	if err := nonNegative("minInvestAmountUsd", p.MinInvestAmountUSD); err != nil {
		return err
	}
	if err := nonNegative("maxInvestAmountUsd", p.MaxInvestAmountUSD); err != nil {
		return err
	}
	if err := nonNegative("minOrderUsd", p.MinOrderUSD); err != nil {
		return err
	}
	if p.MaxOrders < 0 {
		return policyErr("maxOrders", "must be a positive integer, got %d", p.MaxOrders)
	}

	// duplicates: the first repeated symbol is reported
	seen := make(map[string]int, len(p.Targets))
	for i, t := range p.Targets {
		if first, ok := seen[t.Symbol]; ok {
			return policyErr(fmt.Sprintf("targets[%d].symbol", i),
				"duplicate symbol %q (first seen at targets[%d])", t.Symbol, first)
		}
		seen[t.Symbol] = i
	}

	sum := p.WeightSum()
	if math.Abs(sum-1) > WeightSumEpsilon {
		return policyErr("targets", "weights must sum to 1 (±%v), got %.6f", WeightSumEpsilon, sum)
	}

	return validateDrift(p.Drift)
}

func validateDrift(d Drift) error {
	switch d.Kind {
	case DriftNone, "":
		if d.MaxAbsPct != nil {
			return policyErr("drift.maxAbsPct", "only allowed when drift.kind is %q", DriftBand)
		}
	case DriftBand:
		if d.MaxAbsPct == nil {
			return policyErr("drift.maxAbsPct", "is required when drift.kind is %q", DriftBand)
		}
		v := *d.MaxAbsPct
		if !finite(v) || v < 0 || v > 1 {
			return policyErr("drift.maxAbsPct", "must be in [0, 1], got %v", v)
		}
	default:
		return policyErr("drift.kind", "must be %q or %q, got %q", DriftNone, DriftBand, d.Kind)
	}
	return nil
}

// ValidateSnapshot rejects broker snapshots the engine cannot reason about.
// Prices are checked later, per target, by the engine.
func ValidateSnapshot(s Snapshot) error {
	if strings.TrimSpace(s.AsOf) == "" {
		return snapshotErr("asOfIso", "is required")
	}
	if _, err := time.Parse(time.RFC3339, s.AsOf); err != nil {
		return snapshotErr("asOfIso", "must be an RFC 3339 timestamp, got %q", s.AsOf)
	}
	if !finite(s.CashUSD) {
		return snapshotErr("cashUsd", "must be a finite number")
	}
	if s.CashUSD < 0 {
		return snapshotErr("cashUsd", "must be >= 0, got %v", s.CashUSD)
	}
	for i, p := range s.Positions {
		if strings.TrimSpace(p.Symbol) == "" {
			return snapshotErr(fmt.Sprintf("positions[%d].symbol", i), "is required")
		}
		if !finite(p.Quantity) || p.Quantity < 0 {
			return snapshotErr(fmt.Sprintf("positions[%d].quantity", i), "must be a finite number >= 0, got %v", p.Quantity)
		}
		if !finite(p.MarketValueUSD) || p.MarketValueUSD < 0 {
			return snapshotErr(fmt.Sprintf("positions[%d].marketValueUsd", i), "must be a finite number >= 0, got %v", p.MarketValueUSD)
		}
	}
	for sym := range s.PricesUSD {
		if strings.TrimSpace(sym) == "" {
			return snapshotErr("pricesUsd", "contains an empty symbol")
		}
	}
	return nil
}
