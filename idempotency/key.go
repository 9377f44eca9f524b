// Package idempotency derives the keys that make a rebalance run happen at
// most once per policy per period.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rustyeddy/rebalance/allocate"
	"github.com/rustyeddy/rebalance/portfolio"
)

type Granularity string

const (
	Daily  Granularity = "daily"
	Hourly Granularity = "hourly"
)

// ParseGranularity accepts "daily" or "hourly"; empty means daily.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case "", Daily:
		return Daily, nil
	case Hourly:
		return Hourly, nil
	}
	return "", fmt.Errorf("unknown granularity %q (want daily or hourly)", s)
}

// DateKey truncates t, in local time, to the period it belongs to.
func DateKey(t time.Time, g Granularity) string {
	t = t.Local()
	if g == Hourly {
		return t.Format("2006-01-02-15")
	}
	return t.Format("2006-01-02")
}

// hashLen is how many hex characters of the digest go into a key.
const hashLen = 16

type canonicalTarget struct {
	Symbol       string  `json:"symbol"`
	TargetWeight float64 `json:"targetWeight"`
}

// canonicalPolicy returns the hashed subset of a policy. Maps marshal with
// sorted keys, so the encoding does not depend on document field order.
func canonicalPolicy(p portfolio.Policy) map[string]any {
	targets := make([]canonicalTarget, 0, len(p.Targets))
	for _, t := range p.Targets {
		targets = append(targets, canonicalTarget{Symbol: t.Symbol, TargetWeight: t.TargetWeight})
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].Symbol < targets[j].Symbol })

	drift := map[string]any{"kind": string(p.Drift.Kind)}
	if p.Drift.Kind == "" {
		drift["kind"] = string(portfolio.DriftNone)
	}
	if p.Drift.MaxAbsPct != nil {
		drift["maxAbsPct"] = *p.Drift.MaxAbsPct
	}

	return map[string]any{
		"version":            p.Version,
		"name":               p.Name,
		"targets":            targets,
		"cashBufferPct":      p.CashBufferPct,
		"minInvestAmountUsd": p.MinInvestAmountUSD,
		"maxInvestAmountUsd": p.MaxInvestAmountUSD,
		"minOrderUsd":        p.MinOrderUSD,
		"maxOrders":          p.EffectiveMaxOrders(),
		"drift":              drift,
	}
}

func digest(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// PolicyHash identifies a policy by content.
func PolicyHash(p portfolio.Policy) (string, error) {
	h, err := digest(canonicalPolicy(p))
	if err != nil {
		return "", fmt.Errorf("hash policy: %w", err)
	}
	return h[:hashLen], nil
}

// Key joins the period and the policy hash: "{dateKey}-{policyHash}".
func Key(p portfolio.Policy, dateKey string) (string, error) {
	h, err := PolicyHash(p)
	if err != nil {
		return "", err
	}
	return dateKey + "-" + h, nil
}

// PlanHash fingerprints the plan content, notes excluded.
func PlanHash(plan allocate.Plan) (string, error) {
	h, err := digest(struct {
		Status          allocate.Status `json:"status"`
		Mode            allocate.Mode   `json:"mode"`
		PlannedSpendUSD float64         `json:"plannedSpendUsd"`
		Legs            []allocate.Leg  `json:"legs"`
	}{plan.Status, plan.Mode, plan.PlannedSpendUSD, plan.Legs})
	if err != nil {
		return "", fmt.Errorf("hash plan: %w", err)
	}
	return h[:hashLen], nil
}
