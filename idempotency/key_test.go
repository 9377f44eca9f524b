package idempotency

import (
	"strings"
	"testing"
	"time"

	"github.com/rustyeddy/rebalance/allocate"
	"github.com/rustyeddy/rebalance/portfolio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() portfolio.Policy {
	band := 0.03
	return portfolio.Policy{
		Version: 1,
		Name:    "core",
		Targets: []portfolio.Target{
			{Symbol: "VTI", TargetWeight: 0.7},
			{Symbol: "VXUS", TargetWeight: 0.3},
		},
		CashBufferPct:      0.01,
		MinInvestAmountUSD: 25,
		MaxInvestAmountUSD: 500,
		MinOrderUSD:        5,
		Drift:              portfolio.Drift{Kind: portfolio.DriftBand, MaxAbsPct: &band},
	}
}

func TestDateKey(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 3, 9, 7, 45, 12, 0, time.Local)

	assert.Equal(t, "2024-03-09", DateKey(ts, Daily))
	assert.Equal(t, "2024-03-09-07", DateKey(ts, Hourly))
	assert.Equal(t, "2024-03-09", DateKey(ts, ""))
	assert.Equal(t, DateKey(ts, Hourly), DateKey(ts.Add(14*time.Minute), Hourly))
	assert.NotEqual(t, DateKey(ts, Hourly), DateKey(ts.Add(15*time.Minute), Hourly))
}

func TestParseGranularity(t *testing.T) {
	t.Parallel()

	g, err := ParseGranularity("")
	require.NoError(t, err)
	assert.Equal(t, Daily, g)

	g, err = ParseGranularity("hourly")
	require.NoError(t, err)
	assert.Equal(t, Hourly, g)

	_, err = ParseGranularity("weekly")
	assert.Error(t, err)
}

func TestKeyIsStable(t *testing.T) {
	t.Parallel()

	k1, err := Key(testPolicy(), "2024-03-09")
	require.NoError(t, err)
	k2, err := Key(testPolicy(), "2024-03-09")
	require.NoError(t, err)

	assert.Equal(t, k1, k2)
	assert.True(t, strings.HasPrefix(k1, "2024-03-09-"))
	assert.Len(t, k1, len("2024-03-09-")+hashLen)
}

func TestKeyIgnoresDocumentFieldOrder(t *testing.T) {
	t.Parallel()

	a := `{"name": "core", "targets": [{"symbol": "VTI", "targetWeight": 0.7}, {"symbol": "VXUS", "targetWeight": 0.3}],
	       "cashBufferPct": 0, "minInvestAmountUsd": 10, "maxInvestAmountUsd": 100, "minOrderUsd": 1}`
	b := `{"minOrderUsd": 1, "maxInvestAmountUsd": 100, "minInvestAmountUsd": 10, "cashBufferPct": 0,
	       "targets": [{"targetWeight": 0.3, "symbol": "VXUS"}, {"targetWeight": 0.7, "symbol": "VTI"}], "name": "core"}`

	pa, err := portfolio.ParsePolicy([]byte(a))
	require.NoError(t, err)
	pb, err := portfolio.ParsePolicy([]byte(b))
	require.NoError(t, err)

	ha, err := PolicyHash(pa)
	require.NoError(t, err)
	hb, err := PolicyHash(pb)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestKeyChangesWithHashedFields(t *testing.T) {
	t.Parallel()

	base, err := Key(testPolicy(), "2024-03-09")
	require.NoError(t, err)

	wider := 0.05
	mutations := map[string]func(p *portfolio.Policy){
		"version":     func(p *portfolio.Policy) { p.Version = 2 },
		"name":        func(p *portfolio.Policy) { p.Name = "core-2" },
		"weights":     func(p *portfolio.Policy) { p.Targets[0].TargetWeight, p.Targets[1].TargetWeight = 0.6, 0.4 },
		"symbol":      func(p *portfolio.Policy) { p.Targets[1].Symbol = "VEA" },
		"buffer":      func(p *portfolio.Policy) { p.CashBufferPct = 0.02 },
		"min invest":  func(p *portfolio.Policy) { p.MinInvestAmountUSD = 30 },
		"max invest":  func(p *portfolio.Policy) { p.MaxInvestAmountUSD = 600 },
		"min order":   func(p *portfolio.Policy) { p.MinOrderUSD = 6 },
		"max orders":  func(p *portfolio.Policy) { p.MaxOrders = 1 },
		"drift band":  func(p *portfolio.Policy) { p.Drift.MaxAbsPct = &wider },
		"drift kind":  func(p *portfolio.Policy) { p.Drift = portfolio.Drift{Kind: portfolio.DriftNone} },
	}

	for name, mutate := range mutations {
		name, mutate := name, mutate
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p := testPolicy()
			mutate(&p)
			k, err := Key(p, "2024-03-09")
			require.NoError(t, err)
			assert.NotEqual(t, base, k)
		})
	}

	other, err := Key(testPolicy(), "2024-03-10")
	require.NoError(t, err)
	assert.NotEqual(t, base, other)

	// allowMissingPrices is not part of the identity
	p := testPolicy()
	p.AllowMissingPrices = true
	same, err := Key(p, "2024-03-09")
	require.NoError(t, err)
	assert.Equal(t, base, same)
}

func TestPlanHash(t *testing.T) {
	t.Parallel()

	plan := allocate.Plan{
		Status:          allocate.StatusPlanned,
		Mode:            allocate.ModeProRata,
		PlannedSpendUSD: 100,
		Legs:            []allocate.Leg{{Symbol: "VTI", NotionalUSD: 70}, {Symbol: "VXUS", NotionalUSD: 30}},
		Notes:           []string{"a"},
	}
	h1, err := PlanHash(plan)
	require.NoError(t, err)

	plan.Notes = append(plan.Notes, "b")
	h2, err := PlanHash(plan)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	plan.Legs[1].NotionalUSD = 29.99
	h3, err := PlanHash(plan)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
