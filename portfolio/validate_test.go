package portfolio

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func validPolicy() Policy {
	return Policy{
		Version: 1,
		Name:    "core",
		Targets: []Target{
			{Symbol: "VTI", TargetWeight: 0.7},
			{Symbol: "VXUS", TargetWeight: 0.3},
		},
		CashBufferPct:      0,
		MinInvestAmountUSD: 10,
		MaxInvestAmountUSD: 1000,
		MinOrderUSD:        1,
		Drift:              Drift{Kind: DriftNone},
	}
}

func validSnapshot() Snapshot {
	return Snapshot{
		AsOf:    "2024-03-01T15:00:00Z",
		CashUSD: 100,
		Positions: []Position{
			{Symbol: "VTI", Quantity: 1, MarketValueUSD: 250},
		},
		PricesUSD: map[string]float64{"VTI": 250, "VXUS": 60},
	}
}

func TestValidatePolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(p *Policy)
		field  string
	}{
		{"valid", func(p *Policy) {}, ""},
		{"missing name", func(p *Policy) { p.Name = " " }, "name"},
		{"no targets", func(p *Policy) { p.Targets = nil }, "targets"},
		{"empty symbol", func(p *Policy) { p.Targets[1].Symbol = "" }, "targets[1].symbol"},
		{"zero weight", func(p *Policy) { p.Targets[0].TargetWeight = 0 }, "targets[0].targetWeight"},
		{"weight above one", func(p *Policy) { p.Targets[0].TargetWeight = 1.2 }, "targets[0].targetWeight"},
		{"nan weight", func(p *Policy) { p.Targets[1].TargetWeight = math.NaN() }, "targets[1].targetWeight"},
		{"buffer above one", func(p *Policy) { p.CashBufferPct = 1.5 }, "cashBufferPct"},
		{"negative buffer", func(p *Policy) { p.CashBufferPct = -0.1 }, "cashBufferPct"},
		{"negative min invest", func(p *Policy) { p.MinInvestAmountUSD = -1 }, "minInvestAmountUsd"},
		{"infinite max invest", func(p *Policy) { p.MaxInvestAmountUSD = math.Inf(1) }, "maxInvestAmountUsd"},
		{"negative min order", func(p *Policy) { p.MinOrderUSD = -3 }, "minOrderUsd"},
		{"negative max orders", func(p *Policy) { p.MaxOrders = -1 }, "maxOrders"},
		{"band without width", func(p *Policy) { p.Drift = Drift{Kind: DriftBand} }, "drift.maxAbsPct"},
		{"band too wide", func(p *Policy) { p.Drift = Drift{Kind: DriftBand, MaxAbsPct: ptr(2)} }, "drift.maxAbsPct"},
		{"width without band", func(p *Policy) { p.Drift = Drift{Kind: DriftNone, MaxAbsPct: ptr(0.1)} }, "drift.maxAbsPct"},
		{"unknown drift kind", func(p *Policy) { p.Drift = Drift{Kind: "wide"} }, "drift.kind"},
		{"band ok", func(p *Policy) { p.Drift = Drift{Kind: DriftBand, MaxAbsPct: ptr(0.03)} }, ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := validPolicy()
			tt.mutate(&p)
			err := ValidatePolicy(p)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "want ValidationError, got %v", err)
			assert.Equal(t, "policy", vErr.Subject)
			assert.Equal(t, tt.field, vErr.Field)
			assert.NotEmpty(t, vErr.Reason)
		})
	}
}

func TestValidatePolicyDuplicateReportsFirstRepeat(t *testing.T) {
	t.Parallel()

	p := validPolicy()
	p.Targets = []Target{
		{Symbol: "VTI", TargetWeight: 0.25},
		{Symbol: "BND", TargetWeight: 0.25},
		{Symbol: "VTI", TargetWeight: 0.25},
		{Symbol: "BND", TargetWeight: 0.25},
	}

	err := ValidatePolicy(p)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "targets[2].symbol", vErr.Field)
	assert.Contains(t, vErr.Reason, `"VTI"`)
	assert.Contains(t, vErr.Reason, "targets[0]")
}

func TestValidatePolicyWeightSumTolerance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		first float64
		ok    bool
	}{
		{"exact", 0.7, true},
		{"just inside high", 0.7004, true},
		{"just inside low", 0.6996, true},
		{"outside high", 0.7006, false},
		{"outside low", 0.6994, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := validPolicy()
			p.Targets[0].TargetWeight = tt.first
			err := ValidatePolicy(p)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				var vErr *ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Equal(t, "targets", vErr.Field)
			}
		})
	}
}

func TestValidateSnapshot(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(s *Snapshot)
		field  string
	}{
		{"valid", func(s *Snapshot) {}, ""},
		{"missing as of", func(s *Snapshot) { s.AsOf = "" }, "asOfIso"},
		{"bad as of", func(s *Snapshot) { s.AsOf = "yesterday" }, "asOfIso"},
		{"negative cash", func(s *Snapshot) { s.CashUSD = -1 }, "cashUsd"},
		{"nan cash", func(s *Snapshot) { s.CashUSD = math.NaN() }, "cashUsd"},
		{"empty position symbol", func(s *Snapshot) { s.Positions[0].Symbol = "" }, "positions[0].symbol"},
		{"negative quantity", func(s *Snapshot) { s.Positions[0].Quantity = -2 }, "positions[0].quantity"},
		{"negative value", func(s *Snapshot) { s.Positions[0].MarketValueUSD = -2 }, "positions[0].marketValueUsd"},
		{"empty price symbol", func(s *Snapshot) { s.PricesUSD[""] = 1 }, "pricesUsd"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSnapshot()
			tt.mutate(&s)
			err := ValidateSnapshot(s)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, "snapshot", vErr.Subject)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestAggregatePositionsSumsDuplicates(t *testing.T) {
	t.Parallel()

	h := AggregatePositions([]Position{
		{Symbol: "VTI", Quantity: 1, MarketValueUSD: 100},
		{Symbol: "BND", Quantity: 3, MarketValueUSD: 210},
		{Symbol: "VTI", Quantity: 2, MarketValueUSD: 200.5},
	})

	assert.Len(t, h, 2)
	assert.InDelta(t, 3.0, h["VTI"].Quantity, 1e-12)
	assert.InDelta(t, 300.5, h.Value("VTI"), 1e-12)
	assert.InDelta(t, 210.0, h.Value("BND"), 1e-12)
	assert.Zero(t, h.Value("VXUS"))
	assert.InDelta(t, 510.5, h.Equity(), 1e-12)
	assert.Equal(t, []string{"BND", "VTI"}, h.Symbols())
}
