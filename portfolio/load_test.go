package portfolio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const policyJSON = `{
  "name": "core",
  "targets": [
    {"symbol": "VTI", "targetWeight": 0.7},
    {"symbol": "VXUS", "targetWeight": 0.3}
  ],
  "cashBufferPct": 0.02,
  "minInvestAmountUsd": 25,
  "maxInvestAmountUsd": 500,
  "minOrderUsd": 5,
  "drift": {"kind": "band", "maxAbsPct": 0.03}
}`

const policyYAML = `
version: 2
name: core
targets:
  - symbol: VTI
    targetWeight: 0.7
  - symbol: VXUS
    targetWeight: 0.3
cashBufferPct: 0
minInvestAmountUsd: 25
maxInvestAmountUsd: 500
minOrderUsd: 5
maxOrders: 1
allowMissingPrices: true
`

func TestParsePolicyJSONDefaults(t *testing.T) {
	t.Parallel()

	p, err := ParsePolicy([]byte(policyJSON))
	require.NoError(t, err)

	assert.Equal(t, 1, p.Version)
	assert.Equal(t, "core", p.Name)
	assert.Len(t, p.Targets, 2)
	assert.Equal(t, 2, p.EffectiveMaxOrders())
	assert.Equal(t, DriftBand, p.Drift.Kind)
	assert.InDelta(t, 0.03, p.Drift.Band(), 1e-12)
	assert.False(t, p.AllowMissingPrices)
}

func TestParsePolicyYAML(t *testing.T) {
	t.Parallel()

	p, err := ParsePolicy([]byte(policyYAML))
	require.NoError(t, err)

	assert.Equal(t, 2, p.Version)
	assert.Equal(t, 1, p.EffectiveMaxOrders())
	assert.Equal(t, DriftNone, p.Drift.Kind)
	assert.True(t, p.AllowMissingPrices)
}

func TestParsePolicyErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{"empty", "  ", "document"},
		{"array", `[1, 2]`, "document"},
		{"missing name", `{"targets": [], "cashBufferPct": 0}`, "name"},
		{"missing min order", `{"name": "x", "targets": [{"symbol": "A", "targetWeight": 1}], "cashBufferPct": 0, "minInvestAmountUsd": 0, "maxInvestAmountUsd": 1}`, "minOrderUsd"},
		{"weight as string", `{"name": "x", "targets": [{"symbol": "A", "targetWeight": "1"}]}`, "targets.targetWeight"},
		{"max orders zero", `{"name": "x", "targets": [{"symbol": "A", "targetWeight": 1}], "cashBufferPct": 0, "minInvestAmountUsd": 0, "maxInvestAmountUsd": 1, "minOrderUsd": 0, "maxOrders": 0}`, "maxOrders"},
		{"max orders fractional", `{"name": "x", "maxOrders": 1.5}`, "maxOrders"},
		{"target without weight", `{"name": "x", "targets": [{"symbol": "A"}], "cashBufferPct": 0, "minInvestAmountUsd": 0, "maxInvestAmountUsd": 1, "minOrderUsd": 0}`, "targets[0].targetWeight"},
		{"drift without kind", `{"name": "x", "targets": [{"symbol": "A", "targetWeight": 1}], "cashBufferPct": 0, "minInvestAmountUsd": 0, "maxInvestAmountUsd": 1, "minOrderUsd": 0, "drift": {"maxAbsPct": 0.1}}`, "drift.kind"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParsePolicy([]byte(tt.doc))
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestLoadSnapshot(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.json")
	doc := `{
  "asOfIso": "2024-03-01T15:00:00Z",
  "cashUsd": 100,
  "positions": [
    {"symbol": "VTI", "quantity": 1, "marketValueUsd": 250},
    {"symbol": "VTI", "quantity": 1, "marketValueUsd": 250}
  ],
  "pricesUsd": {"VTI": 250}
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	s, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, s.CashUSD, 1e-12)
	assert.Len(t, s.Positions, 2)
	assert.InDelta(t, 500.0, AggregatePositions(s.Positions).Value("VTI"), 1e-12)
}

func TestParseSnapshotRequiresCash(t *testing.T) {
	t.Parallel()

	_, err := ParseSnapshot([]byte(`{"asOfIso": "2024-03-01T15:00:00Z"}`))
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "cashUsd", vErr.Field)
}

func TestLoadPolicyMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
