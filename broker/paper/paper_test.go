package paper

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/rebalance/broker"
	"github.com/rustyeddy/rebalance/portfolio"
)

var fillTime = time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

func startSnapshot() portfolio.Snapshot {
	return portfolio.Snapshot{
		AsOf:      "2024-03-04T14:00:00Z",
		CashUSD:   100,
		Positions: []portfolio.Position{{Symbol: "VTI", Quantity: 1, MarketValueUSD: 200}},
		PricesUSD: map[string]float64{"VTI": 200, "VXUS": 50},
	}
}

func TestExecuteOrders(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := New(startSnapshot(), zerolog.Nop()).WithClock(func() time.Time { return fillTime })
	assert.True(t, b.IsPaper())

	exec, err := b.ExecuteOrders(ctx, []broker.OrderRequest{
		{Symbol: "VTI", NotionalUSD: 70},
		{Symbol: "VXUS", NotionalUSD: 30, PriceUSD: 60},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, exec.OrdersPlaced)
	require.Len(t, exec.OrderIDs, 2)
	assert.Len(t, exec.OrderIDs[0], 26)
	assert.NotEqual(t, exec.OrderIDs[0], exec.OrderIDs[1])

	require.Len(t, exec.Fills, 2)
	assert.Equal(t, 200.0, exec.Fills[0].PriceUSD, "falls back to snapshot price")
	assert.InDelta(t, 0.35, exec.Fills[0].Quantity, 1e-12)
	assert.Equal(t, 60.0, exec.Fills[1].PriceUSD)
	assert.InDelta(t, 0.5, exec.Fills[1].Quantity, 1e-12)

	snap, err := b.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.CashUSD)
	assert.Equal(t, "2024-03-04T15:00:00Z", snap.AsOf)

	h := portfolio.AggregatePositions(snap.Positions)
	assert.InDelta(t, 270.0, h.Value("VTI"), 1e-9)
	assert.InDelta(t, 1.35, h["VTI"].Quantity, 1e-9)
	assert.InDelta(t, 30.0, h.Value("VXUS"), 1e-9)
	assert.Len(t, snap.Positions, 2)
}

func TestExecuteOrdersAllOrNothing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := New(startSnapshot(), zerolog.Nop())

	tests := []struct {
		name    string
		orders  []broker.OrderRequest
		wantErr error
	}{
		{"over cash", []broker.OrderRequest{{Symbol: "VTI", NotionalUSD: 80}, {Symbol: "VXUS", NotionalUSD: 30}}, ErrInsufficientCash},
		{"zero notional", []broker.OrderRequest{{Symbol: "VTI", NotionalUSD: 10}, {Symbol: "VXUS", NotionalUSD: 0}}, ErrInvalidOrder},
		{"no symbol", []broker.OrderRequest{{NotionalUSD: 10}}, ErrInvalidOrder},
		{"negative price", []broker.OrderRequest{{Symbol: "VTI", NotionalUSD: 10, PriceUSD: -1}}, ErrInvalidOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.ExecuteOrders(ctx, tt.orders)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	snap, err := b.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, startSnapshot(), snap, "failed batches leave the account untouched")
}

func TestUnpricedFillKeepsValue(t *testing.T) {
	t.Parallel()

	b := New(startSnapshot(), zerolog.Nop())
	exec, err := b.ExecuteOrders(context.Background(), []broker.OrderRequest{{Symbol: "BND", NotionalUSD: 25}})
	require.NoError(t, err)
	assert.Zero(t, exec.Fills[0].Quantity)

	snap, _ := b.GetSnapshot(context.Background())
	assert.Equal(t, 25.0, portfolio.AggregatePositions(snap.Positions).Value("BND"))
	assert.Equal(t, 75.0, snap.CashUSD)
}

func TestGetSnapshotReturnsCopy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := New(startSnapshot(), zerolog.Nop())

	snap, err := b.GetSnapshot(ctx)
	require.NoError(t, err)
	snap.Positions[0].MarketValueUSD = 1
	snap.PricesUSD["VTI"] = 1

	again, err := b.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200.0, again.Positions[0].MarketValueUSD)
	assert.Equal(t, 200.0, again.PricesUSD["VTI"])
}

func TestCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := New(startSnapshot(), zerolog.Nop())
	_, err := b.GetSnapshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = b.ExecuteOrders(ctx, []broker.OrderRequest{{Symbol: "VTI", NotionalUSD: 1}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenPersistsFills(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "asOfIso": "2024-03-04T14:00:00Z",
  "cashUsd": 100,
  "positions": [],
  "pricesUsd": {"VTI": 200}
}`), 0o644))

	b, err := Open(path, true, zerolog.Nop())
	require.NoError(t, err)
	b.WithClock(func() time.Time { return fillTime })

	_, err = b.ExecuteOrders(context.Background(), []broker.OrderRequest{{Symbol: "VTI", NotionalUSD: 40}})
	require.NoError(t, err)

	reloaded, err := portfolio.LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, 60.0, reloaded.CashUSD)
	assert.Equal(t, "2024-03-04T15:00:00Z", reloaded.AsOf)
	require.Len(t, reloaded.Positions, 1)
	assert.InDelta(t, 0.2, reloaded.Positions[0].Quantity, 1e-12)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFailedWriteBackAppliesNothing(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "acct")
	require.NoError(t, os.Mkdir(dir, 0o755))
	path := filepath.Join(dir, "snapshot.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"asOfIso": "2024-03-04T14:00:00Z", "cashUsd": 100, "positions": [], "pricesUsd": {"VTI": 200}}`), 0o644))

	b, err := Open(path, true, zerolog.Nop())
	require.NoError(t, err)
	before, err := b.GetSnapshot(context.Background())
	require.NoError(t, err)

	// nowhere left to write the snapshot back to
	require.NoError(t, os.RemoveAll(dir))

	exec, err := b.ExecuteOrders(context.Background(), []broker.OrderRequest{{Symbol: "VTI", NotionalUSD: 40}})
	require.Error(t, err)
	assert.Zero(t, exec.OrdersPlaced)

	after, err := b.GetSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, 100.0, after.CashUSD)
}

func TestOpenWithoutPersist(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	doc := "asOfIso: \"2024-03-04T14:00:00Z\"\ncashUsd: 100\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	b, err := Open(path, false, zerolog.Nop())
	require.NoError(t, err)
	_, err = b.ExecuteOrders(context.Background(), []broker.OrderRequest{{Symbol: "VTI", NotionalUSD: 40}})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, doc, string(data))

	_, err = Open(filepath.Join(t.TempDir(), "missing.json"), false, zerolog.Nop())
	assert.ErrorIs(t, err, os.ErrNotExist)

	assert.ErrorIs(t, New(startSnapshot(), zerolog.Nop()).Save(), ErrNoSnapshotBacking)
}
