// Package paper is a simulated broker. It fills every notional buy
// immediately from its own snapshot and never talks to a brokerage.
package paper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/rebalance/broker"
	"github.com/rustyeddy/rebalance/id"
	"github.com/rustyeddy/rebalance/portfolio"
)

var (
	ErrInvalidOrder      = errors.New("invalid order")
	ErrInsufficientCash  = errors.New("insufficient cash")
	ErrNoSnapshotBacking = errors.New("paper broker has no snapshot file")
)

type Broker struct {
	mu      sync.Mutex
	snap    portfolio.Snapshot
	path    string
	persist bool
	now     func() time.Time
	log     zerolog.Logger
}

var _ broker.Broker = (*Broker)(nil)

// New returns a broker holding snap in memory.
func New(snap portfolio.Snapshot, log zerolog.Logger) *Broker {
	return &Broker{
		snap: cloneSnapshot(snap),
		now:  time.Now,
		log:  log.With().Str("component", "paper").Logger(),
	}
}

// Open loads the starting snapshot from path. With persist set, the
// snapshot is written back to path after every successful execution so
// the next invocation sees the fills.
func Open(path string, persist bool, log zerolog.Logger) (*Broker, error) {
	snap, err := portfolio.LoadSnapshot(path)
	if err != nil {
		return nil, err
	}
	b := New(snap, log)
	b.path = path
	b.persist = persist
	b.log = b.log.With().Str("snapshot", path).Logger()
	return b, nil
}

// WithClock replaces the clock used for fill timestamps and order ids.
func (b *Broker) WithClock(now func() time.Time) *Broker {
	b.now = now
	return b
}

func (b *Broker) IsPaper() bool { return true }

func (b *Broker) GetSnapshot(ctx context.Context) (portfolio.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return portfolio.Snapshot{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneSnapshot(b.snap), nil
}

// ExecuteOrders fills all orders or none. Orders are checked against
// available cash as a batch before anything is applied.
func (b *Broker) ExecuteOrders(ctx context.Context, orders []broker.OrderRequest) (broker.Execution, error) {
	if err := ctx.Err(); err != nil {
		return broker.Execution{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	total := decimal.Zero
	for i, o := range orders {
		if o.Symbol == "" {
			return broker.Execution{}, fmt.Errorf("%w: orders[%d]: symbol is required", ErrInvalidOrder, i)
		}
		if !finitePositive(o.NotionalUSD) {
			return broker.Execution{}, fmt.Errorf("%w: orders[%d] %s: notional %v must be positive", ErrInvalidOrder, i, o.Symbol, o.NotionalUSD)
		}
		if o.PriceUSD < 0 || math.IsNaN(o.PriceUSD) || math.IsInf(o.PriceUSD, 0) {
			return broker.Execution{}, fmt.Errorf("%w: orders[%d] %s: price %v", ErrInvalidOrder, i, o.Symbol, o.PriceUSD)
		}
		total = total.Add(decimal.NewFromFloat(o.NotionalUSD))
	}
	cash := decimal.NewFromFloat(b.snap.CashUSD)
	if total.GreaterThan(cash) {
		return broker.Execution{}, fmt.Errorf("%w: orders total %s, cash %s", ErrInsufficientCash, total.StringFixed(2), cash.StringFixed(2))
	}

	// fills land on a copy that replaces the live snapshot only once it
	// is safely written back
	next := cloneSnapshot(b.snap)
	now := b.now()
	exec := broker.Execution{
		OrderIDs: make([]string, 0, len(orders)),
		Fills:    make([]broker.Fill, 0, len(orders)),
	}
	for _, o := range orders {
		exec.Fills = append(exec.Fills, fill(&next, o, now))
	}
	exec.OrdersPlaced = len(exec.Fills)
	next.CashUSD = cash.Sub(total).InexactFloat64()
	next.AsOf = now.UTC().Format(time.RFC3339)

	if b.persist && len(orders) > 0 {
		if err := b.write(next); err != nil {
			return broker.Execution{}, err
		}
	}
	b.snap = next

	for _, f := range exec.Fills {
		exec.OrderIDs = append(exec.OrderIDs, f.OrderID)
		b.log.Info().
			Str("order_id", f.OrderID).
			Str("symbol", f.Symbol).
			Float64("notional_usd", f.NotionalUSD).
			Float64("price_usd", f.PriceUSD).
			Float64("quantity", f.Quantity).
			Msg("paper fill")
	}
	return exec, nil
}

func fill(snap *portfolio.Snapshot, o broker.OrderRequest, now time.Time) broker.Fill {
	price := o.PriceUSD
	if price == 0 {
		price = snap.PricesUSD[o.Symbol]
	}
	var qty float64
	if finitePositive(price) {
		qty = decimal.NewFromFloat(o.NotionalUSD).Div(decimal.NewFromFloat(price)).Round(8).InexactFloat64()
	}

	f := broker.Fill{
		OrderID:     id.At(now),
		Symbol:      o.Symbol,
		NotionalUSD: o.NotionalUSD,
		PriceUSD:    price,
		Quantity:    qty,
	}

	for i := range snap.Positions {
		p := &snap.Positions[i]
		if p.Symbol != o.Symbol {
			continue
		}
		p.Quantity = decimal.NewFromFloat(p.Quantity).Add(decimal.NewFromFloat(qty)).InexactFloat64()
		p.MarketValueUSD = decimal.NewFromFloat(p.MarketValueUSD).Add(decimal.NewFromFloat(o.NotionalUSD)).InexactFloat64()
		return f
	}
	snap.Positions = append(snap.Positions, portfolio.Position{
		Symbol:         o.Symbol,
		Quantity:       qty,
		MarketValueUSD: o.NotionalUSD,
	})
	return f
}

// Save writes the current snapshot back to the file it was opened from.
func (b *Broker) Save() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.write(b.snap)
}

func (b *Broker) write(snap portfolio.Snapshot) error {
	if b.path == "" {
		return ErrNoSnapshotBacking
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(b.path), "."+filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	b.log.Debug().Msg("snapshot saved")
	return nil
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}

func cloneSnapshot(s portfolio.Snapshot) portfolio.Snapshot {
	out := s
	out.Positions = make([]portfolio.Position, len(s.Positions))
	copy(out.Positions, s.Positions)
	out.PricesUSD = make(map[string]float64, len(s.PricesUSD))
	for k, v := range s.PricesUSD {
		out.PricesUSD[k] = v
	}
	return out
}
