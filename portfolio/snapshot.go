package portfolio

import (
	"sort"
	"time"
)

type Position struct {
	Symbol         string  `json:"symbol" yaml:"symbol"`
	Quantity       float64 `json:"quantity" yaml:"quantity"`
	MarketValueUSD float64 `json:"marketValueUsd" yaml:"marketValueUsd"`
}

// Snapshot is a point-in-time view of broker cash, positions and prices.
// Positions may repeat a symbol; use AggregatePositions before reading them.
type Snapshot struct {
	AsOf      string             `json:"asOfIso" yaml:"asOfIso"`
	CashUSD   float64            `json:"cashUsd" yaml:"cashUsd"`
	Positions []Position         `json:"positions" yaml:"positions"`
	PricesUSD map[string]float64 `json:"pricesUsd" yaml:"pricesUsd"`
}

// AsOfTime parses AsOf as RFC 3339.
func (s Snapshot) AsOfTime() (time.Time, error) {
	return time.Parse(time.RFC3339, s.AsOf)
}

// Holdings maps a symbol to its summed position.
type Holdings map[string]Position

// AggregatePositions folds positions by symbol, summing quantity and
// market value. Entries for the same symbol are never overwritten.
func AggregatePositions(positions []Position) Holdings {
	h := make(Holdings, len(positions))
	for _, p := range positions {
		cur := h[p.Symbol]
		cur.Symbol = p.Symbol
		cur.Quantity += p.Quantity
		cur.MarketValueUSD += p.MarketValueUSD
		h[p.Symbol] = cur
	}
	return h
}

// Value returns the aggregated market value for symbol, zero if not held.
func (h Holdings) Value(symbol string) float64 {
	return h[symbol].MarketValueUSD
}

// Equity sums the market value of every holding. Symbols are visited in
// sorted order so the float sum is reproducible.
func (h Holdings) Equity() float64 {
	var sum float64
	for _, s := range h.Symbols() {
		sum += h[s].MarketValueUSD
	}
	return sum
}

// Symbols returns the held symbols in sorted order.
func (h Holdings) Symbols() []string {
	out := make([]string, 0, len(h))
	for s := range h {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
