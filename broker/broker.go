// Package broker defines what the rebalancer needs from a brokerage.
package broker

import (
	"context"

	"github.com/rustyeddy/rebalance/allocate"
	"github.com/rustyeddy/rebalance/portfolio"
)

type Broker interface {
	// IsPaper reports whether orders are simulated. Only paper brokers
	// are ever handed orders.
	IsPaper() bool
	GetSnapshot(ctx context.Context) (portfolio.Snapshot, error)
	ExecuteOrders(ctx context.Context, orders []OrderRequest) (Execution, error)
}

// OrderRequest is a notional buy. PriceUSD is the price the plan was
// sized at; zero means the broker uses its own quote.
type OrderRequest struct {
	Symbol      string
	NotionalUSD float64
	PriceUSD    float64
}

type Fill struct {
	OrderID     string
	Symbol      string
	NotionalUSD float64
	PriceUSD    float64
	Quantity    float64
}

type Execution struct {
	OrdersPlaced int
	OrderIDs     []string
	Fills        []Fill
}

// OrdersFromPlan turns each leg of plan into a notional buy, in leg order.
func OrdersFromPlan(plan allocate.Plan) []OrderRequest {
	out := make([]OrderRequest, 0, len(plan.Legs))
	for _, l := range plan.Legs {
		out = append(out, OrderRequest{
			Symbol:      l.Symbol,
			NotionalUSD: l.NotionalUSD,
			PriceUSD:    l.PriceUSD,
		})
	}
	return out
}
