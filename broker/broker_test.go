package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/rebalance/allocate"
)

func TestOrdersFromPlan(t *testing.T) {
	t.Parallel()

	plan := allocate.Plan{
		Status: allocate.StatusPlanned,
		Legs: []allocate.Leg{
			{Symbol: "VTI", NotionalUSD: 70, PriceUSD: 250},
			{Symbol: "VXUS", NotionalUSD: 30},
		},
	}

	assert.Equal(t, []OrderRequest{
		{Symbol: "VTI", NotionalUSD: 70, PriceUSD: 250},
		{Symbol: "VXUS", NotionalUSD: 30},
	}, OrdersFromPlan(plan))

	assert.Empty(t, OrdersFromPlan(allocate.Plan{Status: allocate.StatusNoop}))
}
