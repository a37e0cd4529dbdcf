package edge

import (
	"errors"
	"testing"

	"github.com/gregtusar/ritarb/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ritUniverse = Universe{Legs: []string{"BULL", "BEAR"}, Composite: "RITC", FX: "USD"}

func snapshot(quotes ...models.Quote) models.Snapshot {
	return models.NewSnapshot(1, quotes)
}

func TestArbitrageConvertsWithConservativeFXSide(t *testing.T) {
	snap := snapshot(
		models.Quote{Ticker: "BULL", Bid: 50.00, Ask: 50.05},
		models.Quote{Ticker: "BEAR", Bid: 30.00, Ask: 30.05},
		models.Quote{Ticker: "RITC", Bid: 80.10, Ask: 80.20},
		models.Quote{Ticker: "USD", Bid: 1.0000, Ask: 1.0005},
	)

	e, err := Arbitrage(ritUniverse, snap)
	require.NoError(t, err)

	assert.Equal(t, "80", e.BasketBid.String())
	assert.Equal(t, "80.1", e.BasketAsk.String())
	assert.Equal(t, "80.2401", e.CompositeAskLocal.String())
	assert.Equal(t, "80.1", e.CompositeBidLocal.String())
	assert.Equal(t, "-0.2401", e.BasketRich.String())
	assert.Equal(t, "0", e.CompositeRich.String())
	assert.False(t, e.Anomalous())

	_, _, ok := Best(e, decimal.RequireFromString("0.07"))
	assert.False(t, ok)
}

func TestArbitrageWithoutFX(t *testing.T) {
	snap := snapshot(
		models.Quote{Ticker: "A", Bid: 10, Ask: 10.1},
		models.Quote{Ticker: "B", Bid: 20, Ask: 20.1},
		models.Quote{Ticker: "C", Bid: 30.5, Ask: 30.6},
	)
	e, err := Arbitrage(Universe{Legs: []string{"A", "B"}, Composite: "C"}, snap)
	require.NoError(t, err)

	assert.True(t, e.CompositeRich.Equal(decimal.RequireFromString("0.3")))
	dir, edge, ok := Best(e, decimal.RequireFromString("0.07"))
	require.True(t, ok)
	assert.Equal(t, models.DirectionETFRich, dir)
	assert.True(t, edge.Equal(e.CompositeRich))
}

func TestArbitrageMissingLegIsDataUnavailable(t *testing.T) {
	snap := snapshot(
		models.Quote{Ticker: "BULL", Bid: 50.00, Ask: 50.05},
		models.Quote{Ticker: "RITC", Bid: 80.10, Ask: 80.20},
		models.Quote{Ticker: "USD", Bid: 1.0000, Ask: 1.0005},
	)
	_, err := Arbitrage(ritUniverse, snap)
	assert.True(t, errors.Is(err, models.ErrDataUnavailable))
}

func TestAnomalousWhenBothEdgesPositive(t *testing.T) {
	snap := snapshot(
		models.Quote{Ticker: "A", Bid: 10, Ask: 9},
		models.Quote{Ticker: "C", Bid: 9.5, Ask: 9.6},
	)
	e, err := Arbitrage(Universe{Legs: []string{"A"}, Composite: "C"}, snap)
	require.NoError(t, err)
	assert.True(t, e.Anomalous())
}

func TestDecide(t *testing.T) {
	tests := []struct {
		diff float64
		want models.Decision
	}{
		{0.05, models.DecisionSell},
		{-0.05, models.DecisionBuy},
		{0.005, models.DecisionHold},
		{-0.01, models.DecisionHold},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Decide(tt.diff, 0.01), "diff %v", tt.diff)
	}
	assert.InDelta(t, 0.05, VolDiff(0.30, 0.25), 1e-12)
}
