package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotSubset(t *testing.T) {
	snap := NewSnapshot(7, []Quote{
		{Ticker: "BULL", Bid: 10, Ask: 10.1, Position: 3},
		{Ticker: "BEAR", Bid: 5, Ask: 5.1},
		{Ticker: "HALT", Bid: 0, Ask: 4},
	})

	sub, err := snap.Subset([]string{"BULL", "BEAR"})
	require.NoError(t, err)
	assert.Equal(t, 7, sub.Tick)
	assert.Len(t, sub.Quotes, 2)
	assert.Equal(t, Inventory{"BULL": 3, "BEAR": 0}, sub.Inventory())

	_, err = snap.Subset([]string{"BULL", "RITC"})
	assert.ErrorIs(t, err, ErrDataUnavailable)

	_, err = snap.Subset([]string{"HALT"})
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestInventory(t *testing.T) {
	inv := Inventory{"BULL": -5000, "BEAR": -5000, "RITC": 4000}
	assert.Equal(t, 14000, inv.Gross("BULL", "BEAR", "RITC"))
	assert.Equal(t, -6000, inv.Net("BULL", "BEAR", "RITC"))

	c := inv.Clone()
	c.Apply("RITC", OrderSideBuy, 1000)
	c.Apply("BULL", OrderSideSell, 10)
	assert.Equal(t, 5000, c["RITC"])
	assert.Equal(t, -5010, c["BULL"])
	assert.Equal(t, 4000, inv["RITC"])
}

func TestSides(t *testing.T) {
	assert.Equal(t, OrderSideSell, SideFor(-1))
	assert.Equal(t, OrderSideBuy, SideFor(3))
	assert.Equal(t, -1, OrderSideSell.Sign())
	assert.Equal(t, OrderSideBuy, OrderSideSell.Opposite())
}

func TestArbEdges(t *testing.T) {
	e := ArbEdges{BasketRich: decimal.RequireFromString("0.1"), CompositeRich: decimal.RequireFromString("-0.2")}
	assert.False(t, e.Anomalous())
	assert.Equal(t, "0.1", e.For(DirectionBasketRich).String())
	assert.Equal(t, "-0.2", e.For(DirectionETFRich).String())

	e.CompositeRich = decimal.RequireFromString("0.01")
	assert.True(t, e.Anomalous())
}

func TestPositionCloneIsDeep(t *testing.T) {
	p := ArbPosition{ID: "a", Legs: map[string]int{"BULL": 1}, Remaining: map[string]int{"BULL": 1}}
	c := p.Clone()
	c.Legs["BULL"] = 9
	c.Remaining["BULL"] = 9
	assert.Equal(t, 1, p.Legs["BULL"])
	assert.Equal(t, 1, p.Remaining["BULL"])
}

func TestRejectedError(t *testing.T) {
	var err error = &RejectedError{Ticker: "RITC", Reason: "limit"}
	assert.True(t, errors.Is(err, ErrOrderRejected))
	assert.Contains(t, err.Error(), "RITC")
}
