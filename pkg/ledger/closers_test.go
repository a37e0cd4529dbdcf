package ledger

import (
	"context"
	"testing"

	"github.com/gregtusar/ritarb/pkg/execution"
	"github.com/gregtusar/ritarb/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConversionLedger(gw *fakeGateway, conv *fakeConverter) *Ledger {
	clips := execution.DefaultClips()
	clips.Conversion = 3000
	clips.Classes = map[string]models.InstrumentClass{"USD": models.ClassCurrency}
	slicer := execution.NewSlicer(gw, clips, quietLogger())
	closer := NewConversionCloser(conv, slicer, "RITC", []string{"BULL", "BEAR"})
	return New(closer, dec("0.02"), quietLogger())
}

func TestConversionEligibility(t *testing.T) {
	c := NewConversionCloser(&fakeConverter{}, execution.NewSlicer(&fakeGateway{}, execution.DefaultClips(), quietLogger()), "RITC", []string{"BULL", "BEAR"})
	pos := models.ArbPosition{Direction: models.DirectionBasketRich, Legs: basketRichLegs}

	assert.True(t, c.Eligible(pos, models.Inventory{"BULL": -5000, "BEAR": -6000, "RITC": 5000}))
	assert.False(t, c.Eligible(pos, models.Inventory{"BULL": -5000, "BEAR": -6000, "RITC": 4000}))
	assert.False(t, c.Eligible(pos, models.Inventory{"BULL": 0, "BEAR": -5000, "RITC": 5000}))

	etf := models.ArbPosition{Direction: models.DirectionETFRich, Legs: map[string]int{"BULL": 200, "BEAR": 200, "RITC": -200}}
	assert.True(t, c.Eligible(etf, models.Inventory{"BULL": 200, "BEAR": 300, "RITC": -200}))
	assert.False(t, c.Eligible(etf, models.Inventory{"BULL": 200, "BEAR": 300, "RITC": 0}))
}

func TestConvertibleInventoryClosesWithoutMeanReversion(t *testing.T) {
	gw := &fakeGateway{}
	conv := &fakeConverter{}
	l := newConversionLedger(gw, conv)
	pos, _ := l.Open(models.DirectionBasketRich, basketRichLegs, dec("0.30"))

	inv := models.Inventory{"BULL": -5000, "BEAR": -5000, "RITC": 5000}
	closing := l.Evaluate(edges("0.25", "-0.4"), inv)
	require.Equal(t, []string{pos.ID}, closing)
	assert.Equal(t, models.CloseReasonConvertible, l.Positions()[0].CloseReason)

	report := l.Unwind(context.Background())
	assert.Empty(t, report.Errors)
	assert.Equal(t, []string{pos.ID}, report.Closed)
	assert.Equal(t, []conversion{{false, "RITC", 3000}, {false, "RITC", 2000}}, conv.calls)
	assert.Empty(t, gw.orders)
	assert.Equal(t, models.Inventory{"BULL": 5000, "BEAR": 5000, "RITC": -5000}, report.Moved)
}

func TestConversionUnwindsLeftoverLegsAtMarket(t *testing.T) {
	gw := &fakeGateway{}
	conv := &fakeConverter{}
	l := newConversionLedger(gw, conv)
	legs := map[string]int{"BULL": 1000, "BEAR": 800, "RITC": -1000, "USD": 80000}
	pos, _ := l.Open(models.DirectionETFRich, legs, dec("0.2"))
	require.NoError(t, l.MarkClosing(pos.ID, models.CloseReasonMeanReversion))

	report := l.Unwind(context.Background())
	assert.Empty(t, report.Errors)
	assert.Equal(t, []conversion{{true, "RITC", 800}}, conv.calls)

	require.Len(t, gw.orders, 3)
	assert.Equal(t, models.OrderRequest{Ticker: "BULL", Side: models.OrderSideSell, Type: models.OrderTypeMarket, Quantity: 200}, gw.orders[0])
	assert.Equal(t, models.OrderRequest{Ticker: "RITC", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: 200}, gw.orders[1])
	assert.Equal(t, models.OrderRequest{Ticker: "USD", Side: models.OrderSideSell, Type: models.OrderTypeMarket, Quantity: 80000}, gw.orders[2])
	assert.Equal(t, 0, l.Len())
}

func TestRejectedConversionStaysClosing(t *testing.T) {
	gw := &fakeGateway{}
	conv := &fakeConverter{fail: true}
	l := newConversionLedger(gw, conv)
	pos, _ := l.Open(models.DirectionBasketRich, basketRichLegs, dec("0.30"))
	require.NoError(t, l.MarkClosing(pos.ID, models.CloseReasonConvertible))

	report := l.Unwind(context.Background())
	require.Len(t, report.Errors, 1)
	assert.Empty(t, gw.orders)

	got := l.Positions()
	require.Len(t, got, 1)
	assert.Equal(t, models.PositionClosing, got[0].State)
	assert.Equal(t, basketRichLegs, got[0].Remaining)

	conv.fail = false
	report = l.Unwind(context.Background())
	assert.Empty(t, report.Errors)
	assert.Equal(t, []string{pos.ID}, report.Closed)
}
