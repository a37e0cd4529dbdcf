package trader

import (
	"context"
	"math"
	"testing"

	"github.com/gregtusar/ritarb/pkg/execution"
	"github.com/gregtusar/ritarb/pkg/models"
	"github.com/gregtusar/ritarb/pkg/risk"
	"github.com/gregtusar/ritarb/pkg/sizing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rtm50c = models.OptionContract{Ticker: "RTM50C", Strike: 50, Kind: models.OptionCall, Multiplier: 100, ExpiryTick: 300}

func volParams() VolParams {
	return VolParams{
		Underlying:           "RTM",
		Contracts:            []models.OptionContract{rtm50c},
		TicksPerYear:         3600,
		DecisionBand:         0.02,
		DefaultUnderlyingVol: 0.20,
		HedgeTolerance:       100,
	}
}

func volLimits() risk.OptionLimits {
	return risk.OptionLimits{Gross: 2500, Net: 1000, Delta: 7000, Stock: 50000}
}

func newVolTrader(gw *fakeGateway, vols map[float64]float64) *VolTrader {
	slicer := execution.NewSlicer(gw, testClips(), quietLogger())
	kelly := sizing.NewKelly(sizing.DefaultWinModel(), 0.5)
	return NewVolTrader(volParams(), volLimits(), fakeSolver{vols: vols}, kelly, slicer, quietLogger())
}

func volSnapshot(stock, calls int) models.Snapshot {
	return models.NewSnapshot(0, []models.Quote{
		{Ticker: "RTM", Bid: 49.99, Ask: 50.01, Last: 50, Position: stock},
		{Ticker: "RTM50C", Bid: 1.75, Ask: 1.85, Last: 1.80, Position: calls},
	})
}

func TestVolSellsRichOptionWithinLimits(t *testing.T) {
	gw := &fakeGateway{}
	tr := newVolTrader(gw, map[float64]float64{50: 0.40})

	report := tr.RunCycle(context.Background(), volSnapshot(0, 0), []float64{0.25})
	require.Empty(t, report.Errors)
	require.Empty(t, report.Skipped)
	require.Len(t, report.OptionLegs, 1)

	leg := report.OptionLegs[0]
	assert.Equal(t, models.DecisionSell, leg.Decision)
	assert.InDelta(t, 0.15, leg.VolDiff, 1e-12)
	assert.Greater(t, leg.Delta, 0.5)

	sold := -gw.net("RTM50C")
	assert.Greater(t, sold, 0)
	assert.LessOrEqual(t, sold, 1000)
	assert.LessOrEqual(t, float64(sold*100)*leg.Delta, 7000.0)
	for _, o := range gw.orders {
		if o.Ticker == "RTM50C" {
			assert.LessOrEqual(t, o.Quantity, 100)
		}
	}

	hedge := int(math.Round(float64(sold*100) * leg.Delta))
	assert.Equal(t, hedge, gw.net("RTM"))

	require.Len(t, report.SizedTrades, 2)
	assert.Equal(t, "kelly", report.SizedTrades[0].Note)
	assert.Equal(t, models.OrderSideSell, report.SizedTrades[0].Side)
	assert.Equal(t, models.OrderSideBuy, report.SizedTrades[1].Side)
}

func TestVolSolverFailureHolds(t *testing.T) {
	gw := &fakeGateway{}
	tr := newVolTrader(gw, nil)

	report := tr.RunCycle(context.Background(), volSnapshot(0, 0), []float64{0.25})
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "RTM50C")
	require.Len(t, report.OptionLegs, 1)
	assert.Equal(t, models.DecisionHold, report.OptionLegs[0].Decision)
	assert.Greater(t, report.OptionLegs[0].Delta, 0.0)
	assert.Empty(t, gw.orders)
}

func TestVolHoldsInsideDecisionBand(t *testing.T) {
	gw := &fakeGateway{}
	tr := newVolTrader(gw, map[float64]float64{50: 0.26})

	report := tr.RunCycle(context.Background(), volSnapshot(0, 0), []float64{0.25})
	require.Empty(t, report.Errors)
	assert.Equal(t, models.DecisionHold, report.OptionLegs[0].Decision)
	assert.Empty(t, gw.orders)
}

func TestVolClosesFlippedHolding(t *testing.T) {
	gw := &fakeGateway{}
	tr := newVolTrader(gw, map[float64]float64{50: 0.40})

	report := tr.RunCycle(context.Background(), volSnapshot(0, 50), []float64{0.25})
	require.Empty(t, report.Errors)
	require.GreaterOrEqual(t, len(report.SizedTrades), 3)

	rebalance := report.SizedTrades[0]
	assert.Equal(t, "RTM", rebalance.Ticker)
	assert.Equal(t, models.OrderSideSell, rebalance.Side)
	assert.Equal(t, "delta hedge rebalance", rebalance.Note)

	closing := report.SizedTrades[1]
	assert.Equal(t, "RTM50C", closing.Ticker)
	assert.Equal(t, models.OrderSideSell, closing.Side)
	assert.Equal(t, 50, closing.Filled)
	assert.Equal(t, "close flipped holding", closing.Note)

	assert.Equal(t, models.OrderSideBuy, report.SizedTrades[2].Side)
	assert.Equal(t, rebalance.Filled, report.SizedTrades[2].Filled)
	assert.Less(t, gw.net("RTM50C"), -50)
}

func TestVolMissingUnderlyingSkips(t *testing.T) {
	gw := &fakeGateway{}
	tr := newVolTrader(gw, map[float64]float64{50: 0.40})

	snap := volSnapshot(0, 0)
	delete(snap.Quotes, "RTM")
	report := tr.RunCycle(context.Background(), snap, nil)
	assert.NotEmpty(t, report.Skipped)
	assert.Empty(t, report.OptionLegs)
	assert.Empty(t, gw.orders)
}
