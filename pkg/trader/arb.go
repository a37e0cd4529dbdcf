package trader

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gregtusar/ritarb/pkg/edge"
	"github.com/gregtusar/ritarb/pkg/execution"
	"github.com/gregtusar/ritarb/pkg/ledger"
	"github.com/gregtusar/ritarb/pkg/models"
	"github.com/gregtusar/ritarb/pkg/risk"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type ArbParams struct {
	Universe       edge.Universe
	OrderQty       int
	EntryThreshold decimal.Decimal
	// HedgeFX offsets the composite's foreign-currency notional in the FX
	// instrument and tracks it as a ledger leg.
	HedgeFX bool
}

// ArbTrader runs the cash/ETF arbitrage cycle.
type ArbTrader struct {
	params ArbParams
	limits risk.ArbLimits
	slicer *execution.Slicer
	ledger *ledger.Ledger
	logger *logrus.Logger
}

func NewArbTrader(params ArbParams, limits risk.ArbLimits, slicer *execution.Slicer, l *ledger.Ledger, logger *logrus.Logger) *ArbTrader {
	return &ArbTrader{
		params: params,
		limits: limits,
		slicer: slicer,
		ledger: l,
		logger: logger,
	}
}

func (t *ArbTrader) Name() string { return "arbitrage" }

func (t *ArbTrader) Tickers() []string { return t.params.Universe.Tickers() }

func (t *ArbTrader) Positions() []models.ArbPosition { return t.ledger.Positions() }

// RunCycle closes what has mean-reverted or become convertible, then opens
// at most one new position.
func (t *ArbTrader) RunCycle(ctx context.Context, snap models.Snapshot, _ []float64) models.CycleReport {
	report := models.CycleReport{Strategy: t.Name(), Tick: snap.Tick, StartedAt: time.Now()}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	sub, err := snap.Subset(t.Tickers())
	if err != nil {
		report.Skipped = err.Error()
		return report
	}
	edges, err := edge.Arbitrage(t.params.Universe, sub)
	if err != nil {
		report.Skipped = err.Error()
		return report
	}
	report.Edges = &edges

	if edges.Anomalous() {
		t.logger.WithFields(logrus.Fields{
			"basket_rich":    edges.BasketRich.String(),
			"composite_rich": edges.CompositeRich.String(),
		}).Warn("Both arbitrage edges positive, skipping cycle")
		report.Skipped = "anomalous edges: both directions positive"
		return report
	}

	inv := sub.Inventory()

	report.LedgerDelta.Closing = t.ledger.Evaluate(edges, inv)
	unwind := t.ledger.Unwind(ctx)
	report.LedgerDelta.Closed = unwind.Closed
	for _, err := range unwind.Errors {
		report.AddError(err)
	}
	for tk, q := range unwind.Moved {
		inv[tk] += q
	}

	t.enter(ctx, edges, sub, inv, &report)

	t.logger.WithFields(logrus.Fields{
		"tick":           snap.Tick,
		"basket_rich":    edges.BasketRich.StringFixed(4),
		"composite_rich": edges.CompositeRich.StringFixed(4),
		"open_positions": t.ledger.Len(),
	}).Debug("Arbitrage cycle complete")
	return report
}

func (t *ArbTrader) enter(ctx context.Context, edges models.ArbEdges, snap models.Snapshot, inv models.Inventory, report *models.CycleReport) {
	dir, entryEdge, ok := edge.Best(edges, t.params.EntryThreshold)
	if !ok {
		return
	}

	perUnit := t.unitLegs(dir)
	order := t.legOrder(inv, perUnit)
	qty := t.limits.Resize(inv, perUnit, order, t.params.OrderQty)

	t.logger.WithFields(logrus.Fields{
		"direction": dir,
		"edge":      entryEdge.StringFixed(4),
		"requested": t.params.OrderQty,
		"sized":     qty,
	}).Info("Arbitrage opportunity")

	if qty == 0 {
		report.SizedTrades = append(report.SizedTrades, models.SizedTrade{
			Ticker:    t.params.Universe.Composite,
			Side:      models.SideFor(perUnit[t.params.Universe.Composite]),
			Requested: t.params.OrderQty,
			Note:      "risk limits leave no room",
		})
		return
	}

	filled := make(map[string]int, len(perUnit)+1)
	complete := true
	for _, tk := range order {
		side := models.SideFor(perUnit[tk])
		fill, err := t.slicer.Submit(ctx, tk, side, qty, models.OrderTypeMarket)
		filled[tk] = side.Sign() * fill.Filled
		inv.Apply(tk, side, fill.Filled)
		report.SizedTrades = append(report.SizedTrades, models.SizedTrade{
			Ticker:    tk,
			Side:      side,
			Requested: t.params.OrderQty,
			Sized:     qty,
			Filled:    fill.Filled,
		})
		if err != nil {
			report.AddError(err)
			complete = false
			break
		}
	}

	if complete && t.params.HedgeFX && t.params.Universe.FX != "" {
		t.hedgeFX(ctx, dir, snap, filled, inv, report)
	}

	pos, err := t.ledger.Open(dir, filled, entryEdge)
	if err != nil {
		return
	}
	report.LedgerDelta.Opened = append(report.LedgerDelta.Opened, pos.ID)

	if !complete {
		if err := t.ledger.MarkClosing(pos.ID, models.CloseReasonEntryFailed); err != nil {
			report.AddError(err)
			return
		}
		report.LedgerDelta.Closing = append(report.LedgerDelta.Closing, pos.ID)
	}
}

// hedgeFX trades the composite's notional in the FX instrument: buying the
// composite spends foreign currency, so the hedge buys it back, and vice versa.
func (t *ArbTrader) hedgeFX(ctx context.Context, dir models.Direction, snap models.Snapshot, filled map[string]int, inv models.Inventory, report *models.CycleReport) {
	comp := snap.Quotes[t.params.Universe.Composite]
	held := filled[t.params.Universe.Composite]
	price := comp.Bid
	if held > 0 {
		price = comp.Ask
	}
	notional := int(math.Round(float64(held) * price))
	if notional == 0 {
		return
	}

	fx := t.params.Universe.FX
	fill, err := t.slicer.SubmitSigned(ctx, fx, notional)
	filled[fx] = fill.Side.Sign() * fill.Filled
	inv.Apply(fx, fill.Side, fill.Filled)
	report.SizedTrades = append(report.SizedTrades, models.SizedTrade{
		Ticker:    fx,
		Side:      fill.Side,
		Requested: abs(notional),
		Sized:     abs(notional),
		Filled:    fill.Filled,
		Note:      fmt.Sprintf("fx hedge for %s", dir),
	})
	if err != nil {
		report.AddError(err)
	}
}

// unitLegs is the signed share quantity per arbitrage unit for dir.
func (t *ArbTrader) unitLegs(dir models.Direction) map[string]int {
	legSign := -1
	if dir == models.DirectionETFRich {
		legSign = 1
	}
	out := make(map[string]int, len(t.params.Universe.Legs)+1)
	for _, leg := range t.params.Universe.Legs {
		out[leg] = legSign
	}
	out[t.params.Universe.Composite] = -legSign
	return out
}

// legOrder is the submission order of an entry. A rejected leg stops the
// entry, so every prefix of it must leave the book inside the limits.
func (t *ArbTrader) legOrder(inv models.Inventory, perUnit map[string]int) []string {
	order := t.limits.EntryOrder(inv, perUnit)
	seen := make(map[string]bool, len(order))
	for _, tk := range order {
		seen[tk] = true
	}
	for _, tk := range append(append([]string{}, t.params.Universe.Legs...), t.params.Universe.Composite) {
		if !seen[tk] {
			order = append(order, tk)
		}
	}
	return order
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
