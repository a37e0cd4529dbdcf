package trader

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gregtusar/ritarb/pkg/edge"
	"github.com/gregtusar/ritarb/pkg/execution"
	"github.com/gregtusar/ritarb/pkg/models"
	"github.com/gregtusar/ritarb/pkg/news"
	"github.com/gregtusar/ritarb/pkg/options"
	"github.com/gregtusar/ritarb/pkg/risk"
	"github.com/gregtusar/ritarb/pkg/sizing"
	"github.com/sirupsen/logrus"
)

type VolParams struct {
	Underlying string
	Contracts  []models.OptionContract
	Rate       float64
	// TicksPerYear converts the venue clock into years to expiry.
	TicksPerYear float64
	// DecisionBand is the |volDiff| below which a leg is held.
	DecisionBand         float64
	DefaultUnderlyingVol float64
	// HedgeTolerance is the share imbalance tolerated before rebalancing.
	HedgeTolerance int
}

// VolTrader runs the volatility arbitrage cycle on one underlying and its
// listed options.
type VolTrader struct {
	params VolParams
	limits risk.OptionLimits
	solver options.Solver
	kelly  *sizing.Kelly
	slicer *execution.Slicer
	logger *logrus.Logger
}

func NewVolTrader(params VolParams, limits risk.OptionLimits, solver options.Solver, kelly *sizing.Kelly, slicer *execution.Slicer, logger *logrus.Logger) *VolTrader {
	return &VolTrader{
		params: params,
		limits: limits,
		solver: solver,
		kelly:  kelly,
		slicer: slicer,
		logger: logger,
	}
}

func (t *VolTrader) Name() string { return "volatility" }

func (t *VolTrader) Tickers() []string {
	out := []string{t.params.Underlying}
	for _, c := range t.params.Contracts {
		out = append(out, c.Ticker)
	}
	return out
}

// RunCycle rebalances the delta hedge, closes holdings whose signal has
// flipped, then sizes one new trade on the most mispriced leg.
func (t *VolTrader) RunCycle(ctx context.Context, snap models.Snapshot, signals []float64) models.CycleReport {
	report := models.CycleReport{Strategy: t.Name(), Tick: snap.Tick, StartedAt: time.Now()}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	sub, err := snap.Subset(t.Tickers())
	if err != nil {
		report.Skipped = err.Error()
		return report
	}
	under := sub.Quotes[t.params.Underlying]
	spot := price(under)
	underVol := news.Latest(signals, t.params.DefaultUnderlyingVol)

	legs := t.buildLegs(sub, spot, underVol, &report)
	report.OptionLegs = append([]models.OptionLeg(nil), legs...)
	exp := exposure(legs, under.Position)

	t.rebalanceHedge(ctx, &exp, &report)
	t.closeFlipped(ctx, legs, &exp, &report)
	t.openBest(ctx, legs, spot, underVol, signals, &exp, &report)
	return report
}

func (t *VolTrader) buildLegs(snap models.Snapshot, spot, underVol float64, report *models.CycleReport) []models.OptionLeg {
	legs := make([]models.OptionLeg, 0, len(t.params.Contracts))
	for _, c := range t.params.Contracts {
		q := snap.Quotes[c.Ticker]
		leg := models.OptionLeg{
			Contract: c,
			Price:    price(q),
			Position: q.Position,
			Decision: models.DecisionHold,
		}
		tte := t.timeToExpiry(c, snap.Tick)

		iv, err := t.solver.ImpliedVol(options.Inputs{
			Price:        leg.Price,
			Underlying:   spot,
			Strike:       c.Strike,
			TimeToExpiry: tte,
			Rate:         t.params.Rate,
			Kind:         c.Kind,
		})
		if err != nil {
			report.AddError(fmt.Errorf("%s: %w", c.Ticker, err))
			if tte > 0 && underVol > 0 {
				leg.Delta = options.Delta(c.Kind, spot, c.Strike, tte, t.params.Rate, underVol)
			}
			legs = append(legs, leg)
			continue
		}

		leg.ImpliedVol = iv
		leg.Delta = options.Delta(c.Kind, spot, c.Strike, tte, t.params.Rate, iv)
		leg.Vega = options.Vega(spot, c.Strike, tte, t.params.Rate, iv)
		leg.VolDiff = edge.VolDiff(iv, underVol)
		leg.Decision = edge.Decide(leg.VolDiff, t.params.DecisionBand)
		legs = append(legs, leg)
	}
	return legs
}

// rebalanceHedge moves the stock toward minus the options' share delta,
// within the stock limit.
func (t *VolTrader) rebalanceHedge(ctx context.Context, exp *risk.Exposure, report *models.CycleReport) {
	target := -int(math.Round(exp.OptionDelta))
	diff := target - exp.Stock
	if abs(diff) <= t.params.HedgeTolerance {
		return
	}
	sized := t.limits.ResizeHedge(diff, exp.Stock)
	if sized == 0 {
		return
	}
	fill, err := t.slicer.SubmitSigned(ctx, t.params.Underlying, sized)
	exp.Stock += fill.Side.Sign() * fill.Filled
	report.SizedTrades = append(report.SizedTrades, models.SizedTrade{
		Ticker:    t.params.Underlying,
		Side:      fill.Side,
		Requested: abs(diff),
		Sized:     abs(sized),
		Filled:    fill.Filled,
		Note:      "delta hedge rebalance",
	})
	if err != nil {
		report.AddError(err)
	}
}

// closeFlipped trades out of holdings whose decision now points the other way.
func (t *VolTrader) closeFlipped(ctx context.Context, legs []models.OptionLeg, exp *risk.Exposure, report *models.CycleReport) {
	for i, leg := range legs {
		flipped := (leg.Position > 0 && leg.Decision == models.DecisionSell) ||
			(leg.Position < 0 && leg.Decision == models.DecisionBuy)
		if !flipped {
			continue
		}
		legs[i].Position += t.trade(ctx, leg, -leg.Position, exp, report, "close flipped holding")
	}
}

func (t *VolTrader) openBest(ctx context.Context, legs []models.OptionLeg, spot, underVol float64, signals []float64, exp *risk.Exposure, report *models.CycleReport) {
	best := -1
	for i, leg := range legs {
		if leg.Decision == models.DecisionHold {
			continue
		}
		if best < 0 || math.Abs(leg.VolDiff) > math.Abs(legs[best].VolDiff) {
			best = i
		}
	}
	if best < 0 {
		return
	}
	leg := legs[best]

	res, err := t.kelly.Size(sizing.Input{
		VolDiff:       leg.VolDiff,
		OptionPrice:   leg.Price,
		ImpliedVol:    leg.ImpliedVol,
		Underlying:    spot,
		Strike:        leg.Contract.Strike,
		TimeToExpiry:  t.timeToExpiry(leg.Contract, report.Tick),
		Rate:          t.params.Rate,
		UnderlyingVol: underVol,
		Budget:        t.limits.Gross - exp.OptGross,
		Signals:       signals,
	})
	if err != nil {
		report.AddError(fmt.Errorf("%s sizing: %w", leg.Ticker(), err))
		return
	}

	t.logger.WithFields(logrus.Fields{
		"ticker":    leg.Ticker(),
		"vol_diff":  leg.VolDiff,
		"win_prob":  res.WinProb,
		"fraction":  res.SafeFraction,
		"contracts": res.Contracts,
	}).Info("Kelly sizing")

	if res.Contracts == 0 {
		return
	}
	t.trade(ctx, leg, res.Contracts, exp, report, "kelly")
}

// trade runs contracts on leg through the risk pipeline, submits the option
// order and then hedges whatever filled. It returns the signed contracts
// filled.
func (t *VolTrader) trade(ctx context.Context, leg models.OptionLeg, contracts int, exp *risk.Exposure, report *models.CycleReport, note string) int {
	proposal := risk.Proposal{
		Contracts:  contracts,
		Position:   leg.Position,
		Multiplier: leg.Contract.Multiplier,
		Delta:      leg.Delta,
		NetSign:    leg.Contract.Kind.NetSign(),
	}
	out := t.limits.Apply(proposal, *exp)

	trade := models.SizedTrade{
		Ticker:    leg.Ticker(),
		Side:      models.SideFor(contracts),
		Requested: abs(contracts),
		Sized:     abs(out.Proposal.Contracts),
		Note:      note,
	}
	if out.Proposal.Contracts == 0 {
		trade.Note = fmt.Sprintf("%s: zeroed by %s limit", note, out.Stage)
		if out.Aborted {
			trade.Note = fmt.Sprintf("%s: aborted by %s limit", note, out.Stage)
		}
		report.SizedTrades = append(report.SizedTrades, trade)
		return 0
	}

	fill, err := t.slicer.SubmitSigned(ctx, leg.Ticker(), out.Proposal.Contracts)
	trade.Filled = fill.Filled
	report.SizedTrades = append(report.SizedTrades, trade)
	if err != nil {
		report.AddError(err)
	}
	if fill.Filled == 0 {
		return 0
	}

	done := out.Proposal.WithContracts(fill.Side.Sign() * fill.Filled)
	exp.OptGross += abs(leg.Position+done.Contracts) - abs(leg.Position)
	exp.OptNet += done.NetSign * done.Contracts
	exp.OptionDelta += done.ShareDelta()

	hedge := done.Hedge()
	if hedge == 0 {
		return done.Contracts
	}
	hfill, err := t.slicer.SubmitSigned(ctx, t.params.Underlying, hedge)
	exp.Stock += hfill.Side.Sign() * hfill.Filled
	report.SizedTrades = append(report.SizedTrades, models.SizedTrade{
		Ticker:    t.params.Underlying,
		Side:      hfill.Side,
		Requested: abs(hedge),
		Sized:     abs(hedge),
		Filled:    hfill.Filled,
		Note:      "hedge " + leg.Ticker(),
	})
	if err != nil {
		report.AddError(err)
	}
	return done.Contracts
}

func (t *VolTrader) timeToExpiry(c models.OptionContract, tick int) float64 {
	if t.params.TicksPerYear <= 0 {
		return 0
	}
	return float64(c.ExpiryTick-tick) / t.params.TicksPerYear
}

func exposure(legs []models.OptionLeg, stock int) risk.Exposure {
	e := risk.Exposure{Stock: stock}
	for _, leg := range legs {
		e.OptGross += abs(leg.Position)
		e.OptNet += leg.Contract.Kind.NetSign() * leg.Position
		e.OptionDelta += leg.ShareDelta(leg.Position)
	}
	return e
}

// price prefers the last trade and falls back to the mid.
func price(q models.Quote) float64 {
	if q.Last > 0 {
		return q.Last
	}
	return q.Mid()
}
