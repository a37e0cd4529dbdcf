// Package edge measures composite-vs-basket and option-vs-underlying mispricing.
package edge

import (
	"fmt"

	"github.com/gregtusar/ritarb/pkg/models"
	"github.com/shopspring/decimal"
)

// Universe names the instruments of one cash/ETF arbitrage.
type Universe struct {
	Legs      []string
	Composite string
	// FX is the price of one unit of the composite's currency in leg currency.
	// Empty when composite and legs share a currency.
	FX string
}

// Tickers lists every instrument the snapshot must carry for this universe.
func (u Universe) Tickers() []string {
	out := append([]string{}, u.Legs...)
	out = append(out, u.Composite)
	if u.FX != "" {
		out = append(out, u.FX)
	}
	return out
}

// Arbitrage computes both basket edges from snap. The composite quote is
// converted with the conservative side of the FX spread: bid with the FX bid,
// ask with the FX ask.
func Arbitrage(u Universe, snap models.Snapshot) (models.ArbEdges, error) {
	if len(u.Legs) == 0 {
		return models.ArbEdges{}, fmt.Errorf("%w: no basket legs", models.ErrDataUnavailable)
	}

	basketBid := decimal.Zero
	basketAsk := decimal.Zero
	for _, leg := range u.Legs {
		q, err := snap.Quote(leg)
		if err != nil {
			return models.ArbEdges{}, err
		}
		basketBid = basketBid.Add(decimal.NewFromFloat(q.Bid))
		basketAsk = basketAsk.Add(decimal.NewFromFloat(q.Ask))
	}

	comp, err := snap.Quote(u.Composite)
	if err != nil {
		return models.ArbEdges{}, err
	}
	compBid := decimal.NewFromFloat(comp.Bid)
	compAsk := decimal.NewFromFloat(comp.Ask)

	if u.FX != "" {
		fx, err := snap.Quote(u.FX)
		if err != nil {
			return models.ArbEdges{}, err
		}
		compBid = compBid.Mul(decimal.NewFromFloat(fx.Bid))
		compAsk = compAsk.Mul(decimal.NewFromFloat(fx.Ask))
	}

	return models.ArbEdges{
		BasketBid:         basketBid,
		BasketAsk:         basketAsk,
		CompositeBidLocal: compBid,
		CompositeAskLocal: compAsk,
		BasketRich:        basketBid.Sub(compAsk),
		CompositeRich:     compBid.Sub(basketAsk),
	}, nil
}

// Best returns the actionable direction and its edge, or ok=false when neither
// edge reaches threshold. Callers must reject anomalous edges first.
func Best(e models.ArbEdges, threshold decimal.Decimal) (models.Direction, decimal.Decimal, bool) {
	switch {
	case e.BasketRich.GreaterThanOrEqual(threshold):
		return models.DirectionBasketRich, e.BasketRich, true
	case e.CompositeRich.GreaterThanOrEqual(threshold):
		return models.DirectionETFRich, e.CompositeRich, true
	}
	return "", decimal.Zero, false
}

// VolDiff is optionIV minus underlyingIV. Positive means the option is rich.
func VolDiff(optionIV, underlyingIV float64) float64 {
	return optionIV - underlyingIV
}

// Decide tags a volatility differential. Differences inside the dead band
// are held.
func Decide(volDiff, deadBand float64) models.Decision {
	switch {
	case volDiff > deadBand:
		return models.DecisionSell
	case volDiff < -deadBand:
		return models.DecisionBuy
	}
	return models.DecisionHold
}
