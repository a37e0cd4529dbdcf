package ledger

import (
	"context"
	"errors"

	"github.com/gregtusar/ritarb/pkg/execution"
	"github.com/gregtusar/ritarb/pkg/models"
)

// MarketCloser trades every remaining leg back with market orders.
type MarketCloser struct {
	slicer *execution.Slicer
}

func NewMarketCloser(slicer *execution.Slicer) *MarketCloser {
	return &MarketCloser{slicer: slicer}
}

func (c *MarketCloser) Name() string { return "market" }

func (c *MarketCloser) Eligible(models.ArbPosition, models.Inventory) bool { return false }

func (c *MarketCloser) Unwind(ctx context.Context, pos models.ArbPosition) (Progress, error) {
	return c.unwindLegs(ctx, pos.Remaining)
}

func (c *MarketCloser) unwindLegs(ctx context.Context, remaining map[string]int) (Progress, error) {
	progress := Progress{}
	var errs []error
	for _, t := range sortedTickers(remaining) {
		q := remaining[t]
		fill, err := c.slicer.SubmitSigned(ctx, t, -q)
		if fill.Filled > 0 {
			progress[t] = sign(q) * fill.Filled
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return progress, errors.Join(errs...)
}

// ConversionCloser flattens the basket/composite pair with the venue's
// creation and redemption converters, and anything left over (FX hedges,
// uneven partial fills) with market orders.
type ConversionCloser struct {
	converter execution.Converter
	market    *MarketCloser
	composite string
	legs      []string
	clip      int
}

func NewConversionCloser(converter execution.Converter, slicer *execution.Slicer, composite string, legs []string) *ConversionCloser {
	return &ConversionCloser{
		converter: converter,
		market:    NewMarketCloser(slicer),
		composite: composite,
		legs:      legs,
		clip:      slicer.Clips().Conversion,
	}
}

func (c *ConversionCloser) Name() string { return "conversion" }

// Eligible holds when inventory carries the composite and the offsetting
// basket legs for the position's convertible quantity: long composite against
// short legs for a redemption, long legs against a short composite for a
// creation.
func (c *ConversionCloser) Eligible(pos models.ArbPosition, inv models.Inventory) bool {
	q := c.convertible(pos.Direction, pos.Legs)
	if q == 0 {
		return false
	}
	s := compositeSign(pos.Direction)
	if s*inv[c.composite] < q {
		return false
	}
	for _, leg := range c.legs {
		if -s*inv[leg] < q {
			return false
		}
	}
	return true
}

func (c *ConversionCloser) Unwind(ctx context.Context, pos models.ArbPosition) (Progress, error) {
	progress := Progress{}
	s := compositeSign(pos.Direction)
	fromBasket := pos.Direction == models.DirectionETFRich

	for _, n := range execution.Slices(c.convertible(pos.Direction, pos.Remaining), c.clip) {
		if err := c.converter.SubmitConversion(ctx, fromBasket, c.composite, n); err != nil {
			return progress, err
		}
		progress[c.composite] += s * n
		for _, leg := range c.legs {
			progress[leg] -= s * n
		}
	}

	leftover := make(map[string]int, len(pos.Remaining))
	for t, q := range pos.Remaining {
		if rest := q - progress[t]; rest != 0 {
			leftover[t] = rest
		}
	}
	more, err := c.market.unwindLegs(ctx, leftover)
	for t, q := range more {
		progress[t] += q
	}
	return progress, err
}

// convertible is the quantity that can be converted as a unit: the composite
// leg and every basket leg on the opposite side, whichever is smallest.
func (c *ConversionCloser) convertible(dir models.Direction, legs map[string]int) int {
	s := compositeSign(dir)
	q := s * legs[c.composite]
	for _, leg := range c.legs {
		if v := -s * legs[leg]; v < q {
			q = v
		}
	}
	if q < 0 {
		return 0
	}
	return q
}

// compositeSign is +1 when the position is long the composite.
func compositeSign(dir models.Direction) int {
	if dir == models.DirectionBasketRich {
		return 1
	}
	return -1
}

func sign(v int) int {
	if v < 0 {
		return -1
	}
	return 1
}
