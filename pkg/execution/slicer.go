package execution

import (
	"context"
	"fmt"

	"github.com/gregtusar/ritarb/pkg/models"
	"github.com/sirupsen/logrus"
)

// Slices splits qty into ceil(qty/clip) children, each at most clip.
func Slices(qty, clip int) []int {
	if qty <= 0 || clip <= 0 {
		return nil
	}
	out := make([]int, 0, (qty+clip-1)/clip)
	for qty > 0 {
		n := clip
		if qty < clip {
			n = qty
		}
		out = append(out, n)
		qty -= n
	}
	return out
}

type Slicer struct {
	gateway OrderGateway
	clips   Clips
	logger  *logrus.Logger
}

func NewSlicer(gateway OrderGateway, clips Clips, logger *logrus.Logger) *Slicer {
	return &Slicer{gateway: gateway, clips: clips, logger: logger}
}

func (s *Slicer) Clips() Clips {
	return s.clips
}

// Submit sends qty on side as consecutive children. The first failed child
// stops the order; the returned Fill reports what was accepted before it.
// Nothing is retried.
func (s *Slicer) Submit(ctx context.Context, ticker string, side models.OrderSide, qty int, kind models.OrderType) (models.Fill, error) {
	fill := models.Fill{Ticker: ticker, Side: side, Requested: qty}
	children := Slices(qty, s.clips.For(ticker))
	for i, n := range children {
		if err := ctx.Err(); err != nil {
			return fill, err
		}
		err := s.gateway.SubmitOrder(ctx, models.OrderRequest{
			Ticker:   ticker,
			Side:     side,
			Type:     kind,
			Quantity: n,
		})
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"ticker": ticker,
				"side":   side,
				"filled": fill.Filled,
				"wanted": qty,
			}).Warn("Child order failed, aborting remaining slices")
			return fill, fmt.Errorf("%s %s child %d of %d: %w", side, ticker, i+1, len(children), err)
		}
		fill.Filled += n
		fill.Children++
	}
	s.logger.WithFields(logrus.Fields{
		"ticker":   ticker,
		"side":     side,
		"quantity": qty,
		"children": fill.Children,
	}).Debug("Order submitted")
	return fill, nil
}

// SubmitSigned routes a signed quantity to the matching side.
func (s *Slicer) SubmitSigned(ctx context.Context, ticker string, signedQty int) (models.Fill, error) {
	side := models.SideFor(signedQty)
	qty := signedQty
	if qty < 0 {
		qty = -qty
	}
	return s.Submit(ctx, ticker, side, qty, models.OrderTypeMarket)
}
