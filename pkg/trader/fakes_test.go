package trader

import (
	"context"
	"io"

	"github.com/gregtusar/ritarb/pkg/execution"
	"github.com/gregtusar/ritarb/pkg/models"
	"github.com/gregtusar/ritarb/pkg/options"
	"github.com/sirupsen/logrus"
)

type fakeGateway struct {
	orders []models.OrderRequest
	reject map[string]bool
}

func (g *fakeGateway) SubmitOrder(_ context.Context, req models.OrderRequest) error {
	if g.reject[req.Ticker] {
		return &models.RejectedError{Ticker: req.Ticker, Reason: "rejected by test"}
	}
	g.orders = append(g.orders, req)
	return nil
}

func (g *fakeGateway) net(ticker string) int {
	n := 0
	for _, o := range g.orders {
		if o.Ticker == ticker {
			n += o.Side.Sign() * o.Quantity
		}
	}
	return n
}

func (g *fakeGateway) count(ticker string) int {
	n := 0
	for _, o := range g.orders {
		if o.Ticker == ticker {
			n++
		}
	}
	return n
}

// fakeSolver returns a fixed implied volatility per strike.
type fakeSolver struct {
	vols map[float64]float64
}

func (s fakeSolver) ImpliedVol(in options.Inputs) (float64, error) {
	v, ok := s.vols[in.Strike]
	if !ok {
		return 0, options.ErrNoConvergence
	}
	return v, nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testClips() execution.Clips {
	c := execution.DefaultClips()
	c.Classes = map[string]models.InstrumentClass{
		"USD":    models.ClassCurrency,
		"RTM50C": models.ClassOption,
		"RTM50P": models.ClassOption,
		"RTM55C": models.ClassOption,
	}
	return c
}
