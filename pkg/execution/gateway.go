// Package execution splits parent orders into venue-sized children.
package execution

import (
	"context"

	"github.com/gregtusar/ritarb/pkg/models"
)

// OrderGateway submits one order and blocks until the venue accepts or
// rejects it. Rejections should be *models.RejectedError.
type OrderGateway interface {
	SubmitOrder(ctx context.Context, req models.OrderRequest) error
}

// Converter performs an atomic creation (fromBasket) or redemption of the
// composite instrument.
type Converter interface {
	SubmitConversion(ctx context.Context, fromBasket bool, instrument string, qty int) error
}

// Clips are the venue's maximum child sizes.
type Clips struct {
	Equity     int
	Currency   int
	Option     int
	Conversion int
	Classes    map[string]models.InstrumentClass
	Overrides  map[string]int
}

func DefaultClips() Clips {
	return Clips{
		Equity:     10000,
		Currency:   2500000,
		Option:     100,
		Conversion: 10000,
	}
}

// For returns the clip for ticker. Unknown tickers are treated as equities.
func (c Clips) For(ticker string) int {
	if n, ok := c.Overrides[ticker]; ok && n > 0 {
		return n
	}
	switch c.Classes[ticker] {
	case models.ClassCurrency:
		return c.Currency
	case models.ClassOption:
		return c.Option
	}
	return c.Equity
}
