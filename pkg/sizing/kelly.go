// Package sizing turns a volatility mispricing into a signed contract count
// using a fractional Kelly criterion.
package sizing

import (
	"fmt"
	"math"

	"github.com/gregtusar/ritarb/pkg/models"
	"github.com/gregtusar/ritarb/pkg/options"
)

type Input struct {
	VolDiff       float64
	OptionPrice   float64
	ImpliedVol    float64
	Underlying    float64
	Strike        float64
	TimeToExpiry  float64
	Rate          float64
	UnderlyingVol float64
	Budget        int
	Signals       []float64
}

type Result struct {
	Contracts    int
	WinProb      float64
	RateOfReturn float64
	RawFraction  float64
	SafeFraction float64
	Vega         float64
}

type Kelly struct {
	Win WinModel
	// Safety scales the raw Kelly fraction; full Kelly is never used.
	Safety float64
}

func NewKelly(win WinModel, safety float64) *Kelly {
	return &Kelly{Win: win, Safety: safety}
}

// Size returns safeFraction × budget × sign(−volDiff). Any invalid numeric
// input yields zero contracts and an error wrapping models.ErrInvalidNumeric.
func (k *Kelly) Size(in Input) (Result, error) {
	if err := validate(in); err != nil {
		return Result{}, err
	}
	if in.Budget <= 0 || in.VolDiff == 0 {
		return Result{}, nil
	}

	res := Result{}
	res.Vega = options.Vega(in.Underlying, in.Strike, in.TimeToExpiry, in.Rate, in.ImpliedVol)
	profitMargin := -in.VolDiff * res.Vega
	res.RateOfReturn = math.Abs(profitMargin) / in.OptionPrice
	if !(res.RateOfReturn > 0) || math.IsInf(res.RateOfReturn, 0) {
		return Result{}, fmt.Errorf("%w: rate of return %v", models.ErrInvalidNumeric, res.RateOfReturn)
	}

	p := k.Win.Probability(in.VolDiff, in.UnderlyingVol, in.Signals)
	res.WinProb = p
	res.RawFraction = (p*res.RateOfReturn - (1 - p)) / res.RateOfReturn
	if !(res.RawFraction > 0) {
		return res, nil
	}
	res.SafeFraction = math.Min(res.RawFraction*k.Safety, 1)

	n := int(math.Floor(res.SafeFraction * float64(in.Budget)))
	if in.VolDiff > 0 {
		n = -n
	}
	res.Contracts = n
	return res, nil
}

func validate(in Input) error {
	checks := []struct {
		name string
		v    float64
	}{
		{"option price", in.OptionPrice},
		{"implied vol", in.ImpliedVol},
		{"underlying price", in.Underlying},
		{"strike", in.Strike},
		{"time to expiry", in.TimeToExpiry},
	}
	for _, c := range checks {
		if !(c.v > 0) || math.IsInf(c.v, 0) {
			return fmt.Errorf("%w: %s %v", models.ErrInvalidNumeric, c.name, c.v)
		}
	}
	if math.IsNaN(in.VolDiff) || math.IsInf(in.VolDiff, 0) {
		return fmt.Errorf("%w: vol diff %v", models.ErrInvalidNumeric, in.VolDiff)
	}
	return nil
}
