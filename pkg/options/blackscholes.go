// Package options holds the Black-Scholes primitives used to read option
// quotes: d1, delta, vega and an implied volatility solver.
package options

import (
	"errors"
	"fmt"
	"math"

	"github.com/gregtusar/ritarb/pkg/models"
)

// ErrNoConvergence is returned when the solver cannot find a volatility that
// reprices the option.
var ErrNoConvergence = fmt.Errorf("%w: implied volatility did not converge", models.ErrInvalidNumeric)

// Inputs describes one European option quote.
type Inputs struct {
	Price        float64
	Underlying   float64
	Strike       float64
	TimeToExpiry float64
	Rate         float64
	Kind         models.OptionKind
}

func (in Inputs) validate() error {
	switch {
	case !finitePositive(in.Price):
		return fmt.Errorf("%w: option price %v", models.ErrInvalidNumeric, in.Price)
	case !finitePositive(in.Underlying):
		return fmt.Errorf("%w: underlying price %v", models.ErrInvalidNumeric, in.Underlying)
	case !finitePositive(in.Strike):
		return fmt.Errorf("%w: strike %v", models.ErrInvalidNumeric, in.Strike)
	case !finitePositive(in.TimeToExpiry):
		return fmt.Errorf("%w: time to expiry %v", models.ErrInvalidNumeric, in.TimeToExpiry)
	}
	return nil
}

func finitePositive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func NormPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

func NormCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

func D1(s, k, t, r, sigma float64) float64 {
	return (math.Log(s/k) + (r+0.5*sigma*sigma)*t) / (sigma * math.Sqrt(t))
}

// Price is the Black-Scholes value of a European option.
func Price(kind models.OptionKind, s, k, t, r, sigma float64) float64 {
	d1 := D1(s, k, t, r, sigma)
	d2 := d1 - sigma*math.Sqrt(t)
	disc := k * math.Exp(-r*t)
	if kind == models.OptionPut {
		return disc*NormCDF(-d2) - s*NormCDF(-d1)
	}
	return s*NormCDF(d1) - disc*NormCDF(d2)
}

func Delta(kind models.OptionKind, s, k, t, r, sigma float64) float64 {
	d1 := D1(s, k, t, r, sigma)
	if kind == models.OptionPut {
		return NormCDF(d1) - 1
	}
	return NormCDF(d1)
}

// Vega is dPrice/dSigma per unit of volatility: S·φ(d1)·√T.
func Vega(s, k, t, r, sigma float64) float64 {
	return s * NormPDF(D1(s, k, t, r, sigma)) * math.Sqrt(t)
}

// Solver turns an option quote into an implied volatility.
type Solver interface {
	ImpliedVol(in Inputs) (float64, error)
}

// NewtonSolver runs Newton-Raphson on the Black-Scholes price.
type NewtonSolver struct {
	Guess     float64
	Tolerance float64
	MaxIter   int
}

func NewNewtonSolver() *NewtonSolver {
	return &NewtonSolver{Guess: 0.2, Tolerance: 1e-6, MaxIter: 100}
}

func (n *NewtonSolver) ImpliedVol(in Inputs) (float64, error) {
	if err := in.validate(); err != nil {
		return 0, err
	}

	sigma := n.Guess
	for i := 0; i < n.MaxIter; i++ {
		diff := Price(in.Kind, in.Underlying, in.Strike, in.TimeToExpiry, in.Rate, sigma) - in.Price
		if math.Abs(diff) < n.Tolerance {
			return sigma, nil
		}
		vega := Vega(in.Underlying, in.Strike, in.TimeToExpiry, in.Rate, sigma)
		if vega < 1e-10 || math.IsNaN(vega) {
			break
		}
		sigma -= diff / vega
		if sigma <= 0 {
			sigma = n.Tolerance
		}
		if sigma > 5 {
			sigma = 5
		}
	}
	return 0, ErrNoConvergence
}

// IsNoConvergence reports whether err came from a solver giving up.
func IsNoConvergence(err error) bool {
	return errors.Is(err, ErrNoConvergence)
}
