package sizing

import (
	"errors"
	"math"
	"testing"

	"github.com/gregtusar/ritarb/pkg/models"
	"github.com/gregtusar/ritarb/pkg/options"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func atmInput(volDiff float64) Input {
	const iv = 0.30
	return Input{
		VolDiff:       volDiff,
		OptionPrice:   options.Price(models.OptionCall, 50, 50, 1.0/12, 0, iv),
		ImpliedVol:    iv,
		Underlying:    50,
		Strike:        50,
		TimeToExpiry:  1.0 / 12,
		UnderlyingVol: iv - volDiff,
		Budget:        1000,
	}
}

func TestKellyZeroPriceFailsClosed(t *testing.T) {
	in := atmInput(0.10)
	in.OptionPrice = 0

	res, err := NewKelly(DefaultWinModel(), 0.5).Size(in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidNumeric))
	assert.Equal(t, 0, res.Contracts)
}

func TestKellyNaNInputsFailClosed(t *testing.T) {
	k := NewKelly(DefaultWinModel(), 0.5)
	for _, mutate := range []func(*Input){
		func(in *Input) { in.VolDiff = math.NaN() },
		func(in *Input) { in.ImpliedVol = math.NaN() },
		func(in *Input) { in.OptionPrice = math.Inf(1) },
		func(in *Input) { in.TimeToExpiry = -1 },
	} {
		in := atmInput(0.10)
		mutate(&in)
		res, err := k.Size(in)
		assert.Error(t, err)
		assert.Equal(t, 0, res.Contracts)
	}
}

func TestKellySignFollowsNegativeVolDiff(t *testing.T) {
	k := NewKelly(DefaultWinModel(), 0.5)

	rich, err := k.Size(atmInput(0.10))
	require.NoError(t, err)
	assert.Less(t, rich.Contracts, 0)
	assert.Equal(t, -int(math.Floor(rich.SafeFraction*1000)), rich.Contracts)

	cheap, err := k.Size(atmInput(-0.10))
	require.NoError(t, err)
	assert.Greater(t, cheap.Contracts, 0)
}

func TestKellyAppliesSafetyMultiplier(t *testing.T) {
	res, err := NewKelly(DefaultWinModel(), 0.5).Size(atmInput(0.10))
	require.NoError(t, err)

	// volDiff 0.10 is capped at 0.06 against a 0.05 StdDev, Φ(1.2).
	assert.InDelta(t, 0.8849, res.WinProb, 1e-4)
	want := (res.WinProb*res.RateOfReturn - (1 - res.WinProb)) / res.RateOfReturn
	assert.InDelta(t, want, res.RawFraction, 1e-12)
	assert.InDelta(t, res.RawFraction*0.5, res.SafeFraction, 1e-12)
	assert.Less(t, res.SafeFraction, res.RawFraction)
}

func TestKellyUnfavourableOddsSizeZero(t *testing.T) {
	// A small mispricing does not pay for the losing probability.
	res, err := NewKelly(DefaultWinModel(), 0.5).Size(atmInput(0.01))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Contracts)
	assert.LessOrEqual(t, res.RawFraction, 0.0)
}

func TestKellyNoBudgetNoTrade(t *testing.T) {
	in := atmInput(0.10)
	in.Budget = 0
	res, err := NewKelly(DefaultWinModel(), 0.5).Size(in)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Contracts)
}
