package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func volLimits() OptionLimits {
	return OptionLimits{Gross: 2500, Net: 1000, Delta: 7000, Stock: 50000}
}

func call(contracts int) Proposal {
	return Proposal{Contracts: contracts, Multiplier: 100, Delta: 0.5, NetSign: 1}
}

func put(contracts int) Proposal {
	return Proposal{Contracts: contracts, Multiplier: 100, Delta: -0.5, NetSign: -1}
}

func TestPipelineShrinksForGross(t *testing.T) {
	out := volLimits().Apply(call(500), Exposure{OptGross: 2400})
	assert.False(t, out.Aborted)
	assert.Equal(t, 100, out.Proposal.Contracts)
	assert.Equal(t, -5000, out.Proposal.Hedge())
}

func TestPipelineShrinksForNet(t *testing.T) {
	out := volLimits().Apply(call(500), Exposure{OptGross: 900, OptNet: 900})
	assert.Equal(t, 100, out.Proposal.Contracts)

	// Long puts push net negative.
	out = volLimits().Apply(put(500), Exposure{OptGross: 900, OptNet: -900})
	assert.Equal(t, 100, out.Proposal.Contracts)

	// Selling calls from a long net book is unconstrained by net.
	lowDelta := Proposal{Contracts: -500, Multiplier: 100, Delta: 0.1, NetSign: 1}
	out = volLimits().Apply(lowDelta, Exposure{OptGross: 900, OptNet: 900})
	assert.Equal(t, -500, out.Proposal.Contracts)
}

func TestPipelineShrinksForDelta(t *testing.T) {
	out := volLimits().Apply(call(200), Exposure{OptionDelta: 2000})
	assert.False(t, out.Aborted)
	assert.Equal(t, 100, out.Proposal.Contracts)
}

func TestPipelineAbortsWhenDeltaForcesZero(t *testing.T) {
	out := volLimits().Apply(call(100), Exposure{OptionDelta: 7000})
	assert.True(t, out.Aborted)
	assert.Equal(t, "delta", out.Stage)
	assert.Equal(t, 0, out.Proposal.Contracts)
}

func TestPipelineAbortsWhenStockForcesZero(t *testing.T) {
	out := volLimits().Apply(call(10), Exposure{Stock: -50000})
	assert.True(t, out.Aborted)
	assert.Equal(t, "stock", out.Stage)
}

func TestPipelineGrossZeroIsNotAnAbort(t *testing.T) {
	out := volLimits().Apply(call(10), Exposure{OptGross: 2500})
	assert.False(t, out.Aborted)
	assert.Equal(t, "gross", out.Stage)
	assert.Equal(t, 0, out.Proposal.Contracts)
}

func TestPipelineIsIdempotentAndMonotonic(t *testing.T) {
	exposures := []Exposure{
		{},
		{OptGross: 2400, OptNet: 800, OptionDelta: 5000, Stock: -45000},
		{OptGross: 1200, OptNet: -950, OptionDelta: -6500, Stock: 49000},
	}
	for _, e := range exposures {
		for _, n := range []int{-2000, -300, -1, 0, 1, 300, 2000} {
			for _, p := range []Proposal{call(n), put(n)} {
				out := volLimits().Apply(p, e)
				got := out.Proposal.Contracts
				assert.LessOrEqual(t, abs(got), abs(n))
				assert.True(t, got == 0 || (got > 0) == (n > 0), "sign flip %d -> %d", n, got)

				again := volLimits().Apply(out.Proposal, e)
				assert.Equal(t, got, again.Proposal.Contracts)
			}
		}
	}
}

func TestResizeHedge(t *testing.T) {
	l := volLimits()
	assert.Equal(t, 5000, l.ResizeHedge(5000, 0))
	assert.Equal(t, 2000, l.ResizeHedge(5000, 48000))
	assert.Equal(t, -5000, l.ResizeHedge(-5000, 48000))
	assert.Equal(t, 0, l.ResizeHedge(100, 50000))
}
