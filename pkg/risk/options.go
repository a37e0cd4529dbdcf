package risk

import "math"

type OptionLimits struct {
	Gross int
	Net   int
	Delta int
	Stock int
}

// Exposure is the book the option pipeline resizes against.
type Exposure struct {
	OptGross    int
	OptNet      int
	OptionDelta float64
	Stock       int
}

// Proposal is a signed contract count on one option leg.
type Proposal struct {
	Contracts  int
	Position   int
	Multiplier int
	Delta      float64
	// NetSign is +1 for calls and -1 for puts.
	NetSign int
}

func (p Proposal) WithContracts(n int) Proposal {
	p.Contracts = n
	return p
}

func (p Proposal) ShareDelta() float64 {
	return float64(p.Contracts*p.Multiplier) * p.Delta
}

// Hedge is the share order that flattens the proposal's delta.
func (p Proposal) Hedge() int {
	return -int(math.Round(p.ShareDelta()))
}

// Stage is one pure resize step.
type Stage struct {
	Name string
	// Abortive stages cancel the trade when they force it to zero.
	Abortive bool
	Resize   func(p Proposal, e Exposure, l OptionLimits) Proposal
}

// Outcome is the pipeline result. Stage names the step that zeroed the
// proposal, if any.
type Outcome struct {
	Proposal Proposal
	Aborted  bool
	Stage    string
}

// Pipeline runs gross, net, delta then stock limits in that order.
var Pipeline = []Stage{
	{Name: "gross", Resize: ResizeGross},
	{Name: "net", Resize: ResizeNet},
	{Name: "delta", Abortive: true, Resize: ResizeDelta},
	{Name: "stock", Abortive: true, Resize: ResizeStock},
}

// Apply runs every stage of Pipeline. Re-applying to a compliant proposal
// returns it unchanged.
func (l OptionLimits) Apply(p Proposal, e Exposure) Outcome {
	for _, st := range Pipeline {
		before := p.Contracts
		p = st.Resize(p, e, l)
		if before != 0 && p.Contracts == 0 {
			return Outcome{Proposal: p, Aborted: st.Abortive, Stage: st.Name}
		}
		if p.Contracts == 0 {
			return Outcome{Proposal: p, Stage: st.Name}
		}
	}
	return Outcome{Proposal: p}
}

func ResizeGross(p Proposal, e Exposure, l OptionLimits) Proposal {
	rest := e.OptGross - abs(p.Position)
	gross := func(c int) float64 { return float64(rest + abs(p.Position+c)) }
	current := gross(0)
	return p.WithContracts(shrink(p.Contracts, func(c int) bool {
		return notWorse(gross(c), current, float64(l.Gross))
	}))
}

func ResizeNet(p Proposal, e Exposure, l OptionLimits) Proposal {
	net := func(c int) float64 { return absf(float64(e.OptNet + p.NetSign*c)) }
	current := net(0)
	return p.WithContracts(shrink(p.Contracts, func(c int) bool {
		return notWorse(net(c), current, float64(l.Net))
	}))
}

func ResizeDelta(p Proposal, e Exposure, l OptionLimits) Proposal {
	delta := func(c int) float64 { return absf(e.OptionDelta + p.WithContracts(c).ShareDelta()) }
	current := delta(0)
	return p.WithContracts(shrink(p.Contracts, func(c int) bool {
		return notWorse(delta(c), current, float64(l.Delta))
	}))
}

func ResizeStock(p Proposal, e Exposure, l OptionLimits) Proposal {
	stock := func(c int) float64 { return float64(abs(e.Stock + p.WithContracts(c).Hedge())) }
	current := stock(0)
	return p.WithContracts(shrink(p.Contracts, func(c int) bool {
		return notWorse(stock(c), current, float64(l.Stock))
	}))
}

// ResizeHedge clips a signed share order so the stock position stays within
// the stock limit, never flipping its direction.
func (l OptionLimits) ResizeHedge(shares, stock int) int {
	current := float64(abs(stock))
	return shrink(shares, func(q int) bool {
		return notWorse(float64(abs(stock+q)), current, float64(l.Stock))
	})
}
