package models

type OptionKind string

const (
	OptionCall OptionKind = "call"
	OptionPut  OptionKind = "put"
)

// NetSign is the contribution of one long contract to net option exposure.
// Puts count against calls.
func (k OptionKind) NetSign() int {
	if k == OptionPut {
		return -1
	}
	return 1
}

type Decision string

const (
	DecisionBuy  Decision = "BUY"
	DecisionSell Decision = "SELL"
	DecisionHold Decision = "HOLD"
)

type OptionContract struct {
	Ticker     string     `mapstructure:"ticker" json:"ticker"`
	Strike     float64    `mapstructure:"strike" json:"strike"`
	Kind       OptionKind `mapstructure:"kind" json:"kind"`
	Multiplier int        `mapstructure:"multiplier" json:"multiplier"`
	ExpiryTick int        `mapstructure:"expiry_tick" json:"expiry_tick"`
}

// OptionLeg is rebuilt every cycle from the snapshot and never persisted.
type OptionLeg struct {
	Contract   OptionContract `json:"contract"`
	Price      float64        `json:"price"`
	Delta      float64        `json:"delta"`
	Vega       float64        `json:"vega"`
	ImpliedVol float64        `json:"implied_vol"`
	VolDiff    float64        `json:"vol_diff"`
	Position   int            `json:"position"`
	Decision   Decision       `json:"decision"`
}

func (l OptionLeg) Ticker() string {
	return l.Contract.Ticker
}

// ShareDelta is the share-equivalent delta of n contracts of this leg.
func (l OptionLeg) ShareDelta(n int) float64 {
	return float64(n*l.Contract.Multiplier) * l.Delta
}
