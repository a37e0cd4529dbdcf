package models

import (
	"fmt"
	"time"
)

type InstrumentClass string

const (
	ClassEquity   InstrumentClass = "equity"
	ClassETF      InstrumentClass = "etf"
	ClassCurrency InstrumentClass = "currency"
	ClassOption   InstrumentClass = "option"
)

// Quote is one tracked instrument as seen in a single decision cycle.
type Quote struct {
	Ticker     string
	Bid        float64
	Ask        float64
	Last       float64
	Position   int
	Currency   string
	Multiplier int
}

func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

func (q Quote) valid() bool {
	return q.Bid > 0 && q.Ask > 0
}

// Snapshot is an immutable view of the tracked universe for one cycle.
type Snapshot struct {
	Tick      int
	Quotes    map[string]Quote
	Timestamp time.Time
}

func NewSnapshot(tick int, quotes []Quote) Snapshot {
	m := make(map[string]Quote, len(quotes))
	for _, q := range quotes {
		m[q.Ticker] = q
	}
	return Snapshot{Tick: tick, Quotes: m, Timestamp: time.Now()}
}

// Quote returns the quote for ticker, or ErrDataUnavailable when it is missing
// or has no two-sided market.
func (s Snapshot) Quote(ticker string) (Quote, error) {
	q, ok := s.Quotes[ticker]
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s missing", ErrDataUnavailable, ticker)
	}
	if !q.valid() {
		return Quote{}, fmt.Errorf("%w: %s has no two-sided quote", ErrDataUnavailable, ticker)
	}
	return q, nil
}

// Subset returns a snapshot holding exactly ids. Any missing or one-sided
// instrument fails the whole subset.
func (s Snapshot) Subset(ids []string) (Snapshot, error) {
	out := Snapshot{Tick: s.Tick, Quotes: make(map[string]Quote, len(ids)), Timestamp: s.Timestamp}
	for _, id := range ids {
		q, err := s.Quote(id)
		if err != nil {
			return Snapshot{}, err
		}
		out.Quotes[id] = q
	}
	return out, nil
}

func (s Snapshot) Inventory() Inventory {
	inv := make(Inventory, len(s.Quotes))
	for t, q := range s.Quotes {
		inv[t] = q.Position
	}
	return inv
}

// Inventory is signed position per ticker.
type Inventory map[string]int

func (inv Inventory) Clone() Inventory {
	out := make(Inventory, len(inv))
	for k, v := range inv {
		out[k] = v
	}
	return out
}

// Apply books a fill of qty on side into the inventory.
func (inv Inventory) Apply(ticker string, side OrderSide, qty int) {
	inv[ticker] += side.Sign() * qty
}

func (inv Inventory) Gross(tickers ...string) int {
	total := 0
	for _, t := range tickers {
		total += abs(inv[t])
	}
	return total
}

func (inv Inventory) Net(tickers ...string) int {
	total := 0
	for _, t := range tickers {
		total += inv[t]
	}
	return total
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
