package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	// DirectionBasketRich is short the basket legs, long the composite.
	DirectionBasketRich Direction = "basket_rich"
	// DirectionETFRich is long the basket legs, short the composite.
	DirectionETFRich Direction = "etf_rich"
)

type PositionState string

const (
	PositionOpen    PositionState = "OPEN"
	PositionClosing PositionState = "CLOSING"
	PositionClosed  PositionState = "CLOSED"
)

type CloseReason string

const (
	CloseReasonMeanReversion CloseReason = "mean_reversion"
	CloseReasonConvertible   CloseReason = "convertible"
	CloseReasonEntryFailed   CloseReason = "entry_failed"
)

// ArbEdges are the two signed mispricings of the composite against its basket,
// in the basket's currency.
type ArbEdges struct {
	BasketBid         decimal.Decimal `json:"basket_bid"`
	BasketAsk         decimal.Decimal `json:"basket_ask"`
	CompositeBidLocal decimal.Decimal `json:"composite_bid_local"`
	CompositeAskLocal decimal.Decimal `json:"composite_ask_local"`
	BasketRich        decimal.Decimal `json:"basket_rich"`
	CompositeRich     decimal.Decimal `json:"composite_rich"`
}

func (e ArbEdges) For(d Direction) decimal.Decimal {
	if d == DirectionETFRich {
		return e.CompositeRich
	}
	return e.BasketRich
}

// Anomalous reports both directions positive at once, which sane spreads
// cannot produce.
func (e ArbEdges) Anomalous() bool {
	return e.BasketRich.IsPositive() && e.CompositeRich.IsPositive()
}

// ArbPosition is a strategy-opened arbitrage position. Legs hold the signed
// quantities acquired at entry; Remaining holds what is still to be unwound
// while the position is closing.
type ArbPosition struct {
	ID          string          `json:"id"`
	Direction   Direction       `json:"direction"`
	Legs        map[string]int  `json:"legs"`
	Remaining   map[string]int  `json:"remaining,omitempty"`
	EntryEdge   decimal.Decimal `json:"entry_edge"`
	State       PositionState   `json:"state"`
	CloseReason CloseReason     `json:"close_reason,omitempty"`
	OpenedAt    time.Time       `json:"opened_at"`
	ClosingAt   *time.Time      `json:"closing_at,omitempty"`
	ClosedAt    *time.Time      `json:"closed_at,omitempty"`
}

// Clone returns a deep copy safe to hand out of the ledger.
func (p ArbPosition) Clone() ArbPosition {
	out := p
	out.Legs = cloneLegs(p.Legs)
	out.Remaining = cloneLegs(p.Remaining)
	if p.ClosingAt != nil {
		t := *p.ClosingAt
		out.ClosingAt = &t
	}
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		out.ClosedAt = &t
	}
	return out
}

func cloneLegs(legs map[string]int) map[string]int {
	if legs == nil {
		return nil
	}
	out := make(map[string]int, len(legs))
	for k, v := range legs {
		out[k] = v
	}
	return out
}
