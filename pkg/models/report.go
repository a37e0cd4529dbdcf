package models

import "time"

// SizedTrade records one sizing decision and what the slicer achieved.
type SizedTrade struct {
	Ticker    string    `json:"ticker"`
	Side      OrderSide `json:"side"`
	Requested int       `json:"requested"`
	Sized     int       `json:"sized"`
	Filled    int       `json:"filled"`
	Note      string    `json:"note,omitempty"`
}

type LedgerDelta struct {
	Opened  []string `json:"opened,omitempty"`
	Closing []string `json:"closing,omitempty"`
	Closed  []string `json:"closed,omitempty"`
}

func (d LedgerDelta) Empty() bool {
	return len(d.Opened) == 0 && len(d.Closing) == 0 && len(d.Closed) == 0
}

// CycleReport is everything one decision cycle observed and did.
type CycleReport struct {
	Strategy    string        `json:"strategy"`
	Tick        int           `json:"tick"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Edges       *ArbEdges     `json:"edges,omitempty"`
	OptionLegs  []OptionLeg   `json:"option_legs,omitempty"`
	SizedTrades []SizedTrade  `json:"sized_trades,omitempty"`
	LedgerDelta LedgerDelta   `json:"ledger_delta"`
	Skipped     string        `json:"skipped,omitempty"`
	Errors      []string      `json:"errors,omitempty"`
}

func (r *CycleReport) AddError(err error) {
	r.Errors = append(r.Errors, err.Error())
}
