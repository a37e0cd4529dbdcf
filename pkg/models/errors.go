package models

import (
	"errors"
	"fmt"
)

var (
	ErrDataUnavailable = errors.New("market data unavailable")
	ErrInvalidNumeric  = errors.New("invalid numeric input")
	ErrOrderRejected   = errors.New("order rejected")
)

// RejectedError carries the venue's reason for refusing an order or conversion.
type RejectedError struct {
	Ticker string
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("order rejected for %s: %s", e.Ticker, e.Reason)
}

func (e *RejectedError) Unwrap() error {
	return ErrOrderRejected
}
