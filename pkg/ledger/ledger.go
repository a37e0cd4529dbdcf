// Package ledger owns the arbitrage positions a strategy has opened and
// drives each one through OPEN, CLOSING and CLOSED.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gregtusar/ritarb/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrUnknownPosition   = errors.New("position not found")
	ErrInvalidTransition = errors.New("invalid position state transition")
	ErrEmptyPosition     = errors.New("position has no legs")
)

// Progress is the signed quantity of Remaining that an unwind consumed, per
// ticker. It has the same sign as the remaining leg it reduces.
type Progress map[string]int

// Closer unwinds a closing position. Implementations must not mutate pos.
type Closer interface {
	Name() string
	// Eligible reports inventory that allows pos to be unwound whatever the
	// current edge.
	Eligible(pos models.ArbPosition, inv models.Inventory) bool
	Unwind(ctx context.Context, pos models.ArbPosition) (Progress, error)
}

// UnwindReport summarises one Unwind pass. Moved is the inventory change the
// accepted unwind orders produced.
type UnwindReport struct {
	Closed []string
	Moved  models.Inventory
	Errors []error
}

// Ledger is owned by the decision cycle. Reads from other goroutines go
// through Positions, which returns copies.
type Ledger struct {
	mu            sync.RWMutex
	positions     []*models.ArbPosition
	closer        Closer
	meanReversion decimal.Decimal
	logger        *logrus.Logger
	now           func() time.Time
}

func New(closer Closer, meanReversion decimal.Decimal, logger *logrus.Logger) *Ledger {
	return &Ledger{
		closer:        closer,
		meanReversion: meanReversion,
		logger:        logger,
		now:           time.Now,
	}
}

// Open records a new position. Zero legs are dropped; a position with no
// non-zero leg is refused.
func (l *Ledger) Open(dir models.Direction, legs map[string]int, entryEdge decimal.Decimal) (models.ArbPosition, error) {
	clean := make(map[string]int, len(legs))
	for t, q := range legs {
		if q != 0 {
			clean[t] = q
		}
	}
	if len(clean) == 0 {
		return models.ArbPosition{}, ErrEmptyPosition
	}

	pos := &models.ArbPosition{
		ID:        uuid.NewString(),
		Direction: dir,
		Legs:      clean,
		EntryEdge: entryEdge,
		State:     models.PositionOpen,
		OpenedAt:  l.now(),
	}

	l.mu.Lock()
	l.positions = append(l.positions, pos)
	l.mu.Unlock()

	l.logger.WithFields(logrus.Fields{
		"position_id": pos.ID,
		"direction":   dir,
		"legs":        clean,
		"entry_edge":  entryEdge.String(),
	}).Info("Opened arbitrage position")
	return pos.Clone(), nil
}

// MarkClosing moves an OPEN position to CLOSING and arms its unwind.
func (l *Ledger) MarkClosing(id string, reason models.CloseReason) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.find(id)
	if pos == nil {
		return fmt.Errorf("%w: %s", ErrUnknownPosition, id)
	}
	if pos.State != models.PositionOpen {
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, pos.State)
	}
	now := l.now()
	pos.State = models.PositionClosing
	pos.CloseReason = reason
	pos.ClosingAt = &now
	pos.Remaining = make(map[string]int, len(pos.Legs))
	for t, q := range pos.Legs {
		pos.Remaining[t] = q
	}
	return nil
}

// Remove drops a CLOSED position from tracking.
func (l *Ledger) Remove(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, pos := range l.positions {
		if pos.ID != id {
			continue
		}
		if pos.State != models.PositionClosed {
			return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, id, pos.State)
		}
		l.positions = append(l.positions[:i], l.positions[i+1:]...)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownPosition, id)
}

// Evaluate moves OPEN positions to CLOSING when their direction's edge has
// decayed to the mean-reversion threshold or the closer reports eligible
// inventory. It returns the ids that transitioned.
func (l *Ledger) Evaluate(edges models.ArbEdges, inv models.Inventory) []string {
	var closing []string
	for _, pos := range l.Positions() {
		if pos.State != models.PositionOpen {
			continue
		}
		var reason models.CloseReason
		current := edges.For(pos.Direction)
		switch {
		case current.LessThanOrEqual(l.meanReversion):
			reason = models.CloseReasonMeanReversion
		case l.closer.Eligible(pos, inv):
			reason = models.CloseReasonConvertible
		default:
			continue
		}
		if err := l.MarkClosing(pos.ID, reason); err != nil {
			l.logger.WithError(err).WithField("position_id", pos.ID).Error("Failed to mark position closing")
			continue
		}
		l.logger.WithFields(logrus.Fields{
			"position_id": pos.ID,
			"direction":   pos.Direction,
			"edge":        current.String(),
			"entry_edge":  pos.EntryEdge.String(),
			"reason":      reason,
		}).Info("Position closing")
		closing = append(closing, pos.ID)
	}
	return closing
}

// Unwind asks the closer to flatten every CLOSING position. A position is
// closed and removed only once nothing remains; any rejection leaves it
// CLOSING with the unfilled remainder for the next cycle.
func (l *Ledger) Unwind(ctx context.Context) UnwindReport {
	report := UnwindReport{Moved: models.Inventory{}}
	for _, pos := range l.Positions() {
		if pos.State != models.PositionClosing {
			continue
		}
		progress, err := l.closer.Unwind(ctx, pos)
		for t, q := range progress {
			report.Moved[t] -= q
		}
		closed := l.apply(pos.ID, progress)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("unwind %s: %w", pos.ID, err))
			l.logger.WithError(err).WithFields(logrus.Fields{
				"position_id": pos.ID,
				"closer":      l.closer.Name(),
			}).Warn("Unwind incomplete, position stays closing")
		}
		if closed {
			if err := l.Remove(pos.ID); err != nil {
				report.Errors = append(report.Errors, err)
				continue
			}
			report.Closed = append(report.Closed, pos.ID)
			l.logger.WithFields(logrus.Fields{
				"position_id": pos.ID,
				"closer":      l.closer.Name(),
			}).Info("Position closed")
		}
	}
	return report
}

func (l *Ledger) apply(id string, progress Progress) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.find(id)
	if pos == nil {
		return false
	}
	for t, q := range progress {
		pos.Remaining[t] -= q
		if pos.Remaining[t] == 0 {
			delete(pos.Remaining, t)
		}
	}
	if len(pos.Remaining) > 0 {
		return false
	}
	now := l.now()
	pos.State = models.PositionClosed
	pos.ClosedAt = &now
	return true
}

// Positions returns copies of every tracked position in opening order.
func (l *Ledger) Positions() []models.ArbPosition {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.ArbPosition, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p.Clone())
	}
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

func (l *Ledger) find(id string) *models.ArbPosition {
	for _, p := range l.positions {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func sortedTickers(legs map[string]int) []string {
	out := make([]string, 0, len(legs))
	for t := range legs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
