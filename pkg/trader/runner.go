// Package trader runs the arbitrage and volatility strategies one decision
// cycle at a time.
package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gregtusar/ritarb/pkg/models"
	"github.com/sirupsen/logrus"
)

// Strategy is one decision cycle over a snapshot. RunCycle never returns an
// error: failures are recorded in the report and degrade to no trade.
type Strategy interface {
	Name() string
	Tickers() []string
	RunCycle(ctx context.Context, snap models.Snapshot, signals []float64) models.CycleReport
}

// MarketData returns an all-or-nothing snapshot of ids.
type MarketData interface {
	GetSnapshot(ctx context.Context, ids []string) (models.Snapshot, error)
}

type NewsSource interface {
	NewsVolatilities(ctx context.Context) ([]float64, error)
}

type Recorder interface {
	RecordCycle(ctx context.Context, report models.CycleReport) error
}

// Runner drives a strategy on a fixed interval from a single goroutine, so
// cycles never overlap.
type Runner struct {
	strategy Strategy
	market   MarketData
	news     NewsSource
	recorder Recorder
	interval time.Duration
	logger   *logrus.Logger

	mu      sync.RWMutex
	last    *models.CycleReport
	cycles  int
	started bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewRunner(strategy Strategy, market MarketData, news NewsSource, recorder Recorder, interval time.Duration, logger *logrus.Logger) *Runner {
	return &Runner{
		strategy: strategy,
		market:   market,
		news:     news,
		recorder: recorder,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (r *Runner) Strategy() Strategy {
	return r.strategy
}

func (r *Runner) Start(ctx context.Context) error {
	if r.interval <= 0 {
		return fmt.Errorf("invalid cycle interval %s", r.interval)
	}
	r.logger.WithFields(logrus.Fields{
		"strategy": r.strategy.Name(),
		"interval": r.interval.String(),
	}).Info("Starting trader")

	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return fmt.Errorf("trader already started")
	}
	r.started = true
	r.mu.Unlock()

	go r.loop(ctx)
	return nil
}

// Stop ends the loop and waits for an in-flight cycle to finish.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		r.logger.Info("Stopping trader")
		close(r.stopCh)
	})

	r.mu.RLock()
	started := r.started
	r.mu.RUnlock()
	if started {
		<-r.doneCh
	}
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.Step(ctx)
		}
	}
}

// Step runs one full cycle: snapshot, news, strategy, journal.
func (r *Runner) Step(ctx context.Context) (report models.CycleReport) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.WithField("panic", p).Error("Cycle panicked")
			report = models.CycleReport{
				Strategy:  r.strategy.Name(),
				StartedAt: time.Now(),
				Skipped:   fmt.Sprintf("panic: %v", p),
			}
		}
		r.finish(ctx, report)
	}()

	snap, err := r.market.GetSnapshot(ctx, r.strategy.Tickers())
	if err != nil {
		r.logger.WithError(err).Warn("Snapshot unavailable, skipping cycle")
		return models.CycleReport{
			Strategy:  r.strategy.Name(),
			StartedAt: time.Now(),
			Skipped:   err.Error(),
		}
	}

	var signals []float64
	if r.news != nil {
		signals, err = r.news.NewsVolatilities(ctx)
		if err != nil {
			r.logger.WithError(err).Warn("News unavailable, using base parameters")
			signals = nil
		}
	}

	return r.strategy.RunCycle(ctx, snap, signals)
}

func (r *Runner) finish(ctx context.Context, report models.CycleReport) {
	r.mu.Lock()
	r.last = &report
	r.cycles++
	r.mu.Unlock()

	entry := r.logger.WithFields(logrus.Fields{
		"strategy": report.Strategy,
		"tick":     report.Tick,
		"trades":   len(report.SizedTrades),
		"opened":   len(report.LedgerDelta.Opened),
		"closed":   len(report.LedgerDelta.Closed),
	})
	switch {
	case report.Skipped != "":
		entry.WithField("reason", report.Skipped).Debug("Cycle skipped")
	case len(report.Errors) > 0:
		entry.WithField("errors", report.Errors).Warn("Cycle completed with errors")
	case len(report.SizedTrades) > 0 || !report.LedgerDelta.Empty():
		entry.Info("Cycle traded")
	}

	if r.recorder != nil {
		if err := r.recorder.RecordCycle(ctx, report); err != nil {
			r.logger.WithError(err).Error("Failed to journal cycle")
		}
	}
}

// LastReport returns the most recent cycle report, if any.
func (r *Runner) LastReport() (models.CycleReport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.last == nil {
		return models.CycleReport{}, false
	}
	return *r.last, true
}

func (r *Runner) Cycles() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cycles
}
