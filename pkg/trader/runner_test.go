package trader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gregtusar/ritarb/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMarket struct {
	snap models.Snapshot
	err  error
	ids  []string
}

func (m *stubMarket) GetSnapshot(_ context.Context, ids []string) (models.Snapshot, error) {
	m.ids = ids
	return m.snap, m.err
}

type stubNews struct {
	signals []float64
	err     error
}

func (n stubNews) NewsVolatilities(context.Context) ([]float64, error) {
	return n.signals, n.err
}

type stubStrategy struct {
	panics  bool
	signals []float64
}

func (s *stubStrategy) Name() string      { return "stub" }
func (s *stubStrategy) Tickers() []string { return []string{"A", "B"} }

func (s *stubStrategy) RunCycle(_ context.Context, snap models.Snapshot, signals []float64) models.CycleReport {
	if s.panics {
		panic("boom")
	}
	s.signals = signals
	return models.CycleReport{Strategy: s.Name(), Tick: snap.Tick}
}

type memRecorder struct {
	mu      sync.Mutex
	reports []models.CycleReport
}

func (r *memRecorder) RecordCycle(_ context.Context, report models.CycleReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return nil
}

func (r *memRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

func TestStepRunsStrategy(t *testing.T) {
	market := &stubMarket{snap: models.NewSnapshot(42, nil)}
	strat := &stubStrategy{}
	rec := &memRecorder{}
	r := NewRunner(strat, market, stubNews{signals: []float64{0.3}}, rec, time.Second, quietLogger())

	report := r.Step(context.Background())
	assert.Equal(t, 42, report.Tick)
	assert.Equal(t, []string{"A", "B"}, market.ids)
	assert.Equal(t, []float64{0.3}, strat.signals)
	assert.Equal(t, 1, rec.len())

	last, ok := r.LastReport()
	require.True(t, ok)
	assert.Equal(t, 42, last.Tick)
	assert.Equal(t, 1, r.Cycles())
}

func TestStepSkipsWithoutSnapshot(t *testing.T) {
	market := &stubMarket{err: models.ErrDataUnavailable}
	strat := &stubStrategy{}
	r := NewRunner(strat, market, nil, nil, time.Second, quietLogger())

	report := r.Step(context.Background())
	assert.Equal(t, models.ErrDataUnavailable.Error(), report.Skipped)
	assert.Nil(t, strat.signals)
	assert.Equal(t, 1, r.Cycles())
}

func TestStepIgnoresNewsFailure(t *testing.T) {
	strat := &stubStrategy{signals: []float64{1}}
	r := NewRunner(strat, &stubMarket{}, stubNews{err: errors.New("down")}, nil, time.Second, quietLogger())

	report := r.Step(context.Background())
	assert.Empty(t, report.Skipped)
	assert.Nil(t, strat.signals)
}

func TestStepRecoversPanic(t *testing.T) {
	rec := &memRecorder{}
	r := NewRunner(&stubStrategy{panics: true}, &stubMarket{}, nil, rec, time.Second, quietLogger())

	report := r.Step(context.Background())
	assert.Equal(t, "panic: boom", report.Skipped)
	assert.Equal(t, 1, rec.len())
}

func TestRunnerStartStop(t *testing.T) {
	rec := &memRecorder{}
	r := NewRunner(&stubStrategy{}, &stubMarket{}, nil, rec, 5*time.Millisecond, quietLogger())

	require.NoError(t, r.Start(context.Background()))
	assert.Error(t, r.Start(context.Background()))
	require.Eventually(t, func() bool { return rec.len() >= 2 }, time.Second, 5*time.Millisecond)
	r.Stop()
	r.Stop()

	n := rec.len()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, rec.len())
}

func TestRunnerRejectsZeroInterval(t *testing.T) {
	r := NewRunner(&stubStrategy{}, &stubMarket{}, nil, nil, 0, quietLogger())
	assert.Error(t, r.Start(context.Background()))
	r.Stop()
}
