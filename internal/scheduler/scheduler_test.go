package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketVault/internal/model"
	"MarketVault/internal/recorder"
	"MarketVault/internal/syncer"
)

type fakeRunner struct {
	calls   atomic.Int32
	gate    chan struct{}
	gotOpts syncer.Options
}

func (f *fakeRunner) Sync(ctx context.Context, symbols []model.Symbol, opts syncer.Options) (*model.BatchResult, error) {
	f.calls.Add(1)
	f.gotOpts = opts
	if f.gate != nil {
		<-f.gate
	}
	res := model.NewBatchResult()
	for i, sym := range symbols {
		if i == 0 {
			res.Fail(sym, model.ErrFetch)
			continue
		}
		res.Succeed(sym, model.ActionIncremental)
	}
	return res, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeNotifier) Send(text string) error { return f.SendWithRetry(context.Background(), text, 0) }

func (f *fakeNotifier) SendWithRetry(_ context.Context, text string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

type memRecorder struct {
	recorder.NoopRecorder
	mu   sync.Mutex
	runs []recorder.RunRecord
}

func (m *memRecorder) RecordRun(run *recorder.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append([]recorder.RunRecord{*run}, m.runs...)
	return nil
}

func (m *memRecorder) RecentRuns(limit int) ([]recorder.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recorder.RunRecord(nil), m.runs[:min(limit, len(m.runs))]...), nil
}

func newScheduler(t *testing.T, runner *fakeRunner) (*Scheduler, *fakeNotifier, *memRecorder) {
	t.Helper()
	n := &fakeNotifier{}
	rec := &memRecorder{}
	universe := func() ([]model.Symbol, error) {
		return []model.Symbol{model.MustParseSymbol("us:AAPL"), model.MustParseSymbol("hk:00700")}, nil
	}
	s := NewScheduler(context.Background(), runner, universe, syncer.DefaultOptions(), n, rec)
	s.Source = "mock"
	return s, n, rec
}

func TestRunNowRecordsAndNotifies(t *testing.T) {
	runner := &fakeRunner{}
	s, n, rec := newScheduler(t, runner)

	run, err := s.RunNow(context.Background(), "cli", true)
	require.NoError(t, err)
	assert.True(t, runner.gotOpts.Force)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 1, run.Incremental)
	assert.Equal(t, "cli", run.Trigger)
	assert.Equal(t, "mock", run.Source)

	require.Len(t, rec.runs, 1)
	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0], "us:AAPL [fetch]")
	assert.False(t, s.Running())
}

func TestRunNowRefusesOverlap(t *testing.T) {
	runner := &fakeRunner{gate: make(chan struct{})}
	s, _, rec := newScheduler(t, runner)

	done := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background(), "cron", false)
		done <- err
	}()
	require.Eventually(t, s.Running, time.Second, time.Millisecond)

	_, err := s.RunNow(context.Background(), "telegram", false)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.Equal(t, "🔄 A sync is already running.", s.HandleCommand(context.Background(), "/sync"))

	close(runner.gate)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), runner.calls.Load())
	assert.Len(t, rec.runs, 1)
}

func TestRunNowUniverseError(t *testing.T) {
	runner := &fakeRunner{}
	s, n, _ := newScheduler(t, runner)
	s.Universe = func() ([]model.Symbol, error) { return nil, errors.New("no such file") }

	_, err := s.RunNow(context.Background(), "cron", false)
	assert.ErrorContains(t, err, "no such file")
	assert.Zero(t, runner.calls.Load())
	require.Len(t, n.sent, 1)
	assert.False(t, s.Running())
}

func TestHandleCommand(t *testing.T) {
	runner := &fakeRunner{}
	s, n, _ := newScheduler(t, runner)
	ctx := context.Background()

	assert.Contains(t, s.HandleCommand(ctx, "/status"), "No sync runs")
	assert.Contains(t, s.HandleCommand(ctx, "hello"), "/sync")

	assert.Contains(t, s.HandleCommand(ctx, "/sync@MarketVaultBot"), "Sync started")
	require.Eventually(t, func() bool {
		n.mu.Lock()
		defer n.mu.Unlock()
		return len(n.sent) == 1
	}, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return !s.Running() }, time.Second, time.Millisecond)

	status := s.HandleCommand(ctx, "/STATUS")
	assert.Contains(t, status, "telegram: ok 1, failed 1")
}

func TestRegister(t *testing.T) {
	s, _, _ := newScheduler(t, &fakeRunner{})
	assert.NoError(t, s.Register("0 0 22 * * 1-5"))
	assert.Error(t, s.Register("every day"))
	assert.Len(t, s.Cron.Entries(), 1)
}
