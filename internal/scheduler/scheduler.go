package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"MarketVault/internal/model"
	"MarketVault/internal/notifier"
	"MarketVault/internal/recorder"
	"MarketVault/internal/syncer"
)

// ErrRunInProgress is returned when a sync is requested while another one runs.
var ErrRunInProgress = errors.New("sync already running")

// Runner performs a sync run; *syncer.Syncer satisfies it.
type Runner interface {
	Sync(ctx context.Context, symbols []model.Symbol, opts syncer.Options) (*model.BatchResult, error)
}

// UniverseFunc resolves the symbols of a run at the time it starts.
type UniverseFunc func() ([]model.Symbol, error)

// Scheduler owns sync runs: the daily cron job, manual triggers and bot commands.
// At most one run is active at a time since the store has a single writer.
type Scheduler struct {
	Cron     *cron.Cron
	Runner   Runner
	Universe UniverseFunc
	Options  syncer.Options
	Source   string
	Notifier notifier.Notifier
	Recorder recorder.Recorder
	Ctx      context.Context

	running atomic.Bool
	now     func() time.Time
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, runner Runner, universe UniverseFunc, opts syncer.Options, n notifier.Notifier, rec recorder.Recorder) *Scheduler {
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Runner:   runner,
		Universe: universe,
		Options:  opts,
		Notifier: n,
		Recorder: rec,
		Ctx:      ctx,
		now:      time.Now,
	}
}

// Register adds the daily sync job.
func (s *Scheduler) Register(syncCron string) error {
	if _, err := s.Cron.AddFunc(syncCron, s.dailySync); err != nil {
		return fmt.Errorf("register sync task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	slog.Info("scheduler started")
}

// Stop stops the cron scheduler and waits for a running job to return.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	slog.Info("scheduler stopped")
}

func (s *Scheduler) dailySync() {
	if _, err := s.RunNow(s.Ctx, "cron", false); err != nil && !errors.Is(err, ErrRunInProgress) {
		slog.Error("daily sync", "err", err)
	}
}

// Running reports whether a sync run is in progress.
func (s *Scheduler) Running() bool { return s.running.Load() }

// RunNow runs one sync over the current universe, records it and sends the summary.
// The returned record is nil only when the run could not start.
func (s *Scheduler) RunNow(ctx context.Context, trigger string, force bool) (*recorder.RunRecord, error) {
	if !s.running.CompareAndSwap(false, true) {
		slog.Warn("sync skipped, previous run still in progress", "trigger", trigger)
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	symbols, err := s.Universe()
	if err != nil {
		s.trySend(ctx, fmt.Sprintf("❌ sync not started: %v", err))
		return nil, fmt.Errorf("load universe: %w", err)
	}
	if len(symbols) == 0 {
		return nil, errors.New("universe is empty")
	}

	opts := s.Options
	opts.Force = opts.Force || force
	slog.Info("running sync", "trigger", trigger, "symbols", len(symbols), "force", opts.Force)

	started := s.now()
	result, runErr := s.Runner.Sync(ctx, symbols, opts)
	run := recorder.NewRunRecord(result, started, s.now(), runErr)
	run.Trigger = trigger
	run.Source = s.Source
	run.Force = opts.Force

	if err := s.Recorder.RecordRun(run); err != nil {
		slog.Error("record run", "err", err)
	}
	s.trySend(ctx, notifier.FormatSyncSummary(run))
	return run, runErr
}

// HandleCommand processes a bot command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	cmd, _, _ := strings.Cut(strings.TrimSpace(command), " ")
	// Group chats address commands as /status@botname.
	cmd, _, _ = strings.Cut(cmd, "@")

	switch strings.ToLower(cmd) {
	case "/status":
		runs, err := s.Recorder.RecentRuns(5)
		if err != nil {
			return fmt.Sprintf("❌ read run history: %v", err)
		}
		reply := notifier.FormatRecentRuns(runs)
		if s.Running() {
			reply += "\n🔄 A sync is running now."
		}
		return reply
	case "/sync":
		if s.Running() {
			return "🔄 A sync is already running."
		}
		go func() {
			if _, err := s.RunNow(s.Ctx, "telegram", false); err != nil {
				slog.Warn("telegram sync", "err", err)
			}
		}()
		return "🚀 Sync started; a summary follows when it finishes."
	default:
		return notifier.FormatHelp()
	}
}

func (s *Scheduler) trySend(ctx context.Context, text string) {
	if err := s.Notifier.SendWithRetry(ctx, text, 3); err != nil {
		slog.Error("send notification", "err", err)
	}
}
