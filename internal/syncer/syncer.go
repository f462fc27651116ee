// Package syncer drives a sync run: it plans, fetches, merges and persists each symbol,
// chunk by chunk, with bounded concurrency inside a chunk.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"MarketVault/internal/collector"
	"MarketVault/internal/merger"
	"MarketVault/internal/model"
	"MarketVault/internal/planner"
)

// Store is the persistence the syncer needs; *store.Store satisfies it.
type Store interface {
	Load(sym model.Symbol, limit int) (model.Series, error)
	LastDate(sym model.Symbol) (time.Time, error)
	Save(sym model.Symbol, series model.Series) error
	Purge(sym model.Symbol) (int, error)
	CheckQuality(series model.Series, sym model.Symbol) *model.QualityReport
}

// Options tune a single run. Zero values fall back to the defaults below, except
// InterBatchPause and MaxRetries where zero is meaningful.
type Options struct {
	BatchSize            int
	MaxConcurrency       int
	Force                bool
	InterBatchPause      time.Duration
	FetchTimeout         time.Duration
	Lookback             time.Duration
	MaxRetries           int
	RetryInitialInterval time.Duration
}

const (
	DefaultBatchSize       = 200
	DefaultMaxConcurrency  = 3
	DefaultInterBatchPause = 10 * time.Second
	DefaultFetchTimeout    = 30 * time.Second
	DefaultRetryInterval   = 2 * time.Second
)

// DefaultOptions returns the options used by a plain daily run.
func DefaultOptions() Options {
	return Options{
		BatchSize:            DefaultBatchSize,
		MaxConcurrency:       DefaultMaxConcurrency,
		InterBatchPause:      DefaultInterBatchPause,
		FetchTimeout:         DefaultFetchTimeout,
		Lookback:             collector.DefaultLookback,
		RetryInitialInterval: DefaultRetryInterval,
	}
}

func (o Options) normalized() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
	if o.InterBatchPause < 0 {
		o.InterBatchPause = 0
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.Lookback <= 0 {
		o.Lookback = collector.DefaultLookback
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryInitialInterval <= 0 {
		o.RetryInitialInterval = DefaultRetryInterval
	}
	return o
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithQualityHook receives the quality report of every series written.
func WithQualityHook(fn func(*model.QualityReport)) Option {
	return func(s *Syncer) { s.onQuality = fn }
}

// WithClock overrides the time source used for planning.
func WithClock(fn func() time.Time) Option {
	return func(s *Syncer) { s.now = fn }
}

// WithSleep overrides the pause between chunks.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Syncer) { s.sleep = fn }
}

// Syncer brings a set of symbols up to date.
type Syncer struct {
	store     Store
	fetcher   collector.Fetcher
	planner   *planner.Planner
	onQuality func(*model.QualityReport)
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// New creates a Syncer.
func New(store Store, fetcher collector.Fetcher, p *planner.Planner, opts ...Option) *Syncer {
	s := &Syncer{
		store:   store,
		fetcher: fetcher,
		planner: p,
		now:     time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Sync updates every symbol and reports per-symbol outcomes. A failing symbol never
// aborts the others. If ctx is cancelled, the symbols not yet started are listed as
// pending and ctx.Err() is returned together with the partial result.
func (s *Syncer) Sync(ctx context.Context, symbols []model.Symbol, opts Options) (*model.BatchResult, error) {
	opts = opts.normalized()
	result := model.NewBatchResult()
	syms := dedupSymbols(symbols)
	batches := chunk(syms, opts.BatchSize)
	started := s.now()

	slog.Info("sync: starting", "symbols", len(syms), "batches", len(batches),
		"source", s.fetcher.Name(), "force", opts.Force)

	for i, batch := range batches {
		if i > 0 {
			if err := s.sleep(ctx, opts.InterBatchPause); err != nil {
				return s.interrupted(result, batches[i:], err)
			}
		}
		if err := ctx.Err(); err != nil {
			return s.interrupted(result, batches[i:], err)
		}
		s.runBatch(ctx, batch, opts, result)
		ok, failed, _ := result.Counts()
		slog.Info("sync: batch done", "batch", i+1, "of", len(batches), "succeeded", ok, "failed", failed)
	}

	ok, failed, _ := result.Counts()
	slog.Info("sync: finished", "succeeded", ok, "failed", failed, "elapsed", s.now().Sub(started).Round(time.Millisecond))
	return result, ctx.Err()
}

func (s *Syncer) interrupted(result *model.BatchResult, rest [][]model.Symbol, err error) (*model.BatchResult, error) {
	for _, batch := range rest {
		result.Pending = append(result.Pending, batch...)
	}
	slog.Warn("sync: interrupted", "pending", len(result.Pending), "err", err)
	return result, err
}

func (s *Syncer) runBatch(ctx context.Context, batch []model.Symbol, opts Options, result *model.BatchResult) {
	var g errgroup.Group
	g.SetLimit(opts.MaxConcurrency)
	for _, sym := range batch {
		sym := sym
		g.Go(func() error {
			s.syncOne(ctx, sym, opts, result)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Syncer) syncOne(ctx context.Context, sym model.Symbol, opts Options, result *model.BatchResult) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("sync: panic", "symbol", sym.String(), "panic", r)
			result.Fail(sym, fmt.Errorf("%s: panic: %v", sym, r))
		}
	}()
	action, err := s.syncSymbol(ctx, sym, opts)
	if err != nil {
		slog.Warn("sync: symbol failed", "symbol", sym.String(), "kind", model.FailureKind(err), "err", err)
		result.Fail(sym, err)
		return
	}
	result.Succeed(sym, action)
}

func (s *Syncer) syncSymbol(ctx context.Context, sym model.Symbol, opts Options) (model.Action, error) {
	last, err := s.store.LastDate(sym)
	hasCache := err == nil
	plan := s.planner.Classify(sym, last, hasCache, s.now(), opts.Force)
	slog.Debug("sync: plan", "plan", plan.String())
	if plan.Action == model.ActionSkip {
		return plan.Action, nil
	}

	if opts.Force {
		n, err := s.store.Purge(sym)
		if err != nil {
			return plan.Action, fmt.Errorf("purge %s: %w: %w", sym, model.ErrWrite, err)
		}
		if n > 0 {
			slog.Info("sync: purged cached data", "symbol", sym.String(), "files", n)
		}
		hasCache = false
	}

	req := collector.FetchRequest{Lookback: opts.Lookback}
	if plan.Action == model.ActionIncremental {
		req = collector.FetchRequest{Start: plan.From}
	}
	fresh, err := s.fetch(ctx, sym, req, opts)
	if err != nil {
		return plan.Action, fmt.Errorf("fetch %s: %w: %w", sym, model.ErrFetch, err)
	}
	// Bars past the expected date come from a session that is still open.
	expected := s.planner.ExpectedLatestDate(sym.Market, s.now())
	if settled := fresh.Through(expected); len(settled) < len(fresh) {
		slog.Debug("sync: dropped unsettled bars", "symbol", sym.String(), "count", len(fresh)-len(settled), "through", expected.Format(time.DateOnly))
		fresh = settled
	}
	if len(fresh) == 0 {
		if hasCache {
			slog.Info("sync: no new bars", "symbol", sym.String(), "action", plan.Action.String())
			return plan.Action, nil
		}
		return plan.Action, fmt.Errorf("fetch %s: source returned no data: %w", sym, model.ErrFetch)
	}

	old, err := s.store.Load(sym, 0)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			return plan.Action, err
		}
		old = nil
	}
	merged := merger.Combine(old, fresh)
	if err := s.store.Save(sym, merged); err != nil {
		return plan.Action, err
	}

	report := s.store.CheckQuality(merged, sym)
	if !report.OK() {
		slog.Warn("sync: quality issues", "symbol", sym.String(), "gaps", report.Warnings(), "defects", report.Errors())
	}
	if s.onQuality != nil {
		s.onQuality(report)
	}
	return plan.Action, nil
}

// fetch calls the fetcher under FetchTimeout, retrying transient failures with
// exponential backoff when MaxRetries is positive.
func (s *Syncer) fetch(ctx context.Context, sym model.Symbol, req collector.FetchRequest, opts Options) (model.Series, error) {
	attempt := func() (model.Series, error) {
		fctx, cancel := context.WithTimeout(ctx, opts.FetchTimeout)
		defer cancel()
		return s.fetcher.FetchBars(fctx, sym, req)
	}
	if opts.MaxRetries == 0 {
		return attempt()
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = opts.RetryInitialInterval
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(opts.MaxRetries)), ctx)
	return backoff.RetryNotifyWithData(func() (model.Series, error) {
		bars, err := attempt()
		if err != nil && ctx.Err() != nil {
			return nil, backoff.Permanent(err)
		}
		return bars, err
	}, b, func(err error, wait time.Duration) {
		slog.Warn("sync: fetch retry", "symbol", sym.String(), "wait", wait, "err", err)
	})
}

func dedupSymbols(symbols []model.Symbol) []model.Symbol {
	seen := make(map[model.Symbol]struct{}, len(symbols))
	out := make([]model.Symbol, 0, len(symbols))
	for _, sym := range symbols {
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}

func chunk(symbols []model.Symbol, size int) [][]model.Symbol {
	var out [][]model.Symbol
	for len(symbols) > 0 {
		n := min(size, len(symbols))
		out = append(out, symbols[:n])
		symbols = symbols[n:]
	}
	return out
}
