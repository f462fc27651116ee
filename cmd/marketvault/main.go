package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"MarketVault/internal/calculator"
	"MarketVault/internal/collector"
	"MarketVault/internal/config"
	"MarketVault/internal/logging"
	"MarketVault/internal/model"
	"MarketVault/internal/notifier"
	"MarketVault/internal/planner"
	"MarketVault/internal/recorder"
	"MarketVault/internal/scheduler"
	"MarketVault/internal/store"
	"MarketVault/internal/syncer"
	"MarketVault/internal/universe"
)

type flags struct {
	config      string
	symbols     string
	universe    string
	market      string
	force       bool
	batchSize   int
	concurrency int
	pause       time.Duration
	daemon      bool
	list        bool
	delete      string
	set         map[string]bool
}

func parseFlags(args []string) (*flags, error) {
	f := &flags{set: make(map[string]bool)}
	fs := flag.NewFlagSet("marketvault", flag.ContinueOnError)
	defaultConfig := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultConfig = v
	}
	fs.StringVar(&f.config, "config", defaultConfig, "path to the YAML config file")
	fs.StringVar(&f.symbols, "symbols", "", "comma-separated market:code list; replaces the configured universe")
	fs.StringVar(&f.universe, "universe", "", "universe file (overrides universe.file)")
	fs.StringVar(&f.market, "market", "", "restrict the run or listing to one market (us, hk, cn)")
	fs.BoolVar(&f.force, "force", false, "purge cached data and rebuild every symbol")
	fs.IntVar(&f.batchSize, "batch-size", 0, "symbols per batch (overrides sync.batch_size)")
	fs.IntVar(&f.concurrency, "concurrency", 0, "concurrent fetches per batch (overrides sync.max_concurrency)")
	fs.DurationVar(&f.pause, "pause", 0, "pause between batches (overrides sync.inter_batch_pause)")
	fs.BoolVar(&f.daemon, "daemon", false, "run the cron scheduler and Telegram bot until interrupted")
	fs.BoolVar(&f.list, "list", false, "print the cached symbols and exit")
	fs.StringVar(&f.delete, "delete", "", "delete the cached series of one symbol and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) { f.set[fl.Name] = true })
	return f, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	f, err := parseFlags(args)
	if err != nil {
		return 2
	}

	cfg, err := config.Load(f.config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return 2
	}
	if f.universe != "" {
		cfg.Universe.File = f.universe
	}
	if f.set["batch-size"] {
		cfg.Sync.BatchSize = f.batchSize
	}
	if f.set["concurrency"] {
		cfg.Sync.MaxConcurrency = f.concurrency
	}
	if f.set["pause"] {
		d := config.Duration(f.pause)
		cfg.Sync.InterBatchPause = &d
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		return 2
	}

	logCloser, err := logging.Init(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
		return 2
	}
	defer logCloser.Close()

	var market model.Market
	if f.market != "" {
		if market, err = model.ParseMarket(f.market); err != nil {
			slog.Error("invalid -market", "err", err)
			return 2
		}
	}

	st, err := store.New(cfg.Store.Root, store.WithRetention(cfg.Store.MaxRetentionDays))
	if err != nil {
		slog.Error("open store", "err", err)
		return 2
	}

	switch {
	case f.list:
		return listSymbols(st, market)
	case f.delete != "":
		return deleteSymbol(st, f.delete)
	}

	sessions, err := cfg.Sessions()
	if err != nil {
		slog.Error("market sessions", "err", err)
		return 2
	}
	plan := planner.New(sessions, planner.Session{Location: time.UTC, Cutoff: 16*time.Hour + 30*time.Minute})

	fetcher := collector.NewFetcher(cfg.DataSource.BaseURL, cfg.DataSource.APIKey, cfg.Proxy)
	if vs, ok := fetcher.(*collector.VsTraderFetcher); ok {
		for m, sess := range sessions {
			vs.Locations[m] = sess.Location
		}
	}
	slog.Info("data source selected", "source", fetcher.Name())

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			slog.Warn("init sqlite recorder failed, using noop", "err", err)
		} else {
			rec = sr
		}
	}
	defer rec.Close()

	var n notifier.Notifier = notifier.Noop{}
	var tn *notifier.TelegramNotifier
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		n = tn
	}

	runner := syncer.New(st, fetcher, plan, syncer.WithQualityHook(func(report *model.QualityReport) {
		if err := rec.RecordQuality(report); err != nil {
			slog.Error("record quality", "symbol", report.Symbol.String(), "err", err)
		}
	}))

	resolve := func() ([]model.Symbol, error) {
		var syms []model.Symbol
		var err error
		if f.symbols != "" {
			syms, err = universe.Parse(strings.Split(f.symbols, ","))
		} else {
			syms, err = universe.Load(cfg.Universe.File, cfg.Universe.Symbols)
		}
		if err != nil {
			return nil, err
		}
		return universe.Filter(syms, market), nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.NewScheduler(ctx, runner, resolve, cfg.SyncOptions(), n, rec)
	sched.Source = fetcher.Name()

	if f.daemon {
		return runDaemon(ctx, sched, tn, cfg.Schedule.SyncCron, f.force)
	}
	return runOnce(ctx, sched, f.force)
}

func runOnce(ctx context.Context, sched *scheduler.Scheduler, force bool) int {
	run, err := sched.RunNow(ctx, "cli", force)
	if run == nil {
		slog.Error("sync did not start", "err", err)
		return 2
	}
	fmt.Printf("succeeded=%d failed=%d pending=%d\n", run.Succeeded, run.Failed, run.Pending)
	for _, fl := range run.Failures {
		fmt.Printf("FAILED %s [%s] %s\n", fl.Symbol, fl.Kind, fl.Message)
	}
	if err != nil {
		slog.Warn("sync interrupted", "err", err)
	}
	if !run.OK() {
		return 1
	}
	return 0
}

func runDaemon(ctx context.Context, sched *scheduler.Scheduler, tn *notifier.TelegramNotifier, syncCron string, runNow bool) int {
	if err := sched.Register(syncCron); err != nil {
		slog.Error("register cron task", "err", err)
		return 2
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		slog.Info("telegram polling started")
	}
	if runNow || os.Getenv("RUN_ON_START") == "true" {
		go func() {
			if _, err := sched.RunNow(ctx, "startup", runNow); err != nil && !errors.Is(err, context.Canceled) {
				slog.Warn("startup sync", "err", err)
			}
		}()
	}

	slog.Info("MarketVault is running, press Ctrl+C to stop", "cron", syncCron)
	<-ctx.Done()
	slog.Info("shutdown signal received, stopping")
	return 0
}

func listSymbols(st *store.Store, market model.Market) int {
	syms, err := st.ListSymbols(market)
	if err != nil {
		slog.Error("list symbols", "err", err)
		return 1
	}
	for _, sym := range syms {
		series, err := st.Load(sym, 0)
		if err != nil {
			fmt.Printf("%s\tunreadable\n", sym)
			continue
		}
		summary, err := calculator.Summarize(series)
		if err != nil {
			fmt.Printf("%s\t%v\n", sym, err)
			continue
		}
		fmt.Printf("%s\t%s\n", sym, summary)
	}
	return 0
}

func deleteSymbol(st *store.Store, raw string) int {
	sym, err := model.ParseSymbol(raw)
	if err != nil {
		slog.Error("invalid -delete", "err", err)
		return 2
	}
	if err := st.Delete(sym); err != nil {
		slog.Error("delete", "symbol", sym.String(), "err", err)
		return 1
	}
	slog.Info("deleted cached series", "symbol", sym.String())
	return 0
}
