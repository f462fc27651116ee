package recorder

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"MarketVault/internal/model"
)

// SQLiteRecorder persists run history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the status command read while a sync run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Info("sqlite recorder opened", "path", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at   INTEGER NOT NULL,
			finished_at  INTEGER NOT NULL,
			triggered_by TEXT,
			source       TEXT,
			forced       INTEGER,
			succeeded    INTEGER,
			failed       INTEGER,
			pending      INTEGER,
			skipped      INTEGER,
			incremental  INTEGER,
			full_refresh INTEGER,
			run_error    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON sync_runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS sync_failures (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id  INTEGER NOT NULL REFERENCES sync_runs(id),
			symbol  TEXT NOT NULL,
			kind    TEXT,
			message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_failures_run ON sync_failures(run_id)`,

		`CREATE TABLE IF NOT EXISTS quality_defects (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			checked_at INTEGER NOT NULL,
			symbol     TEXT NOT NULL,
			kind       TEXT NOT NULL,
			field      TEXT,
			date_from  TEXT,
			date_to    TEXT,
			days       INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_defects_symbol ON quality_defects(symbol, checked_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordRun stores run and its failures; run.ID is set on success.
func (r *SQLiteRecorder) RecordRun(run *RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO sync_runs
		(started_at, finished_at, triggered_by, source, forced,
		 succeeded, failed, pending, skipped, incremental, full_refresh, run_error)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), run.Trigger, run.Source, run.Force,
		run.Succeeded, run.Failed, run.Pending, run.Skipped, run.Incremental, run.FullRefresh, run.Err,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for _, f := range run.Failures {
		if _, err := tx.Exec(`INSERT INTO sync_failures (run_id, symbol, kind, message) VALUES (?,?,?,?)`,
			id, f.Symbol, f.Kind, f.Message); err != nil {
			return fmt.Errorf("insert failure: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	run.ID = id
	return nil
}

// RecordQuality stores one row per gap and defect. Clean reports write nothing.
func (r *SQLiteRecorder) RecordQuality(report *model.QualityReport) error {
	if report == nil || report.OK() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	checked := report.CheckedAt
	if checked.IsZero() {
		checked = r.now()
	}
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const q = `INSERT INTO quality_defects
		(checked_at, symbol, kind, field, date_from, date_to, days) VALUES (?,?,?,?,?,?,?)`
	sym := report.Symbol.String()
	for _, g := range report.Gaps {
		if _, err := tx.Exec(q, checked.UnixMilli(), sym, string(model.DefectGap), "",
			g.From.Format(time.DateOnly), g.To.Format(time.DateOnly), g.Days); err != nil {
			return fmt.Errorf("insert gap: %w", err)
		}
	}
	for _, d := range report.Defects {
		day := d.Date.Format(time.DateOnly)
		if _, err := tx.Exec(q, checked.UnixMilli(), sym, string(d.Kind), d.Field, day, day, 0); err != nil {
			return fmt.Errorf("insert defect: %w", err)
		}
	}
	return tx.Commit()
}

// RecentRuns returns up to limit runs, newest first, with their failures.
func (r *SQLiteRecorder) RecentRuns(limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT id, started_at, finished_at, triggered_by, source, forced,
		succeeded, failed, pending, skipped, incremental, full_refresh, run_error
		FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	var runs []RunRecord
	for rows.Next() {
		var (
			run               RunRecord
			started, finished int64
		)
		if err := rows.Scan(&run.ID, &started, &finished, &run.Trigger, &run.Source, &run.Force,
			&run.Succeeded, &run.Failed, &run.Pending, &run.Skipped, &run.Incremental,
			&run.FullRefresh, &run.Err); err != nil {
			rows.Close()
			return nil, err
		}
		run.StartedAt = time.UnixMilli(started)
		run.FinishedAt = time.UnixMilli(finished)
		runs = append(runs, run)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		failures, err := r.failures(runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Failures = failures
	}
	return runs, nil
}

func (r *SQLiteRecorder) failures(runID int64) ([]Failure, error) {
	rows, err := r.db.Query(`SELECT symbol, kind, message FROM sync_failures WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()
	var out []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.Symbol, &f.Kind, &f.Message); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// DefectCount returns how many quality findings were recorded for sym.
func (r *SQLiteRecorder) DefectCount(sym model.Symbol) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM quality_defects WHERE symbol = ?`, sym.String()).Scan(&n)
	return n, err
}

func (r *SQLiteRecorder) Close() error {
	slog.Info("closing sqlite recorder")
	return r.db.Close()
}
