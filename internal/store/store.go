// Package store keeps one parquet file of daily bars per symbol, partitioned by market.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"MarketVault/internal/model"
)

const (
	MinRetentionDays = 250
	MaxRetentionDays = 500
	// MaxGapDays is the quality-warning threshold between two consecutive bars.
	MaxGapDays = 10

	fileExt = ".parquet"
)

// Store is the on-disk record store. Each symbol is owned by at most one writer at a time.
type Store struct {
	root      string
	retention int
	clock     func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithRetention sets the retention ceiling, clamped to [MinRetentionDays, MaxRetentionDays].
func WithRetention(days int) Option {
	return func(s *Store) {
		switch {
		case days <= 0:
			return
		case days < MinRetentionDays:
			days = MinRetentionDays
		case days > MaxRetentionDays:
			days = MaxRetentionDays
		}
		s.retention = days
	}
}

// WithClock overrides the clock used to stamp quality reports.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) { s.clock = fn }
}

// New opens (or creates) a store rooted at root.
func New(root string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("store root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat store root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store root %s is not a directory", root)
	}
	s := &Store{root: root, retention: MaxRetentionDays}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// Retention returns the retention ceiling in bars.
func (s *Store) Retention() int { return s.retention }

func (s *Store) path(sym model.Symbol) string {
	return filepath.Join(s.root, string(sym.Market), sym.Code+fileExt)
}

// Exists reports whether a series is stored for sym.
func (s *Store) Exists(sym model.Symbol) bool {
	info, err := os.Stat(s.path(sym))
	return err == nil && info.Mode().IsRegular()
}

// Load returns the stored series sorted ascending. A positive limit keeps only the newest bars.
// Unreadable data is reported as ErrNotFound.
func (s *Store) Load(sym model.Symbol, limit int) (model.Series, error) {
	path := s.path(sym)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("load %s: %w", sym, model.ErrNotFound)
	}
	raw, err := decodeFile(path)
	if err != nil {
		slog.Warn("store: unreadable series", "symbol", sym.String(), "path", path, "err", err)
		return nil, fmt.Errorf("load %s: %w", sym, model.ErrNotFound)
	}

	valid := make(model.Series, 0, len(raw))
	for _, b := range raw {
		if err := b.Validate(); err != nil {
			slog.Warn("store: skipping invalid stored bar", "symbol", sym.String(), "err", err)
			continue
		}
		valid = append(valid, b)
	}
	if len(valid) == 0 {
		slog.Warn("store: no valid bars on disk", "symbol", sym.String(), "rows", len(raw))
		return nil, fmt.Errorf("load %s: %w", sym, model.ErrNotFound)
	}
	return valid.Dedup().Tail(limit), nil
}

// LastDate returns the date of the newest stored bar.
func (s *Store) LastDate(sym model.Symbol) (time.Time, error) {
	series, err := s.Load(sym, 1)
	if err != nil {
		return time.Time{}, err
	}
	last, _ := series.Last()
	return last.Date, nil
}

// Save normalises series and atomically replaces the stored file. A series lacking a
// required column is rejected as a whole; individual invalid bars are dropped and logged.
// The oldest bars beyond the retention ceiling are trimmed.
func (s *Store) Save(sym model.Symbol, series model.Series) error {
	if missing := series.MissingColumns(); len(missing) > 0 {
		return fmt.Errorf("save %s: %w", sym, &model.ValidationError{
			Kind:  model.DefectMissing,
			Field: strings.Join(missing, ","),
		})
	}

	clean := make(model.Series, 0, len(series))
	for _, b := range series {
		b.Date = model.DateOf(b.Date)
		if err := b.Validate(); err != nil {
			slog.Warn("store: rejected bar", "symbol", sym.String(), "err", err)
			continue
		}
		clean = append(clean, b)
	}
	if len(clean) == 0 {
		return fmt.Errorf("save %s: no valid bars: %w", sym, model.ErrValidation)
	}

	clean = clean.Dedup()
	if n := len(clean) - s.retention; n > 0 {
		slog.Debug("store: trimming series", "symbol", sym.String(), "dropped", n)
		clean = clean.Tail(s.retention)
	}

	data, err := encodeSeries(clean)
	if err != nil {
		return fmt.Errorf("save %s: %v: %w", sym, err, model.ErrWrite)
	}
	path := s.path(sym)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("save %s: %v: %w", sym, err, model.ErrWrite)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("save %s: %v: %w", sym, err, model.ErrWrite)
	}
	return nil
}

// ListSymbols returns the symbols persisted under market, or under every market when
// market is empty.
func (s *Store) ListSymbols(market model.Market) ([]model.Symbol, error) {
	markets := model.Markets
	if market != "" {
		m, err := model.ParseMarket(string(market))
		if err != nil {
			return nil, err
		}
		markets = []model.Market{m}
	}

	var out []model.Symbol
	for _, m := range markets {
		entries, err := os.ReadDir(filepath.Join(s.root, string(m)))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", m, err)
		}
		for _, e := range entries {
			name := e.Name()
			if !e.Type().IsRegular() || !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
				continue
			}
			sym, err := model.NewSymbol(m, strings.TrimSuffix(name, fileExt))
			if err != nil {
				continue
			}
			out = append(out, sym)
		}
	}
	model.SortSymbols(out)
	return out, nil
}

// Delete removes the stored series for sym. It is an explicit operator action and is
// never called by the sync flow except through Purge in force mode.
func (s *Store) Delete(sym model.Symbol) error {
	err := os.Remove(s.path(sym))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", sym, model.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("delete %s: %v: %w", sym, err, model.ErrWrite)
	}
	return nil
}

// Purge removes the stored series for sym together with any file left under a legacy
// key for the same symbol. It returns the number of files removed.
func (s *Store) Purge(sym model.Symbol) (int, error) {
	removed := 0
	for _, p := range append([]string{s.path(sym)}, s.legacyPaths(sym)...) {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed++
			slog.Info("store: purged artifact", "symbol", sym.String(), "path", p)
		case errors.Is(err, os.ErrNotExist):
		default:
			return removed, fmt.Errorf("purge %s: %v: %w", sym, err, model.ErrWrite)
		}
	}
	return removed, nil
}

// legacyPaths lists keys earlier layouts used for sym: the flat pre-partition layout,
// and other zero-paddings of numeric codes (e.g. 0700 and 00700).
func (s *Store) legacyPaths(sym model.Symbol) []string {
	canonical := s.path(sym)
	seen := map[string]bool{canonical: true}
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	add(filepath.Join(s.root, string(sym.Market)+"_"+sym.Code+fileExt))
	if isDigits(sym.Code) {
		stripped := strings.TrimLeft(sym.Code, "0")
		if stripped == "" {
			stripped = "0"
		}
		dir := filepath.Join(s.root, string(sym.Market))
		add(filepath.Join(dir, stripped+fileExt))
		for width := 4; width <= 6; width++ {
			if len(stripped) < width {
				add(filepath.Join(dir, strings.Repeat("0", width-len(stripped))+stripped+fileExt))
			}
		}
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
