package store

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MarketVault/internal/model"
)

var (
	aapl   = model.MustParseSymbol("us:AAPL")
	tncnt  = model.MustParseSymbol("hk:00700")
	moutai = model.MustParseSymbol("cn:600519")
)

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "bars"), opts...)
	require.NoError(t, err)
	return s
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func bar(date time.Time, close float64) model.Bar {
	return model.Bar{Date: date, Open: close, High: close + 1, Low: close - 0.5, Close: close, Volume: 1000}
}

// daily returns n consecutive calendar-day bars starting at start, closes 1..n.
func daily(start time.Time, n int) model.Series {
	out := make(model.Series, n)
	for i := 0; i < n; i++ {
		out[i] = bar(start.AddDate(0, 0, i), float64(i+1))
	}
	return out
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newStore(t)
	in := daily(day("2026-01-01"), 20)

	require.NoError(t, s.Save(aapl, in))
	assert.True(t, s.Exists(aapl))

	got, err := s.Load(aapl, 0)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	last, err := s.LastDate(aapl)
	require.NoError(t, err)
	assert.Equal(t, day("2026-01-20"), last)

	assert.FileExists(t, filepath.Join(s.Root(), "us", "AAPL.parquet"))
}

func TestLoadLimitReturnsNewest(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save(aapl, daily(day("2026-01-01"), 10)))

	got, err := s.Load(aapl, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, day("2026-01-08"), got[0].Date)
	assert.Equal(t, day("2026-01-10"), got[2].Date)
}

func TestLoadMissingIsNotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.Load(aapl, 0)
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = s.LastDate(aapl)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.False(t, s.Exists(aapl))
}

func TestLoadCorruptFileIsNotFound(t *testing.T) {
	s := newStore(t)
	path := filepath.Join(s.Root(), "us", "AAPL.parquet")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("not parquet"), 0o644))

	_, err := s.Load(aapl, 0)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSaveSortsAndKeepsLastWrittenPerDate(t *testing.T) {
	s := newStore(t)
	in := model.Series{
		bar(day("2026-03-03"), 3),
		bar(day("2026-03-01"), 1),
		bar(day("2026-03-02"), 2),
		bar(day("2026-03-01"), 9),
	}
	require.NoError(t, s.Save(aapl, in))

	got, err := s.Load(aapl, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []time.Time{day("2026-03-01"), day("2026-03-02"), day("2026-03-03")}, got.Dates())
	assert.Equal(t, 9.0, got[0].Close)
}

func TestSaveNormalisesIntradayDates(t *testing.T) {
	s := newStore(t)
	in := model.Series{
		bar(time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC), 2),
		bar(time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC), 5),
	}
	require.NoError(t, s.Save(aapl, in))
	got, err := s.Load(aapl, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, day("2026-03-02"), got[0].Date)
	assert.Equal(t, 5.0, got[0].Close)
}

func TestSaveRejectsInvalidBarsOnly(t *testing.T) {
	s := newStore(t)
	in := daily(day("2026-03-01"), 5)
	in[1].Close = 0
	in[3].High = math.NaN()
	// a bad rewrite of a good date must not shadow the good bar
	bad := bar(day("2026-03-01"), 1)
	bad.Low = -1
	in = append(in, bad)

	require.NoError(t, s.Save(aapl, in))
	got, err := s.Load(aapl, 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day("2026-03-01"), day("2026-03-03"), day("2026-03-05")}, got.Dates())
	assert.Equal(t, 1.0, got[0].Close)
}

func TestSaveRejectsSeriesMissingColumn(t *testing.T) {
	s := newStore(t)
	in := daily(day("2026-03-01"), 3)
	for i := range in {
		in[i].Volume = -1
	}
	err := s.Save(aapl, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrValidation)
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, model.DefectMissing, ve.Kind)
	assert.False(t, s.Exists(aapl))
}

func TestSaveEmptyNeverDeletes(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save(aapl, daily(day("2026-03-01"), 3)))

	err := s.Save(aapl, nil)
	assert.ErrorIs(t, err, model.ErrValidation)

	got, err := s.Load(aapl, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestSaveTrimsOldestBeyondRetention(t *testing.T) {
	s := newStore(t)
	require.Equal(t, MaxRetentionDays, s.Retention())

	first := daily(day("2024-01-01"), 450)
	require.NoError(t, s.Save(aapl, first))

	// each write appends more bars; the store must stay bounded and drop the oldest
	all := first
	for round := 0; round < 3; round++ {
		last, _ := all.Last()
		more := daily(last.Date.AddDate(0, 0, 1), 40)
		all = append(all, more...)
		require.NoError(t, s.Save(aapl, all))

		got, err := s.Load(aapl, 0)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(got), MaxRetentionDays)
		gotLast, _ := got.Last()
		wantLast, _ := all.Last()
		assert.Equal(t, wantLast.Date, gotLast.Date, "newest bar kept")
		if len(all) > MaxRetentionDays {
			assert.Equal(t, all[len(all)-MaxRetentionDays].Date, got[0].Date, "oldest bars dropped first")
		}
	}
}

func TestWithRetentionClamps(t *testing.T) {
	assert.Equal(t, MinRetentionDays, newStore(t, WithRetention(10)).Retention())
	assert.Equal(t, MaxRetentionDays, newStore(t, WithRetention(10_000)).Retention())
	assert.Equal(t, 300, newStore(t, WithRetention(300)).Retention())
	assert.Equal(t, MaxRetentionDays, newStore(t, WithRetention(0)).Retention())
}

func TestNewRejectsUnusableRoot(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(file)
	assert.Error(t, err)
}

func TestListSymbols(t *testing.T) {
	s := newStore(t)
	for _, sym := range []model.Symbol{moutai, aapl, tncnt, model.MustParseSymbol("us:MSFT")} {
		require.NoError(t, s.Save(sym, daily(day("2026-03-01"), 2)))
	}
	// foreign and temporary files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "us", "notes.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), "us", "IBM.parquet123456"), nil, 0o644))

	all, err := s.ListSymbols("")
	require.NoError(t, err)
	assert.Equal(t, []model.Symbol{moutai, tncnt, aapl, model.MustParseSymbol("us:MSFT")}, all)

	us, err := s.ListSymbols(model.MarketUS)
	require.NoError(t, err)
	assert.Len(t, us, 2)

	_, err = s.ListSymbols("jp")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save(aapl, daily(day("2026-03-01"), 2)))
	require.NoError(t, s.Delete(aapl))
	assert.False(t, s.Exists(aapl))
	assert.ErrorIs(t, s.Delete(aapl), model.ErrNotFound)
}

func TestPurgeRemovesLegacyArtifacts(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.Save(tncnt, daily(day("2026-03-01"), 2)))

	legacy := []string{
		filepath.Join(s.Root(), "hk_00700.parquet"),
		filepath.Join(s.Root(), "hk", "0700.parquet"),
		filepath.Join(s.Root(), "hk", "700.parquet"),
	}
	for _, p := range legacy {
		require.NoError(t, os.WriteFile(p, []byte("stale"), 0o644))
	}
	unrelated := filepath.Join(s.Root(), "hk", "0005.parquet")
	require.NoError(t, os.WriteFile(unrelated, []byte("other"), 0o644))

	n, err := s.Purge(tncnt)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.False(t, s.Exists(tncnt))
	for _, p := range legacy {
		assert.NoFileExists(t, p)
	}
	assert.FileExists(t, unrelated)

	n, err = s.Purge(tncnt)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNormalizeDate(t *testing.T) {
	want := day("2026-03-02")
	tests := []struct {
		name string
		v    int64
	}{
		{"days", want.Unix() / 86400},
		{"seconds", want.Unix()},
		{"millis", want.UnixMilli()},
		{"micros", want.UnixMicro()},
		{"nanos", want.UnixNano()},
		{"intraday millis", want.Add(15*time.Hour + 59*time.Minute).UnixMilli()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, want, normalizeDate(tt.v))
		})
	}
	assert.True(t, normalizeDate(0).IsZero())
}

func TestRoundTripKeepsDatesAroundEpoch(t *testing.T) {
	s := newStore(t)
	in := model.Series{
		bar(day("1966-05-02"), 1),
		bar(day("1969-12-31"), 2),
		bar(day("1970-01-01"), 3),
		bar(day("1972-06-01"), 4),
		bar(day("2026-03-02"), 5),
	}
	require.NoError(t, s.Save(aapl, in))

	got, err := s.Load(aapl, 0)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestLoadFileWithoutDateUnit(t *testing.T) {
	s := newStore(t)
	path := filepath.Join(s.Root(), "us", "AAPL.parquet")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	rows := []barRow{
		{Date: day("2026-03-02").Unix(), Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 10},
		{Date: day("2026-03-03").UnixMilli(), Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 10},
	}
	require.NoError(t, parquet.WriteFile(path, rows))

	got, err := s.Load(aapl, 0)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{day("2026-03-02"), day("2026-03-03")}, got.Dates())
}

func TestCheckQuality(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	s := newStore(t, WithClock(func() time.Time { return now }))

	series := model.Series{
		bar(day("2026-03-01"), 1),
		bar(day("2026-03-11"), 2), // 10 days: not a gap
		bar(day("2026-03-22"), 3), // 11 days: gap
	}
	series[1].Open = math.NaN()
	series[2].Close = -1
	series[2].Volume = -1

	q := s.CheckQuality(series, aapl)
	assert.Equal(t, aapl, q.Symbol)
	assert.Equal(t, 3, q.Bars)
	assert.Equal(t, now, q.CheckedAt)
	require.Len(t, q.Gaps, 1)
	assert.Equal(t, 11, q.Gaps[0].Days)
	assert.Equal(t, 1, q.Warnings())
	assert.Equal(t, 3, q.Errors())
	assert.False(t, q.OK())

	kinds := map[model.DefectKind]int{}
	for _, d := range q.Defects {
		kinds[d.Kind]++
	}
	assert.Equal(t, 2, kinds[model.DefectNull])
	assert.Equal(t, 1, kinds[model.DefectNonPositive])

	clean := s.CheckQuality(daily(day("2026-03-01"), 5), aapl)
	assert.True(t, clean.OK())
	assert.True(t, s.CheckQuality(nil, aapl).OK())
}
