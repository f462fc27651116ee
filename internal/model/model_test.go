package model

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParseSymbol(t *testing.T) {
	tests := []struct {
		in      string
		want    Symbol
		wantErr bool
	}{
		{in: "us:aapl", want: Symbol{Market: MarketUS, Code: "AAPL"}},
		{in: " HK:00700 ", want: Symbol{Market: MarketHK, Code: "00700"}},
		{in: "cn:600519", want: Symbol{Market: MarketCN, Code: "600519"}},
		{in: "AAPL", wantErr: true},
		{in: "jp:7203", wantErr: true},
		{in: "us:", wantErr: true},
		{in: "us:a/b", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseSymbol(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, got, MustParseSymbol(got.String()))
	}
}

func TestBarValidate(t *testing.T) {
	good := Bar{Date: day("2026-10-01"), Open: 10, High: 11, Low: 9, Close: 10.5, Volume: 0}
	require.NoError(t, good.Validate())

	tests := []struct {
		name  string
		mut   func(*Bar)
		kind  DefectKind
		field string
	}{
		{"zero date", func(b *Bar) { b.Date = time.Time{} }, DefectNull, ColumnDate},
		{"nan close", func(b *Bar) { b.Close = math.NaN() }, DefectNull, ColumnClose},
		{"missing volume", func(b *Bar) { b.Volume = -1 }, DefectNull, ColumnVolume},
		{"zero open", func(b *Bar) { b.Open = 0 }, DefectNonPositive, ColumnOpen},
		{"negative low", func(b *Bar) { b.Low = -3 }, DefectNonPositive, ColumnLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := good
			tt.mut(&b)
			err := b.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.kind, ve.Kind)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestSeriesDedupKeepsLastWritten(t *testing.T) {
	s := Series{
		{Date: day("2026-10-02"), Close: 2},
		{Date: day("2026-10-01"), Close: 1},
		{Date: day("2026-10-02"), Close: 3},
	}
	got := s.Dedup()
	require.Len(t, got, 2)
	assert.Equal(t, day("2026-10-01"), got[0].Date)
	assert.Equal(t, 3.0, got[1].Close)
	// input untouched
	assert.Equal(t, 2.0, s[0].Close)
}

func TestSeriesMissingColumns(t *testing.T) {
	s := Series{
		{Date: day("2026-10-01"), Open: 1, High: 1, Low: 1, Close: math.NaN(), Volume: -1},
		{Date: day("2026-10-02"), Open: 1, High: 1, Low: 1, Close: math.NaN(), Volume: 5},
	}
	assert.Equal(t, []string{ColumnClose}, s.MissingColumns())
	assert.Nil(t, Series{}.MissingColumns())
}

func TestSeriesTail(t *testing.T) {
	s := Series{{Date: day("2026-10-01")}, {Date: day("2026-10-02")}, {Date: day("2026-10-03")}}
	assert.Len(t, s.Tail(2), 2)
	assert.Equal(t, day("2026-10-02"), s.Tail(2)[0].Date)
	assert.Len(t, s.Tail(0), 3)
	assert.Len(t, s.Tail(10), 3)
}

func TestSeriesThrough(t *testing.T) {
	s := Series{{Date: day("2026-10-14")}, {Date: day("2026-10-12")}, {Date: day("2026-10-13")}}
	got := s.Through(day("2026-10-13"))
	assert.Equal(t, []time.Time{day("2026-10-12"), day("2026-10-13")}, got.Dates())
	assert.Empty(t, s.Through(day("2026-10-01")))
	assert.Len(t, s.Through(time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)), 3)
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 30, DaysBetween(day("2026-09-14"), day("2026-10-14")))
	loc := time.FixedZone("UTC+8", 8*3600)
	late := time.Date(2026, 10, 14, 23, 30, 0, 0, loc)
	assert.Equal(t, day("2026-10-14"), DateOf(late))
}

func TestFailureKind(t *testing.T) {
	assert.Equal(t, "fetch", FailureKind(fmt.Errorf("yahoo: %w", ErrFetch)))
	assert.Equal(t, "write", FailureKind(fmt.Errorf("rename: %w", ErrWrite)))
	assert.Equal(t, "validation", FailureKind(&ValidationError{Kind: DefectMissing, Field: ColumnClose}))
	assert.Equal(t, "not_found", FailureKind(ErrNotFound))
	assert.Equal(t, "unknown", FailureKind(errors.New("boom")))
	assert.Equal(t, "", FailureKind(nil))
}

func TestBatchResultRecording(t *testing.T) {
	r := NewBatchResult()
	a := MustParseSymbol("us:AAPL")
	b := MustParseSymbol("us:MSFT")
	r.Fail(a, ErrFetch)
	r.Succeed(b, ActionSkip)
	assert.True(t, r.Partial())
	r.Succeed(a, ActionIncremental)
	s, f, p := r.Counts()
	assert.Equal(t, 2, s)
	assert.Equal(t, 0, f)
	assert.Equal(t, 0, p)
	assert.Equal(t, []Symbol{a, b}, r.SucceededSymbols())
}
