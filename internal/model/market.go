package model

import (
	"math"
	"sort"
	"time"
)

// Bar is one daily OHLCV record. Date is a calendar date at UTC midnight.
// A NaN price or a negative volume marks the field as absent.
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Required column names, in storage order.
const (
	ColumnDate   = "date"
	ColumnOpen   = "open"
	ColumnHigh   = "high"
	ColumnLow    = "low"
	ColumnClose  = "close"
	ColumnVolume = "volume"
)

// DateOf truncates t to its calendar date (in t's own location) and returns it at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

func absent(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

type priceField struct {
	name string
	v    float64
}

func (b Bar) prices() []priceField {
	return []priceField{
		{ColumnOpen, b.Open},
		{ColumnHigh, b.High},
		{ColumnLow, b.Low},
		{ColumnClose, b.Close},
	}
}

// Validate reports the first defect of b, or nil.
func (b Bar) Validate() error {
	if b.Date.IsZero() {
		return &ValidationError{Kind: DefectNull, Field: ColumnDate}
	}
	for _, p := range b.prices() {
		if absent(p.v) {
			return &ValidationError{Kind: DefectNull, Field: p.name, Date: b.Date}
		}
	}
	if b.Volume < 0 {
		return &ValidationError{Kind: DefectNull, Field: ColumnVolume, Date: b.Date}
	}
	for _, p := range b.prices() {
		if p.v <= 0 {
			return &ValidationError{Kind: DefectNonPositive, Field: p.name, Date: b.Date}
		}
	}
	return nil
}

// Series is an ordered run of bars for one symbol.
type Series []Bar

// Sorted returns a copy of s ordered ascending by date. Equal dates keep their input order.
func (s Series) Sorted() Series {
	out := make(Series, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Dedup returns s sorted with one bar per date; the bar appearing last in s wins.
func (s Series) Dedup() Series {
	sorted := s.Sorted()
	out := sorted[:0]
	for i, b := range sorted {
		if i+1 < len(sorted) && sorted[i+1].Date.Equal(b.Date) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Last returns the newest bar; ok is false for an empty series.
func (s Series) Last() (Bar, bool) {
	if len(s) == 0 {
		return Bar{}, false
	}
	return s[len(s)-1], true
}

// Dates lists the bar dates in order.
func (s Series) Dates() []time.Time {
	out := make([]time.Time, len(s))
	for i, b := range s {
		out[i] = b.Date
	}
	return out
}

// Tail returns the newest n bars of s (all of s when n <= 0 or n >= len(s)).
func (s Series) Tail(n int) Series {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}

// Through returns the bars of s dated on or before last, in their original order.
func (s Series) Through(last time.Time) Series {
	last = DateOf(last)
	out := make(Series, 0, len(s))
	for _, b := range s {
		if !DateOf(b.Date).After(last) {
			out = append(out, b)
		}
	}
	return out
}

// MissingColumns lists the columns for which no bar in s carries a value.
// An empty series has no missing columns.
func (s Series) MissingColumns() []string {
	if len(s) == 0 {
		return nil
	}
	seen := map[string]bool{}
	for _, b := range s {
		if !b.Date.IsZero() {
			seen[ColumnDate] = true
		}
		for _, p := range b.prices() {
			if !absent(p.v) {
				seen[p.name] = true
			}
		}
		if b.Volume >= 0 {
			seen[ColumnVolume] = true
		}
	}
	var missing []string
	for _, c := range []string{ColumnDate, ColumnOpen, ColumnHigh, ColumnLow, ColumnClose, ColumnVolume} {
		if !seen[c] {
			missing = append(missing, c)
		}
	}
	return missing
}
