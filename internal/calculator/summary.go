// Package calculator derives descriptive statistics from a stored series.
package calculator

import (
	"fmt"
	"time"

	"MarketVault/internal/model"
)

// Summary describes one cached series for listings.
type Summary struct {
	Bars      int
	First     time.Time
	Last      time.Time
	LastClose float64
	High52w   float64
	Low52w    float64
	Position  float64 // last close within the 52-week range
	MA200     float64 // zero when fewer than 200 bars are stored
}

// Summarize computes a Summary over a sorted series.
func Summarize(series model.Series) (Summary, error) {
	last, ok := series.Last()
	if !ok {
		return Summary{}, fmt.Errorf("empty series")
	}
	high, low, err := Range(series, TradingDays52w)
	if err != nil {
		return Summary{}, err
	}
	pos, err := Position(last.Close, high, low)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{
		Bars:      len(series),
		First:     series[0].Date,
		Last:      last.Date,
		LastClose: last.Close,
		High52w:   high,
		Low52w:    low,
		Position:  pos,
	}
	if ma, err := SMA(series, 200); err == nil {
		s.MA200 = ma
	}
	return s, nil
}

// String renders the summary as one tab-separated listing row.
func (s Summary) String() string {
	ma := "-"
	if s.MA200 > 0 {
		ma = fmt.Sprintf("%.2f", s.MA200)
	}
	return fmt.Sprintf("%d\t%s\t%s\t%.4f\t%.2f-%.2f (%.0f%%)\tma200=%s",
		s.Bars, s.First.Format(time.DateOnly), s.Last.Format(time.DateOnly),
		s.LastClose, s.Low52w, s.High52w, s.Position*100, ma)
}
