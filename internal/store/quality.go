package store

import (
	"math"
	"time"

	"MarketVault/internal/model"
)

// CheckQuality inspects series for gaps longer than MaxGapDays, absent fields and
// non-positive prices. It never modifies series.
func (s *Store) CheckQuality(series model.Series, sym model.Symbol) *model.QualityReport {
	report := &model.QualityReport{
		Symbol:    sym,
		Bars:      len(series),
		CheckedAt: s.now(),
	}
	if len(series) == 0 {
		return report
	}
	report.First = series[0].Date
	report.Last = series[len(series)-1].Date

	for i, b := range series {
		report.Defects = append(report.Defects, barDefects(b)...)
		if i == 0 || b.Date.IsZero() || series[i-1].Date.IsZero() {
			continue
		}
		if days := model.DaysBetween(series[i-1].Date, b.Date); days > MaxGapDays {
			report.Gaps = append(report.Gaps, model.Gap{From: series[i-1].Date, To: b.Date, Days: days})
		}
	}
	return report
}

// barDefects lists every defect of b, unlike Bar.Validate which stops at the first.
func barDefects(b model.Bar) []model.Defect {
	var out []model.Defect
	if b.Date.IsZero() {
		out = append(out, model.Defect{Kind: model.DefectNull, Field: model.ColumnDate})
	}
	for _, f := range []struct {
		name string
		v    float64
	}{
		{model.ColumnOpen, b.Open},
		{model.ColumnHigh, b.High},
		{model.ColumnLow, b.Low},
		{model.ColumnClose, b.Close},
	} {
		switch {
		case math.IsNaN(f.v) || math.IsInf(f.v, 0):
			out = append(out, model.Defect{Kind: model.DefectNull, Field: f.name, Date: b.Date})
		case f.v <= 0:
			out = append(out, model.Defect{Kind: model.DefectNonPositive, Field: f.name, Date: b.Date})
		}
	}
	if b.Volume < 0 {
		out = append(out, model.Defect{Kind: model.DefectNull, Field: model.ColumnVolume, Date: b.Date})
	}
	return out
}

func (s *Store) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}
