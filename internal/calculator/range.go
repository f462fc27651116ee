package calculator

import (
	"errors"
	"math"

	"MarketVault/internal/model"
)

// TradingDays52w is the number of sessions in a 52-week window.
const TradingDays52w = 252

// Range scans the most recent n bars and returns the highest high and lowest low.
func Range(bars model.Series, n int) (high, low float64, err error) {
	if len(bars) == 0 {
		return 0, 0, errors.New("no daily bars provided")
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, b := range bars.Tail(n) {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low, nil
}

// Position returns where current sits within [low, high], clamped to 0.0~1.0.
func Position(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	return math.Min(math.Max((current-low)/(high-low), 0), 1), nil
}
