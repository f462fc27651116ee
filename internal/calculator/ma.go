package calculator

import (
	"errors"

	"MarketVault/internal/model"
)

// SMA computes the simple moving average of the last period closes.
func SMA(bars model.Series, period int) (float64, error) {
	if period <= 0 {
		return 0, errors.New("period must be positive")
	}
	if len(bars) < period {
		return 0, errors.New("not enough data for SMA calculation")
	}
	sum := 0.0
	for _, b := range bars.Tail(period) {
		sum += b.Close
	}
	return sum / float64(period), nil
}
