package collector

import (
	"context"
	"errors"
	"time"

	"MarketVault/internal/model"
)

// DefaultLookback is the full-refresh window, in calendar days.
const DefaultLookback = 500 * 24 * time.Hour

// FetchRequest selects the date range of a fetch. Exactly one field is set:
// Start for an incremental catch-up, Lookback for a full refresh.
type FetchRequest struct {
	Start    time.Time
	Lookback time.Duration
}

// Validate checks that exactly one of Start and Lookback is set.
func (r FetchRequest) Validate() error {
	hasStart := !r.Start.IsZero()
	hasLookback := r.Lookback > 0
	if hasStart == hasLookback {
		return errors.New("fetch request needs exactly one of start or lookback")
	}
	return nil
}

// From resolves the first calendar date covered by the request.
func (r FetchRequest) From(now time.Time) time.Time {
	if !r.Start.IsZero() {
		return model.DateOf(r.Start)
	}
	return model.DateOf(now.Add(-r.Lookback))
}

// Fetcher defines the interface for fetching daily bars from an external source.
// Returned bars need not be sorted or validated. An empty series with a nil error
// means the source has nothing for the requested range.
type Fetcher interface {
	FetchBars(ctx context.Context, sym model.Symbol, req FetchRequest) (model.Series, error)
	Name() string
}
