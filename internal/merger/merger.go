// Package merger combines a stored series with freshly fetched bars.
package merger

import "MarketVault/internal/model"

// Combine merges fresh into old. Bars from fresh win on a shared date; every other bar
// from either side is kept. The result is sorted ascending with unique dates. Neither
// input is modified.
func Combine(old, fresh model.Series) model.Series {
	if len(old) == 0 {
		return fresh.Dedup()
	}
	merged := make(model.Series, 0, len(old)+len(fresh))
	merged = append(merged, old...)
	merged = append(merged, fresh...)
	// Dedup is stable and keeps the last bar per date, so fresh bars shadow old ones.
	return merged.Dedup()
}
