package model

import (
	"sort"
	"sync"
)

// BatchResult accumulates per-symbol outcomes of one sync run. Safe for concurrent use.
type BatchResult struct {
	mu        sync.Mutex
	Succeeded map[Symbol]Action
	Failed    map[Symbol]error
	// Pending lists symbols that were never started because the run was interrupted.
	Pending []Symbol
}

// NewBatchResult returns an empty result.
func NewBatchResult() *BatchResult {
	return &BatchResult{
		Succeeded: make(map[Symbol]Action),
		Failed:    make(map[Symbol]error),
	}
}

// Succeed records sym as done with the given action.
func (r *BatchResult) Succeed(sym Symbol, action Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.Failed, sym)
	r.Succeeded[sym] = action
}

// Fail records sym as failed.
func (r *BatchResult) Fail(sym Symbol, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.Succeeded, sym)
	r.Failed[sym] = err
}

// Counts returns the number of succeeded, failed and pending symbols.
func (r *BatchResult) Counts() (succeeded, failed, pending int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Succeeded), len(r.Failed), len(r.Pending)
}

// Partial reports whether some symbols failed while others succeeded.
func (r *BatchResult) Partial() bool {
	s, f, _ := r.Counts()
	return s > 0 && f > 0
}

// FailedSymbols returns the failed symbols sorted by their string form.
func (r *BatchResult) FailedSymbols() []Symbol {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Symbol, 0, len(r.Failed))
	for sym := range r.Failed {
		out = append(out, sym)
	}
	SortSymbols(out)
	return out
}

// SucceededSymbols returns the succeeded symbols sorted by their string form.
func (r *BatchResult) SucceededSymbols() []Symbol {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Symbol, 0, len(r.Succeeded))
	for sym := range r.Succeeded {
		out = append(out, sym)
	}
	SortSymbols(out)
	return out
}

// SortSymbols orders symbols by market then code.
func SortSymbols(syms []Symbol) {
	sort.Slice(syms, func(i, j int) bool {
		if syms[i].Market != syms[j].Market {
			return syms[i].Market < syms[j].Market
		}
		return syms[i].Code < syms[j].Code
	})
}
