package recorder

import (
	"time"

	"MarketVault/internal/model"
)

// Failure is one symbol that failed during a run.
type Failure struct {
	Symbol  string
	Kind    string // see model.FailureKind
	Message string
}

// RunRecord summarises one sync run.
type RunRecord struct {
	ID          int64
	Trigger     string // "cli", "cron" or "telegram"
	Source      string
	Force       bool
	StartedAt   time.Time
	FinishedAt  time.Time
	Succeeded   int
	Failed      int
	Pending     int
	Skipped     int
	Incremental int
	FullRefresh int
	Err         string // run-level error such as cancellation
	Failures    []Failure
}

// NewRunRecord tallies a finished BatchResult. runErr is the error returned by Sync.
func NewRunRecord(result *model.BatchResult, started, finished time.Time, runErr error) *RunRecord {
	rec := &RunRecord{StartedAt: started, FinishedAt: finished}
	if runErr != nil {
		rec.Err = runErr.Error()
	}
	if result == nil {
		return rec
	}
	rec.Succeeded, rec.Failed, rec.Pending = result.Counts()
	for _, sym := range result.SucceededSymbols() {
		switch result.Succeeded[sym] {
		case model.ActionSkip:
			rec.Skipped++
		case model.ActionIncremental:
			rec.Incremental++
		case model.ActionFullRefresh:
			rec.FullRefresh++
		}
	}
	for _, sym := range result.FailedSymbols() {
		err := result.Failed[sym]
		rec.Failures = append(rec.Failures, Failure{
			Symbol:  sym.String(),
			Kind:    model.FailureKind(err),
			Message: err.Error(),
		})
	}
	return rec
}

// Duration is the wall time of the run.
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// OK reports a run that finished with no failed or pending symbols.
func (r *RunRecord) OK() bool {
	return r.Failed == 0 && r.Pending == 0 && r.Err == ""
}

// Recorder persists run history and quality findings.
type Recorder interface {
	RecordRun(run *RunRecord) error
	RecordQuality(report *model.QualityReport) error
	RecentRuns(limit int) ([]RunRecord, error)
	Close() error
}
