package model

import "time"

// Gap is a stretch between two consecutive bars longer than the quality threshold.
type Gap struct {
	From time.Time
	To   time.Time
	Days int
}

// Defect is one bar-level data-quality problem.
type Defect struct {
	Kind  DefectKind
	Field string
	Date  time.Time
}

// QualityReport summarises the data-quality checks run over one series.
type QualityReport struct {
	Symbol    Symbol
	Bars      int
	First     time.Time
	Last      time.Time
	Gaps      []Gap
	Defects   []Defect
	CheckedAt time.Time
}

// Warnings counts findings that do not invalidate the series.
func (q *QualityReport) Warnings() int {
	return len(q.Gaps)
}

// Errors counts findings that invalidate individual bars.
func (q *QualityReport) Errors() int {
	return len(q.Defects)
}

// OK reports whether no defect or gap was found.
func (q *QualityReport) OK() bool {
	return q.Warnings() == 0 && q.Errors() == 0
}
