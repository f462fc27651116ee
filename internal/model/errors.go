package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound   = errors.New("series not found")
	ErrFetch      = errors.New("fetch failed")
	ErrValidation = errors.New("validation failed")
	ErrWrite      = errors.New("write failed")
)

// DefectKind classifies a data-quality defect.
type DefectKind string

const (
	DefectGap         DefectKind = "gap"
	DefectNull        DefectKind = "null"
	DefectNonPositive DefectKind = "non_positive"
	DefectMissing     DefectKind = "missing_column"
)

// ValidationError describes why a bar or series was rejected.
type ValidationError struct {
	Kind  DefectKind
	Field string
	Date  time.Time
}

func (e *ValidationError) Error() string {
	if e.Date.IsZero() {
		return fmt.Sprintf("%s: %s", e.Kind, e.Field)
	}
	return fmt.Sprintf("%s: %s on %s", e.Kind, e.Field, e.Date.Format(time.DateOnly))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// FailureKind maps err onto the failure taxonomy used in reports and run history.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrFetch):
		return "fetch"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrWrite):
		return "write"
	default:
		return "unknown"
	}
}
