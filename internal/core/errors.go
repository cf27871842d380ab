package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidPeriod      = errors.New("invalid period")
	ErrInvalidProjectType = errors.New("invalid project type")
	ErrUnknownCategory    = errors.New("unknown category")
	ErrEmptyCategoryID    = errors.New("empty category id")
	ErrEmptyLabel         = errors.New("empty category label")
)

// ValidationError describes a numeric input that could not be parsed. The
// engine coerces such inputs to zero; the error only travels to logs and API
// responses as a warning.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a failed store operation during a save or cascade.
// Writes completed before the failure are not rolled back.
type PersistenceError struct {
	Op     string
	Period Period
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Period, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// PartialWriteError collects per-project ledger write-back failures. Sibling
// projects were still written.
type PartialWriteError struct {
	Failures map[string]error
}

func (e *PartialWriteError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e.Failures[id]))
	}
	return fmt.Sprintf("ledger write-back failed for %d project(s): %s", len(ids), strings.Join(parts, "; "))
}

func (e *PartialWriteError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
