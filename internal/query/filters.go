// Package query assembles parameterized read statements against the
// session catalog. The builder is stateless and pure: identical inputs
// always produce an identical statement.
package query

import (
	"time"

	skberrors "skb/internal/errors"
)

// Filter is a closed set of named filter variants. Callers combine them;
// each variant validates itself before assembly.
type Filter interface {
	validate() error
}

// ByProject restricts results to one project path.
type ByProject struct {
	ProjectPath string
}

func (f ByProject) validate() error {
	if f.ProjectPath == "" {
		return skberrors.New(skberrors.InvalidQuery, "project filter requires a path", nil)
	}
	return nil
}

// ByDateRange restricts results to sessions whose last message falls in
// [From, To]. Either bound may be zero for an open interval.
type ByDateRange struct {
	From time.Time
	To   time.Time
}

func (f ByDateRange) validate() error {
	if f.From.IsZero() && f.To.IsZero() {
		return skberrors.New(skberrors.InvalidQuery, "date range filter requires at least one bound", nil)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return skberrors.New(skberrors.InvalidQuery, "date range upper bound precedes lower bound", nil)
	}
	return nil
}

// BySearchTerm restricts results to full-text matches. The term is
// sanitized during assembly; operator-only input matches nothing.
type BySearchTerm struct {
	Term string
}

func (f BySearchTerm) validate() error {
	return nil // any input is accepted, sanitization handles the rest
}

// ByAnalyzed restricts results by the analyzed flag.
type ByAnalyzed struct {
	Analyzed bool
}

func (f ByAnalyzed) validate() error {
	return nil
}
