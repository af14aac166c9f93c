// Package shape provides the transformation stages ("shapers") that
// the pipeline applies to tables.
//
// A shaper is a pure function from one table to another. Parameters
// are validated at construction, before any data is loaded;
// preconditions against the actual column set are validated at each
// application, before any cell is touched. A shaper never mutates its
// input table.
package shape

import (
	"fmt"

	"ring5/stattab"
)

// A Shaper is one tabular transformation stage.
type Shaper interface {
	// Name identifies the shaper in errors and logs.
	Name() string

	// VerifyPreconditions checks that t declares every column the
	// shaper needs. It returns a *PreconditionError naming the
	// first missing column.
	VerifyPreconditions(t *stattab.Table) error

	// Apply returns the transformed table. The input is never
	// mutated. Apply re-checks preconditions, so calling it
	// directly is safe.
	Apply(t *stattab.Table) (*stattab.Table, error)
}

// A ValidationError reports a bad or missing shaper parameter. It is
// produced at construction, before any data is touched.
type ValidationError struct {
	Shaper string
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: parameter %q: %s", e.Shaper, e.Param, e.Reason)
}

// A PreconditionError reports that a table lacks a column a shaper
// requires. It is fatal for that shaper invocation only.
type PreconditionError struct {
	Shaper string
	Column string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: required column %q not present", e.Shaper, e.Column)
}

// A BaselineError reports that a normalization group has no usable
// baseline: either no row matched the baseline selector, or the
// baseline value summed to zero. It is fatal for that group.
type BaselineError struct {
	Group  string
	Column string
	Value  string
	Zero   bool
}

func (e *BaselineError) Error() string {
	if e.Zero {
		return fmt.Sprintf("normalizer: group %q: baseline %s=%s sums to zero", e.Group, e.Column, e.Value)
	}
	return fmt.Sprintf("normalizer: group %q: no row matches baseline %s=%s", e.Group, e.Column, e.Value)
}

// requireCols returns a *PreconditionError for the first column in
// cols that t does not declare.
func requireCols(shaper string, t *stattab.Table, cols ...string) error {
	for _, c := range cols {
		if !t.HasCol(c) {
			return &PreconditionError{Shaper: shaper, Column: c}
		}
	}
	return nil
}

// groupRows partitions row indices by their key over groupBy,
// preserving first-appearance order of groups.
func groupRows(t *stattab.Table, groupBy []string) (keys []string, groups map[string][]int) {
	groups = make(map[string][]int)
	for i := 0; i < t.NumRows(); i++ {
		k := t.Key(i, groupBy)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], i)
	}
	return keys, groups
}
