package shape

import (
	"strconv"

	"ring5/stattab"
)

// A RetypeTarget selects the target type of a Retyper.
type RetypeTarget string

const (
	// ToScalar coerces a column to numeric cells. Cells that do
	// not parse become the missing marker rather than a guess.
	ToScalar RetypeTarget = "scalar"

	// ToFactor coerces a column to categorical cells, optionally
	// imposing a fixed category order used for sorting and by the
	// render sink.
	ToFactor RetypeTarget = "factor"
)

// A Retyper coerces one column between numeric and categorical types.
// Parsed trees often carry numeric-looking configuration values (seed
// numbers, cache sizes in bytes) that plots need treated as
// categories, and vice versa.
type Retyper struct {
	column string
	target RetypeTarget
	order  []string
}

// NewRetyper validates params and builds the retyper. order is only
// meaningful with ToFactor.
func NewRetyper(column string, target RetypeTarget, order []string) (*Retyper, error) {
	if column == "" {
		return nil, &ValidationError{Shaper: "retyper", Param: "column", Reason: "must be set"}
	}
	if target != ToScalar && target != ToFactor {
		return nil, &ValidationError{Shaper: "retyper", Param: "targetType", Reason: "must be scalar or factor"}
	}
	if target == ToScalar && len(order) > 0 {
		return nil, &ValidationError{Shaper: "retyper", Param: "order", Reason: "only valid with target factor"}
	}
	return &Retyper{column: column, target: target, order: append([]string(nil), order...)}, nil
}

func (r *Retyper) Name() string { return "retyper" }

func (r *Retyper) VerifyPreconditions(t *stattab.Table) error {
	return requireCols(r.Name(), t, r.column)
}

func (r *Retyper) Apply(t *stattab.Table) (*stattab.Table, error) {
	if err := r.VerifyPreconditions(t); err != nil {
		return nil, err
	}
	out := t.Clone()
	for i := 0; i < out.NumRows(); i++ {
		v, _ := out.Value(i, r.column)
		if v.IsMissing() {
			continue
		}
		switch r.target {
		case ToScalar:
			if f, err := strconv.ParseFloat(v.Text(), 64); err == nil {
				out.SetValue(i, r.column, stattab.Num(f))
			} else {
				out.SetValue(i, r.column, stattab.Missing())
			}
		case ToFactor:
			out.SetValue(i, r.column, stattab.Str(v.Text()))
		}
	}
	if r.target == ToFactor && len(r.order) > 0 {
		out.SetCategoryOrder(r.column, r.order)
	}
	return out, nil
}
