package shape

import "ring5/stattab"

// A ColumnSelector projects a table to a fixed column list, preserving
// row order and the given column order.
type ColumnSelector struct {
	columns []string
}

// NewColumnSelector validates params and builds the selector.
func NewColumnSelector(columns []string) (*ColumnSelector, error) {
	if len(columns) == 0 {
		return nil, &ValidationError{Shaper: "selector", Param: "columns", Reason: "must be a non-empty list"}
	}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if c == "" {
			return nil, &ValidationError{Shaper: "selector", Param: "columns", Reason: "contains an empty column name"}
		}
		if seen[c] {
			return nil, &ValidationError{Shaper: "selector", Param: "columns", Reason: "duplicate column " + c}
		}
		seen[c] = true
	}
	return &ColumnSelector{columns: append([]string(nil), columns...)}, nil
}

func (s *ColumnSelector) Name() string { return "selector" }

func (s *ColumnSelector) VerifyPreconditions(t *stattab.Table) error {
	return requireCols(s.Name(), t, s.columns...)
}

func (s *ColumnSelector) Apply(t *stattab.Table) (*stattab.Table, error) {
	if err := s.VerifyPreconditions(t); err != nil {
		return nil, err
	}
	return t.Project(s.columns)
}
