package shape

import "ring5/stattab"

// A Normalizer scales statistic columns against a per-group baseline.
//
// Within each group of rows sharing the same groupBy values, the
// baseline is the sum of the normalizer variables over the rows whose
// normalizer column equals the baseline value. Every row in the group
// then has each normalize variable divided by that baseline. A group
// with no matching row, or a baseline summing to zero, is a
// *BaselineError: treating it as 1 would silently fabricate data.
//
// Uncertainty companions scale linearly under division by a constant,
// so when normalizeSD is set the .sd companion of each normalized
// column is divided by the same baseline.
type Normalizer struct {
	normalizerVars  []string
	normalizeVars   []string
	normalizerCol   string
	normalizerValue string
	groupBy         []string
	normalizeSD     bool
}

// NormalizerConfig carries the Normalizer parameters.
type NormalizerConfig struct {
	NormalizerVars  []string `json:"normalizerVars"`
	NormalizeVars   []string `json:"normalizeVars"`
	NormalizerCol   string   `json:"normalizerColumn"`
	NormalizerValue string   `json:"normalizerValue"`
	GroupBy         []string `json:"groupBy"`
	NormalizeSD     bool     `json:"normalizeSd"`
}

// NewNormalizer validates the config and builds the normalizer.
// NormalizerVars defaults to NormalizeVars when empty.
func NewNormalizer(cfg NormalizerConfig) (*Normalizer, error) {
	if len(cfg.NormalizeVars) == 0 {
		return nil, &ValidationError{Shaper: "normalizer", Param: "normalizeVars", Reason: "must be a non-empty list"}
	}
	if cfg.NormalizerCol == "" {
		return nil, &ValidationError{Shaper: "normalizer", Param: "normalizerColumn", Reason: "must be set"}
	}
	if cfg.NormalizerValue == "" {
		return nil, &ValidationError{Shaper: "normalizer", Param: "normalizerValue", Reason: "must be set"}
	}
	if len(cfg.GroupBy) == 0 {
		return nil, &ValidationError{Shaper: "normalizer", Param: "groupBy", Reason: "must be a non-empty list"}
	}
	normalizerVars := cfg.NormalizerVars
	if len(normalizerVars) == 0 {
		normalizerVars = cfg.NormalizeVars
	}
	return &Normalizer{
		normalizerVars:  append([]string(nil), normalizerVars...),
		normalizeVars:   append([]string(nil), cfg.NormalizeVars...),
		normalizerCol:   cfg.NormalizerCol,
		normalizerValue: cfg.NormalizerValue,
		groupBy:         append([]string(nil), cfg.GroupBy...),
		normalizeSD:     cfg.NormalizeSD,
	}, nil
}

func (n *Normalizer) Name() string { return "normalizer" }

func (n *Normalizer) VerifyPreconditions(t *stattab.Table) error {
	if err := requireCols(n.Name(), t, n.normalizerCol); err != nil {
		return err
	}
	if err := requireCols(n.Name(), t, n.groupBy...); err != nil {
		return err
	}
	if err := requireCols(n.Name(), t, n.normalizerVars...); err != nil {
		return err
	}
	return requireCols(n.Name(), t, n.normalizeVars...)
}

func (n *Normalizer) Apply(t *stattab.Table) (*stattab.Table, error) {
	if err := n.VerifyPreconditions(t); err != nil {
		return nil, err
	}
	out := t.Clone()
	keys, groups := groupRows(out, n.groupBy)
	for _, key := range keys {
		rows := groups[key]

		baseline, matched := 0.0, false
		for _, i := range rows {
			v, _ := out.Value(i, n.normalizerCol)
			if v.Text() != n.normalizerValue {
				continue
			}
			matched = true
			for _, col := range n.normalizerVars {
				cell, _ := out.Value(i, col)
				if f, ok := cell.Float(); ok {
					baseline += f
				}
			}
		}
		if !matched {
			return nil, &BaselineError{Group: key, Column: n.normalizerCol, Value: n.normalizerValue}
		}
		if baseline == 0 {
			return nil, &BaselineError{Group: key, Column: n.normalizerCol, Value: n.normalizerValue, Zero: true}
		}

		for _, i := range rows {
			for _, col := range n.normalizeVars {
				scaleCell(out, i, col, baseline)
				if n.normalizeSD && out.HasCol(stattab.SDName(col)) {
					scaleCell(out, i, stattab.SDName(col), baseline)
				}
			}
		}
	}
	return out, nil
}

func scaleCell(t *stattab.Table, row int, col string, by float64) {
	v, _ := t.Value(row, col)
	if f, ok := v.Float(); ok {
		t.SetValue(row, col, stattab.Num(f/by))
	}
}
