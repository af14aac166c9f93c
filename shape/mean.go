package shape

import (
	"github.com/aclements/go-moremath/stats"

	"ring5/stattab"
)

// A MeanAlgorithm selects how a MeanReducer averages a group.
type MeanAlgorithm string

const (
	Arithmetic MeanAlgorithm = "arithmetic"
	Geometric  MeanAlgorithm = "geometric"
	Harmonic   MeanAlgorithm = "harmonic"
)

func (a MeanAlgorithm) valid() bool {
	switch a {
	case Arithmetic, Geometric, Harmonic:
		return true
	}
	return false
}

// A MeanReducer collapses repeated-seed rows into one row per group.
//
// Rows sharing the same groupBy values form one group; the seed column
// distinguishes the repetitions and is dropped from the output. Each
// statistic column is replaced by its mean across the group, with a
// .sd companion holding the sample standard deviation. A group of
// size 1 yields a standard deviation of zero, not a missing value.
// Columns that are neither grouped, statistic nor seed keep the first
// value seen in the group.
type MeanReducer struct {
	groupBy   []string
	statCols  []string
	seedCol   string
	algorithm MeanAlgorithm
}

// MeanReducerConfig carries the MeanReducer parameters.
type MeanReducerConfig struct {
	GroupBy       []string      `json:"groupBy"`
	StatColumns   []string      `json:"statisticColumns"`
	SeedColumn    string        `json:"seedColumn"`
	MeanAlgorithm MeanAlgorithm `json:"meanAlgorithm"`
}

// NewMeanReducer validates the config and builds the reducer.
func NewMeanReducer(cfg MeanReducerConfig) (*MeanReducer, error) {
	if len(cfg.GroupBy) == 0 {
		return nil, &ValidationError{Shaper: "mean", Param: "groupBy", Reason: "must be a non-empty list"}
	}
	if len(cfg.StatColumns) == 0 {
		return nil, &ValidationError{Shaper: "mean", Param: "statisticColumns", Reason: "must be a non-empty list"}
	}
	if cfg.SeedColumn == "" {
		return nil, &ValidationError{Shaper: "mean", Param: "seedColumn", Reason: "must be set"}
	}
	if !cfg.MeanAlgorithm.valid() {
		return nil, &ValidationError{Shaper: "mean", Param: "meanAlgorithm",
			Reason: "must be one of arithmetic, geometric, harmonic"}
	}
	return &MeanReducer{
		groupBy:   append([]string(nil), cfg.GroupBy...),
		statCols:  append([]string(nil), cfg.StatColumns...),
		seedCol:   cfg.SeedColumn,
		algorithm: cfg.MeanAlgorithm,
	}, nil
}

func (m *MeanReducer) Name() string { return "mean" }

func (m *MeanReducer) VerifyPreconditions(t *stattab.Table) error {
	if err := requireCols(m.Name(), t, m.groupBy...); err != nil {
		return err
	}
	if err := requireCols(m.Name(), t, m.seedCol); err != nil {
		return err
	}
	return requireCols(m.Name(), t, m.statCols...)
}

func (m *MeanReducer) Apply(t *stattab.Table) (*stattab.Table, error) {
	if err := m.VerifyPreconditions(t); err != nil {
		return nil, err
	}

	isStat := make(map[string]bool, len(m.statCols))
	for _, c := range m.statCols {
		isStat[c] = true
	}

	// Output layout: input columns minus the seed column and minus
	// the source .sd companions of reduced statistics, with a fresh
	// .sd companion after each statistic column.
	var cols []string
	for _, c := range t.Cols() {
		if c == m.seedCol {
			continue
		}
		if stattab.IsSD(c) && isStat[stattab.BaseName(c)] {
			continue
		}
		cols = append(cols, c)
		if isStat[c] {
			cols = append(cols, stattab.SDName(c))
		}
	}
	out := stattab.New(cols...)

	keys, groups := groupRows(t, m.groupBy)
	for _, key := range keys {
		rows := groups[key]
		cells := make(map[string]stattab.Value, len(cols))

		// Non-statistic columns carry the first value seen.
		first := t.Row(rows[0])
		for _, c := range cols {
			if v, ok := first[c]; ok && !isStat[c] && !stattab.IsSD(c) {
				cells[c] = v
			}
		}

		for _, c := range m.statCols {
			var xs []float64
			for _, i := range rows {
				v, _ := t.Value(i, c)
				if f, ok := v.Float(); ok {
					xs = append(xs, f)
				}
			}
			if len(xs) == 0 {
				cells[c] = stattab.Missing()
				cells[stattab.SDName(c)] = stattab.Missing()
				continue
			}
			cells[c] = stattab.Num(m.mean(xs))
			if len(xs) == 1 {
				cells[stattab.SDName(c)] = stattab.Num(0)
			} else {
				cells[stattab.SDName(c)] = stattab.Num(stats.Sample{Xs: xs}.StdDev())
			}
		}
		out.AppendRow(cells)
	}
	out.SortByKey(m.groupBy)
	return out, nil
}

func (m *MeanReducer) mean(xs []float64) float64 {
	s := stats.Sample{Xs: xs}
	switch m.algorithm {
	case Geometric:
		return s.GeoMean()
	case Harmonic:
		inv := 0.0
		for _, x := range xs {
			inv += 1 / x
		}
		return float64(len(xs)) / inv
	}
	return s.Mean()
}
