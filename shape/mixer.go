package shape

import (
	"math"
	"sort"

	"ring5/stattab"
)

// A Mixer derives new columns as per-row sums of existing columns,
// propagating measurement uncertainty.
//
// When every source column X of a derived column has an X.sd
// companion, the derived column gets a companion equal to the
// independent-error combination sqrt(sum of squared source sds). When
// any source lacks a companion, no companion is produced: an
// incomplete uncertainty estimate would be worse than none.
type Mixer struct {
	mix map[string][]string
}

// NewMixer validates params and builds the mixer. mix maps each new
// column name to the source columns summed into it.
func NewMixer(mix map[string][]string) (*Mixer, error) {
	if len(mix) == 0 {
		return nil, &ValidationError{Shaper: "mixer", Param: "mixer", Reason: "must be a non-empty mapping"}
	}
	for name, srcs := range mix {
		if name == "" {
			return nil, &ValidationError{Shaper: "mixer", Param: "mixer", Reason: "contains an empty derived column name"}
		}
		if len(srcs) == 0 {
			return nil, &ValidationError{Shaper: "mixer", Param: "mixer", Reason: "derived column " + name + " has no source columns"}
		}
	}
	cp := make(map[string][]string, len(mix))
	for name, srcs := range mix {
		cp[name] = append([]string(nil), srcs...)
	}
	return &Mixer{mix: cp}, nil
}

func (m *Mixer) Name() string { return "mixer" }

// derived returns the new column names in deterministic order.
func (m *Mixer) derived() []string {
	names := make([]string, 0, len(m.mix))
	for name := range m.mix {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Mixer) VerifyPreconditions(t *stattab.Table) error {
	for _, name := range m.derived() {
		if err := requireCols(m.Name(), t, m.mix[name]...); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mixer) Apply(t *stattab.Table) (*stattab.Table, error) {
	if err := m.VerifyPreconditions(t); err != nil {
		return nil, err
	}
	out := t.Clone()
	for _, name := range m.derived() {
		srcs := m.mix[name]

		propagate := true
		for _, src := range srcs {
			if !t.HasCol(stattab.SDName(src)) {
				propagate = false
				break
			}
		}

		out.AddCols(name)
		if propagate {
			out.AddCols(stattab.SDName(name))
		}

		for i := 0; i < out.NumRows(); i++ {
			sum, ok := 0.0, true
			for _, src := range srcs {
				v, _ := out.Value(i, src)
				f, isNum := v.Float()
				if !isNum {
					ok = false
					break
				}
				sum += f
			}
			if ok {
				out.SetValue(i, name, stattab.Num(sum))
			}

			if !propagate {
				continue
			}
			sq, ok := 0.0, true
			for _, src := range srcs {
				v, _ := out.Value(i, stattab.SDName(src))
				f, isNum := v.Float()
				if !isNum {
					ok = false
					break
				}
				sq += f * f
			}
			if ok {
				out.SetValue(i, stattab.SDName(name), stattab.Num(math.Sqrt(sq)))
			}
		}
	}
	return out, nil
}
