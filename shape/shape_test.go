package shape

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ring5/stattab"
)

func num(t *testing.T, tab *stattab.Table, row int, col string) float64 {
	t.Helper()
	v, ok := tab.Value(row, col)
	require.True(t, ok, "column %q", col)
	f, isNum := v.Float()
	require.True(t, isNum, "column %q row %d is not numeric", col, row)
	return f
}

func TestColumnSelector(t *testing.T) {
	tab := stattab.New("a", "b", "c")
	tab.AppendRow(map[string]stattab.Value{"a": stattab.Num(1), "b": stattab.Num(2), "c": stattab.Str("x")})

	s, err := NewColumnSelector([]string{"c", "a"})
	require.NoError(t, err)
	got, err := s.Apply(tab)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, got.Cols())

	// Missing column is a precondition error naming the column.
	s, err = NewColumnSelector([]string{"nope"})
	require.NoError(t, err)
	_, err = s.Apply(tab)
	var pe *PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "nope", pe.Column)
}

func TestColumnSelectorValidation(t *testing.T) {
	_, err := NewColumnSelector(nil)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "columns", ve.Param)

	_, err = NewColumnSelector([]string{"a", "a"})
	require.Error(t, err)
}

func TestMixerSumAndSDPropagation(t *testing.T) {
	tab := stattab.New("A", "A.sd", "B", "B.sd")
	tab.AppendRow(map[string]stattab.Value{
		"A": stattab.Num(10), "A.sd": stattab.Num(1),
		"B": stattab.Num(20), "B.sd": stattab.Num(2),
	})

	m, err := NewMixer(map[string][]string{"C": {"A", "B"}})
	require.NoError(t, err)
	got, err := m.Apply(tab)
	require.NoError(t, err)

	assert.InDelta(t, 30.0, num(t, got, 0, "C"), 1e-6)
	assert.InDelta(t, math.Sqrt(5), num(t, got, 0, "C.sd"), 1e-6)
}

func TestMixerSDOmission(t *testing.T) {
	tab := stattab.New("A", "B", "B.sd")
	tab.AppendRow(map[string]stattab.Value{
		"A": stattab.Num(10), "B": stattab.Num(20), "B.sd": stattab.Num(2),
	})

	m, err := NewMixer(map[string][]string{"C": {"A", "B"}})
	require.NoError(t, err)
	got, err := m.Apply(tab)
	require.NoError(t, err)

	assert.InDelta(t, 30.0, num(t, got, 0, "C"), 1e-6)
	// A has no A.sd companion, so no C.sd is produced at all.
	assert.False(t, got.HasCol("C.sd"))
}

func TestMixerDoesNotMutateInput(t *testing.T) {
	tab := stattab.New("A", "B")
	tab.AppendRow(map[string]stattab.Value{"A": stattab.Num(1), "B": stattab.Num(2)})

	m, err := NewMixer(map[string][]string{"C": {"A", "B"}})
	require.NoError(t, err)
	_, err = m.Apply(tab)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, tab.Cols())
}

func newBenchTable() *stattab.Table {
	tab := stattab.New("benchmark", "config", "X", "X.sd")
	tab.AppendRow(map[string]stattab.Value{
		"benchmark": stattab.Str("mcf"), "config": stattab.Str("baseline"),
		"X": stattab.Num(10), "X.sd": stattab.Num(2),
	})
	tab.AppendRow(map[string]stattab.Value{
		"benchmark": stattab.Str("mcf"), "config": stattab.Str("opt"),
		"X": stattab.Num(5), "X.sd": stattab.Num(1),
	})
	return tab
}

func TestNormalizerBaselineDivision(t *testing.T) {
	n, err := NewNormalizer(NormalizerConfig{
		NormalizerVars:  []string{"X"},
		NormalizeVars:   []string{"X"},
		NormalizerCol:   "config",
		NormalizerValue: "baseline",
		GroupBy:         []string{"benchmark"},
		NormalizeSD:     true,
	})
	require.NoError(t, err)

	got, err := n.Apply(newBenchTable())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, num(t, got, 0, "X"), 1e-12)
	assert.InDelta(t, 0.5, num(t, got, 1, "X"), 1e-12)
	// sd scales linearly under division by a constant.
	assert.InDelta(t, 0.2, num(t, got, 0, "X.sd"), 1e-12)
	assert.InDelta(t, 0.1, num(t, got, 1, "X.sd"), 1e-12)
}

func TestNormalizerZeroBaseline(t *testing.T) {
	tab := stattab.New("benchmark", "config", "X")
	tab.AppendRow(map[string]stattab.Value{
		"benchmark": stattab.Str("mcf"), "config": stattab.Str("baseline"), "X": stattab.Num(0),
	})
	tab.AppendRow(map[string]stattab.Value{
		"benchmark": stattab.Str("mcf"), "config": stattab.Str("opt"), "X": stattab.Num(5),
	})

	n, err := NewNormalizer(NormalizerConfig{
		NormalizerVars:  []string{"X"},
		NormalizeVars:   []string{"X"},
		NormalizerCol:   "config",
		NormalizerValue: "baseline",
		GroupBy:         []string{"benchmark"},
	})
	require.NoError(t, err)

	_, err = n.Apply(tab)
	var be *BaselineError
	require.True(t, errors.As(err, &be))
	assert.True(t, be.Zero)
}

func TestNormalizerMissingBaselineRow(t *testing.T) {
	tab := stattab.New("benchmark", "config", "X")
	tab.AppendRow(map[string]stattab.Value{
		"benchmark": stattab.Str("mcf"), "config": stattab.Str("opt"), "X": stattab.Num(5),
	})

	n, err := NewNormalizer(NormalizerConfig{
		NormalizerVars:  []string{"X"},
		NormalizeVars:   []string{"X"},
		NormalizerCol:   "config",
		NormalizerValue: "baseline",
		GroupBy:         []string{"benchmark"},
	})
	require.NoError(t, err)

	_, err = n.Apply(tab)
	var be *BaselineError
	require.True(t, errors.As(err, &be))
	assert.False(t, be.Zero)
}

func newSeedTable() *stattab.Table {
	tab := stattab.New("benchmark", "config", "seed", "ipc")
	add := func(bench, cfg, seed string, ipc float64) {
		tab.AppendRow(map[string]stattab.Value{
			"benchmark": stattab.Str(bench), "config": stattab.Str(cfg),
			"seed": stattab.Str(seed), "ipc": stattab.Num(ipc),
		})
	}
	add("mcf", "base", "1", 1.0)
	add("mcf", "base", "2", 2.0)
	add("mcf", "base", "3", 3.0)
	add("lbm", "base", "1", 4.0)
	return tab
}

func TestMeanReducerArithmetic(t *testing.T) {
	m, err := NewMeanReducer(MeanReducerConfig{
		GroupBy:       []string{"benchmark", "config"},
		StatColumns:   []string{"ipc"},
		SeedColumn:    "seed",
		MeanAlgorithm: Arithmetic,
	})
	require.NoError(t, err)

	got, err := m.Apply(newSeedTable())
	require.NoError(t, err)
	require.Equal(t, 2, got.NumRows())
	assert.False(t, got.HasCol("seed"))

	// Sorted by group key: lbm before mcf.
	assert.InDelta(t, 4.0, num(t, got, 0, "ipc"), 1e-12)
	// Group of size 1 has sd 0, not missing.
	assert.InDelta(t, 0.0, num(t, got, 0, "ipc.sd"), 1e-12)

	assert.InDelta(t, 2.0, num(t, got, 1, "ipc"), 1e-12)
	assert.InDelta(t, 1.0, num(t, got, 1, "ipc.sd"), 1e-12)
}

func TestMeanReducerGeometricHarmonic(t *testing.T) {
	tab := stattab.New("benchmark", "seed", "x")
	for i, v := range []float64{2, 8} {
		tab.AppendRow(map[string]stattab.Value{
			"benchmark": stattab.Str("mcf"),
			"seed":      stattab.Str(string(rune('1' + i))),
			"x":         stattab.Num(v),
		})
	}

	geo, err := NewMeanReducer(MeanReducerConfig{
		GroupBy: []string{"benchmark"}, StatColumns: []string{"x"},
		SeedColumn: "seed", MeanAlgorithm: Geometric,
	})
	require.NoError(t, err)
	got, err := geo.Apply(tab)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, num(t, got, 0, "x"), 1e-9)

	har, err := NewMeanReducer(MeanReducerConfig{
		GroupBy: []string{"benchmark"}, StatColumns: []string{"x"},
		SeedColumn: "seed", MeanAlgorithm: Harmonic,
	})
	require.NoError(t, err)
	got, err = har.Apply(tab)
	require.NoError(t, err)
	assert.InDelta(t, 3.2, num(t, got, 0, "x"), 1e-9)
}

func TestMeanReducerValidation(t *testing.T) {
	_, err := NewMeanReducer(MeanReducerConfig{
		GroupBy: []string{"benchmark"}, StatColumns: []string{"x"},
		SeedColumn: "seed", MeanAlgorithm: "median",
	})
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "meanAlgorithm", ve.Param)
}

func TestRetyper(t *testing.T) {
	tab := stattab.New("config", "x")
	tab.AppendRow(map[string]stattab.Value{"config": stattab.Num(2), "x": stattab.Str("1.5")})
	tab.AppendRow(map[string]stattab.Value{"config": stattab.Num(1), "x": stattab.Str("oops")})

	toFactor, err := NewRetyper("config", ToFactor, []string{"2", "1"})
	require.NoError(t, err)
	got, err := toFactor.Apply(tab)
	require.NoError(t, err)
	v, _ := got.Value(0, "config")
	_, isNum := v.Float()
	assert.False(t, isNum)
	ord, ok := got.CategoryOrder("config")
	require.True(t, ok)
	assert.Equal(t, []string{"2", "1"}, ord)

	toScalar, err := NewRetyper("x", ToScalar, nil)
	require.NoError(t, err)
	got, err = toScalar.Apply(tab)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, num(t, got, 0, "x"), 1e-12)
	v, _ = got.Value(1, "x")
	assert.True(t, v.IsMissing())
}
