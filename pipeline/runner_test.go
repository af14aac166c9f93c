package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ring5/shape"
	"ring5/stattab"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func params(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func inputTable() *stattab.Table {
	tab := stattab.New("benchmark", "configuration", "seed", "A", "A.sd", "B", "B.sd")
	add := func(bench, cfg, seed string, a, asd, b, bsd float64) {
		tab.AppendRow(map[string]stattab.Value{
			"benchmark":     stattab.Str(bench),
			"configuration": stattab.Str(cfg),
			"seed":          stattab.Str(seed),
			"A":             stattab.Num(a), "A.sd": stattab.Num(asd),
			"B": stattab.Num(b), "B.sd": stattab.Num(bsd),
		})
	}
	add("mcf", "baseline", "1", 10, 1, 20, 2)
	add("mcf", "opt", "1", 5, 0.5, 10, 1)
	add("lbm", "baseline", "1", 8, 1, 16, 2)
	add("lbm", "opt", "1", 4, 0.5, 8, 1)
	return tab
}

func mixSpec(t *testing.T, id string, deps ...string) Spec {
	return Spec{
		ID:        id,
		Kind:      "mixer",
		Params:    params(t, map[string]any{"mixer": map[string][]string{"C": {"A", "B"}}}),
		DependsOn: deps,
	}
}

func TestRunSingleStage(t *testing.T) {
	r := &Runner{Workers: 4}
	final, report, err := r.Run(context.Background(), []Spec{mixSpec(t, "mix")}, inputTable())
	require.NoError(t, err)
	assert.Equal(t, []string{"mix"}, report.Completed)
	require.True(t, final.HasCol("C"))
	require.True(t, final.HasCol("C.sd"))

	// Rows sorted by benchmark/configuration/seed.
	v, _ := final.Value(0, "benchmark")
	assert.Equal(t, "lbm", v.Text())
	c, _ := final.Value(0, "C")
	f, _ := c.Float()
	assert.InDelta(t, 24.0, f, 1e-9)
}

func TestRunDependentStages(t *testing.T) {
	specs := []Spec{
		mixSpec(t, "mix"),
		{
			ID:   "norm",
			Kind: "normalizer",
			Params: params(t, shape.NormalizerConfig{
				NormalizerVars:  []string{"C"},
				NormalizeVars:   []string{"C"},
				NormalizerCol:   "configuration",
				NormalizerValue: "baseline",
				GroupBy:         []string{"benchmark"},
				NormalizeSD:     true,
			}),
			DependsOn: []string{"mix"},
		},
	}
	r := &Runner{Workers: 2}
	final, report, err := r.Run(context.Background(), specs, inputTable())
	require.NoError(t, err)
	assert.Equal(t, []string{"mix", "norm"}, report.Completed)

	// lbm/baseline first: normalized C is 1.
	c, _ := final.Value(0, "C")
	f, _ := c.Float()
	assert.InDelta(t, 1.0, f, 1e-9)
	c, _ = final.Value(1, "C")
	f, _ = c.Float()
	assert.InDelta(t, 0.5, f, 1e-9)
}

func TestRunRowOrderDeterminism(t *testing.T) {
	// Two independent stages plus a joint consumer, run many
	// times: the final CSV must be byte-identical regardless of
	// worker completion order.
	specs := []Spec{
		mixSpec(t, "mixC"),
		{
			ID:     "mixD",
			Kind:   "mixer",
			Params: params(t, map[string]any{"mixer": map[string][]string{"D": {"B", "B"}}}),
		},
		{
			ID:        "sel",
			Kind:      "selector",
			Params:    params(t, map[string]any{"columns": []string{"benchmark", "configuration", "seed", "C", "D"}}),
			DependsOn: []string{"mixC", "mixD"},
		},
	}

	var first []byte
	for i := 0; i < 5; i++ {
		r := &Runner{Workers: 3}
		final, _, err := r.Run(context.Background(), specs, inputTable())
		require.NoError(t, err)
		var buf bytes.Buffer
		require.NoError(t, final.WriteCSV(&buf))
		if first == nil {
			first = buf.Bytes()
			continue
		}
		assert.Equal(t, first, buf.Bytes())
	}
}

func TestRunCycleRejectedBeforeExecution(t *testing.T) {
	specs := []Spec{
		mixSpec(t, "a", "b"),
		mixSpec(t, "b", "a"),
	}
	r := &Runner{}
	_, report, err := r.Run(context.Background(), specs, inputTable())
	var ce *CycleError
	require.True(t, errors.As(err, &ce))
	assert.Empty(t, report.Completed)
}

func TestRunDanglingDependency(t *testing.T) {
	r := &Runner{}
	_, _, err := r.Run(context.Background(), []Spec{mixSpec(t, "a", "ghost")}, inputTable())
	var ve *shape.ValidationError
	require.True(t, errors.As(err, &ve))
}

func TestRunUnknownKind(t *testing.T) {
	specs := []Spec{{ID: "x", Kind: "transpose", Params: params(t, map[string]any{})}}
	r := &Runner{}
	_, _, err := r.Run(context.Background(), specs, inputTable())
	var ve *shape.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, err.Error(), "unknown shaper kind")
}

func TestRunBadParamsRejectedBeforeExecution(t *testing.T) {
	specs := []Spec{
		mixSpec(t, "ok"),
		{ID: "bad", Kind: "selector", Params: params(t, map[string]any{"columns": []string{}})},
	}
	r := &Runner{}
	_, report, err := r.Run(context.Background(), specs, inputTable())
	var ve *shape.ValidationError
	require.True(t, errors.As(err, &ve))
	// Nothing ran: params are checked before any data is loaded.
	assert.Empty(t, report.Completed)
}

func TestRunStrictVsBestEffort(t *testing.T) {
	// "boom" has valid params but a precondition that fails at
	// run time; "ok" is independent of it.
	specs := []Spec{
		mixSpec(t, "ok"),
		{
			ID:     "boom",
			Kind:   "selector",
			Params: params(t, map[string]any{"columns": []string{"no_such_column"}}),
		},
		{
			ID:        "downstream",
			Kind:      "selector",
			Params:    params(t, map[string]any{"columns": []string{"benchmark"}}),
			DependsOn: []string{"boom"},
		},
	}

	strict := &Runner{Mode: Strict}
	_, _, err := strict.Run(context.Background(), specs, inputTable())
	var pe *shape.PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "no_such_column", pe.Column)

	lax := &Runner{Mode: BestEffort}
	final, report, err := lax.Run(context.Background(), specs, inputTable())
	require.NoError(t, err)
	require.NotNil(t, final)
	assert.Equal(t, []string{"ok"}, report.Completed)
	assert.Contains(t, report.Failed, "boom")
	// The branch downstream of the failure is pruned, not run.
	assert.Contains(t, report.Failed, "downstream")
	assert.True(t, final.HasCol("C"))
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Runner{}
	_, _, err := r.Run(ctx, []Spec{mixSpec(t, "mix")}, inputTable())
	require.ErrorIs(t, err, context.Canceled)
}

func TestSpecsJSONRoundTrip(t *testing.T) {
	specs := []Spec{
		mixSpec(t, "mix"),
		{ID: "sel", Kind: "selector", Params: params(t, map[string]any{"columns": []string{"C"}}), DependsOn: []string{"mix"}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteSpecs(&buf, specs))
	got, err := ReadSpecs(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "mix", got[0].ID)
	assert.Equal(t, []string{"mix"}, got[1].DependsOn)
}
