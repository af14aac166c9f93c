package render

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ring5/stattab"
)

func chartTable() *stattab.Table {
	tab := stattab.New("benchmark", "configuration", "ipc", "ipc.sd")
	add := func(bench, cfg string, ipc, sd float64) {
		tab.AppendRow(map[string]stattab.Value{
			"benchmark":     stattab.Str(bench),
			"configuration": stattab.Str(cfg),
			"ipc":           stattab.Num(ipc),
			"ipc.sd":        stattab.Num(sd),
		})
	}
	add("mcf", "baseline", 1.0, 0.1)
	add("mcf", "opt", 1.4, 0.2)
	add("lbm", "baseline", 0.8, 0.05)
	add("lbm", "opt", 1.1, 0.1)
	return tab
}

func TestNewChartSinkValidation(t *testing.T) {
	_, err := NewChartSink(ChartConfig{StatCols: []string{"ipc"}, OutDir: "x"})
	assert.Error(t, err)

	_, err = NewChartSink(ChartConfig{XCol: "benchmark", OutDir: "x"})
	assert.Error(t, err)

	_, err = NewChartSink(ChartConfig{XCol: "benchmark", StatCols: []string{"ipc.sd"}, OutDir: "x"})
	assert.Error(t, err)

	_, err = NewChartSink(ChartConfig{XCol: "benchmark", StatCols: []string{"ipc"}, OutDir: "x", Formats: []string{"gif"}})
	assert.Error(t, err)

	_, err = NewChartSink(ChartConfig{XCol: "benchmark", StatCols: []string{"ipc"}, OutDir: "x"})
	assert.NoError(t, err)
}

func TestChartSinkWritesFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewChartSink(ChartConfig{
		XCol:     "benchmark",
		GroupCol: "configuration",
		StatCols: []string{"ipc"},
		OutDir:   dir,
		Formats:  []string{"png", "svg"},
	})
	require.NoError(t, err)
	require.NoError(t, s.Render(chartTable()))

	for _, name := range []string{"ipc.png", "ipc.svg"} {
		fi, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Greater(t, fi.Size(), int64(0), name)
	}
}

func TestChartSinkMissingColumn(t *testing.T) {
	s, err := NewChartSink(ChartConfig{
		XCol:     "benchmark",
		StatCols: []string{"no_such_stat"},
		OutDir:   t.TempDir(),
	})
	require.NoError(t, err)
	err = s.Render(chartTable())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_such_stat")
}

func TestCSVSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	s := &CSVSink{Path: path}
	require.NoError(t, s.Render(chartTable()))

	got, err := stattab.ReadCSVFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, got.NumRows())
}

func TestMultiSinkStopsAtFirstFailure(t *testing.T) {
	dir := t.TempDir()
	ok := &CSVSink{Path: filepath.Join(dir, "a.csv")}
	bad := &CSVSink{} // no path
	never := &CSVSink{Path: filepath.Join(dir, "b.csv")}

	err := Multi{ok, bad, never}.Render(chartTable())
	require.Error(t, err)
	_, statErr := os.Stat(never.Path)
	assert.True(t, os.IsNotExist(statErr))
}
