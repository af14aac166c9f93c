package render

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"ring5/stattab"
)

// A ChartConfig describes one family of grouped bar charts: one chart
// per statistic column, bars grouped by the category column within
// each x category. A statistic's ".sd" companion column, when present,
// is drawn as an error bar on its bars.
type ChartConfig struct {
	// XCol is the column giving the x axis categories, typically
	// "benchmark".
	XCol string `json:"xCol"`

	// GroupCol is the column giving the bar groups within one x
	// category, typically "configuration". Empty means one bar per
	// x category.
	GroupCol string `json:"groupCol,omitempty"`

	// StatCols names the statistic columns to chart, one chart
	// each. Companion ".sd" columns must not be listed; they are
	// picked up automatically.
	StatCols []string `json:"statCols"`

	// OutDir is the directory chart files are written to. It is
	// created if absent.
	OutDir string `json:"outDir"`

	// Formats selects the output encodings, any of "png" and "svg".
	// Empty means PNG only.
	Formats []string `json:"formats,omitempty"`

	// LogScale selects a logarithmic y axis.
	LogScale bool `json:"logScale,omitempty"`

	// WidthCm and HeightCm fix the chart size. Zero means a
	// heuristic size from the category count.
	WidthCm  float64 `json:"widthCm,omitempty"`
	HeightCm float64 `json:"heightCm,omitempty"`
}

// A ChartSink renders grouped bar charts from a table.
type ChartSink struct {
	cfg ChartConfig
}

// NewChartSink validates cfg and returns the sink.
func NewChartSink(cfg ChartConfig) (*ChartSink, error) {
	if cfg.XCol == "" {
		return nil, fmt.Errorf("render: chart xCol must be set")
	}
	if len(cfg.StatCols) == 0 {
		return nil, fmt.Errorf("render: chart statCols must not be empty")
	}
	for _, s := range cfg.StatCols {
		if stattab.IsSD(s) {
			return nil, fmt.Errorf("render: chart statCols must not name sd column %q", s)
		}
	}
	if cfg.OutDir == "" {
		return nil, fmt.Errorf("render: chart outDir must be set")
	}
	if len(cfg.Formats) == 0 {
		cfg.Formats = []string{"png"}
	}
	for _, f := range cfg.Formats {
		if f != "png" && f != "svg" {
			return nil, fmt.Errorf("render: unsupported chart format %q", f)
		}
	}
	return &ChartSink{cfg: cfg}, nil
}

// Render writes one chart file per statistic column and format.
func (s *ChartSink) Render(t *stattab.Table) error {
	if !t.HasCol(s.cfg.XCol) {
		return fmt.Errorf("render: table has no column %q", s.cfg.XCol)
	}
	if s.cfg.GroupCol != "" && !t.HasCol(s.cfg.GroupCol) {
		return fmt.Errorf("render: table has no column %q", s.cfg.GroupCol)
	}
	if err := os.MkdirAll(s.cfg.OutDir, 0o777); err != nil {
		return fmt.Errorf("render: creating %s: %w", s.cfg.OutDir, err)
	}
	for _, stat := range s.cfg.StatCols {
		if !t.HasCol(stat) {
			return fmt.Errorf("render: table has no column %q", stat)
		}
		if err := s.renderOne(t, stat); err != nil {
			return err
		}
	}
	return nil
}

func (s *ChartSink) renderOne(t *stattab.Table, stat string) error {
	xs := categories(t, s.cfg.XCol)
	groups := []string{""}
	if s.cfg.GroupCol != "" {
		groups = categories(t, s.cfg.GroupCol)
	}

	pl := plot.New()
	pl.Title.Text = stat
	pl.Y.Label.Text = stat
	if s.cfg.LogScale {
		pl.Y.Scale = plot.LogScale{}
		pl.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}

	grid := plotter.NewGrid()
	grid.Vertical.Color = nil
	pl.Add(grid)

	// One bar series per group, offset so the groups sit side by
	// side within each x category.
	barWidth := vg.Points(30 / float64(len(groups)))
	sdCol := stattab.SDName(stat)
	for gi, group := range groups {
		vals, sds := s.series(t, stat, sdCol, xs, group)
		bars, err := plotter.NewBarChart(vals, barWidth)
		if err != nil {
			return fmt.Errorf("render: chart %s: %w", stat, err)
		}
		offset := barWidth * vg.Length(float64(gi)-float64(len(groups)-1)/2)
		bars.Offset = offset
		bars.Color = groupColor(gi)
		bars.LineStyle.Width = 0
		pl.Add(bars)
		if group != "" {
			pl.Legend.Add(group, bars)
		}
		if sds != nil {
			pl.Add(&errorBars{values: vals, sds: sds, offset: offset, cap: barWidth / 3})
		}
	}
	pl.Legend.Top = true
	pl.NominalX(xs...)
	pl.X.Tick.Label.Rotation = -math.Pi / 8
	pl.X.Tick.Label.YAlign = draw.YTop
	pl.X.Tick.Label.XAlign = draw.XLeft

	width, height := s.size(len(xs), len(groups))
	name := strings.ReplaceAll(stat, "/", "-per-")
	for _, format := range s.cfg.Formats {
		file := filepath.Join(s.cfg.OutDir, name+"."+format)
		switch format {
		case "png":
			if err := savePNG(pl, file, width, height); err != nil {
				return err
			}
		case "svg":
			if err := pl.Save(vg.Length(width)*vg.Centimeter, vg.Length(height)*vg.Centimeter, file); err != nil {
				return fmt.Errorf("render: writing %s: %w", file, err)
			}
		}
	}
	return nil
}

// series extracts one group's bar heights and sd companions in x
// order. Missing cells become zero-height bars without error bars. The
// sd slice is nil when the table has no companion column.
func (s *ChartSink) series(t *stattab.Table, stat, sdCol string, xs []string, group string) (plotter.Values, []float64) {
	vals := make(plotter.Values, len(xs))
	var sds []float64
	if t.HasCol(sdCol) {
		sds = make([]float64, len(xs))
	}
	for i, x := range xs {
		row := s.findRow(t, x, group)
		if row < 0 {
			continue
		}
		if v, ok := t.Value(row, stat); ok {
			if f, isNum := v.Float(); isNum {
				vals[i] = f
			}
		}
		if sds == nil {
			continue
		}
		if v, ok := t.Value(row, sdCol); ok {
			if f, isNum := v.Float(); isNum {
				sds[i] = f
			}
		}
	}
	return vals, sds
}

func (s *ChartSink) findRow(t *stattab.Table, x, group string) int {
	for i := 0; i < t.NumRows(); i++ {
		v, _ := t.Value(i, s.cfg.XCol)
		if v.Text() != x {
			continue
		}
		if group == "" {
			return i
		}
		g, _ := t.Value(i, s.cfg.GroupCol)
		if g.Text() == group {
			return i
		}
	}
	return -1
}

func (s *ChartSink) size(nx, ngroups int) (width, height float64) {
	width, height = s.cfg.WidthCm, s.cfg.HeightCm
	if width == 0 {
		width = 1.5 * float64(2+nx*ngroups)
		if width < 12 {
			width = 12
		}
	}
	if height == 0 {
		height = width / 2
		if height < 8 {
			height = 8
		}
	}
	return width, height
}

// categories returns the distinct values of col in the table's
// category order when one is set, first-appearance order otherwise.
func categories(t *stattab.Table, col string) []string {
	if order, ok := t.CategoryOrder(col); ok {
		present := make(map[string]bool)
		for i := 0; i < t.NumRows(); i++ {
			v, _ := t.Value(i, col)
			present[v.Text()] = true
		}
		var xs []string
		for _, c := range order {
			if present[c] {
				xs = append(xs, c)
			}
		}
		return xs
	}
	seen := make(map[string]bool)
	var xs []string
	for i := 0; i < t.NumRows(); i++ {
		v, _ := t.Value(i, col)
		if !seen[v.Text()] {
			seen[v.Text()] = true
			xs = append(xs, v.Text())
		}
	}
	return xs
}

func savePNG(pl *plot.Plot, file string, widthCm, heightCm float64) error {
	f, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("render: creating %s: %w", file, err)
	}
	defer f.Close()

	canvas := vgimg.PngCanvas{Canvas: vgimg.NewWith(
		vgimg.UseWH(vg.Length(widthCm)*vg.Centimeter, vg.Length(heightCm)*vg.Centimeter),
		vgimg.UseDPI(150),
		vgimg.UseBackgroundColor(color.White))}
	pl.Draw(draw.New(canvas))
	if _, err := canvas.WriteTo(f); err != nil {
		return fmt.Errorf("render: writing %s: %w", file, err)
	}
	return nil
}

var palette = []color.Color{
	color.NRGBA{0x44, 0x72, 0xc4, 0xff},
	color.NRGBA{0xed, 0x7d, 0x31, 0xff},
	color.NRGBA{0x70, 0xad, 0x47, 0xff},
	color.NRGBA{0xff, 0xc0, 0x00, 0xff},
	color.NRGBA{0x99, 0x00, 0xff, 0xff},
	color.NRGBA{0x25, 0x8b, 0x8c, 0xff},
}

func groupColor(i int) color.Color {
	return palette[i%len(palette)]
}

// errorBars draws a vertical whisker of one standard deviation above
// and below each bar's top, aligned with the bar's offset.
type errorBars struct {
	values plotter.Values
	sds    []float64
	offset vg.Length
	cap    vg.Length
}

func (e *errorBars) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)
	sty := draw.LineStyle{Color: color.Black, Width: vg.Points(1)}
	for i, v := range e.values {
		sd := e.sds[i]
		if sd <= 0 || math.IsNaN(sd) {
			continue
		}
		x := trX(float64(i)) + e.offset
		if !c.ContainsX(x) {
			continue
		}
		lo, hi := trY(v-sd), trY(v+sd)
		whisks := c.ClipLinesY(
			[]vg.Point{{X: x, Y: lo}, {X: x, Y: hi}},
			[]vg.Point{{X: x - e.cap, Y: hi}, {X: x + e.cap, Y: hi}},
			[]vg.Point{{X: x - e.cap, Y: lo}, {X: x + e.cap, Y: lo}},
		)
		c.StrokeLines(sty, whisks...)
	}
}

// DataRange widens the y range so whisker tips stay inside the plot.
func (e *errorBars) DataRange() (xmin, xmax, ymin, ymax float64) {
	xmin, xmax = math.Inf(1), math.Inf(-1)
	ymin, ymax = math.Inf(1), math.Inf(-1)
	for i, v := range e.values {
		sd := e.sds[i]
		if sd < 0 || math.IsNaN(sd) {
			sd = 0
		}
		xmin = math.Min(xmin, float64(i))
		xmax = math.Max(xmax, float64(i))
		ymin = math.Min(ymin, v-sd)
		ymax = math.Max(ymax, v+sd)
	}
	return
}
