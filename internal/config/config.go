// Package config loads the project file that ties a statistics tree,
// a pipeline and its outputs together.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ring5/render"
)

// A Config is one project: where the statistics live, how to shape
// them, and where the results go.
type Config struct {
	Stats    Stats    `yaml:"stats"`
	Pipeline Pipeline `yaml:"pipeline"`
	Outputs  Outputs  `yaml:"outputs"`
}

// Stats locates and scopes the input tree.
type Stats struct {
	// Root is the base directory of the benchmark/configuration/seed
	// hierarchy.
	Root string `yaml:"root"`

	// Pattern is the leaf file name, e.g. "stats.txt".
	Pattern string `yaml:"pattern"`

	// Interest names the statistics to project into the table.
	Interest []string `yaml:"interest"`

	// ConfigVars names configuration variables.
	ConfigVars []string `yaml:"configVars"`

	// Cache is the path of the scan cache database. Empty disables
	// caching.
	Cache string `yaml:"cache"`

	// Workers bounds the scan pool.
	Workers int `yaml:"workers"`

	// Timeout bounds one file scan, as a duration string ("60s").
	Timeout string `yaml:"timeout"`
}

// ScanTimeout parses the per-file timeout. Empty means zero, letting
// the parser apply its default.
func (s Stats) ScanTimeout() (time.Duration, error) {
	if s.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 0, fmt.Errorf("config: bad stats.timeout %q: %w", s.Timeout, err)
	}
	return d, nil
}

// Pipeline locates the shaping pipeline.
type Pipeline struct {
	// Specs is the path of the pipeline's JSON spec file. Empty
	// means no shaping: the parsed table goes straight to outputs.
	Specs string `yaml:"specs"`

	// Mode is "strict" (default) or "best-effort".
	Mode string `yaml:"mode"`

	// Workers bounds concurrent stages within a wave.
	Workers int `yaml:"workers"`
}

// Outputs selects the sinks for the final table.
type Outputs struct {
	// CSV is the path of the final CSV table. Empty skips it.
	CSV string `yaml:"csv"`

	// Charts configures bar chart rendering. Nil skips it.
	Charts *Charts `yaml:"charts"`
}

// Charts is the yaml form of a chart configuration.
type Charts struct {
	XCol     string   `yaml:"xCol"`
	GroupCol string   `yaml:"groupCol"`
	StatCols []string `yaml:"statCols"`
	OutDir   string   `yaml:"outDir"`
	Formats  []string `yaml:"formats"`
	LogScale bool     `yaml:"logScale"`
	WidthCm  float64  `yaml:"widthCm"`
	HeightCm float64  `yaml:"heightCm"`
}

// ChartConfig converts to the render package's configuration.
func (c *Charts) ChartConfig() render.ChartConfig {
	return render.ChartConfig{
		XCol:     c.XCol,
		GroupCol: c.GroupCol,
		StatCols: c.StatCols,
		OutDir:   c.OutDir,
		Formats:  c.Formats,
		LogScale: c.LogScale,
		WidthCm:  c.WidthCm,
		HeightCm: c.HeightCm,
	}
}

// Load reads and validates a project file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Stats.Root == "" {
		return fmt.Errorf("stats.root must be set")
	}
	if c.Stats.Pattern == "" {
		c.Stats.Pattern = "stats.txt"
	}
	if _, err := c.Stats.ScanTimeout(); err != nil {
		return err
	}
	switch c.Pipeline.Mode {
	case "", "strict", "best-effort":
	default:
		return fmt.Errorf("pipeline.mode must be strict or best-effort, not %q", c.Pipeline.Mode)
	}
	if ch := c.Outputs.Charts; ch != nil {
		if ch.XCol == "" || len(ch.StatCols) == 0 || ch.OutDir == "" {
			return fmt.Errorf("outputs.charts needs xCol, statCols and outDir")
		}
	}
	return nil
}

// BestEffort reports whether the pipeline runs in best-effort mode.
func (c *Config) BestEffort() bool {
	return c.Pipeline.Mode == "best-effort"
}
