package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ring5/internal/config"
	"ring5/statparse"
	"ring5/stattab"
)

// newParseCmd parses the project's statistics tree into the combined
// table without shaping it.
func newParseCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "parse the statistics tree into a combined CSV table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			tab, _, cleanup, err := a.parseTree(cmd, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if out == "" {
				out = cfg.Outputs.CSV
			}
			if out == "" {
				return tab.WriteCSV(cmd.OutOrStdout())
			}
			return tab.WriteCSVFile(out)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "destination CSV (default from project file, else stdout)")
	return cmd
}

// parseTree runs the project's parser. The returned cleanup closes the
// scan cache; it is safe to call when no cache is configured.
func (a *app) parseTree(cmd *cobra.Command, cfg *config.Config) (*stattab.Table, *statparse.Summary, func(), error) {
	cleanup := func() {}

	timeout, err := cfg.Stats.ScanTimeout()
	if err != nil {
		return nil, nil, cleanup, err
	}
	p := &statparse.Parser{
		Root:       cfg.Stats.Root,
		Pattern:    cfg.Stats.Pattern,
		Stats:      cfg.Stats.Interest,
		ConfigVars: cfg.Stats.ConfigVars,
		Workers:    cfg.Stats.Workers,
		Timeout:    timeout,
		Logger:     a.log,
	}
	if cfg.Stats.Cache != "" {
		cache, err := statparse.OpenCache(cfg.Stats.Cache)
		if err != nil {
			return nil, nil, cleanup, err
		}
		p.Cache = cache
		cleanup = func() { cache.Close() }
	}

	tab, sum, err := p.Parse(cmd.Context())
	if err != nil {
		cleanup()
		return nil, nil, func() {}, fmt.Errorf("parsing %s: %w", cfg.Stats.Root, err)
	}
	if sum.SkippedFiles > 0 {
		a.log.Warn("some files were skipped",
			zap.Int("skipped", sum.SkippedFiles),
			zap.Errors("causes", sum.Causes))
	}
	return tab, sum, cleanup, nil
}
