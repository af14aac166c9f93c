package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ring5/internal/config"
	"ring5/pipeline"
	"ring5/render"
	"ring5/stattab"
)

// newShapeCmd runs the full flow: parse the tree, run the pipeline,
// write the configured outputs.
func newShapeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shape",
		Short: "parse, run the shaping pipeline and write outputs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			return a.shape(cmd, cfg)
		},
	}
	return cmd
}

func (a *app) shape(cmd *cobra.Command, cfg *config.Config) error {
	tab, _, cleanup, err := a.parseTree(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	final := tab
	if cfg.Pipeline.Specs != "" {
		final, err = a.runPipeline(cmd, cfg, tab)
		if err != nil {
			return err
		}
	}
	return a.writeOutputs(cfg, final)
}

func (a *app) runPipeline(cmd *cobra.Command, cfg *config.Config, tab *stattab.Table) (*stattab.Table, error) {
	f, err := os.Open(cfg.Pipeline.Specs)
	if err != nil {
		return nil, fmt.Errorf("opening pipeline specs: %w", err)
	}
	specs, err := pipeline.ReadSpecs(f)
	f.Close()
	if err != nil {
		return nil, err
	}

	mode := pipeline.Strict
	if cfg.BestEffort() {
		mode = pipeline.BestEffort
	}
	r := &pipeline.Runner{
		Mode:    mode,
		Workers: cfg.Pipeline.Workers,
		Logger:  a.log,
	}
	final, report, err := r.Run(cmd.Context(), specs, tab)
	if err != nil {
		return nil, err
	}
	for id, stageErr := range report.Failed {
		a.log.Warn("pipeline stage failed", zap.String("stage", id), zap.Error(stageErr))
	}
	a.log.Info("pipeline complete",
		zap.String("run", report.RunID),
		zap.Strings("completed", report.Completed),
		zap.Int("failed", len(report.Failed)))
	return final, nil
}

func (a *app) writeOutputs(cfg *config.Config, final *stattab.Table) error {
	var sinks render.Multi
	if cfg.Outputs.CSV != "" {
		sinks = append(sinks, &render.CSVSink{Path: cfg.Outputs.CSV})
	}
	if cfg.Outputs.Charts != nil {
		chart, err := render.NewChartSink(cfg.Outputs.Charts.ChartConfig())
		if err != nil {
			return err
		}
		sinks = append(sinks, chart)
	}
	if len(sinks) == 0 {
		return fmt.Errorf("no outputs configured; set outputs.csv or outputs.charts")
	}
	return sinks.Render(final)
}
