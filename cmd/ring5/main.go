// Ring5 ingests simulator statistics dumps, shapes them through a
// declarative pipeline, and renders the result as CSV tables and bar
// charts.
//
// A project is described by a yaml file (by default ring5.yaml):
//
//	stats:
//	  root: ./results
//	  pattern: stats.txt
//	  interest: [sim_insts, system.cpu.ipc]
//	  configVars: [host_mem]
//	pipeline:
//	  specs: pipeline.json
//	outputs:
//	  csv: out/final.csv
//
// Run "ring5 help" for the command list.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ring5/internal/config"
)

type app struct {
	cfgPath string
	verbose bool

	log *zap.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ring5:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "ring5",
		Short:         "ingest, shape and render simulator statistics",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				a.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "ring5.yaml", "project file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newScanCmd(a))
	root.AddCommand(newParseCmd(a))
	root.AddCommand(newShapeCmd(a))
	root.AddCommand(newWatchCmd(a))
	return root
}

func (a *app) initLogger() error {
	var cfg zap.Config
	if a.verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	a.log = log
	return nil
}

func (a *app) config() (*config.Config, error) {
	return config.Load(a.cfgPath)
}
