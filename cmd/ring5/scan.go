package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ring5/statfmt"
)

// newScanCmd scans a single dump file and emits the discovered
// variables as JSON scan records, without touching the project file.
// It is the quick way to inspect what a dump contains before deciding
// which statistics to put in the project's interest list.
func newScanCmd(a *app) *cobra.Command {
	var hints []string
	var out string

	cmd := &cobra.Command{
		Use:   "scan FILE",
		Short: "classify the variables of one statistics dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			ds, sum, err := statfmt.ScanFile(path, nil, statfmt.NewHints(hints...))
			if err != nil {
				return fmt.Errorf("scanning %s: %w", path, err)
			}
			a.log.Info("scanned",
				zap.String("file", path),
				zap.Int("variables", len(ds)),
				zap.Int("blocks", sum.Blocks),
				zap.Int("skippedLines", sum.Skipped))

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return statfmt.EncodeScan(w, ds)
		},
	}
	cmd.Flags().StringSliceVar(&hints, "hint", nil, "variable names to classify as configuration")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write scan records to file instead of stdout")
	return cmd
}
