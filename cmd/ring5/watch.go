package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ring5/statparse"
)

// newWatchCmd runs the shape flow once, then re-runs it whenever the
// statistics tree changes, until interrupted.
func newWatchCmd(a *app) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "re-shape whenever the statistics tree changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			if err := a.shape(cmd, cfg); err != nil {
				// An initial failure is reported but does not stop
				// the watch: the tree may simply not be complete yet.
				a.log.Warn("initial shape failed", zap.Error(err))
			}

			w := &statparse.Watcher{
				Root:     cfg.Stats.Root,
				Pattern:  cfg.Stats.Pattern,
				Debounce: debounce,
				Logger:   a.log,
				OnChange: func() {
					if err := a.shape(cmd, cfg); err != nil {
						a.log.Warn("shape failed", zap.Error(err))
					}
				},
			}
			return w.Watch(ctx)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", statparse.DefaultDebounce, "quiet period before re-shaping")
	return cmd
}
