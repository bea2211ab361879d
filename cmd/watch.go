package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/change-monitor/internal/monitor"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Check all targets on a schedule",
	Long:  "Runs a monitoring pass immediately and then every schedule.interval_mins minutes until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initMonitor(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		if len(env.Targets) == 0 {
			return monitor.ErrNoTargets
		}

		env.Checker.Run(ctx)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
