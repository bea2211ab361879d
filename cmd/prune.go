package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/change-monitor/internal/store"
)

var pruneDays int

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old snapshots",
	Long:  "Deletes snapshots older than the retention window. The newest snapshot of every URL is always kept.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		days := pruneDays
		if days == 0 {
			days = cfg.Store.RetentionDays
		}
		if days <= 0 {
			return eris.New("prune: retention days must be positive")
		}

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cutoff := time.Now().UTC().AddDate(0, 0, -days)
		n, err := st.Prune(ctx, cutoff)
		if err != nil {
			return err
		}
		zap.L().Info("snapshots pruned", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
		fmt.Printf("Deleted %d snapshot(s) older than %s\n", n, cutoff.Format("2006-01-02"))
		return nil
	},
}

func init() {
	pruneCmd.Flags().IntVar(&pruneDays, "days", 0, "retention in days (default from store.retention_days)")
	rootCmd.AddCommand(pruneCmd)
}
