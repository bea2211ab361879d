package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/change-monitor/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded monitoring runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		entity, _ := cmd.Flags().GetString("entity")
		limit, _ := cmd.Flags().GetInt("limit")
		since, _ := cmd.Flags().GetDuration("since")
		asJSON, _ := cmd.Flags().GetBool("json")

		st, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := store.RunFilter{EntityID: entity, Limit: limit}
		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		fmt.Println(runsTable(runs))
		return nil
	},
}

func init() {
	runsCmd.Flags().String("entity", "", "filter by entity ID")
	runsCmd.Flags().Int("limit", 20, "maximum runs to show")
	runsCmd.Flags().Duration("since", 0, "only runs started within this duration (e.g. 24h)")
	runsCmd.Flags().Bool("json", false, "print runs as JSON")
	rootCmd.AddCommand(runsCmd)
}
