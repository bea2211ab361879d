package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/change-monitor/internal/model"
	"github.com/sells-group/change-monitor/internal/monitor"
)

var (
	runEntity string
	runFormat string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Check all targets once",
	Long:  "Runs one monitoring pass: checks every target URL, records the runs and sends reports.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runFormat != "json" && runFormat != "table" {
			return eris.Errorf("unknown format %q (want json or table)", runFormat)
		}
		ctx := cmd.Context()

		env, err := initMonitor(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		tgts := model.FilterTargets(env.Targets, runEntity)
		if len(tgts) == 0 {
			if runEntity != "" {
				return eris.Errorf("no targets for entity %q", runEntity)
			}
			return monitor.ErrNoTargets
		}

		runs, err := env.Checker.Pass(ctx, tgts)
		if err != nil {
			return err
		}

		for _, r := range runs {
			zap.L().Info("run complete",
				zap.String("entity", r.EntityID),
				zap.Int("changed", r.Summary.Changed),
				zap.Int("significant", r.Summary.Significant),
				zap.Int("errors", r.Summary.Errors),
			)
		}
		return writeRuns(os.Stdout, runs, runFormat)
	},
}

func writeRuns(w io.Writer, runs []*model.Run, format string) error {
	if format == "table" {
		_, err := fmt.Fprintln(w, resultsTable(runs))
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(runs)
}

func init() {
	runCmd.Flags().StringVar(&runEntity, "entity", "", "only check this entity")
	runCmd.Flags().StringVar(&runFormat, "format", "table", "output format: json or table")
	rootCmd.AddCommand(runCmd)
}
