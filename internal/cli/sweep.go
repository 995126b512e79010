package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/conference-timetable/internal/service"
	"github.com/noah-isme/conference-timetable/pkg/config"
)

func newSweepCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Audit every event once on the worker queue and store the summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx, func(cfg *config.Config) {
				// one-shot run, no cron trigger
				cfg.Audit.SweepEnabled = true
				cfg.Audit.SweepSchedule = ""
			})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Sweeps.Start(ctx); err != nil {
				return err
			}
			defer a.Sweeps.Stop()

			result, err := a.Sweeps.Sweep(ctx, service.SweepTriggerManual)
			if err != nil {
				return err
			}
			if opts.Output == OutputJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "run %s: %d event(s) audited in %s\n", result.RunID, result.Events, result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
			fmt.Fprintf(w, "inconsistent: %s\n", listOrNone(result.Inconsistent))
			fmt.Fprintf(w, "failed: %s\n", listOrNone(result.Failed))
			if result.ReportPath != "" {
				fmt.Fprintf(w, "report: %s\n", result.ReportPath)
			}
			return nil
		},
	}
}

func listOrNone(ids []string) string {
	if len(ids) == 0 {
		return "none"
	}
	return strings.Join(ids, ", ")
}
