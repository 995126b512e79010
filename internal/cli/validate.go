package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/noah-isme/conference-timetable/internal/models"
)

// ErrInconsistent is returned when at least one audited timetable has violations.
var ErrInconsistent = errors.New("inconsistent timetables found")

func newValidateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [event-id...]",
		Short: "Validate persisted timetables",
		Long:  "Validates the given events, or every event when none are named, and exits non-zero when any timetable is inconsistent.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			ids := args
			if len(ids) == 0 {
				if ids, err = a.Events.ListIDs(ctx); err != nil {
					return err
				}
			}
			reports := make([]models.AuditReport, 0, len(ids))
			for _, id := range ids {
				report, err := a.Timetables.RefreshAudit(ctx, id)
				if err != nil {
					return fmt.Errorf("audit %s: %w", id, err)
				}
				reports = append(reports, *report)
			}

			if opts.Output == OutputJSON {
				if err := writeJSON(cmd.OutOrStdout(), reports); err != nil {
					return err
				}
			} else {
				printReports(cmd.OutOrStdout(), reports)
			}
			for _, report := range reports {
				if !report.Consistent {
					return ErrInconsistent
				}
			}
			return nil
		},
	}
}

func printReports(w io.Writer, reports []models.AuditReport) {
	for _, report := range reports {
		if report.Consistent {
			fmt.Fprintf(w, "%s: ok (%d entries)\n", report.EventID, report.Entries)
			continue
		}
		fmt.Fprintf(w, "%s: %d violation(s) in %d entries\n", report.EventID, len(report.Violations), report.Entries)
		for _, v := range report.Violations {
			fmt.Fprintf(w, "  %s  %s\n", v.Kind, v.Message())
		}
	}
}
