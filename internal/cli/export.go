package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/noah-isme/conference-timetable/internal/service"
	"github.com/noah-isme/conference-timetable/pkg/config"
)

func newExportCommand(opts *RootOptions) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export <event-id>",
		Short: "Render a violation report for one event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx, func(cfg *config.Config) { cfg.Exports.Enabled = true })
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Exports.ExportViolations(ctx, args[0], format)
			if err != nil {
				return err
			}
			if out == "-" {
				_, err = cmd.OutOrStdout().Write(result.Data)
				return err
			}
			if out == "" {
				out = result.Filename
			}
			if err := os.WriteFile(out, result.Data, 0o644); err != nil {
				return fmt.Errorf("write report: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes)\n", out, len(result.Data))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", service.ExportFormatCSV, "report format (csv|pdf)")
	cmd.Flags().StringVar(&out, "out", "", "output file, - for stdout (default: generated name)")
	return cmd
}
