package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/conference-timetable/pkg/database"
)

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the events and timetable tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := opts.open(ctx, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := database.ApplySchema(ctx, a.DB); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied (%s)\n", a.Config.Database.Driver)
			return nil
		},
	}
}
