// Package cli implements the timetable-audit command line tool.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/conference-timetable/internal/app"
	"github.com/noah-isme/conference-timetable/pkg/config"
	"github.com/noah-isme/conference-timetable/pkg/logger"
)

// Output formats.
const (
	OutputText = "text"
	OutputJSON = "json"
)

// AppFactory builds the application for one command run.
type AppFactory func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app.App, error)

// RootOptions holds global flags and the hooks tests replace.
type RootOptions struct {
	Output string

	LoadConfig func() (*config.Config, error)
	NewApp     AppFactory
	NewLogger  func(cfg *config.Config) (*zap.Logger, error)
}

// NewRootCommand creates the timetable-audit root command.
func NewRootCommand(opts *RootOptions) *cobra.Command {
	if opts == nil {
		opts = &RootOptions{}
	}
	if opts.LoadConfig == nil {
		opts.LoadConfig = config.Load
	}
	if opts.NewApp == nil {
		opts.NewApp = app.New
	}
	if opts.NewLogger == nil {
		opts.NewLogger = logger.New
	}

	cmd := &cobra.Command{
		Use:           "timetable-audit",
		Short:         "Audit and export conference timetables",
		Long:          "Validates persisted conference timetables against the scheduling invariants and renders violation reports.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.Output != OutputText && opts.Output != OutputJSON {
				return fmt.Errorf("invalid output %q: must be text or json", opts.Output)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.Output, "output", "o", OutputText, "output format (text|json)")

	cmd.AddCommand(newValidateCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	return cmd
}

// open loads configuration, lets mutate adjust it, and builds the app.
func (o *RootOptions) open(ctx context.Context, mutate func(cfg *config.Config)) (*app.App, error) {
	cfg, err := o.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if mutate != nil {
		mutate(cfg)
	}
	logr, err := o.NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return o.NewApp(ctx, cfg, logr)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
