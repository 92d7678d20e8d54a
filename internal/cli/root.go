// Package cli implements the tasksync developer commands.
package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/tasksync/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // path to tasksync.yaml, optional
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tasksync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tasksync",
		Short: "tasksync - edit and submit tracker tasks",
		Long: `Developer tool for the tasksync core.

Validates repository definitions, replays editing scenarios against a
scripted connector and inspects the local state database.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to tasksync.yaml")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewDefaultsCommand(opts))

	return cmd
}

// loadTool reads the --config file. It returns nil without error when no
// config was given.
func (o *RootOptions) loadTool() (*config.Tool, error) {
	if o.Config == "" {
		return nil, nil
	}
	return config.LoadTool(o.Config)
}

// logLevel is debug with --verbose, else the config's level, else warn.
func (o *RootOptions) logLevel(tool *config.Tool) slog.Level {
	if o.Verbose {
		return slog.LevelDebug
	}
	if tool != nil {
		if level, err := tool.Level(); err == nil {
			return level
		}
	}
	return slog.LevelWarn
}
