package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/fusionsync/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Database string
	Driver   string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the fusionsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "fusionsync",
		Short: "Sync Fusion design structures into a parts database",
		Long: `fusionsync reconciles design structure exports from Autodesk Fusion
into a persistent store of designs, components, revisions and bills of
materials. Re-syncing the same export is a no-op.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if !isValidDriver(opts.Driver) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid driver %q: must be one of %v", opts.Driver, config.Drivers))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "fusionsync.db", "database path or DSN")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", config.DriverSQLite, fmt.Sprintf("store driver %v", config.Drivers))

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewUsedInCommand(opts))
	cmd.AddCommand(NewBOMCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func isValidDriver(driver string) bool {
	for _, d := range config.Drivers {
		if d == driver {
			return true
		}
	}
	return false
}
