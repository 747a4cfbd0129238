package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/persist/internal/harness"
	"github.com/roach88/persist/internal/ir"
)

// Environment fallbacks for the connection flags.
const (
	EnvDriver = "PERSIST_DRIVER"
	EnvDSN    = "PERSIST_DSN"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Driver and DSN select the database scenarios run against.
	// Resolution order: flag, then environment, then the sqlite3
	// in-memory default.
	Driver string
	DSN    string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the persist CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "persist",
		Short:   "persist - unit of work write engine",
		Version: ir.EngineVersion + " (ir " + ir.IRVersion + ")",
		Long: `Compile role schemas and run persist scenarios through the unit of work.

Schemas are CUE files declaring roles, their tables and relations.
Scenarios are YAML files describing entities and the runs that write them.`,
		SilenceErrors: true, // main prints the error once
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			opts.resolveConnection(cmd)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", harness.DefaultDriver, "database driver (sqlite3|postgres|mysql), env "+EnvDriver)
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", harness.DefaultDSN, "data source name, env "+EnvDSN)

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// resolveConnection applies environment fallbacks to connection flags the
// user did not set.
func (o *RootOptions) resolveConnection(cmd *cobra.Command) {
	if f := cmd.Flag("driver"); f == nil || !f.Changed {
		if v := os.Getenv(EnvDriver); v != "" {
			o.Driver = v
		}
	}
	if f := cmd.Flag("dsn"); f == nil || !f.Changed {
		if v := os.Getenv(EnvDSN); v != "" {
			o.DSN = v
		}
	}
}

// Logger builds the slog logger commands hand to the engine: debug level
// when verbose, warnings only otherwise, JSON when the output is JSON.
func (o *RootOptions) Logger(w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if o.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// harnessConfig returns the harness configuration for the connection flags.
func (o *RootOptions) harnessConfig(w io.Writer) harness.Config {
	return harness.Config{
		Driver: o.Driver,
		DSN:    o.DSN,
		Logger: o.Logger(w),
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
