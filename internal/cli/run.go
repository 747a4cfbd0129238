package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/persist/internal/harness"
)

// RunResult is the JSON payload of the run command.
type RunResult struct {
	Scenario string               `json:"scenario"`
	Pass     bool                 `json:"pass"`
	Steps    []harness.StepResult `json:"steps"`
	Writes   []harness.LogEntry   `json:"writes"`
	LogHash  string               `json:"log_hash"`
	Errors   []string             `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <schema-dir> <scenario.yaml>",
		Short: "Run one scenario and print its write log",
		Long: `Run a persist scenario through the unit of work and print every
statement that reached the database, in order.

Schema paths in the scenario are resolved against schema-dir. The
database comes from --driver and --dsn (or PERSIST_DRIVER and
PERSIST_DSN); the default is an in-memory SQLite database.

Example:
  persist run ./schema ./scenarios/user_profile.yaml
  persist run ./schema ./scenarios/user_profile.yaml --driver postgres --dsn "$PG_URL"`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(rootOpts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runScenarioFile(opts *RootOptions, schemaDir, scenarioFile string, cmd *cobra.Command) error {
	if _, err := os.Stat(schemaDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("schema directory not found: %s", schemaDir))
	}

	scenario, err := harness.LoadScenarioWithBasePath(scenarioFile, schemaDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := harness.RunWithConfig(ctx, scenario, opts.harnessConfig(cmd.ErrOrStderr()))
	if err != nil {
		return WrapExitError(ExitCommandError, "scenario execution failed", err)
	}

	hash, err := harness.LogHash(result)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash write log", err)
	}

	if opts.Format == "json" {
		if err := opts.formatter(cmd).Success(RunResult{
			Scenario: scenario.Name,
			Pass:     result.Pass,
			Steps:    result.Steps,
			Writes:   result.Log,
			LogHash:  hash,
			Errors:   result.Errors,
		}); err != nil {
			return err
		}
	} else {
		printWriteLog(cmd, scenario.Name, result, hash)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed with %d error(s)", scenario.Name, len(result.Errors)))
	}
	return nil
}

func printWriteLog(cmd *cobra.Command, name string, result *harness.Result, hash string) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Scenario %s\n\n", name)

	next := 0
	for _, step := range result.Steps {
		status := "ok"
		if step.Error != "" {
			status = step.Error
		}
		fmt.Fprintf(w, "step %d: %d write(s), %d pass(es), %s\n", step.Index, step.Writes, step.Passes, status)
		for next < len(result.Log) && result.Log[next].Step == step.Index {
			e := result.Log[next]
			line := fmt.Sprintf("  [%d] %s.%s", e.Seq, e.Database, e.Label())
			if len(e.Values) > 0 {
				line += fmt.Sprintf(" values=%v", e.Values)
			}
			if len(e.Where) > 0 {
				line += fmt.Sprintf(" where=%v", e.Where)
			}
			if e.RolledBack {
				line += " (rolled back)"
			}
			fmt.Fprintln(w, line)
			next++
		}
	}

	fmt.Fprintf(w, "\nWrite log hash: %s\n", hash)
	if result.Pass {
		fmt.Fprintln(w, "✓ Scenario passed")
		return
	}
	fmt.Fprintln(w, "✗ Scenario failed")
	for _, e := range result.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
