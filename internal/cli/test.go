package cli

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/persist/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult is the outcome of one scenario file.
type ScenarioResult struct {
	Name    string   `json:"name"`
	Pass    bool     `json:"pass"`
	Updated bool     `json:"golden_updated,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// TestResult totals a test run.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <schema-dir> <scenarios-dir>",
		Short: "Run every scenario in a directory",
		Long: `Run persist scenarios and compare their write logs with golden files.

Each scenario's step expectations and assertions must hold. When
<scenarios-dir>/golden/<name>.golden exists the write log must match it
byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  persist test ./schema ./scenarios
  persist test ./schema ./scenarios --filter "user_*"
  persist test ./schema ./scenarios --update
  persist test ./schema ./scenarios --format json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, schemaDir, scenariosDir string, cmd *cobra.Command) error {
	for _, d := range []struct{ kind, path string }{{"schema", schemaDir}, {"scenarios", scenariosDir}} {
		if _, err := os.Stat(d.path); os.IsNotExist(err) {
			return NewExitError(ExitCommandError, fmt.Sprintf("%s directory not found: %s", d.kind, d.path))
		}
	}

	files, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return fmt.Errorf("failed to find scenarios: %w", err)
	}

	s := &suite{opts: opts, schemaDir: schemaDir, cmd: cmd}
	if len(files) == 0 && opts.Format != "json" {
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	result := TestResult{Scenarios: []ScenarioResult{}, Total: len(files)}
	for _, file := range files {
		r := s.run(file)
		s.print(r)
		result.Scenarios = append(result.Scenarios, r)
		if r.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}
	return s.summarize(result)
}

// findScenarioFiles returns the .yaml and .yml files under dir, sorted,
// whose base name without extension matches the glob filter.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(d.Name(), ext))
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	slices.Sort(files)
	return files, err
}

// suite runs scenario files one at a time against a shared schema
// directory.
type suite struct {
	opts      *TestOptions
	schemaDir string
	cmd       *cobra.Command
}

func failedScenario(name, format string, args ...any) ScenarioResult {
	return ScenarioResult{Name: name, Errors: []string{fmt.Sprintf(format, args...)}}
}

// run executes one scenario. Without a golden file only step expectations
// and assertions are checked.
func (s *suite) run(file string) ScenarioResult {
	scenario, err := harness.LoadScenarioWithBasePath(file, s.schemaDir)
	if err != nil {
		return failedScenario(filepath.Base(file), "failed to load scenario: %v", err)
	}
	result, err := harness.RunWithConfig(s.cmd.Context(), scenario, s.opts.harnessConfig(s.cmd.ErrOrStderr()))
	if err != nil {
		return failedScenario(scenario.Name, "execution failed: %v", err)
	}
	snapshot, err := harness.Snapshot(scenario.Name, result)
	if err != nil {
		return failedScenario(scenario.Name, "failed to snapshot write log: %v", err)
	}

	golden := goldenFilePath(file)
	if s.opts.Update {
		if err := writeGolden(golden, snapshot); err != nil {
			return failedScenario(scenario.Name, "failed to update golden file: %v", err)
		}
		return ScenarioResult{Name: scenario.Name, Pass: true, Updated: true}
	}

	switch want, err := os.ReadFile(golden); {
	case os.IsNotExist(err):
	case err != nil:
		return failedScenario(scenario.Name, "golden comparison failed: %v", err)
	case !bytes.Equal(want, snapshot):
		return failedScenario(scenario.Name, "write log does not match golden file (run with --update to regenerate)")
	}

	return ScenarioResult{Name: scenario.Name, Pass: result.Pass, Errors: result.Errors}
}

// print writes the text line of one scenario as soon as it finishes.
func (s *suite) print(r ScenarioResult) {
	if s.opts.Format == "json" {
		return
	}
	w := s.cmd.OutOrStdout()
	mark, note := "✓", ""
	if !r.Pass {
		mark = "✗"
	}
	if r.Updated {
		note = " (golden updated)"
	}
	fmt.Fprintf(w, "%s %s%s\n", mark, r.Name, note)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func (s *suite) summarize(result TestResult) error {
	var failure error
	if result.Failed > 0 {
		failure = NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	out := s.opts.formatter(s.cmd)
	if out.json() {
		resp := CLIResponse{Status: "ok", Data: result}
		if failure != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeScenarioFailed, Message: failure.Error()}
		}
		if err := out.encode(resp); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintf(out.Writer, "\nTest Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if failure == nil {
		fmt.Fprintln(out.Writer, "✓ All scenarios passed")
	}
	return failure
}

// goldenFilePath maps scenarios/<name>.yaml to scenarios/golden/<name>.golden.
func goldenFilePath(scenarioFile string) string {
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(scenarioFile), "golden", name+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
