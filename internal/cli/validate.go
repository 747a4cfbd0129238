package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/persist/internal/compiler"
)

// ValidationResult is the JSON payload of validate.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Roles    int                        `json:"roles"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <schema-dir>",
		Short: "Validate a role schema",
		Long: `Validate the CUE role schema in a directory.

Checks tables, primary keys, relation types, targets and keys, and
reports cycles of required parents as warnings. Warnings do not fail
validation.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, schemaDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, err := LoadSchema(schemaDir)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			if loadErr.Code == ErrCodeGeneric || isValidationCode(loadErr.Code) {
				// Compile errors inside a role are schema errors, not command errors.
				return outputValidationErrors(formatter, []compiler.ValidationError{{
					Field:   "schema",
					Message: loadErr.Message,
					Code:    loadErr.Code,
					Line:    lineOf(loadErr),
				}})
			}
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, schemaDir)
	for _, name := range loadResult.Schema.RoleNames() {
		formatter.VerboseLog("Validating role: %s", name)
	}

	if errs := compiler.Validate(loadResult.Schema); len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	warnings := compiler.AnalyzeCycles(loadResult.Schema)
	return outputValidateSuccess(formatter, len(loadResult.Schema.Roles), warnings)
}

func isValidationCode(code string) bool {
	return strings.HasPrefix(code, "E1")
}

func lineOf(e *LoadError) int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, roles int, warnings []compiler.CycleWarning) error {
	if formatter.json() {
		return formatter.Success(ValidationResult{Valid: true, Roles: roles, Warnings: warnings})
	}

	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "%s: %s\n", w.Level, w.Message)
	}
	fmt.Fprintf(formatter.Writer, "✓ Schema valid (%d role(s))\n", roles)
	return nil
}

// outputValidateError outputs a single command-level error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors reports schema errors. They fail validation with
// exit code 1.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	if formatter.json() {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Errors: errs},
			Error:  &CLIError{Code: errs[0].Code, Message: errs[0].Message},
		}); err != nil {
			return err
		}
		return failure
	}

	w := formatter.Writer
	fmt.Fprint(w, "✗ Validation failed\n\n")
	for _, e := range errs {
		if e.Line > 0 {
			fmt.Fprintf(w, "line %d\n", e.Line)
		}
		fmt.Fprintf(w, "  %s: %s: %s\n\n", e.Code, e.Field, e.Message)
	}
	return failure
}
