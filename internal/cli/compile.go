package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/persist/internal/compiler"
	"github.com/roach88/persist/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled schema and its identity.
type CompilationResult struct {
	IRVersion string                  `json:"ir_version"`
	Hash      string                  `json:"hash"`
	Schema    *ir.Schema              `json:"schema"`
	Warnings  []compiler.CycleWarning `json:"warnings,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <schema-dir>",
		Short: "Compile a role schema to canonical IR",
		Long: `Compile the CUE role schema in a directory to canonical JSON IR.

Key defaults are filled in, the schema is validated, and its content
hash is reported. With --output the canonical IR is written to a file.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, schemaDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, err := LoadSchema(schemaDir)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputCompileError(formatter, loadErr.Code, loadErr.Error())
		}
		return outputCompileError(formatter, ErrCodeGeneric, err.Error())
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, schemaDir)

	schema := loadResult.Schema
	if errs := compiler.Validate(schema); len(errs) > 0 {
		return outputCompileError(formatter, errs[0].Code, compiler.ValidationErrors(errs).Error())
	}

	hash, err := ir.SchemaHash(schema)
	if err != nil {
		return outputCompileError(formatter, ErrCodeGeneric, err.Error())
	}
	result := &CompilationResult{
		IRVersion: ir.IRVersion,
		Hash:      hash,
		Schema:    schema,
		Warnings:  compiler.AnalyzeCycles(schema),
	}

	if opts.Output != "" {
		if err := writeIRToFile(schema, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err))
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	schema := result.Schema
	fmt.Fprintf(w, "✓ Compiled %d role(s)\n\n", len(schema.Roles))

	fmt.Fprintln(w, "Roles:")
	for _, name := range schema.RoleNames() {
		rs := schema.Roles[name]
		fmt.Fprintf(w, "  %s: %s.%s, %d field(s), %d relation(s), %s keys\n",
			name, rs.Database, rs.Table, len(rs.Fields), len(rs.Relations), rs.Generated)
		for _, rel := range rs.Relations {
			fmt.Fprintf(w, "    %s: %s → %s (%s → %s)\n",
				rel.Name, rel.Kind, rel.Target, rel.InnerKey, rel.OuterKey)
		}
	}
	fmt.Fprintln(w)

	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "%s: %s\n", warn.Level, warn.Message)
	}
	fmt.Fprintf(w, "Schema hash: %s\n", result.Hash)

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote canonical IR to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a compilation error. Compilation errors are
// command-level errors (exit code 2).
func outputCompileError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// writeIRToFile writes the schema to a file in canonical JSON format.
func writeIRToFile(schema *ir.Schema, filename string) error {
	data, err := ir.CanonicalSchema(schema)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
