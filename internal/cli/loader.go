package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/persist/internal/compiler"
	"github.com/roach88/persist/internal/ir"
)

// LoadResult contains the results of loading a schema directory.
type LoadResult struct {
	Schema    *ir.Schema
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred during schema loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadSchema loads the CUE package in dir and compiles its roles. The
// schema is not validated; callers run compiler.Validate.
func LoadSchema(dir string) (*LoadResult, error) {
	if err := checkSchemaDir(dir); err != nil {
		return nil, err
	}

	files, err := FindCUEFiles(dir)
	switch {
	case err != nil:
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	case len(files) == 0:
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
	}

	value, lerr := buildPackage(dir)
	if lerr != nil {
		return nil, lerr
	}
	schema, err := compiler.CompileSchema(value)
	if err != nil {
		return nil, convertCompileError(err)
	}
	return &LoadResult{Schema: schema, CUEValue: value, FileCount: len(files)}, nil
}

func checkSchemaDir(dir string) *LoadError {
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}
	case err != nil:
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema directory: %v", err)}
	case !info.IsDir():
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}
	return nil
}

// buildPackage loads the single CUE package rooted at dir.
func buildPackage(dir string) (cue.Value, *LoadError) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	if err := instances[0].Err; err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", err)}
	}
	value := cuecontext.New().BuildInstance(instances[0])
	if err := value.Err(); err != nil {
		return cue.Value{}, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}
	return value, nil
}

// FindCUEFiles returns every .cue file under dir.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && !d.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return err
	})
	return files, err
}

// convertCompileError keeps the CUE position of a compile error.
func convertCompileError(err error) *LoadError {
	var ce *compiler.CompileError
	if !errors.As(err, &ce) {
		return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	return &LoadError{Code: MapFieldToErrorCode(ce.Field), Message: ce.Message, Pos: ce.Pos}
}

// Error code constants for loading. Schema validation codes (E1xx) come
// from the compiler package.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error

	ErrCodeScenarioFailed = "E201" // One or more scenarios failed
)

// MapFieldToErrorCode maps the field of a compile error to the validation
// code reporting the same problem.
func MapFieldToErrorCode(field string) string {
	switch field[strings.LastIndex(field, ".")+1:] {
	case "table":
		return compiler.ErrMissingTable
	case "type":
		return compiler.ErrUnknownRelationType
	case "target":
		return compiler.ErrUnknownTarget
	case "through":
		return compiler.ErrMissingThrough
	case "generated":
		return compiler.ErrInvalidGenerated
	default:
		return ErrCodeGeneric
	}
}
