package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/persist/internal/ir"
)

// CompileFiles unifies the given CUE files, compiles the result and
// validates it. Validation errors are returned joined; cycle warnings are
// not errors and are left to AnalyzeCycles.
func CompileFiles(paths ...string) (*ir.Schema, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no schema files given")
	}

	ctx := cuecontext.New()
	var value cue.Value
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read schema file: %w", err)
		}
		v := ctx.CompileBytes(data, cue.Filename(path))
		if err := v.Err(); err != nil {
			return nil, formatCUEError(err)
		}
		if i == 0 {
			value = v
			continue
		}
		value = value.Unify(v)
	}

	schema, err := CompileSchema(value)
	if err != nil {
		return nil, err
	}
	if errs := Validate(schema); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return schema, nil
}

// ValidationErrors reports every validation error of one schema.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", e[0].Error(), len(e)-1)
}
