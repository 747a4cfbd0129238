package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/persist/internal/ir"
)

// CompileSchema parses the `role` struct of a CUE value into a schema and
// fills in key defaults. Uses the CUE SDK's Go API directly.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`role: user: { table: "users", fields: {id: "id"} }`)
//	schema, err := CompileSchema(v)
//
// The result is not validated; call Validate for the E1xx checks.
func CompileSchema(v cue.Value) (*ir.Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	schema := &ir.Schema{Roles: make(map[string]*ir.RoleSchema)}
	rolesVal := v.LookupPath(cue.ParsePath("role"))
	if !rolesVal.Exists() {
		return nil, &CompileError{Field: "role", Message: "no roles declared", Pos: v.Pos()}
	}

	iter, err := rolesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		rs, err := CompileRole(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		schema.Roles[rs.Role] = rs
	}

	applyKeyDefaults(schema)
	return schema, nil
}

// CompileRole parses one role struct. Keys that depend on other roles are
// filled in by CompileSchema.
func CompileRole(name string, v cue.Value) (*ir.RoleSchema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	rs := &ir.RoleSchema{
		Role:       name,
		Database:   ir.DefaultDatabase,
		PrimaryKey: "id",
		Generated:  ir.GeneratedAuto,
	}
	var err error
	if rs.Table, err = optionalString(v, "table", ""); err != nil {
		return nil, err
	}
	if rs.Database, err = optionalString(v, "database", rs.Database); err != nil {
		return nil, err
	}
	if rs.PrimaryKey, err = optionalString(v, "primary", rs.PrimaryKey); err != nil {
		return nil, err
	}
	gen, err := optionalString(v, "generated", string(rs.Generated))
	if err != nil {
		return nil, err
	}
	rs.Generated = ir.KeyGeneration(gen)

	if rs.Fields, err = parseFields(v); err != nil {
		return nil, err
	}
	if rs.Indexes, err = optionalStrings(v, "indexes"); err != nil {
		return nil, err
	}
	if rs.Relations, err = parseRelations(v); err != nil {
		return nil, err
	}
	return rs, nil
}

// parseFields reads `fields` as a field -> column struct or a list of
// field names stored under their own name. Declaration order is kept.
func parseFields(v cue.Value) ([]ir.Field, error) {
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{Field: "fields", Message: "at least one field is required", Pos: v.Pos()}
	}

	var fields []ir.Field
	if fieldsVal.IncompleteKind() == cue.ListKind {
		names, err := stringList(fieldsVal)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			fields = append(fields, ir.Field{Name: name, Column: name})
		}
		return fields, nil
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		column, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   "fields." + iter.Label(),
				Message: "column must be a string",
				Pos:     iter.Value().Pos(),
			}
		}
		fields = append(fields, ir.Field{Name: iter.Label(), Column: column})
	}
	return fields, nil
}

func parseRelations(v cue.Value) ([]ir.RelationSchema, error) {
	relVal := v.LookupPath(cue.ParsePath("relation"))
	if !relVal.Exists() {
		return nil, nil
	}

	iter, err := relVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rels []ir.RelationSchema
	for iter.Next() {
		rel, err := parseRelation(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

func parseRelation(name string, v cue.Value) (ir.RelationSchema, error) {
	rel := ir.RelationSchema{Name: name, Cascade: true}

	kind, err := requiredString(v, "type")
	if err != nil {
		return rel, err
	}
	rel.Kind = ir.RelationKind(kind)

	if rel.Target, err = requiredString(v, "target"); err != nil {
		return rel, err
	}
	if rel.InnerKey, err = optionalString(v, "innerKey", ""); err != nil {
		return rel, err
	}
	if rel.OuterKey, err = optionalString(v, "outerKey", ""); err != nil {
		return rel, err
	}
	if rel.MorphKey, err = optionalString(v, "morphKey", ""); err != nil {
		return rel, err
	}
	if rel.Cascade, err = optionalBool(v, "cascade", true); err != nil {
		return rel, err
	}
	// refersTo keys are always nullable; declaring otherwise is reported
	// by Validate.
	if rel.Nullable, err = optionalBool(v, "nullable", rel.Kind == ir.RefersTo); err != nil {
		return rel, err
	}

	throughVal := v.LookupPath(cue.ParsePath("through"))
	if throughVal.Exists() {
		t := &ir.ThroughTable{}
		if t.Table, err = requiredString(throughVal, "table"); err != nil {
			return rel, err
		}
		if t.Database, err = optionalString(throughVal, "database", ""); err != nil {
			return rel, err
		}
		if t.InnerKey, err = optionalString(throughVal, "innerKey", ""); err != nil {
			return rel, err
		}
		if t.OuterKey, err = optionalString(throughVal, "outerKey", ""); err != nil {
			return rel, err
		}
		rel.Through = t
	}
	return rel, nil
}

// applyKeyDefaults derives the keys a relation leaves out from the
// primary keys of the roles involved. Relations to unknown roles are left
// alone for Validate to report.
func applyKeyDefaults(s *ir.Schema) {
	for _, name := range s.RoleNames() {
		owner := s.Roles[name]
		for i := range owner.Relations {
			rel := &owner.Relations[i]
			target, ok := s.Roles[rel.Target]
			if !ok {
				continue
			}
			switch rel.Kind {
			case ir.HasOne, ir.HasMany:
				setDefault(&rel.InnerKey, owner.PrimaryKey)
				setDefault(&rel.OuterKey, owner.Role+"_"+owner.PrimaryKey)
			case ir.BelongsTo, ir.RefersTo:
				setDefault(&rel.InnerKey, target.Role+"_"+target.PrimaryKey)
				setDefault(&rel.OuterKey, target.PrimaryKey)
			case ir.ManyToMany:
				setDefault(&rel.InnerKey, owner.PrimaryKey)
				setDefault(&rel.OuterKey, target.PrimaryKey)
				if rel.Through != nil {
					setDefault(&rel.Through.Database, owner.Database)
					setDefault(&rel.Through.InnerKey, owner.Role+"_"+owner.PrimaryKey)
					setDefault(&rel.Through.OuterKey, target.Role+"_"+target.PrimaryKey)
				}
			}
		}
	}
}

func setDefault(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

func requiredString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalString(v cue.Value, field, def string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return def, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optionalBool(v cue.Value, field string, def bool) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return def, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func optionalStrings(v cue.Value, field string) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return nil, nil
	}
	return stringList(fv)
}

func stringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
