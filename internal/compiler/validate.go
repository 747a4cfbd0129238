package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/persist/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrMissingTable        = "E101" // role has no table
	ErrPrimaryNotField     = "E102" // primary key is not a declared field
	ErrUnknownRelationType = "E103" // relation type outside the closed set
	ErrUnknownTarget       = "E104" // relation target is not a role
	ErrKeyNotField         = "E105" // relation key is not a field of the role carrying it
	ErrRefersToNotNullable = "E106" // refersTo keys must be nullable
	ErrMissingThrough      = "E107" // manyToMany without pivot table
	ErrInvalidGenerated    = "E108" // generated is not auto, uuid or none
	ErrUnknownIndex        = "E109" // index on an undeclared field
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled schema. Returns all errors found in role name
// order (does not fail-fast).
func Validate(s *ir.Schema) []ValidationError {
	var errs []ValidationError
	for _, name := range s.RoleNames() {
		errs = append(errs, validateRole(s, s.Roles[name])...)
	}
	return errs
}

func validateRole(s *ir.Schema, r *ir.RoleSchema) []ValidationError {
	var errs []ValidationError
	path := "role." + r.Role

	// E101: table is required
	if strings.TrimSpace(r.Table) == "" {
		errs = append(errs, ValidationError{
			Field:   path + ".table",
			Message: "table is required and must be non-empty",
			Code:    ErrMissingTable,
		})
	}

	// E102: primary key must be a field
	if !r.HasField(r.PrimaryKey) {
		errs = append(errs, ValidationError{
			Field:   path + ".primary",
			Message: fmt.Sprintf("primary key %q is not a declared field", r.PrimaryKey),
			Code:    ErrPrimaryNotField,
		})
	}

	// E108: generated mode
	switch r.Generated {
	case ir.GeneratedAuto, ir.GeneratedUUID, ir.GeneratedNone:
	default:
		errs = append(errs, ValidationError{
			Field:   path + ".generated",
			Message: fmt.Sprintf("invalid generated mode %q, must be \"auto\", \"uuid\", or \"none\"", r.Generated),
			Code:    ErrInvalidGenerated,
		})
	}

	// E109: indexes must name fields
	for i, idx := range r.Indexes {
		if !r.HasField(idx) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s.indexes[%d]", path, i),
				Message: fmt.Sprintf("index on unknown field %q", idx),
				Code:    ErrUnknownIndex,
			})
		}
	}

	for _, rel := range r.Relations {
		errs = append(errs, validateRelation(s, r, rel)...)
	}
	return errs
}

func validateRelation(s *ir.Schema, owner *ir.RoleSchema, rel ir.RelationSchema) []ValidationError {
	var errs []ValidationError
	path := fmt.Sprintf("role.%s.relation.%s", owner.Role, rel.Name)

	// E103: closed set of relation types
	if !rel.Kind.Valid() {
		return append(errs, ValidationError{
			Field:   path + ".type",
			Message: fmt.Sprintf("unknown relation type %q", rel.Kind),
			Code:    ErrUnknownRelationType,
		})
	}

	// E106: refersTo is always nullable
	if rel.Kind == ir.RefersTo && !rel.Nullable {
		errs = append(errs, ValidationError{
			Field:   path + ".nullable",
			Message: "refersTo relations are always nullable",
			Code:    ErrRefersToNotNullable,
		})
	}

	// E107: manyToMany needs a pivot
	if rel.Kind == ir.ManyToMany && (rel.Through == nil || strings.TrimSpace(rel.Through.Table) == "") {
		errs = append(errs, ValidationError{
			Field:   path + ".through",
			Message: "manyToMany relation requires a through table",
			Code:    ErrMissingThrough,
		})
	}

	// E104: target must exist; key checks need it
	target, ok := s.Role(rel.Target)
	if !ok {
		return append(errs, ValidationError{
			Field:   path + ".target",
			Message: fmt.Sprintf("unknown target role %q", rel.Target),
			Code:    ErrUnknownTarget,
		})
	}

	// E105: inner keys live on the owner, outer keys on the target
	errs = append(errs, checkKey(path+".innerKey", owner, rel.InnerKey)...)
	errs = append(errs, checkKey(path+".outerKey", target, rel.OuterKey)...)
	if rel.MorphKey != "" {
		carrier := target
		if rel.Kind == ir.BelongsTo || rel.Kind == ir.RefersTo {
			carrier = owner
		}
		errs = append(errs, checkKey(path+".morphKey", carrier, rel.MorphKey)...)
	}
	return errs
}

func checkKey(field string, carrier *ir.RoleSchema, key string) []ValidationError {
	if carrier.HasField(key) {
		return nil
	}
	return []ValidationError{{
		Field:   field,
		Message: fmt.Sprintf("key %q is not a field of role %q", key, carrier.Role),
		Code:    ErrKeyNotField,
	}}
}
