package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/persist/internal/ir"
)

func validRole(name string) *ir.RoleSchema {
	return &ir.RoleSchema{
		Role:       name,
		Database:   ir.DefaultDatabase,
		Table:      name + "s",
		PrimaryKey: "id",
		Generated:  ir.GeneratedAuto,
		Fields:     []ir.Field{{Name: "id", Column: "id"}, {Name: "owner_id", Column: "owner_id"}},
	}
}

func schemaWith(roles ...*ir.RoleSchema) *ir.Schema {
	s := &ir.Schema{Roles: make(map[string]*ir.RoleSchema)}
	for _, r := range roles {
		s.Roles[r.Role] = r
	}
	return s
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateRole(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *ir.RoleSchema)
		code   string
		field  string
	}{
		{"missing table", func(r *ir.RoleSchema) { r.Table = " " }, ErrMissingTable, "role.user.table"},
		{"primary not a field", func(r *ir.RoleSchema) { r.PrimaryKey = "uid" }, ErrPrimaryNotField, "role.user.primary"},
		{"bad generated", func(r *ir.RoleSchema) { r.Generated = "serial" }, ErrInvalidGenerated, "role.user.generated"},
		{"unknown index", func(r *ir.RoleSchema) { r.Indexes = []string{"id", "email"} }, ErrUnknownIndex, "role.user.indexes[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRole("user")
			tt.mutate(r)
			errs := Validate(schemaWith(r))
			require.Len(t, errs, 1)
			assert.Equal(t, tt.code, errs[0].Code)
			assert.Equal(t, tt.field, errs[0].Field)
		})
	}
}

func TestValidateRelation(t *testing.T) {
	tests := []struct {
		name  string
		rel   ir.RelationSchema
		codes []string
	}{
		{
			name:  "valid hasMany",
			rel:   ir.RelationSchema{Name: "r", Kind: ir.HasMany, Target: "item", InnerKey: "id", OuterKey: "owner_id"},
			codes: []string{},
		},
		{
			name:  "unknown type",
			rel:   ir.RelationSchema{Name: "r", Kind: "embeds", Target: "item"},
			codes: []string{ErrUnknownRelationType},
		},
		{
			name:  "unknown target",
			rel:   ir.RelationSchema{Name: "r", Kind: ir.HasOne, Target: "ghost", InnerKey: "id", OuterKey: "owner_id"},
			codes: []string{ErrUnknownTarget},
		},
		{
			name:  "inner key on owner",
			rel:   ir.RelationSchema{Name: "r", Kind: ir.BelongsTo, Target: "item", InnerKey: "item_id", OuterKey: "id"},
			codes: []string{ErrKeyNotField},
		},
		{
			name:  "outer key on target",
			rel:   ir.RelationSchema{Name: "r", Kind: ir.HasOne, Target: "item", InnerKey: "id", OuterKey: "user_id"},
			codes: []string{ErrKeyNotField},
		},
		{
			name:  "refersTo not nullable",
			rel:   ir.RelationSchema{Name: "r", Kind: ir.RefersTo, Target: "item", InnerKey: "owner_id", OuterKey: "id"},
			codes: []string{ErrRefersToNotNullable},
		},
		{
			name:  "manyToMany without pivot",
			rel:   ir.RelationSchema{Name: "r", Kind: ir.ManyToMany, Target: "item", InnerKey: "id", OuterKey: "id"},
			codes: []string{ErrMissingThrough},
		},
		{
			name:  "morph key on target for hasMany",
			rel:   ir.RelationSchema{Name: "r", Kind: ir.HasMany, Target: "item", InnerKey: "id", OuterKey: "owner_id", MorphKey: "owner_type"},
			codes: []string{ErrKeyNotField},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner := validRole("user")
			owner.Relations = []ir.RelationSchema{tt.rel}
			errs := Validate(schemaWith(owner, validRole("item")))
			assert.Equal(t, tt.codes, codes(errs))
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	r := validRole("user")
	r.Table = ""
	r.PrimaryKey = "uid"
	r.Relations = []ir.RelationSchema{{Name: "x", Kind: ir.HasOne, Target: "ghost"}}

	errs := Validate(schemaWith(r))
	assert.Equal(t, []string{ErrMissingTable, ErrPrimaryNotField, ErrUnknownTarget}, codes(errs))
}

func TestValidationErrorFormat(t *testing.T) {
	e := ValidationError{Field: "role.user.table", Message: "table is required", Code: ErrMissingTable}
	assert.Equal(t, "[E101] role.user.table: table is required", e.Error())

	e.Line = 4
	assert.Equal(t, "[E101] line 4: role.user.table: table is required", e.Error())
}
