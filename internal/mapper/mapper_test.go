package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/persist/internal/ir"
)

func testSchema() *ir.Schema {
	return &ir.Schema{Roles: map[string]*ir.RoleSchema{
		"user": {
			Role: "user", Database: ir.DefaultDatabase, Table: "users",
			PrimaryKey: "id", Generated: ir.GeneratedAuto,
			Fields: []ir.Field{{Name: "id", Column: "id"}, {Name: "email", Column: "email"}, {Name: "nick", Column: "nick_name"}},
			Relations: []ir.RelationSchema{
				{Name: "profile", Kind: ir.HasOne, Target: "profile", InnerKey: "id", OuterKey: "user_id"},
				{Name: "comments", Kind: ir.HasMany, Target: "comment", InnerKey: "id", OuterKey: "user_id"},
			},
		},
		"profile": {
			Role: "profile", Database: ir.DefaultDatabase, Table: "profiles",
			PrimaryKey: "id", Generated: ir.GeneratedAuto,
			Fields: []ir.Field{{Name: "id", Column: "id"}, {Name: "user_id", Column: "user_id"}},
		},
		"comment": {
			Role: "comment", Database: ir.DefaultDatabase, Table: "comments",
			PrimaryKey: "id", Generated: ir.GeneratedAuto,
			Fields: []ir.Field{{Name: "id", Column: "id"}, {Name: "user_id", Column: "user_id"}},
		},
	}}
}

type userRow struct {
	ID       int64      `db:"id"`
	Email    string     `db:"email"`
	Nick     *string    `db:"nick"`
	Profile  *profile   `rel:"profile"`
	Comments []*comment `rel:"comments"`
	note     string
}

type profile struct {
	ID     int64 `db:"id"`
	UserID int64 `db:"user_id"`
}

type comment struct {
	ID     int64 `db:"id"`
	UserID int64 `db:"user_id"`
}

func TestRegistryResolvesRoles(t *testing.T) {
	reg := NewRegistry(testSchema())
	require.NoError(t, reg.RegisterStruct("user", (*userRow)(nil)))

	role, err := reg.RoleOf(&userRow{})
	require.NoError(t, err)
	assert.Equal(t, "user", role)

	role, err = reg.RoleOf(NewRecord("comment", nil))
	require.NoError(t, err)
	assert.Equal(t, "comment", role)

	m, err := reg.For(NewRecord("profile", nil))
	require.NoError(t, err)
	assert.Equal(t, "profiles", Table(m))
	assert.Equal(t, ir.DefaultDatabase, Database(m))
}

func TestRegistryRoleResolutionFailure(t *testing.T) {
	reg := NewRegistry(testSchema())

	_, err := reg.RoleOf(&profile{})
	assert.True(t, ir.IsRoleResolution(err))

	_, err = reg.RoleOf(NewRecord("ghost", nil))
	assert.True(t, ir.IsRoleResolution(err))

	_, err = reg.For(nil)
	assert.True(t, ir.IsRoleResolution(err))

	_, err = reg.Mapper("ghost")
	assert.True(t, ir.IsRoleResolution(err))
}

func TestRegisterStructValidatesTags(t *testing.T) {
	reg := NewRegistry(testSchema())

	type missingField struct {
		ID int64 `db:"id"`
	}
	err := reg.RegisterStruct("user", (*missingField)(nil))
	assert.ErrorContains(t, err, `db:"email"`)

	err = reg.RegisterStruct("user", userRow{})
	assert.ErrorContains(t, err, "not a pointer to struct")

	err = reg.RegisterStruct("ghost", (*userRow)(nil))
	assert.ErrorContains(t, err, "unknown role")
}

func TestRecordMapper(t *testing.T) {
	rs := testSchema().Roles["user"]
	m := NewRecordMapper(rs)
	rec := NewRecord("user", map[string]any{"email": "a@x.com", "extra": true})

	fields, err := m.Extract(rec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": nil, "email": "a@x.com", "nick": nil}, fields)

	changes, err := m.ExtractChanges(rec, map[string]any{"id": nil, "email": "a@x.com"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"nick": nil}, changes)

	require.NoError(t, m.Hydrate(rec, map[string]any{"id": int64(9), "unknown": 1}))
	assert.Equal(t, int64(9), rec.Get("id"))
	assert.Nil(t, rec.Get("unknown"))

	child := NewRecord("comment", nil)
	require.NoError(t, m.SetRelation(rec, "comments", []any{child}))
	got, err := m.Relation(rec, "comments")
	require.NoError(t, err)
	assert.Equal(t, []any{child}, got)

	_, err = m.Relation(rec, "posts")
	assert.Error(t, err)

	_, err = m.Extract(&profile{})
	assert.True(t, ir.IsRoleResolution(err))
}

func TestRecordCollections(t *testing.T) {
	a, b := NewRecord("comment", nil), NewRecord("comment", nil)
	rec := NewRecord("user", nil)

	rec.Add("comments", a, b)
	assert.Equal(t, []any{a, b}, rec.Related("comments"))

	rec.Remove("comments", a)
	assert.Equal(t, []any{b}, rec.Related("comments"))
}

func TestStructMapperExtractAndHydrate(t *testing.T) {
	reg := NewRegistry(testSchema())
	require.NoError(t, reg.RegisterStruct("user", (*userRow)(nil)))

	u := &userRow{Email: "a@x.com"}
	m, err := reg.For(u)
	require.NoError(t, err)

	fields, err := m.Extract(u)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": nil, "email": "a@x.com", "nick": nil}, fields,
		"a zero primary key and a nil pointer both read as nil")

	require.NoError(t, m.Hydrate(u, map[string]any{"id": 12, "nick": []byte("al")}))
	assert.Equal(t, int64(12), u.ID)
	require.NotNil(t, u.Nick)
	assert.Equal(t, "al", *u.Nick)

	require.NoError(t, m.Hydrate(u, map[string]any{"nick": nil}))
	assert.Nil(t, u.Nick)

	err = m.Hydrate(u, map[string]any{"email": 5})
	assert.ErrorContains(t, err, "cannot assign int")
}

func TestStructMapperRelations(t *testing.T) {
	reg := NewRegistry(testSchema())
	require.NoError(t, reg.RegisterStruct("user", (*userRow)(nil)))
	m, err := reg.For(&userRow{})
	require.NoError(t, err)

	u := &userRow{}
	got, err := m.Relation(u, "profile")
	require.NoError(t, err)
	assert.Nil(t, got, "a nil pointer slot reads as nil")

	p := &profile{}
	require.NoError(t, m.SetRelation(u, "profile", p))
	assert.Same(t, p, u.Profile)

	c1, c2 := &comment{}, &comment{}
	require.NoError(t, m.SetRelation(u, "comments", []any{c1, c2}))
	assert.Equal(t, []*comment{c1, c2}, u.Comments)

	got, err = m.Relation(u, "comments")
	require.NoError(t, err)
	items, ok := Items(got)
	require.True(t, ok)
	assert.Equal(t, []any{c1, c2}, items)

	err = m.SetRelation(u, "comments", []any{p})
	assert.ErrorContains(t, err, "cannot hold")
}

func TestItems(t *testing.T) {
	items, ok := Items(nil)
	assert.True(t, ok)
	assert.Empty(t, items)

	var none []*comment
	items, ok = Items(none)
	assert.True(t, ok)
	assert.Empty(t, items)

	items, ok = Items([2]int{1, 2})
	assert.True(t, ok)
	assert.Equal(t, []any{1, 2}, items)

	_, ok = Items(&comment{})
	assert.False(t, ok)
}
