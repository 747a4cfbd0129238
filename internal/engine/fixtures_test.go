package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/persist/internal/command"
	"github.com/roach88/persist/internal/heap"
	"github.com/roach88/persist/internal/ir"
	"github.com/roach88/persist/internal/mapper"
	"github.com/roach88/persist/internal/testutil"
)

func role(name, table string, gen ir.KeyGeneration, fields []string, rels ...ir.RelationSchema) *ir.RoleSchema {
	rs := &ir.RoleSchema{
		Role:       name,
		Database:   ir.DefaultDatabase,
		Table:      table,
		PrimaryKey: "id",
		Generated:  gen,
		Relations:  rels,
	}
	for _, f := range fields {
		rs.Fields = append(rs.Fields, ir.Field{Name: f, Column: f})
	}
	return rs
}

func schemaOf(roles ...*ir.RoleSchema) *ir.Schema {
	s := &ir.Schema{Roles: make(map[string]*ir.RoleSchema, len(roles))}
	for _, r := range roles {
		s.Roles[r.Role] = r
	}
	return s
}

// blogSchema has users owning a profile, comments and tags.
func blogSchema() *ir.Schema {
	return schemaOf(
		role("user", "users", ir.GeneratedAuto, []string{"id", "name"},
			ir.RelationSchema{Name: "profile", Kind: ir.HasOne, Target: "profile", InnerKey: "id", OuterKey: "user_id", Cascade: true},
			ir.RelationSchema{Name: "comments", Kind: ir.HasMany, Target: "comment", InnerKey: "id", OuterKey: "user_id", Cascade: true},
			ir.RelationSchema{Name: "tags", Kind: ir.ManyToMany, Target: "tag", InnerKey: "id", OuterKey: "id", Cascade: true,
				Through: &ir.ThroughTable{Database: ir.DefaultDatabase, Table: "user_tags", InnerKey: "user_id", OuterKey: "tag_id"}},
		),
		role("profile", "profiles", ir.GeneratedAuto, []string{"id", "user_id", "image"}),
		role("comment", "comments", ir.GeneratedAuto, []string{"id", "user_id", "body"},
			ir.RelationSchema{Name: "author", Kind: ir.BelongsTo, Target: "user", InnerKey: "user_id", OuterKey: "id", Cascade: true},
		),
		role("tag", "tags", ir.GeneratedAuto, []string{"id", "name"}),
	)
}

// mutualSchema has users pointing at their last post while posts belong
// to their author.
func mutualSchema(gen ir.KeyGeneration) *ir.Schema {
	return schemaOf(
		role("user", "users", gen, []string{"id", "name", "last_post_id"},
			ir.RelationSchema{Name: "lastPost", Kind: ir.RefersTo, Target: "post", InnerKey: "last_post_id", OuterKey: "id", Nullable: true},
		),
		role("post", "posts", gen, []string{"id", "user_id", "title"},
			ir.RelationSchema{Name: "author", Kind: ir.BelongsTo, Target: "user", InnerKey: "user_id", OuterKey: "id", Cascade: true},
		),
	)
}

// cycleSchema has two roles that each require the other to exist first.
func cycleSchema() *ir.Schema {
	return schemaOf(
		role("a", "as", ir.GeneratedAuto, []string{"id", "b_id"},
			ir.RelationSchema{Name: "b", Kind: ir.BelongsTo, Target: "b", InnerKey: "b_id", OuterKey: "id", Cascade: true},
		),
		role("b", "bs", ir.GeneratedAuto, []string{"id", "a_id"},
			ir.RelationSchema{Name: "a", Kind: ir.BelongsTo, Target: "a", InnerKey: "a_id", OuterKey: "id", Cascade: true},
		),
	)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newUnit(t *testing.T, schema *ir.Schema, opts ...Option) (*UnitOfWork, *testutil.MemoryDriver) {
	t.Helper()
	drv := testutil.NewMemoryDriver(ir.DefaultDatabase)
	opts = append([]Option{
		WithLogger(quietLogger()),
		WithRunIDGenerator(testutil.NewFixedRunIDGenerator("test-run")),
	}, opts...)
	u, err := New(mapper.NewRegistry(schema), heap.New(), map[string]command.Driver{ir.DefaultDatabase: drv}, opts...)
	require.NoError(t, err)
	return u, drv
}

func rec(role string, kv ...any) *mapper.Record {
	fields := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[kv[i].(string)] = kv[i+1]
	}
	return mapper.NewRecord(role, fields)
}

func ops(ws []testutil.Write) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.String()
	}
	return out
}
