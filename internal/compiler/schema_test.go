package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/persist/internal/ir"
)

const blogCUE = `
role: user: {
	table: "users"
	fields: { id: "id", name: "display_name", email: "email" }
	indexes: ["email"]

	relation: profile: { type: "hasOne", target: "profile" }
	relation: comments: { type: "hasMany", target: "comment", cascade: false }
	relation: tags: {
		type:   "manyToMany"
		target: "tag"
		through: table: "user_tags"
	}
}

role: profile: {
	table: "profiles"
	fields: ["id", "user_id", "image"]
}

role: comment: {
	table:     "comments"
	database:  "archive"
	generated: "uuid"
	fields: ["id", "user_id", "body", "reply_to"]

	relation: author: { type: "belongsTo", target: "user", innerKey: "user_id" }
	relation: replyTo: { type: "refersTo", target: "comment", innerKey: "reply_to" }
}

role: tag: {
	table:   "tags"
	primary: "tag_id"
	fields: ["tag_id", "name"]
}
`

func compileString(t *testing.T, src string) *ir.Schema {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	s, err := CompileSchema(v)
	require.NoError(t, err)
	return s
}

func TestCompileSchemaBasic(t *testing.T) {
	s := compileString(t, blogCUE)

	assert.Equal(t, []string{"comment", "profile", "tag", "user"}, s.RoleNames())

	user := s.Roles["user"]
	assert.Equal(t, "users", user.Table)
	assert.Equal(t, ir.DefaultDatabase, user.Database)
	assert.Equal(t, "id", user.PrimaryKey)
	assert.Equal(t, ir.GeneratedAuto, user.Generated)
	assert.Equal(t, []string{"id", "name", "email"}, user.FieldNames(), "declaration order kept")
	assert.Equal(t, "display_name", user.Columns()["name"])
	assert.Equal(t, []string{"email"}, user.Indexes)

	comment := s.Roles["comment"]
	assert.Equal(t, "archive", comment.Database)
	assert.Equal(t, ir.GeneratedUUID, comment.Generated)
	assert.Equal(t, "body", comment.Columns()["body"], "list fields map to themselves")

	assert.Equal(t, "tag_id", s.Roles["tag"].PrimaryKey)
}

func TestCompileSchemaKeyDefaults(t *testing.T) {
	s := compileString(t, blogCUE)
	user := s.Roles["user"]

	profile, ok := user.Relation("profile")
	require.True(t, ok)
	assert.Equal(t, ir.HasOne, profile.Kind)
	assert.Equal(t, "id", profile.InnerKey)
	assert.Equal(t, "user_id", profile.OuterKey)
	assert.True(t, profile.Cascade)
	assert.False(t, profile.Nullable)

	comments, _ := user.Relation("comments")
	assert.False(t, comments.Cascade)

	tags, _ := user.Relation("tags")
	assert.Equal(t, "id", tags.InnerKey)
	assert.Equal(t, "tag_id", tags.OuterKey)
	require.NotNil(t, tags.Through)
	assert.Equal(t, ir.ThroughTable{
		Database: ir.DefaultDatabase,
		Table:    "user_tags",
		InnerKey: "user_id",
		OuterKey: "tag_tag_id",
	}, *tags.Through)

	author, _ := s.Roles["comment"].Relation("author")
	assert.Equal(t, "user_id", author.InnerKey)
	assert.Equal(t, "id", author.OuterKey)

	replyTo, _ := s.Roles["comment"].Relation("replyTo")
	assert.Equal(t, "reply_to", replyTo.InnerKey)
	assert.True(t, replyTo.Nullable, "refersTo defaults to nullable")
}

func TestCompileSchemaValidates(t *testing.T) {
	s := compileString(t, blogCUE)
	assert.Empty(t, Validate(s))
	assert.Empty(t, AnalyzeCycles(s))
}

func TestCompileSchemaNoRoles(t *testing.T) {
	v := cuecontext.New().CompileString(`other: 1`)
	_, err := CompileSchema(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no roles")
}

func TestCompileRoleMissingFields(t *testing.T) {
	v := cuecontext.New().CompileString(`role: user: table: "users"`)
	require.NoError(t, v.Err())

	_, err := CompileRole("user", v.LookupPath(cue.ParsePath("role.user")))
	require.Error(t, err)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "fields", ce.Field)
}

func TestCompileRelationMissingTarget(t *testing.T) {
	v := cuecontext.New().CompileString(`
		role: user: {
			table: "users"
			fields: ["id"]
			relation: profile: type: "hasOne"
		}
	`)
	_, err := CompileSchema(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target is required")
}

func TestCompileSchemaWrongType(t *testing.T) {
	v := cuecontext.New().CompileString(`
		role: user: {
			table: 42
			fields: ["id"]
		}
	`)
	_, err := CompileSchema(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table")
}

func TestCompileErrorFormat(t *testing.T) {
	err := &CompileError{Field: "table", Message: "table is required"}
	assert.Equal(t, "table: table is required", err.Error())
	assert.NoError(t, formatCUEError(nil))
}

func TestCompileFiles(t *testing.T) {
	s, err := CompileFiles("testdata/blog.cue")
	require.NoError(t, err)
	assert.Equal(t, []string{"profile", "user"}, s.RoleNames())
	assert.Equal(t, []string{"id", "email"}, s.Roles["user"].IndexKeys())
}

func TestCompileFilesUnifiesAndValidates(t *testing.T) {
	s, err := CompileFiles("testdata/blog.cue", "testdata/broken.cue")
	require.Error(t, err, "comment.user_id is not declared")
	assert.Nil(t, s)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, ErrKeyNotField, verrs[0].Code)
	assert.Equal(t, "role.comment.relation.author.innerKey", verrs[0].Field)
}

func TestCompileFilesMissing(t *testing.T) {
	_, err := CompileFiles("testdata/nope.cue")
	require.Error(t, err)

	_, err = CompileFiles()
	require.Error(t, err)
}
