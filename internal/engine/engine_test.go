package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/persist/internal/heap"
	"github.com/roach88/persist/internal/ir"
	"github.com/roach88/persist/internal/testutil"
)

func TestRun_HasOneInsertsOwnerFirst(t *testing.T) {
	u, drv := newUnit(t, blogSchema())
	user := rec("user", "name", "ann")
	profile := rec("profile", "image", "ann.png")
	user.SetRelated("profile", profile)

	u.Persist(user, true)
	out, err := u.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"insert users", "insert profiles"}, ops(drv.Writes()))
	assert.Equal(t, 2, out.Writes)
	assert.Equal(t, "test-run", out.RunID)
	assert.Equal(t, 0, u.Pending())

	// Generated key reached the child and both entities were re-hydrated.
	id := user.Get("id")
	require.NotNil(t, id)
	assert.Equal(t, id, profile.Get("user_id"))
	assert.NotNil(t, profile.Get("id"))

	rows := drv.Rows("profiles")
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0]["user_id"])

	found, ok := u.Heap().Find("user", "id", id)
	require.True(t, ok)
	assert.Same(t, user, found)
}

func TestRun_UnchangedGraphWritesNothing(t *testing.T) {
	u, drv := newUnit(t, blogSchema())
	user := rec("user", "name", "ann")
	user.SetRelated("profile", rec("profile", "image", "ann.png"))

	u.Persist(user, true)
	_, err := u.Run(context.Background())
	require.NoError(t, err)
	drv.ResetWrites()

	u.Persist(user, true)
	out, err := u.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drv.Writes())
	assert.Equal(t, 0, out.Writes)
	assert.Equal(t, 2, out.Commands)
}

func TestRun_ChangedFieldUpdatesOnlyThatColumn(t *testing.T) {
	u, drv := newUnit(t, blogSchema())
	user := rec("user", "name", "ann")
	u.Persist(user, true)
	_, err := u.Run(context.Background())
	require.NoError(t, err)
	drv.ResetWrites()

	user.Set("name", "anna")
	u.Persist(user, true)
	_, err = u.Run(context.Background())
	require.NoError(t, err)

	writes := drv.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, map[string]any{"name": "anna"}, writes[0].Values)
	assert.Equal(t, map[string]any{"id": user.Get("id")}, writes[0].Where)
}

func TestRun_HasManyPropagatesKeyToEveryChild(t *testing.T) {
	u, drv := newUnit(t, blogSchema())
	user := rec("user", "name", "ann")
	c1 := rec("comment", "body", "first")
	c2 := rec("comment", "body", "second")
	user.Add("comments", c1, c2)

	u.Persist(user, true)
	_, err := u.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"insert users", "insert comments", "insert comments"}, ops(drv.Writes()))
	for _, row := range drv.Rows("comments") {
		assert.Equal(t, user.Get("id"), row["user_id"])
	}
}

func TestRun_BelongsToStoresParentFirst(t *testing.T) {
	u, drv := newUnit(t, blogSchema())
	user := rec("user", "name", "ann")
	comment := rec("comment", "body", "hi")
	comment.SetRelated("author", user)

	u.Persist(comment, true)
	_, err := u.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"insert users", "insert comments"}, ops(drv.Writes()))
	assert.Equal(t, user.Get("id"), comment.Get("user_id"))
}

func TestRun_MutualRefersToWithAutoKeys(t *testing.T) {
	u, drv := newUnit(t, mutualSchema(ir.GeneratedAuto))
	user := rec("user", "name", "ann")
	post := rec("post", "title", "hello")
	user.SetRelated("lastPost", post)
	post.SetRelated("author", user)

	u.Persist(user, true)
	u.Persist(post, true)
	_, err := u.Run(context.Background())
	require.NoError(t, err)

	writes := drv.Writes()
	assert.Equal(t, []string{"insert users", "insert posts", "update users"}, ops(writes))
	assert.Nil(t, writes[0].Values["last_post_id"])
	assert.Equal(t, map[string]any{"last_post_id": post.Get("id")}, writes[2].Values)
	assert.Equal(t, map[string]any{"id": user.Get("id")}, writes[2].Where)

	assert.Equal(t, post.Get("id"), user.Get("last_post_id"))
	assert.Equal(t, user.Get("id"), post.Get("user_id"))
}

func TestRun_MutualRefersToWithUUIDKeys(t *testing.T) {
	u, drv := newUnit(t, mutualSchema(ir.GeneratedUUID))
	user := rec("user", "name", "ann")
	post := rec("post", "title", "hello")
	user.SetRelated("lastPost", post)
	post.SetRelated("author", user)

	u.Persist(user, true)
	u.Persist(post, true)
	_, err := u.Run(context.Background())
	require.NoError(t, err)

	writes := drv.Writes()
	assert.Equal(t, []string{"insert users", "insert posts"}, ops(writes))
	assert.Equal(t, post.Get("id"), writes[0].Values["last_post_id"])
	assert.Equal(t, user.Get("id"), writes[1].Values["user_id"])
}

func TestRun_KeyGeneratorAssignsUUIDKeys(t *testing.T) {
	u, drv := newUnit(t, mutualSchema(ir.GeneratedUUID), WithKeyGenerator(testutil.NewSequentialKeyGenerator()))
	user := rec("user", "name", "ann")
	post := rec("post", "title", "hello")
	post.SetRelated("author", user)

	u.Persist(post, true)
	_, err := u.Run(context.Background())
	require.NoError(t, err)

	writes := drv.Writes()
	require.Len(t, writes, 2)
	assert.ElementsMatch(t,
		[]any{"00000000-0000-7000-8000-000000000001", "00000000-0000-7000-8000-000000000002"},
		[]any{writes[0].Values["id"], writes[1].Values["id"]})
	assert.Equal(t, user.Get("id"), writes[1].Values["user_id"])
}

func TestRun_RefersToUntrackedTargetIsOrderingFailure(t *testing.T) {
	u, drv := newUnit(t, mutualSchema(ir.GeneratedAuto))
	user := rec("user", "name", "ann")
	user.SetRelated("lastPost", rec("post", "title", "never stored"))

	u.Persist(user, true)
	_, err := u.Run(context.Background())
	require.Error(t, err)
	assert.True(t, ir.IsOrderingFailure(err))

	var we *ir.WriteError
	require.True(t, errors.As(err, &we))
	assert.Contains(t, we.Details, "user.lastPost")
	assert.Empty(t, drv.Writes())
}

func TestRun_RequiredBelongsToCycleIsOrderingFailure(t *testing.T) {
	u, drv := newUnit(t, cycleSchema())
	a := rec("a")
	b := rec("b")
	a.SetRelated("b", b)
	b.SetRelated("a", a)

	u.Persist(a, true)
	_, err := u.Run(context.Background())
	require.Error(t, err)
	assert.True(t, ir.IsOrderingFailure(err))
	assert.Empty(t, drv.Writes())
	assert.Equal(t, 0, drv.Begins)
}

func TestRun_MissingRequiredParentIsNullConstraint(t *testing.T) {
	u, drv := newUnit(t, blogSchema())
	comment := rec("comment", "body", "orphan")

	u.Persist(comment, true)
	_, err := u.Run(context.Background())
	require.Error(t, err)
	assert.True(t, ir.IsNullConstraint(err))
	assert.Empty(t, drv.Writes())

	node, ok := u.Heap().Get(comment)
	require.True(t, ok)
	assert.False(t, node.HasState())
}

func TestRun_ChildReachedThroughOwnerSatisfiesRequiredParent(t *testing.T) {
	// The comment never names its author; the user's hasMany routes the key.
	u, _ := newUnit(t, blogSchema())
	user := rec("user", "name", "ann")
	comment := rec("comment", "body", "hi")
	user.Add("comments", comment)

	u.Persist(comment, true)
	u.Persist(user, true)
	_, err := u.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, user.Get("id"), comment.Get("user_id"))
}

func TestRun_UnknownEntityIsRoleResolution(t *testing.T) {
	u, _ := newUnit(t, blogSchema())

	u.Persist(struct{ Name string }{"x"}, true)
	_, err := u.Run(context.Background())
	require.Error(t, err)
	assert.True(t, ir.IsRoleResolution(err))
}

func TestRun_StorageFailureRollsBackEverything(t *testing.T) {
	u, drv := newUnit(t, blogSchema())
	drv.FailAt(2, errors.New("disk full"))
	user := rec("user", "name", "ann")
	profile := rec("profile", "image", "ann.png")
	user.SetRelated("profile", profile)

	u.Persist(user, true)
	_, err := u.Run(context.Background())
	require.Error(t, err)
	assert.True(t, ir.IsStorageFailure(err))

	assert.Equal(t, 1, drv.Rollbacks)
	assert.Equal(t, 0, drv.Commits)
	assert.Empty(t, drv.Rows("users"))
	assert.Nil(t, user.Get("id"))
	for _, n := range u.Heap().All() {
		assert.False(t, n.Status().Scheduled(), n.String())
		assert.False(t, n.HasState())
	}

	// The same graph stores cleanly once storage recovers.
	drv.FailAt(0, nil)
	u.Persist(user, true)
	_, err = u.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, drv.Rows("users"), 1)
	assert.Len(t, drv.Rows("profiles"), 1)
	assert.Equal(t, user.Get("id"), profile.Get("user_id"))
}

func TestRun_RemovedRequiredChildIsDeleted(t *testing.T) {
	u, drv := newUnit(t, blogSchema())
	user := rec("user", "name", "ann")
	keep := rec("comment", "body", "keep")
	drop := rec("comment", "body", "drop")
	user.Add("comments", keep, drop)
	u.Persist(user, true)
	_, err := u.Run(context.Background())
	require.NoError(t, err)
	drv.ResetWrites()

	user.Remove("comments", drop)
	u.Persist(user, true)
	out, err := u.Run(context.Background())
	require.NoError(t, err)

	writes := drv.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, "delete comments", writes[0].String())
	assert.Equal(t, map[string]any{"id": drop.Get("id")}, writes[0].Where)
	assert.Equal(t, 1, out.Detached)
	assert.False(t, u.Heap().Has(drop))
	assert.True(t, u.Heap().Has(keep))
	assert.Len(t, drv.Rows("comments"), 1)
}

func TestRun_ClaimedChildIsMovedNotDeleted(t *testing.T) {
	u, drv := newUnit(t, blogSchema())
	ann := rec("user", "name", "ann")
	bob := rec("user", "name", "bob")
	comment := rec("comment", "body", "moving")
	ann.Add("comments", comment)
	u.Persist(ann, true)
	u.Persist(bob, true)
	_, err := u.Run(context.Background())
	require.NoError(t, err)
	drv.ResetWrites()

	ann.Remove("comments", comment)
	bob.Add("comments", comment)
	u.Persist(ann, true)
	u.Persist(bob, true)
	out, err := u.Run(context.Background())
	require.NoError(t, err)

	writes := drv.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, "update comments", writes[0].String())
	assert.Equal(t, map[string]any{"user_id": bob.Get("id")}, writes[0].Values)
	assert.Equal(t, 0, out.Detached)
	assert.True(t, u.Heap().Has(comment))
	assert.Equal(t, bob.Get("id"), comment.Get("user_id"))
}

func TestRun_ClaimSurvivesOwnerDeleteInEitherQueueOrder(t *testing.T) {
	tests := []struct {
		name        string
		deleteFirst bool
	}{
		{"delete queued first", true},
		{"persist queued first", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, drv := newUnit(t, blogSchema())
			ann := rec("user", "name", "ann")
			bob := rec("user", "name", "bob")
			comment := rec("comment", "body", "moving")
			ann.Add("comments", comment)
			u.Persist(ann, true)
			u.Persist(bob, true)
			_, err := u.Run(context.Background())
			require.NoError(t, err)
			drv.ResetWrites()

			bob.Add("comments", comment)
			if tt.deleteFirst {
				u.Delete(ann, true)
				u.Persist(bob, true)
			} else {
				u.Persist(bob, true)
				u.Delete(ann, true)
			}
			out, err := u.Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, []string{"update comments", "delete users"}, ops(drv.Writes()))
			assert.Equal(t, 1, out.Detached)
			assert.False(t, u.Heap().Has(ann))
			assert.True(t, u.Heap().Has(comment))
			assert.Equal(t, bob.Get("id"), comment.Get("user_id"))
			require.Len(t, drv.Rows("comments"), 1)
			assert.Equal(t, bob.Get("id"), drv.Rows("comments")[0]["user_id"])
		})
	}
}

func TestRun_RequiredHasOneSetToNilDeletesTheChild(t *testing.T) {
	u, drv := newUnit(t, blogSchema())
	user := rec("user", "name", "ann")
	profile := rec("profile", "image", "ann.png")
	user.SetRelated("profile", profile)
	u.Persist(user, true)
	_, err := u.Run(context.Background())
	require.NoError(t, err)
	drv.ResetWrites()

	user.SetRelated("profile", nil)
	u.Persist(user, true)
	out, err := u.Run(context.Background())
	require.NoError(t, err, "a cleared owning relation is a removal, not a null constraint")

	writes := drv.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, "delete profiles", writes[0].String())
	assert.Equal(t, map[string]any{"id": profile.Get("id")}, writes[0].Where)
	assert.Equal(t, 1, out.Detached)
	assert.False(t, u.Heap().Has(profile))
	assert.Empty(t, drv.Rows("profiles"))
}

func TestRun_ManyToManyReleaseSweepsUnrecordedPivots(t *testing.T) {
	u, drv := newUnit(t, blogSchema())
	user := rec("user", "name", "ann")
	u.Persist(user, false)
	_, err := u.Run(context.Background())
	require.NoError(t, err)
	drv.ResetWrites()

	u.Delete(user, true)
	_, err = u.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"delete user_tags", "delete users"}, ops(drv.Writes()),
		"relations never resolved may still have rows")
}

func TestRun_NewEntityWithTrackedKeyIsRejected(t *testing.T) {
	u, drv := newUnit(t, blogSchema())
	ann := rec("user", "name", "ann")
	u.Persist(ann, true)
	_, err := u.Run(context.Background())
	require.NoError(t, err)
	drv.ResetWrites()

	twin := rec("user", "id", ann.Get("id"), "name", "twin")
	u.Persist(twin, true)
	_, err = u.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, heap.ErrDuplicateKey)
	assert.Empty(t, drv.Writes())
	assert.False(t, u.Heap().Has(twin))

	found, ok := u.Heap().Find("user", "id", ann.Get("id"))
	require.True(t, ok)
	assert.Same(t, ann, found)
}

func TestRun_ReindexConflictIsReported(t *testing.T) {
	schema := blogSchema()
	schema.Roles["user"].Indexes = []string{"name"}
	u, _ := newUnit(t, schema)
	ann := rec("user", "name", "ann")
	bob := rec("user", "name", "bob")
	u.Persist(ann, true)
	u.Persist(bob, true)
	out, err := u.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out.Conflicts)

	bob.Set("name", "ann")
	u.Persist(bob, true)
	out, err = u.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, out.Conflicts, 1)
	assert.ErrorIs(t, out.Conflicts[0], heap.ErrDuplicateKey)

	found, ok := u.Heap().Find("user", "name", "ann")
	require.True(t, ok)
	assert.Same(t, ann, found)
}

func TestRun_WithoutCascadeOnlyTheEntityIsWritten(t *testing.T) {
	u, drv := newUnit(t, blogSchema())
	user := rec("user", "name", "ann")
	profile := rec("profile", "image", "ann.png")
	user.SetRelated("profile", profile)

	u.Persist(user, false)
	_, err := u.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"insert users"}, ops(drv.Writes()))
	assert.False(t, u.Heap().Has(profile))
}

func TestRun_DeleteCascadesToOwnedChildren(t *testing.T) {
	u, drv := newUnit(t, blogSchema())
	user := rec("user", "name", "ann")
	c1 := rec("comment", "body", "one")
	c2 := rec("comment", "body", "two")
	user.Add("comments", c1, c2)
	u.Persist(user, true)
	_, err := u.Run(context.Background())
	require.NoError(t, err)
	drv.ResetWrites()

	u.Delete(user, true)
	out, err := u.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"delete comments", "delete comments", "delete users"}, ops(drv.Writes()), "no pivot sweep for a user recorded without tags")
	assert.Equal(t, 3, out.Detached)
	assert.Equal(t, 0, u.Heap().Len())
	assert.Empty(t, drv.Rows("comments"))
	assert.Empty(t, drv.Rows("users"))
}

func TestRun_DeleteWithoutCascadeLeavesChildren(t *testing.T) {
	u, drv := newUnit(t, blogSchema())
	user := rec("user", "name", "ann")
	comment := rec("comment", "body", "one")
	user.Add("comments", comment)
	u.Persist(user, true)
	_, err := u.Run(context.Background())
	require.NoError(t, err)
	drv.ResetWrites()

	u.Delete(user, false)
	_, err = u.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"delete users"}, ops(drv.Writes()))
	assert.True(t, u.Heap().Has(comment))
}

func TestRun_DeleteAfterPersistCancelsTheInsert(t *testing.T) {
	u, drv := newUnit(t, blogSchema())
	user := rec("user", "name", "ann")

	u.Persist(user, true)
	u.Delete(user, true)
	assert.Equal(t, 1, u.Pending())

	out, err := u.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drv.Writes())
	assert.Equal(t, 0, out.Writes)
	assert.Equal(t, 0, drv.Begins)
}

func TestRun_ManyToManyLinksAndUnlinks(t *testing.T) {
	u, drv := newUnit(t, blogSchema())
	user := rec("user", "name", "ann")
	golang := rec("tag", "name", "go")
	sql := rec("tag", "name", "sql")
	user.Add("tags", golang, sql)

	u.Persist(user, true)
	_, err := u.Run(context.Background())
	require.NoError(t, err)

	pivots := drv.Rows("user_tags")
	require.Len(t, pivots, 2)
	for _, row := range pivots {
		assert.Equal(t, user.Get("id"), row["user_id"])
	}
	assert.Equal(t, golang.Get("id"), pivots[0]["tag_id"])
	assert.Equal(t, sql.Get("id"), pivots[1]["tag_id"])
	drv.ResetWrites()

	user.Remove("tags", golang)
	u.Persist(user, true)
	_, err = u.Run(context.Background())
	require.NoError(t, err)

	writes := drv.Writes()
	require.Len(t, writes, 1)
	assert.Equal(t, "delete user_tags", writes[0].String())
	assert.Equal(t, map[string]any{"user_id": user.Get("id"), "tag_id": golang.Get("id")}, writes[0].Where)
	pivots = drv.Rows("user_tags")
	require.Len(t, pivots, 1)
	assert.Equal(t, sql.Get("id"), pivots[0]["tag_id"])
	assert.True(t, u.Heap().Has(golang))
}

func TestRun_PassBudgetExceeded(t *testing.T) {
	u, drv := newUnit(t, blogSchema(), WithMaxPasses(1))
	user := rec("user", "name", "ann")
	user.SetRelated("profile", rec("profile", "image", "ann.png"))

	u.Persist(user, true)
	_, err := u.Run(context.Background())
	require.Error(t, err)
	assert.True(t, ir.IsOrderingFailure(err))
	assert.Contains(t, err.Error(), "pass budget exceeded")
	assert.Equal(t, 1, drv.Rollbacks)
	assert.Empty(t, drv.Rows("users"))
}

func TestRun_MissingDriverIsStorageFailure(t *testing.T) {
	schema := blogSchema()
	schema.Roles["tag"].Database = "archive"
	u, _ := newUnit(t, schema)

	u.Persist(rec("tag", "name", "go"), true)
	_, err := u.Run(context.Background())
	require.Error(t, err)
	assert.True(t, ir.IsStorageFailure(err))
}

func TestRun_OutcomeLogsWritesInOrder(t *testing.T) {
	u, _ := newUnit(t, blogSchema())
	user := rec("user", "name", "ann")
	user.Add("comments", rec("comment", "body", "hi"))

	u.Persist(user, true)
	out, err := u.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, out.Log, 2)
	assert.Equal(t, "1 insert users", out.Log[0].String())
	assert.Equal(t, "2 insert comments", out.Log[1].String())
	assert.Equal(t, ir.DefaultDatabase, out.Log[0].Database)
	assert.Equal(t, 2, out.Passes)
}

func TestRun_SyncLeavesNodesManaged(t *testing.T) {
	u, _ := newUnit(t, blogSchema())
	user := rec("user", "name", "ann")
	u.Persist(user, true)
	_, err := u.Run(context.Background())
	require.NoError(t, err)

	node, ok := u.Heap().Get(user)
	require.True(t, ok)
	assert.Equal(t, heap.StatusManaged, node.Status())
	assert.False(t, node.HasState())
	assert.Equal(t, user.Get("id"), node.Snapshot()["id"])
}
