package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct{ email string }

func TestHeapAttachFindDetach(t *testing.T) {
	h := New()
	u := &user{email: "a@x.com"}
	n := NewNode("user", StatusManaged, map[string]any{"id": int64(1), "email": "a@x.com"})

	require.NoError(t, h.Attach(u, n, "id", "email"))
	assert.True(t, h.Has(u))
	assert.Equal(t, 1, h.Len())

	got, ok := h.Get(u)
	require.True(t, ok)
	assert.Same(t, n, got)

	found, ok := h.Find("user", "id", 1)
	require.True(t, ok, "index lookups fold integer widths")
	assert.Same(t, u, found)

	_, ok = h.Find("profile", "id", 1)
	assert.False(t, ok)

	h.Detach(u)
	assert.False(t, h.Has(u))
	_, ok = h.Find("user", "email", "a@x.com")
	assert.False(t, ok)
}

func TestHeapRejectsDuplicateKey(t *testing.T) {
	h := New()
	a, b := &user{}, &user{}
	require.NoError(t, h.Attach(a, NewNode("user", StatusManaged, map[string]any{"id": 1}), "id"))

	err := h.Attach(b, NewNode("user", StatusManaged, map[string]any{"id": 1}), "id")
	require.ErrorIs(t, err, ErrDuplicateKey)
	assert.False(t, h.Has(b))

	// A different role may reuse the value.
	require.NoError(t, h.Attach(b, NewNode("post", StatusManaged, map[string]any{"id": 1}), "id"))
}

func TestHeapReattachRefreshesIndex(t *testing.T) {
	h := New()
	u := &user{}
	n := NewNode("user", StatusNew, nil)
	require.NoError(t, h.Attach(u, n, "id"))

	_, ok := h.Find("user", "id", 7)
	assert.False(t, ok, "unknown keys are not indexed")

	n.Register("id", int64(7))
	n.SyncState()
	require.NoError(t, h.Attach(u, n, "id"))

	found, ok := h.Find("user", "id", int64(7))
	require.True(t, ok)
	assert.Same(t, u, found)
	assert.Equal(t, 1, h.Len())
}

func TestHeapAllInAttachOrder(t *testing.T) {
	h := New()
	a, b, c := &user{"a"}, &user{"b"}, &user{"c"}
	for _, u := range []*user{a, b, c} {
		require.NoError(t, h.Attach(u, NewNode("user", StatusNew, nil)))
	}
	h.Detach(b)

	var seen []any
	for e := range h.All() {
		seen = append(seen, e)
	}
	assert.Equal(t, []any{a, c}, seen)

	h.Clear()
	assert.Equal(t, 0, h.Len())
}

func TestHeapResolveReference(t *testing.T) {
	h := New()
	u := &user{}
	require.NoError(t, h.Attach(u, NewNode("user", StatusManaged, map[string]any{"id": int64(3)}), "id"))

	ref := NewReference("user", map[string]any{"id": 3})
	got, ok := h.Resolve(ref)
	require.True(t, ok)
	assert.Same(t, u, got)
	assert.True(t, ref.Resolved())

	missing := NewReference("user", map[string]any{"id": 4})
	_, ok = h.Resolve(missing)
	assert.False(t, ok)
	assert.False(t, missing.Resolved())

	composite := NewReference("user", map[string]any{"a": 1, "b": 2})
	_, ok = h.Resolve(composite)
	assert.False(t, ok)
}
