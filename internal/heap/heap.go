package heap

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/roach88/persist/internal/ir"
)

// ErrDuplicateKey is returned by Attach when another entity of the same
// role is already indexed under the same key value.
var ErrDuplicateKey = errors.New("duplicate index key")

type indexEntry struct {
	role  string
	key   string
	value string
}

// Heap is the identity map of one session. It maps entity instances to
// their nodes and indexes them by (role, key, value).
//
// Entities must be comparable (pointers in practice); identity is the
// entity value itself, never its primary key.
//
// A Heap is not safe for concurrent use. Concurrent writers use separate
// heaps.
type Heap struct {
	nodes   map[any]*Node
	order   []any
	index   map[indexEntry]any
	entries map[any][]indexEntry
}

// New creates an empty heap.
func New() *Heap {
	h := &Heap{}
	h.Clear()
	return h
}

// Clear forgets every entity. Call it at session end.
func (h *Heap) Clear() {
	h.nodes = make(map[any]*Node)
	h.order = nil
	h.index = make(map[indexEntry]any)
	h.entries = make(map[any][]indexEntry)
}

// Len returns the number of tracked entities.
func (h *Heap) Len() int {
	return len(h.nodes)
}

// Has reports whether entity is tracked.
func (h *Heap) Has(entity any) bool {
	_, ok := h.nodes[entity]
	return ok
}

// Get returns the node of entity.
func (h *Heap) Get(entity any) (*Node, bool) {
	n, ok := h.nodes[entity]
	return n, ok
}

// Attach tracks entity with node and indexes it under every key in
// indexKeys whose value is currently known on the node. Attaching an entity
// again refreshes its index entries.
func (h *Heap) Attach(entity any, node *Node, indexKeys ...string) error {
	var fresh []indexEntry
	for _, key := range indexKeys {
		v, ok := node.Value(key)
		if !ok || v == nil {
			continue
		}
		e := indexEntry{role: node.Role(), key: key, value: ir.KeyString(v)}
		if other, taken := h.index[e]; taken && other != entity {
			return fmt.Errorf("%w: %s.%s=%v", ErrDuplicateKey, node.Role(), key, v)
		}
		fresh = append(fresh, e)
	}

	if _, ok := h.nodes[entity]; !ok {
		h.order = append(h.order, entity)
	}
	h.nodes[entity] = node
	h.unindex(entity)
	for _, e := range fresh {
		h.index[e] = entity
	}
	if len(fresh) > 0 {
		h.entries[entity] = fresh
	}
	return nil
}

// Detach stops tracking entity and removes its index entries.
func (h *Heap) Detach(entity any) {
	if _, ok := h.nodes[entity]; !ok {
		return
	}
	delete(h.nodes, entity)
	h.unindex(entity)
	if i := slices.Index(h.order, entity); i >= 0 {
		h.order = slices.Delete(h.order, i, i+1)
	}
}

func (h *Heap) unindex(entity any) {
	for _, e := range h.entries[entity] {
		if h.index[e] == entity {
			delete(h.index, e)
		}
	}
	delete(h.entries, entity)
}

// Find returns the entity of role indexed under key=value.
func (h *Heap) Find(role, key string, value any) (any, bool) {
	e, ok := h.index[indexEntry{role: role, key: key, value: ir.KeyString(value)}]
	return e, ok
}

// All iterates entities and nodes in attach order.
func (h *Heap) All() iter.Seq2[any, *Node] {
	return func(yield func(any, *Node) bool) {
		for _, e := range slices.Clone(h.order) {
			n, ok := h.nodes[e]
			if !ok {
				continue
			}
			if !yield(e, n) {
				return
			}
		}
	}
}

// Resolve returns the tracked entity a reference points at, if its scope is
// a single indexed key. Resolved references return their value.
func (h *Heap) Resolve(ref *Reference) (any, bool) {
	if ref == nil {
		return nil, false
	}
	if ref.resolved {
		return ref.value, true
	}
	if len(ref.scope) != 1 {
		return nil, false
	}
	for key, value := range ref.scope {
		if e, ok := h.Find(ref.role, key, value); ok {
			ref.Resolve(e)
			return e, true
		}
	}
	return nil, false
}
