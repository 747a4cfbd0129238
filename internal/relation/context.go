package relation

import (
	"github.com/roach88/persist/internal/command"
	"github.com/roach88/persist/internal/heap"
	"github.com/roach88/persist/internal/mapper"
)

// known returns the current non-nil value of key on node.
func known(node *heap.Node, key string) (any, bool) {
	if node == nil {
		return nil, false
	}
	v, ok := node.Value(key)
	return v, ok && v != nil
}

// assign writes a value the builder already knows into dst and its node.
// A nil node means dst is not an entity write (pivot rows).
func assign(node *heap.Node, dst command.Carrier, key string, value any) {
	if node == nil {
		dst.Register(key, value)
		return
	}
	if !node.IsChanged(key, value) {
		return
	}
	node.Register(key, value)
	dst.Register(key, value)
}

// route makes dst wait for the value src produces.
func route(src command.Carrier, srcKey string, dst command.Carrier, dstKey string) {
	dst.WaitContext(dstKey)
	src.Forward(srcKey, dst, dstKey)
}

// link carries srcKey of the source entity into dstKey of dst: directly
// when known, through the context channel otherwise.
func link(srcNode *heap.Node, src command.Carrier, srcKey string, dstNode *heap.Node, dst command.Carrier, dstKey string) {
	if v, ok := known(srcNode, srcKey); ok {
		assign(dstNode, dst, dstKey, v)
		return
	}
	route(src, srcKey, dst, dstKey)
}

// carrierOf returns the pending write of node, if it is a carrier.
func carrierOf(node *heap.Node) command.Carrier {
	if node == nil || !node.HasState() {
		return nil
	}
	c, _ := node.State().Command().(command.Carrier)
	return c
}

// unclaimed allows a command only while no owner claims the node.
type unclaimed struct {
	node *heap.Node
}

func (g unclaimed) Allow() bool {
	return !g.node.HasClaims()
}

// resolve replaces a reference by the tracked entity it points at, when
// the heap knows it.
func resolve(b Builder, v any) any {
	ref, ok := v.(*heap.Reference)
	if !ok {
		return v
	}
	if e, ok := b.Heap().Resolve(ref); ok {
		return e
	}
	return ref
}

// single normalizes a to-one relation value.
func single(b Builder, v any) any {
	v = resolve(b, v)
	if ref, ok := v.(*heap.Reference); ok && ref.Resolved() {
		return ref.Value()
	}
	return v
}

// collection normalizes a to-many relation value.
func collection(b Builder, v any) ([]any, bool) {
	items, ok := mapper.Items(v)
	if !ok {
		return nil, false
	}
	out := make([]any, 0, len(items))
	for _, it := range items {
		if it = single(b, it); it != nil {
			out = append(out, it)
		}
	}
	return out, true
}

// removed returns the items of previous missing from current, by identity.
func removed(previous, current []any) []any {
	var out []any
	for _, p := range previous {
		if !contains(current, p) {
			out = append(out, p)
		}
	}
	return out
}

func contains(items []any, v any) bool {
	for _, it := range items {
		if it == v {
			return true
		}
	}
	return false
}

// Snapshot returns the form of a relation value recorded on the node:
// collections are copied into []any so later edits of the entity's slice
// do not change the recorded value.
func Snapshot(v any) any {
	if v == nil {
		return nil
	}
	if items, ok := mapper.Items(v); ok {
		out := make([]any, len(items))
		copy(out, items)
		return out
	}
	return v
}
