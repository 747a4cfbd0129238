package relation

import (
	"github.com/roach88/persist/internal/command"
	"github.com/roach88/persist/internal/heap"
	"github.com/roach88/persist/internal/ir"
)

// belongsTo resolves a relation whose key lives on the owner: the parent
// is stored first and its OuterKey copied into the owner's InnerKey.
type belongsTo struct {
	schema ir.RelationSchema
}

func (r *belongsTo) Schema() ir.RelationSchema { return r.schema }

func (r *belongsTo) Dependency() bool { return true }

// Prepare defers a required parent that is missing while the owner has no
// key for it: an owning relation of the parent may still route one in.
func (r *belongsTo) Prepare(b Builder, o *Owner, related any) (heap.RelationStatus, error) {
	if single(b, related) == nil && !r.schema.Nullable && !r.keyed(b, o, nil) {
		return heap.RelationDeferred, nil
	}
	return heap.RelationProcess, nil
}

// keyed reports whether the owner holds or awaits a key without a parent
// entity: routed in by an owning relation, assigned in this run, or set
// directly on an owner whose relation was never loaded.
func (r *belongsTo) keyed(b Builder, o *Owner, original any) bool {
	key := r.schema.InnerKey
	if o.Carrier != nil && o.Carrier.Waits(key) {
		return true
	}
	if _, ok := known(o.Node, key); !ok {
		return false
	}
	if single(b, original) == nil {
		return true
	}
	_, changed := o.Node.Changes()[key]
	return changed
}

func (r *belongsTo) Queue(b Builder, o *Owner, related, original any) (Plan, error) {
	if single(b, related) == nil && !r.schema.Nullable {
		if !r.keyed(b, o, original) {
			return Plan{}, ir.NewNullConstraintError(o.Schema.Role, r.schema.Name)
		}
		return Plan{}, nil
	}
	return parentKey(b, o, r.schema, related, original, r.schema.Cascade)
}

func (r *belongsTo) Release(Builder, *Owner, any, any) (Plan, error) {
	return Plan{}, nil
}

// parentKey copies the key of a to-one target into the owner. The target
// is stored first when store is set; a target that is neither known nor
// scheduled defers the relation.
func parentKey(b Builder, o *Owner, rs ir.RelationSchema, related, original any, store bool) (Plan, error) {
	target := single(b, related)
	switch v := target.(type) {
	case nil:
		// Only a relation the caller cleared resets the key; a relation
		// never loaded leaves whatever key the owner holds.
		if single(b, original) != nil {
			assign(o.Node, o.Carrier, rs.InnerKey, nil)
			if rs.MorphKey != "" {
				assign(o.Node, o.Carrier, rs.MorphKey, nil)
			}
		}
		return Plan{}, nil
	case *heap.Reference:
		if key, ok := v.Scope()[rs.OuterKey]; ok {
			assign(o.Node, o.Carrier, rs.InnerKey, key)
		}
		if rs.MorphKey != "" {
			assign(o.Node, o.Carrier, rs.MorphKey, v.Role())
		}
		return Plan{}, nil
	}

	var st Store
	if store {
		var err error
		if st, err = b.QueueStore(target, true); err != nil {
			return Plan{}, err
		}
	} else {
		node, ok := b.Heap().Get(target)
		if !ok {
			return Plan{Deferred: true}, nil
		}
		st = Store{Node: node, Carrier: carrierOf(node), Placed: command.Nil{}}
	}

	if v, ok := known(st.Node, rs.OuterKey); ok {
		assign(o.Node, o.Carrier, rs.InnerKey, v)
	} else if st.Carrier == nil {
		return Plan{Deferred: true}, nil
	} else {
		route(st.Carrier, rs.OuterKey, o.Carrier, rs.InnerKey)
	}
	if rs.MorphKey != "" {
		assign(o.Node, o.Carrier, rs.MorphKey, st.Node.Role())
	}
	return Plan{Commands: []command.Command{st.Placed}}, nil
}
