package relation

import (
	"fmt"

	"github.com/roach88/persist/internal/command"
	"github.com/roach88/persist/internal/heap"
	"github.com/roach88/persist/internal/ir"
)

// manyToMany resolves a relation kept in a pivot table. Pivot rows are not
// tracked entities: a new edge inserts one, a removed edge deletes one.
type manyToMany struct {
	schema ir.RelationSchema
}

func (r *manyToMany) Schema() ir.RelationSchema { return r.schema }

func (r *manyToMany) Dependency() bool { return false }

func (r *manyToMany) Prepare(b Builder, o *Owner, related any) (heap.RelationStatus, error) {
	if _, ok := collection(b, related); !ok {
		return heap.RelationResolved, fmt.Errorf("relation %s.%s: expected a collection, got %T", o.Schema.Role, r.schema.Name, related)
	}
	return heap.RelationProcess, nil
}

func (r *manyToMany) pivot() command.Target {
	t := r.schema.Through
	return command.Target{Database: t.Database, Table: t.Table}
}

func (r *manyToMany) Queue(b Builder, o *Owner, related, original any) (Plan, error) {
	current, _ := collection(b, related)
	previous, _ := collection(b, original)
	through := r.schema.Through

	if !r.schema.Cascade && !r.reachable(b, current, previous) {
		return Plan{Deferred: true}, nil
	}

	var plan Plan
	for _, elem := range current {
		if _, ok := elem.(*heap.Reference); ok {
			continue
		}
		var st Store
		if r.schema.Cascade {
			var err error
			if st, err = b.QueueStore(elem, true); err != nil {
				return Plan{}, err
			}
			plan.Commands = append(plan.Commands, st.Placed)
		} else {
			node, _ := b.Heap().Get(elem)
			st = Store{Node: node, Carrier: carrierOf(node)}
		}
		if contains(previous, elem) {
			continue
		}
		if _, ok := known(st.Node, r.schema.OuterKey); !ok && st.Carrier == nil {
			continue
		}

		edge := b.Factory().Insert(r.pivot(), map[string]any{through.InnerKey: nil, through.OuterKey: nil})
		link(o.Node, o.Carrier, r.schema.InnerKey, nil, edge, through.InnerKey)
		link(st.Node, st.Carrier, r.schema.OuterKey, nil, edge, through.OuterKey)
		plan.Commands = append(plan.Commands, edge)
	}

	ownerKey, ok := known(o.Node, r.schema.InnerKey)
	if !ok {
		return plan, nil
	}
	for _, elem := range removed(previous, current) {
		node, ok := b.Heap().Get(elem)
		if !ok {
			continue
		}
		elemKey, ok := known(node, r.schema.OuterKey)
		if !ok {
			continue
		}
		plan.Commands = append(plan.Commands, b.Factory().Delete(r.pivot(), map[string]any{
			through.InnerKey: ownerKey,
			through.OuterKey: elemKey,
		}))
	}
	return plan, nil
}

// reachable reports whether every new element without cascade is tracked
// and has a key or a pending write to take it from.
func (r *manyToMany) reachable(b Builder, current, previous []any) bool {
	for _, elem := range current {
		if _, ok := elem.(*heap.Reference); ok || contains(previous, elem) {
			continue
		}
		node, ok := b.Heap().Get(elem)
		if !ok {
			return false
		}
		if _, ok := known(node, r.schema.OuterKey); !ok && carrierOf(node) == nil {
			return false
		}
	}
	return true
}

// Release removes every pivot row of the owner. When the relation was
// recorded empty by the last sync or load and is still empty, no row can
// exist and nothing is written; an unrecorded relation is swept.
func (r *manyToMany) Release(b Builder, o *Owner, related, original any) (Plan, error) {
	ownerKey, ok := known(o.Node, r.schema.InnerKey)
	if !ok {
		return Plan{}, nil
	}
	_, recorded := o.Node.OriginalRelation(r.schema.Name)
	current, okCurrent := collection(b, related)
	previous, okPrevious := collection(b, original)
	if recorded && okCurrent && okPrevious && len(current) == 0 && len(previous) == 0 {
		return Plan{}, nil
	}
	del := b.Factory().Delete(r.pivot(), map[string]any{r.schema.Through.InnerKey: ownerKey})
	return Plan{Commands: []command.Command{del}}, nil
}
