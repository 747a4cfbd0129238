package relation

import (
	"fmt"

	"github.com/roach88/persist/internal/command"
	"github.com/roach88/persist/internal/heap"
	"github.com/roach88/persist/internal/ir"
)

// owning resolves hasOne and hasMany: the related rows carry the owner's
// key in OuterKey and are stored after the owner.
type owning struct {
	schema ir.RelationSchema
	many   bool
}

func (r *owning) Schema() ir.RelationSchema { return r.schema }

func (r *owning) Dependency() bool { return false }

func (r *owning) Prepare(b Builder, o *Owner, related any) (heap.RelationStatus, error) {
	if !r.schema.Cascade {
		return heap.RelationResolved, nil
	}
	if _, ok := r.items(b, related); !ok {
		return heap.RelationResolved, fmt.Errorf("relation %s.%s: expected a collection, got %T", o.Schema.Role, r.schema.Name, related)
	}
	return heap.RelationProcess, nil
}

func (r *owning) items(b Builder, v any) ([]any, bool) {
	if r.many {
		return collection(b, v)
	}
	if v = single(b, v); v == nil {
		return nil, true
	}
	return []any{v}, true
}

// Queue stores every current child with the owner's key and unlinks the
// children that left the relation. Unlinking is gated on the child not
// being claimed by another owner when the command runs.
func (r *owning) Queue(b Builder, o *Owner, related, original any) (Plan, error) {
	current, _ := r.items(b, related)
	previous, _ := r.items(b, original)

	var plan Plan
	for _, child := range current {
		if _, ok := child.(*heap.Reference); ok {
			continue
		}
		st, err := b.QueueStore(child, true)
		if err != nil {
			return Plan{}, err
		}
		if st.Carrier == nil {
			// Deleted in this run.
			continue
		}
		st.Node.AddClaim()
		link(o.Node, o.Carrier, r.schema.InnerKey, st.Node, st.Carrier, r.schema.OuterKey)
		if r.schema.MorphKey != "" {
			assign(st.Node, st.Carrier, r.schema.MorphKey, o.Schema.Role)
		}
		plan.Commands = append(plan.Commands, st.Placed)
	}

	for _, child := range removed(previous, current) {
		cmd, err := r.unlink(b, child)
		if err != nil {
			return Plan{}, err
		}
		if cmd != nil {
			plan.Commands = append(plan.Commands, cmd)
		}
	}
	return plan, nil
}

// unlink deletes a required child or clears the key of a nullable one.
func (r *owning) unlink(b Builder, child any) (command.Command, error) {
	if _, ok := child.(*heap.Reference); ok {
		return nil, nil
	}
	node, ok := b.Heap().Get(child)
	if !ok {
		return nil, nil
	}
	m, err := b.Mapper(child)
	if err != nil {
		return nil, err
	}
	rs := m.Schema()
	pk, ok := known(node, rs.PrimaryKey)
	if !ok {
		return nil, nil
	}

	var cmd command.Command
	if r.schema.Nullable {
		values := map[string]any{r.schema.OuterKey: nil}
		if r.schema.MorphKey != "" {
			values[r.schema.MorphKey] = nil
		}
		cmd = b.Factory().Update(Target(rs), values, map[string]any{rs.PrimaryKey: pk})
	} else {
		cmd = b.Factory().Delete(Target(rs), map[string]any{rs.PrimaryKey: pk})
	}
	b.Bind(cmd, node)
	return command.NewCondition(unclaimed{node}, cmd), nil
}

// Release deletes required children and clears the key of nullable ones
// before the owner's row goes.
func (r *owning) Release(b Builder, o *Owner, related, original any) (Plan, error) {
	if !r.schema.Cascade {
		return Plan{}, nil
	}
	current, _ := r.items(b, related)
	previous, _ := r.items(b, original)
	children := append(current, removed(previous, current)...)

	var plan Plan
	for _, child := range children {
		if _, ok := child.(*heap.Reference); ok {
			continue
		}
		node, ok := b.Heap().Get(child)
		if !ok {
			continue
		}
		if r.schema.Nullable {
			cmd, err := r.unlink(b, child)
			if err != nil {
				return Plan{}, err
			}
			if cmd != nil {
				plan.Commands = append(plan.Commands, cmd)
			}
			continue
		}
		del, err := b.QueueDelete(child, true)
		if err != nil {
			return Plan{}, err
		}
		plan.Commands = append(plan.Commands, command.NewCondition(unclaimed{node}, del))
	}
	return plan, nil
}
