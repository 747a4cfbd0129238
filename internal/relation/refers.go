package relation

import (
	"github.com/roach88/persist/internal/command"
	"github.com/roach88/persist/internal/heap"
	"github.com/roach88/persist/internal/ir"
)

// refersTo resolves a key on the owner pointing at an entity the relation
// never stores. When the target's key is unknown and the owner is being
// inserted, the owner's write becomes a Split: the insert runs without the
// key and a follow-up update writes it once the target is stored. This
// breaks insert-order cycles between rows referencing each other.
type refersTo struct {
	schema ir.RelationSchema
}

func (r *refersTo) Schema() ir.RelationSchema { return r.schema }

func (r *refersTo) Dependency() bool { return false }

func (r *refersTo) Prepare(b Builder, o *Owner, related any) (heap.RelationStatus, error) {
	target := single(b, related)
	switch target.(type) {
	case nil, *heap.Reference:
		return heap.RelationProcess, nil
	}
	node, ok := b.Heap().Get(target)
	if !ok {
		return heap.RelationDeferred, nil
	}
	if _, ok := known(node, r.schema.OuterKey); !ok && carrierOf(node) == nil {
		return heap.RelationDeferred, nil
	}
	return heap.RelationProcess, nil
}

func (r *refersTo) Queue(b Builder, o *Owner, related, original any) (Plan, error) {
	target := single(b, related)
	switch target.(type) {
	case nil, *heap.Reference:
		return parentKey(b, o, r.schema, related, original, false)
	}

	node, ok := b.Heap().Get(target)
	if !ok {
		return Plan{Deferred: true}, nil
	}
	if v, ok := known(node, r.schema.OuterKey); ok {
		assign(o.Node, o.Carrier, r.schema.InnerKey, v)
		r.morph(o, node)
		return Plan{}, nil
	}
	src := carrierOf(node)
	if src == nil {
		return Plan{Deferred: true}, nil
	}

	if !o.Inserting() {
		route(src, r.schema.OuterKey, o.Carrier, r.schema.InnerKey)
		r.morph(o, node)
		return Plan{}, nil
	}

	split := r.split(b, o)
	split.Tail().WaitContext(r.schema.InnerKey)
	src.Forward(r.schema.OuterKey, split, r.schema.InnerKey)
	r.morph(o, node)
	return Plan{}, nil
}

func (r *refersTo) morph(o *Owner, node *heap.Node) {
	if r.schema.MorphKey != "" {
		assign(o.Node, o.Carrier, r.schema.MorphKey, node.Role())
	}
}

// split turns the owner's insert into an insert plus follow-up update. The
// update is scheduled as its own root so it never holds back the
// sequence the insert sits in.
func (r *refersTo) split(b Builder, o *Owner) *command.Split {
	if s, ok := o.Carrier.(*command.Split); ok {
		return s
	}
	pk := o.Schema.PrimaryKey
	tail := b.Factory().Update(Target(o.Schema), nil, nil)
	if v, ok := known(o.Node, pk); ok {
		tail.RegisterScope(pk, v)
	} else {
		tail.WaitScope(pk)
		o.Carrier.ForwardScope(pk, tail, pk)
	}

	s := command.NewSplit(o.Carrier, tail)
	o.Node.State().SetCommand(s)
	b.Bind(s, o.Node)
	b.Bind(tail, o.Node)
	b.Schedule(tail)
	o.Carrier = s
	return s
}

func (r *refersTo) Release(Builder, *Owner, any, any) (Plan, error) {
	return Plan{}, nil
}
