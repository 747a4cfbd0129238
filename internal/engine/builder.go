package engine

import (
	"fmt"

	"github.com/roach88/persist/internal/command"
	"github.com/roach88/persist/internal/heap"
	"github.com/roach88/persist/internal/ir"
	"github.com/roach88/persist/internal/mapper"
	"github.com/roach88/persist/internal/relation"
)

// builder turns queued operations into command roots. It implements
// relation.Builder for the resolvers it drives.
type builder struct {
	uow    *UnitOfWork
	visits *visitGuard

	// bound maps commands to the node their events update.
	bound map[command.Command]*heap.Node

	// scheduled are extra roots requested by resolvers.
	scheduled []command.Command

	deferred []deferral

	// explicit are nodes deleted by a queued Delete rather than released
	// by a deleted owner.
	explicit map[*heap.Node]bool
}

// deferral is a relation queued again after every entity was visited.
type deferral struct {
	owner    *relation.Owner
	resolver relation.Resolver
	related  any
	original any
	seq      *command.Sequence
}

func newBuilder(u *UnitOfWork) *builder {
	return &builder{
		uow:      u,
		visits:   newVisitGuard(),
		bound:    make(map[command.Command]*heap.Node),
		explicit: make(map[*heap.Node]bool),
	}
}

// build returns one root per operation followed by the roots resolvers
// scheduled on their own. Persists are built before deletes so every claim
// on a child exists before a deleted owner releases it; the result does
// not depend on the order operations were queued in.
func (b *builder) build(ops []op) ([]command.Command, error) {
	roots := make([]command.Command, 0, len(ops))
	for _, o := range ops {
		if o.delete {
			continue
		}
		st, err := b.QueueStore(o.entity, o.cascade)
		if err != nil {
			return nil, err
		}
		st.Node.AddClaim()
		roots = append(roots, st.Placed)
	}
	for _, o := range ops {
		if !o.delete {
			continue
		}
		cmd, err := b.QueueDelete(o.entity, o.cascade)
		if err != nil {
			return nil, err
		}
		if node, ok := b.uow.heap.Get(o.entity); ok {
			b.explicit[node] = true
		}
		roots = append(roots, cmd)
	}
	if err := b.resolveDeferred(); err != nil {
		return nil, err
	}
	return append(roots, b.scheduled...), nil
}

// resolveDeferred queues deferred relations until none is left or a whole
// round makes no progress.
func (b *builder) resolveDeferred() error {
	for len(b.deferred) > 0 {
		pending := b.deferred
		b.deferred = nil
		progress := false
		for _, d := range pending {
			plan, err := d.resolver.Queue(b, d.owner, d.related, d.original)
			if err != nil {
				return err
			}
			if plan.Deferred {
				b.deferred = append(b.deferred, d)
				continue
			}
			progress = true
			d.owner.Node.State().SetRelationStatus(d.resolver.Schema().Name, heap.RelationResolved)
			d.seq.Add(plan.Commands...)
		}
		if !progress {
			stuck := make(map[string]string, len(b.deferred))
			for _, d := range b.deferred {
				stuck[d.owner.Schema.Role+"."+d.resolver.Schema().Name] = "target neither stored nor scheduled"
			}
			return ir.NewOrderingError("unresolvable relations", stuck)
		}
	}
	return nil
}

func (b *builder) Heap() *heap.Heap { return b.uow.heap }

func (b *builder) Factory() command.Factory { return b.uow.factory }

func (b *builder) Mapper(entity any) (mapper.Mapper, error) { return b.uow.registry.For(entity) }

func (b *builder) Bind(cmd command.Command, node *heap.Node) { b.bound[cmd] = node }

func (b *builder) Schedule(cmd command.Command) { b.scheduled = append(b.scheduled, cmd) }

// track returns the node of entity, attaching a new one if needed.
func (b *builder) track(entity any) (*heap.Node, mapper.Mapper, error) {
	m, err := b.uow.registry.For(entity)
	if err != nil {
		return nil, nil, err
	}
	if node, ok := b.uow.heap.Get(entity); ok {
		return node, m, nil
	}
	if err := b.checkKeys(entity, m); err != nil {
		return nil, nil, err
	}
	node := heap.NewNode(m.Schema().Role, heap.StatusNew, nil)
	if err := b.uow.heap.Attach(entity, node); err != nil {
		return nil, nil, err
	}
	return node, m, nil
}

// checkKeys rejects an untracked entity whose primary or index key is
// already held by another tracked entity of its role.
func (b *builder) checkKeys(entity any, m mapper.Mapper) error {
	fields, err := m.Extract(entity)
	if err != nil {
		return err
	}
	rs := m.Schema()
	for _, key := range rs.IndexKeys() {
		v := fields[key]
		if v == nil {
			continue
		}
		if other, ok := b.uow.heap.Find(rs.Role, key, v); ok && other != entity {
			return fmt.Errorf("%w: %s.%s=%v is already tracked", heap.ErrDuplicateKey, rs.Role, key, v)
		}
	}
	return nil
}

// QueueStore implements relation.Builder.
func (b *builder) QueueStore(entity any, cascade bool) (relation.Store, error) {
	node, m, err := b.track(entity)
	if err != nil {
		return relation.Store{}, err
	}
	if b.visits.Seen(node) {
		c, _ := node.State().Command().(command.Carrier)
		if c != nil || b.explicit[node] {
			return relation.Store{Node: node, Carrier: c, Placed: command.Nil{}}, nil
		}
		// Released by a deleted owner only. The release is claim-gated, so
		// storing the entity here and claiming it keeps the row.
	}
	b.visits.Record(node)

	own, err := b.own(entity, m, node)
	if err != nil {
		return relation.Store{}, err
	}
	rs := m.Schema()
	owner := &relation.Owner{Entity: entity, Node: node, Schema: rs, Carrier: own}
	seq := command.NewSequence()

	var before, after []command.Command
	if cascade {
		for _, r := range b.uow.resolvers[rs.Role] {
			cmds, err := b.resolve(owner, m, r, seq)
			if err != nil {
				return relation.Store{}, err
			}
			if r.Dependency() {
				before = append(before, cmds...)
			} else {
				after = append(after, cmds...)
			}
		}
	}

	// The insert or update itself is placed, not a Split that may have
	// replaced it as the entity's carrier: the split's tail is a root of
	// its own.
	seq.Add(before...)
	seq.Add(own)
	seq.Add(after...)
	return relation.Store{Node: node, Carrier: owner.Carrier, Placed: seq}, nil
}

// own builds the entity's insert or update and records it on the node.
func (b *builder) own(entity any, m mapper.Mapper, node *heap.Node) (command.Carrier, error) {
	rs := m.Schema()
	target := relation.Target(rs)
	st := node.State()

	var c command.Carrier
	switch node.Status() {
	case heap.StatusNew, heap.StatusPromised:
		fields, err := m.Extract(entity)
		if err != nil {
			return nil, err
		}
		if fields[rs.PrimaryKey] == nil {
			switch rs.Generated {
			case ir.GeneratedUUID:
				fields[rs.PrimaryKey] = b.uow.keys.Generate()
			case ir.GeneratedAuto:
				target.Generated = rs.PrimaryKey
			}
		}
		for k, v := range fields {
			node.Register(k, v)
		}
		st.SetStatus(heap.StatusScheduledInsert)
		c = b.uow.factory.Insert(target, fields)
	default:
		changes, err := m.ExtractChanges(entity, node.Data())
		if err != nil {
			return nil, err
		}
		for k, v := range changes {
			node.Register(k, v)
		}
		pk, _ := node.Value(rs.PrimaryKey)
		st.SetStatus(heap.StatusScheduledUpdate)
		c = b.uow.factory.Update(target, changes, map[string]any{rs.PrimaryKey: pk})
	}
	st.SetCommand(c)
	b.Bind(c, node)
	return c, nil
}

// resolve prepares and queues one relation of owner. Deferred relations
// are parked with the owner's sequence so their commands land there.
func (b *builder) resolve(owner *relation.Owner, m mapper.Mapper, r relation.Resolver, seq *command.Sequence) ([]command.Command, error) {
	name := r.Schema().Name
	related, err := m.Relation(owner.Entity, name)
	if err != nil {
		return nil, err
	}
	original, _ := owner.Node.OriginalRelation(name)
	st := owner.Node.State()
	st.SetRelation(name, relation.Snapshot(related))

	status, err := r.Prepare(b, owner, related)
	if err != nil {
		return nil, err
	}
	st.SetRelationStatus(name, status)
	switch status {
	case heap.RelationResolved:
		return nil, nil
	case heap.RelationDeferred:
		b.deferred = append(b.deferred, deferral{owner: owner, resolver: r, related: related, original: original, seq: seq})
		return nil, nil
	}

	plan, err := r.Queue(b, owner, related, original)
	if err != nil {
		return nil, err
	}
	if plan.Deferred {
		st.SetRelationStatus(name, heap.RelationDeferred)
		b.deferred = append(b.deferred, deferral{owner: owner, resolver: r, related: related, original: original, seq: seq})
		return nil, nil
	}
	st.SetRelationStatus(name, heap.RelationResolved)
	return plan.Commands, nil
}

// QueueDelete implements relation.Builder. Entities that were never stored
// have no row; their delete is Nil.
func (b *builder) QueueDelete(entity any, cascade bool) (command.Command, error) {
	m, err := b.uow.registry.For(entity)
	if err != nil {
		return nil, err
	}
	node, ok := b.uow.heap.Get(entity)
	if !ok || b.visits.Seen(node) {
		return command.Nil{}, nil
	}
	b.visits.Record(node)

	rs := m.Schema()
	pk, ok := node.Value(rs.PrimaryKey)
	if !ok || pk == nil || node.Status() == heap.StatusNew {
		return command.Nil{}, nil
	}

	seq := command.NewSequence()
	if cascade {
		owner := &relation.Owner{Entity: entity, Node: node, Schema: rs}
		for _, r := range b.uow.resolvers[rs.Role] {
			name := r.Schema().Name
			related, err := m.Relation(entity, name)
			if err != nil {
				return nil, err
			}
			original, _ := node.OriginalRelation(name)
			plan, err := r.Release(b, owner, related, original)
			if err != nil {
				return nil, err
			}
			seq.Add(plan.Commands...)
		}
	}

	del := b.uow.factory.Delete(relation.Target(rs), map[string]any{rs.PrimaryKey: pk})
	node.State().SetStatus(heap.StatusScheduledDelete)
	b.Bind(del, node)
	seq.Add(del)
	return seq, nil
}
