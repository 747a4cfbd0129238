package relation

import (
	"fmt"

	"github.com/roach88/persist/internal/command"
	"github.com/roach88/persist/internal/heap"
	"github.com/roach88/persist/internal/ir"
	"github.com/roach88/persist/internal/mapper"
)

// Builder is the part of the unit of work resolvers call back into.
type Builder interface {
	// Heap returns the session identity map.
	Heap() *heap.Heap

	// Factory returns the atomic command factory.
	Factory() command.Factory

	// Mapper returns the mapper of entity.
	Mapper(entity any) (mapper.Mapper, error)

	// QueueStore builds the pending write of entity and, when cascade is
	// set, of its relations. An entity already visited in the run yields
	// its existing carrier and a Nil placement.
	QueueStore(entity any, cascade bool) (Store, error)

	// QueueDelete builds the delete of a tracked entity, releasing its
	// relations first when cascade is set.
	QueueDelete(entity any, cascade bool) (command.Command, error)

	// Bind attaches cmd's lifecycle events to node.
	Bind(cmd command.Command, node *heap.Node)

	// Schedule adds cmd as an independent root of the run.
	Schedule(cmd command.Command)
}

// Store is the result of QueueStore.
type Store struct {
	Node *heap.Node

	// Carrier is the entity's pending write. Relations forward keys into
	// and out of it.
	Carrier command.Carrier

	// Placed is what the caller puts into its own sequence.
	Placed command.Command
}

// Owner is the entity whose relations are being resolved.
type Owner struct {
	Entity any
	Node   *heap.Node
	Schema *ir.RoleSchema

	// Carrier is the owner's pending write; nil while the owner is being
	// deleted.
	Carrier command.Carrier
}

// Inserting reports whether the owner's row does not exist yet.
func (o *Owner) Inserting() bool {
	return o.Node.Status() == heap.StatusScheduledInsert
}

// Plan is what a resolver asks the builder to place.
type Plan struct {
	// Commands go before the owner's write for dependency relations and
	// after it otherwise.
	Commands []command.Command

	// Deferred asks the builder to queue the relation again once every
	// entity of the run has been visited.
	Deferred bool
}

// Resolver reconciles one relation of one role. Resolvers are selected once
// per (role, relation) when the table is built.
type Resolver interface {
	// Schema returns the relation descriptor.
	Schema() ir.RelationSchema

	// Dependency reports whether the relation's commands run before the
	// owner's write.
	Dependency() bool

	// Prepare classifies the relation value.
	Prepare(b Builder, o *Owner, related any) (heap.RelationStatus, error)

	// Queue emits the commands reconciling related with original.
	Queue(b Builder, o *Owner, related, original any) (Plan, error)

	// Release emits the commands that must run before the owner's row is
	// deleted.
	Release(b Builder, o *Owner, related, original any) (Plan, error)
}

// New selects the resolver of rs.
func New(rs ir.RelationSchema) (Resolver, error) {
	switch rs.Kind {
	case ir.HasOne:
		return &owning{schema: rs}, nil
	case ir.HasMany:
		return &owning{schema: rs, many: true}, nil
	case ir.BelongsTo:
		return &belongsTo{schema: rs}, nil
	case ir.RefersTo:
		return &refersTo{schema: rs}, nil
	case ir.ManyToMany:
		if rs.Through == nil {
			return nil, fmt.Errorf("relation %s: manyToMany needs a through table", rs.Name)
		}
		return &manyToMany{schema: rs}, nil
	}
	return nil, fmt.Errorf("relation %s: unknown kind %q", rs.Name, rs.Kind)
}

// Table holds the resolvers of every role in declaration order.
type Table map[string][]Resolver

// NewTable builds the resolvers of schema.
func NewTable(schema *ir.Schema) (Table, error) {
	t := make(Table, len(schema.Roles))
	for _, name := range schema.RoleNames() {
		rs := schema.Roles[name]
		resolvers := make([]Resolver, 0, len(rs.Relations))
		for _, rel := range rs.Relations {
			r, err := New(rel)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", name, err)
			}
			resolvers = append(resolvers, r)
		}
		t[name] = resolvers
	}
	return t, nil
}

// Target returns the command target of a role.
func Target(rs *ir.RoleSchema) command.Target {
	return command.Target{Database: rs.Database, Table: rs.Table, Columns: rs.Columns()}
}
