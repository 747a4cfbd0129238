package heap

import (
	"fmt"
	"maps"

	"github.com/roach88/persist/internal/ir"
)

// Status is the lifecycle status of a tracked entity.
type Status int

const (
	// StatusPromised marks a placeholder for an entity known only by key.
	StatusPromised Status = iota

	// StatusNew marks an entity without a row.
	StatusNew

	// StatusManaged marks an entity whose row matches the snapshot.
	StatusManaged

	StatusScheduledInsert
	StatusScheduledUpdate
	StatusScheduledDelete
)

func (s Status) String() string {
	switch s {
	case StatusPromised:
		return "PROMISED"
	case StatusNew:
		return "NEW"
	case StatusManaged:
		return "MANAGED"
	case StatusScheduledInsert:
		return "SCHEDULED_INSERT"
	case StatusScheduledUpdate:
		return "SCHEDULED_UPDATE"
	case StatusScheduledDelete:
		return "SCHEDULED_DELETE"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Scheduled reports whether s is one of the in-run scheduled statuses.
func (s Status) Scheduled() bool {
	return s == StatusScheduledInsert || s == StatusScheduledUpdate || s == StatusScheduledDelete
}

// Node is the tracking record of one entity instance.
//
// The snapshot holds the last values known to be in storage. Everything a
// run changes lives in the State until SyncState or ResetState.
type Node struct {
	role      string
	status    Status
	data      map[string]any
	relations map[string]any
	state     *State
}

// NewNode creates a node with the given persisted snapshot.
func NewNode(role string, status Status, data map[string]any) *Node {
	n := &Node{
		role:      role,
		status:    status,
		data:      make(map[string]any, len(data)),
		relations: make(map[string]any),
	}
	maps.Copy(n.data, data)
	return n
}

// Role returns the logical entity type.
func (n *Node) Role() string {
	return n.role
}

// Status returns the in-run status while a state exists, else the
// persisted status.
func (n *Node) Status() Status {
	if n.state != nil {
		return n.state.status
	}
	return n.status
}

// Data returns the snapshot overlaid with pending changes.
func (n *Node) Data() map[string]any {
	data := maps.Clone(n.data)
	if n.state != nil {
		maps.Copy(data, n.state.pending)
	}
	return data
}

// Snapshot returns a copy of the last persisted values.
func (n *Node) Snapshot() map[string]any {
	return maps.Clone(n.data)
}

// Value returns the current value of field, pending changes first.
func (n *Node) Value(field string) (any, bool) {
	if n.state != nil {
		if v, ok := n.state.pending[field]; ok {
			return v, true
		}
	}
	v, ok := n.data[field]
	return v, ok
}

// IsChanged reports whether registering value for field would change the
// node's current view.
func (n *Node) IsChanged(field string, value any) bool {
	cur, ok := n.Value(field)
	if !ok {
		return true
	}
	return !ir.SameValue(cur, value)
}

// HasState reports whether the node is being changed by a run.
func (n *Node) HasState() bool {
	return n.state != nil
}

// State returns the node's state, creating it on first use.
func (n *Node) State() *State {
	if n.state == nil {
		n.state = newState(n.status)
	}
	return n.state
}

// Register records a pending change. Registering the value already held is
// a no-op.
func (n *Node) Register(field string, value any) {
	st := n.State()
	if cur, ok := n.data[field]; ok && ir.SameValue(cur, value) {
		delete(st.pending, field)
		return
	}
	st.pending[field] = value
}

// Changes returns the pending values that differ from the snapshot.
func (n *Node) Changes() map[string]any {
	changes := make(map[string]any)
	if n.state == nil {
		return changes
	}
	for k, v := range n.state.pending {
		if cur, ok := n.data[k]; ok && ir.SameValue(cur, v) {
			continue
		}
		changes[k] = v
	}
	return changes
}

// SyncState merges pending changes and relation values into the snapshot,
// marks the node managed and drops the state. It returns the merged values
// for re-hydrating the entity. Call it only after a successful run.
func (n *Node) SyncState() map[string]any {
	if n.state != nil {
		maps.Copy(n.data, n.state.pending)
		maps.Copy(n.relations, n.state.relations)
		n.state = nil
	}
	n.status = StatusManaged
	return maps.Clone(n.data)
}

// ResetState discards pending changes and the in-run status. The snapshot
// is untouched. Call it only after a rollback.
func (n *Node) ResetState() {
	n.state = nil
}

// Relation returns the relation value recorded for name, preferring the
// value registered in the current run.
func (n *Node) Relation(name string) (any, bool) {
	if n.state != nil {
		if v, ok := n.state.relations[name]; ok {
			return v, true
		}
	}
	v, ok := n.relations[name]
	return v, ok
}

// OriginalRelation returns the relation value as of the last sync or load.
func (n *Node) OriginalRelation(name string) (any, bool) {
	v, ok := n.relations[name]
	return v, ok
}

// SetRelation records a loaded relation value. The read path uses it when it
// fills a relation slot without a query.
func (n *Node) SetRelation(name string, value any) {
	n.relations[name] = value
}

// AddClaim records that some owner's command graph depends on this entity.
func (n *Node) AddClaim() {
	n.State().claims++
}

// DecClaim releases one claim.
func (n *Node) DecClaim() {
	st := n.State()
	if st.claims > 0 {
		st.claims--
	}
}

// HasClaims reports whether any owner claims this entity in the current run.
func (n *Node) HasClaims() bool {
	return n.state != nil && n.state.claims > 0
}

func (n *Node) String() string {
	return fmt.Sprintf("%s[%s]", n.role, n.Status())
}
