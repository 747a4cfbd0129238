package heap

import (
	"fmt"

	"github.com/roach88/persist/internal/command"
)

// RelationStatus is the resolution status of one relation of a node.
type RelationStatus int

const (
	// RelationPending means the relation was not prepared yet.
	RelationPending RelationStatus = iota

	// RelationProcess means commands must be queued for the relation.
	RelationProcess

	// RelationDeferred means the relation waits for a key that no queued
	// command produces yet.
	RelationDeferred

	// RelationResolved means nothing is left to do.
	RelationResolved
)

func (s RelationStatus) String() string {
	switch s {
	case RelationPending:
		return "PENDING"
	case RelationProcess:
		return "PROCESS"
	case RelationDeferred:
		return "DEFERRED"
	case RelationResolved:
		return "RESOLVED"
	}
	return fmt.Sprintf("RelationStatus(%d)", int(s))
}

// State is the in-run part of a node: pending changes, claims, relation
// values and the pending write command.
type State struct {
	status         Status
	pending        map[string]any
	claims         int
	relations      map[string]any
	relationStatus map[string]RelationStatus
	command        command.Command
}

func newState(status Status) *State {
	return &State{
		status:         status,
		pending:        make(map[string]any),
		relations:      make(map[string]any),
		relationStatus: make(map[string]RelationStatus),
	}
}

// Status returns the in-run status.
func (s *State) Status() Status {
	return s.status
}

// SetStatus moves the in-run status forward. Moving backwards is ignored;
// only ResetState restores an earlier status.
func (s *State) SetStatus(status Status) {
	if status == StatusScheduledDelete || rank(status) > rank(s.status) {
		s.status = status
	}
}

func rank(s Status) int {
	switch s {
	case StatusPromised, StatusNew, StatusManaged:
		return 0
	case StatusScheduledInsert, StatusScheduledUpdate:
		return 1
	}
	return 2
}

// Claims returns the claim count.
func (s *State) Claims() int {
	return s.claims
}

// Command returns the pending write of the entity, if any.
func (s *State) Command() command.Command {
	return s.command
}

// SetCommand records the pending write of the entity.
func (s *State) SetCommand(cmd command.Command) {
	s.command = cmd
}

// SetRelation records the relation value seen by the current run.
func (s *State) SetRelation(name string, value any) {
	s.relations[name] = value
}

// RelationStatus returns the status of the named relation.
func (s *State) RelationStatus(name string) RelationStatus {
	return s.relationStatus[name]
}

// SetRelationStatus records the status of the named relation.
func (s *State) SetRelationStatus(name string, status RelationStatus) {
	s.relationStatus[name] = status
}
