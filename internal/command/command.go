package command

import (
	"context"
	"fmt"
)

// Command is one pending write, or a branch of pending writes.
//
// Lifecycle: Pending -> Ready -> Executed -> Completed, with RolledBack as
// the alternate terminal state. Lifecycle calls report what happened as
// events; they never invoke callbacks.
type Command interface {
	fmt.Stringer

	// IsReady reports whether every value the command waits for is known.
	IsReady() bool

	// IsExecuted reports whether the command (all of it, for branches) ran.
	IsExecuted() bool

	// Execute issues the write through the connection of the command's
	// database. Branches execute as much of themselves as is ready.
	Execute(ctx context.Context, conns Connections) ([]Event, error)

	// Complete finalizes executed commands after commit.
	Complete() []Event

	// Rollback undoes the in-memory effects of a prior Execute.
	Rollback() []Event
}

// Carrier is a command with a context channel: named values it waits for
// before it may execute, and named values it exposes once executed.
type Carrier interface {
	Command

	// WaitContext adds key to the set of values required before execution.
	WaitContext(key string)

	// Register supplies a value. A waited-for key stops blocking.
	Register(key string, value any)

	// Waits reports whether key is still outstanding.
	Waits(key string) bool

	// Forward routes the value this command produces for key into target's
	// context under targetKey once this command executes.
	Forward(key string, target Carrier, targetKey string)

	// ForwardScope routes a produced value into target's key condition.
	ForwardScope(key string, target Scoped, targetKey string)

	// Context returns a copy of the values the command currently holds.
	Context() map[string]any
}

// Scoped is a command addressed by a key condition (update, delete).
type Scoped interface {
	Command

	// WaitScope adds key to the key condition values required before execution.
	WaitScope(key string)

	// RegisterScope supplies a key condition value.
	RegisterScope(key string, value any)
}

// ScopeCarrier carries both a context channel and a key condition.
type ScopeCarrier interface {
	Carrier
	Scoped

	// Cancel drops key from the command's wait list and written values.
	Cancel(key string)
}

// Guard is the predicate of a Condition, evaluated at execution time.
type Guard interface {
	Allow() bool
}

// Connections hands out the writer of an open transaction per database.
// The first request for a database begins its transaction.
type Connections interface {
	Writer(ctx context.Context, database string) (Writer, error)
}

// Writer issues single statements inside an open driver transaction. Maps
// are keyed by column name.
type Writer interface {
	// Insert writes one row. When returning names a column, the generated
	// value of that column is returned.
	Insert(ctx context.Context, table string, values map[string]any, returning string) (any, error)

	// Update changes rows matching where and returns the affected count.
	Update(ctx context.Context, table string, values, where map[string]any) (int64, error)

	// Delete removes rows matching where and returns the affected count.
	Delete(ctx context.Context, table string, where map[string]any) (int64, error)
}

// Tx is a driver-level transaction on one connection.
type Tx interface {
	Writer
	Commit() error
	Rollback() error
}

// Driver opens transactions on one named database connection.
type Driver interface {
	Begin(ctx context.Context) (Tx, error)
}

// Op identifies the statement kind of an atomic command.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// EventKind identifies the lifecycle step an Event reports.
type EventKind int

const (
	// EventExecuted reports an atomic command that ran.
	EventExecuted EventKind = iota

	// EventSkipped reports a Condition whose guard refused execution.
	EventSkipped

	// EventCompleted reports an atomic command finalized after commit.
	EventCompleted

	// EventRolledBack reports an atomic command whose effects were undone.
	EventRolledBack
)

func (k EventKind) String() string {
	switch k {
	case EventExecuted:
		return "executed"
	case EventSkipped:
		return "skipped"
	case EventCompleted:
		return "completed"
	case EventRolledBack:
		return "rolled_back"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is the result of a lifecycle call on one atomic command.
type Event struct {
	Kind     EventKind
	Command  Command
	Op       Op
	Database string
	Table    string

	// Wrote is true when a statement reached the driver.
	Wrote bool

	// Values holds the field values written (executed) or held (completed).
	Values map[string]any

	// Generated holds values assigned by the database.
	Generated map[string]any

	// Deliveries are the forwarded values the consumer must apply.
	Deliveries []Delivery
}

// Delivery is one forwarded value on its way into another command.
type Delivery struct {
	Target Command
	Key    string
	Value  any
	Scope  bool
}

// Apply hands the value to its target.
func (d Delivery) Apply() {
	if d.Scope {
		d.Target.(Scoped).RegisterScope(d.Key, d.Value)
		return
	}
	d.Target.(Carrier).Register(d.Key, d.Value)
}
