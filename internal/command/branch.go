package command

import (
	"context"
	"fmt"
	"maps"
	"strings"
)

// Nil is the command of a relation with nothing to do.
type Nil struct{}

func (Nil) String() string                                        { return "nil" }
func (Nil) IsReady() bool                                         { return true }
func (Nil) IsExecuted() bool                                      { return true }
func (Nil) Execute(context.Context, Connections) ([]Event, error) { return nil, nil }
func (Nil) Complete() []Event                                     { return nil }
func (Nil) Rollback() []Event                                     { return nil }

// Sequence runs its members in order. It is ready when its first member
// that has not yet executed is ready, and may execute across several
// scheduler passes.
type Sequence struct {
	commands []Command
}

// NewSequence creates a sequence of cmds. Nil members are dropped.
func NewSequence(cmds ...Command) *Sequence {
	s := &Sequence{}
	s.Add(cmds...)
	return s
}

// Add appends cmds, dropping nil and Nil members.
func (s *Sequence) Add(cmds ...Command) {
	for _, c := range cmds {
		if c == nil {
			continue
		}
		if _, ok := c.(Nil); ok {
			continue
		}
		s.commands = append(s.commands, c)
	}
}

// Commands returns the members.
func (s *Sequence) Commands() []Command {
	return s.commands
}

// Len returns the member count.
func (s *Sequence) Len() int {
	return len(s.commands)
}

func (s *Sequence) current() Command {
	for _, c := range s.commands {
		if !c.IsExecuted() {
			return c
		}
	}
	return nil
}

func (s *Sequence) String() string {
	parts := make([]string, 0, len(s.commands))
	for _, c := range s.commands {
		if !c.IsExecuted() {
			parts = append(parts, c.String())
		}
	}
	return fmt.Sprintf("sequence[%s]", strings.Join(parts, "; "))
}

// IsReady reports whether the first pending member is ready.
func (s *Sequence) IsReady() bool {
	c := s.current()
	return c == nil || c.IsReady()
}

// IsExecuted reports whether every member executed.
func (s *Sequence) IsExecuted() bool {
	return s.current() == nil
}

// Execute runs members in order until one is not ready or only partially
// executes. Values forwarded by the executed members are applied by the
// caller before the next pass.
func (s *Sequence) Execute(ctx context.Context, conns Connections) ([]Event, error) {
	var events []Event
	for {
		c := s.current()
		if c == nil || !c.IsReady() {
			return events, nil
		}
		evs, err := c.Execute(ctx, conns)
		events = append(events, evs...)
		if err != nil {
			return events, err
		}
		if !c.IsExecuted() {
			return events, nil
		}
	}
}

// Complete completes members in order.
func (s *Sequence) Complete() []Event {
	var events []Event
	for _, c := range s.commands {
		events = append(events, c.Complete()...)
	}
	return events
}

// Rollback rolls members back in reverse order.
func (s *Sequence) Rollback() []Event {
	var events []Event
	for i := len(s.commands) - 1; i >= 0; i-- {
		events = append(events, s.commands[i].Rollback()...)
	}
	return events
}

// Condition executes its command only if its guard allows it at execution
// time. A refused condition counts as executed and writes nothing.
type Condition struct {
	command Command
	guard   Guard
	skipped bool
}

// NewCondition wraps cmd behind guard.
func NewCondition(guard Guard, cmd Command) *Condition {
	return &Condition{command: cmd, guard: guard}
}

// Command returns the guarded command.
func (c *Condition) Command() Command {
	return c.command
}

func (c *Condition) String() string {
	return fmt.Sprintf("condition(%s)", c.command)
}

// IsReady reports whether the command is ready or the guard refuses it.
func (c *Condition) IsReady() bool {
	return c.command.IsReady() || !c.guard.Allow()
}

// IsExecuted reports whether the condition was decided.
func (c *Condition) IsExecuted() bool {
	return c.skipped || c.command.IsExecuted()
}

// Execute evaluates the guard and runs or skips the command.
func (c *Condition) Execute(ctx context.Context, conns Connections) ([]Event, error) {
	if !c.guard.Allow() {
		c.skipped = true
		return []Event{{Kind: EventSkipped, Command: c}}, nil
	}
	return c.command.Execute(ctx, conns)
}

// Complete completes the command unless it was skipped.
func (c *Condition) Complete() []Event {
	if c.skipped {
		return nil
	}
	return c.command.Complete()
}

// Rollback undoes the command, or the skip decision.
func (c *Condition) Rollback() []Event {
	if c.skipped {
		c.skipped = false
		return nil
	}
	return c.command.Rollback()
}

// Split presents an insert and a follow-up update of the same entity as one
// pending write. Values registered before the head executes go into the
// head and are dropped from the tail; later values go into the tail.
type Split struct {
	head Carrier
	tail ScopeCarrier
}

// NewSplit joins head and its follow-up tail.
func NewSplit(head Carrier, tail ScopeCarrier) *Split {
	return &Split{head: head, tail: tail}
}

// Head returns the first write.
func (s *Split) Head() Carrier { return s.head }

// Tail returns the follow-up write.
func (s *Split) Tail() ScopeCarrier { return s.tail }

func (s *Split) String() string {
	return fmt.Sprintf("split(%s | %s)", s.head, s.tail)
}

// IsReady reports whether the next unexecuted half is ready.
func (s *Split) IsReady() bool {
	if !s.head.IsExecuted() {
		return s.head.IsReady()
	}
	return s.tail.IsReady()
}

// IsExecuted reports whether both halves executed.
func (s *Split) IsExecuted() bool {
	return s.head.IsExecuted() && s.tail.IsExecuted()
}

// Execute runs the next unexecuted half.
func (s *Split) Execute(ctx context.Context, conns Connections) ([]Event, error) {
	if !s.head.IsExecuted() {
		return s.head.Execute(ctx, conns)
	}
	return s.tail.Execute(ctx, conns)
}

// Complete completes head then tail.
func (s *Split) Complete() []Event {
	return append(s.head.Complete(), s.tail.Complete()...)
}

// Rollback rolls back tail then head.
func (s *Split) Rollback() []Event {
	return append(s.tail.Rollback(), s.head.Rollback()...)
}

// WaitContext makes the next unexecuted half wait for key.
func (s *Split) WaitContext(key string) {
	if !s.head.IsExecuted() {
		s.head.WaitContext(key)
		return
	}
	s.tail.WaitContext(key)
}

// Register routes the value to the head while it is pending and to the
// tail afterwards.
func (s *Split) Register(key string, value any) {
	if !s.head.IsExecuted() {
		s.head.Register(key, value)
		s.tail.Cancel(key)
		return
	}
	s.tail.Register(key, value)
}

// Waits reports whether the next unexecuted half waits for key.
func (s *Split) Waits(key string) bool {
	if !s.head.IsExecuted() {
		return s.head.Waits(key)
	}
	return s.tail.Waits(key)
}

// Forward routes values produced by the head.
func (s *Split) Forward(key string, target Carrier, targetKey string) {
	s.head.Forward(key, target, targetKey)
}

// ForwardScope routes key condition values produced by the head.
func (s *Split) ForwardScope(key string, target Scoped, targetKey string) {
	s.head.ForwardScope(key, target, targetKey)
}

// Context merges the head's values with the tail's pending ones.
func (s *Split) Context() map[string]any {
	ctx := s.head.Context()
	maps.Copy(ctx, s.tail.Context())
	return ctx
}
