package command

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"

	"github.com/roach88/persist/internal/ir"
)

// Target addresses the table an atomic command writes. Columns maps field
// names to column names; unmapped fields use their own name. Generated names
// the field the database fills on insert when it is still nil.
type Target struct {
	Database  string
	Table     string
	Columns   map[string]string
	Generated string
}

func (t Target) column(field string) string {
	if c, ok := t.Columns[field]; ok && c != "" {
		return c
	}
	return field
}

func (t Target) row(fields map[string]any) map[string]any {
	row := make(map[string]any, len(fields))
	for k, v := range fields {
		row[t.column(k)] = v
	}
	return row
}

type route struct {
	key       string
	target    Command
	targetKey string
	scope     bool
}

// channel holds the context values of an atomic command.
type channel struct {
	data    map[string]any
	waiting map[string]struct{}
	routes  []route
}

func newChannel(data map[string]any) channel {
	c := channel{
		data:    make(map[string]any, len(data)),
		waiting: make(map[string]struct{}),
	}
	maps.Copy(c.data, data)
	return c
}

func (c *channel) WaitContext(key string) {
	c.waiting[key] = struct{}{}
}

func (c *channel) Register(key string, value any) {
	c.data[key] = value
	delete(c.waiting, key)
}

func (c *channel) Waits(key string) bool {
	_, ok := c.waiting[key]
	return ok
}

func (c *channel) Forward(key string, target Carrier, targetKey string) {
	c.routes = append(c.routes, route{key: key, target: target, targetKey: targetKey})
}

func (c *channel) ForwardScope(key string, target Scoped, targetKey string) {
	c.routes = append(c.routes, route{key: key, target: target, targetKey: targetKey, scope: true})
}

func (c *channel) Context() map[string]any {
	return maps.Clone(c.data)
}

func (c *channel) deliveries(produced map[string]any) []Delivery {
	if len(c.routes) == 0 {
		return nil
	}
	out := make([]Delivery, 0, len(c.routes))
	for _, r := range c.routes {
		out = append(out, Delivery{Target: r.target, Key: r.targetKey, Value: produced[r.key], Scope: r.scope})
	}
	return out
}

// scope holds the key condition of an update or delete.
type scope struct {
	where        map[string]any
	scopeWaiting map[string]struct{}
}

func newScope(where map[string]any) scope {
	s := scope{
		where:        make(map[string]any, len(where)),
		scopeWaiting: make(map[string]struct{}),
	}
	maps.Copy(s.where, where)
	return s
}

func (s *scope) WaitScope(key string) {
	s.scopeWaiting[key] = struct{}{}
}

func (s *scope) RegisterScope(key string, value any) {
	s.where[key] = value
	delete(s.scopeWaiting, key)
}

func describe(op Op, table string, waiting ...map[string]struct{}) string {
	var keys []string
	for _, w := range waiting {
		for k := range w {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return fmt.Sprintf("%s %s", op, table)
	}
	sort.Strings(keys)
	return fmt.Sprintf("%s %s (waiting: %s)", op, table, strings.Join(keys, ", "))
}

// Insert writes one new row.
type Insert struct {
	target Target
	channel

	executed  bool
	generated any
}

// NewInsert creates an insert of data into target.
func NewInsert(target Target, data map[string]any) *Insert {
	return &Insert{target: target, channel: newChannel(data)}
}

func (c *Insert) String() string {
	return describe(OpInsert, c.target.Table, c.waiting)
}

// IsReady reports whether no context value is outstanding.
func (c *Insert) IsReady() bool {
	return len(c.waiting) == 0
}

// IsExecuted reports whether the row was written.
func (c *Insert) IsExecuted() bool {
	return c.executed
}

// Execute writes the row. A nil generated field is left out of the
// statement and read back from the driver.
func (c *Insert) Execute(ctx context.Context, conns Connections) ([]Event, error) {
	if c.executed {
		return nil, nil
	}
	w, err := conns.Writer(ctx, c.target.Database)
	if err != nil {
		return nil, err
	}

	fields := maps.Clone(c.data)
	returning := ""
	if gen := c.target.Generated; gen != "" && fields[gen] == nil {
		delete(fields, gen)
		returning = c.target.column(gen)
	}

	id, err := w.Insert(ctx, c.target.Table, c.target.row(fields), returning)
	if err != nil {
		return nil, ir.NewStorageError(string(OpInsert), c.target.Table, err)
	}
	c.executed = true

	var generated map[string]any
	if returning != "" && id != nil {
		c.generated = id
		c.data[c.target.Generated] = id
		generated = map[string]any{c.target.Generated: id}
	}

	return []Event{{
		Kind:       EventExecuted,
		Command:    c,
		Op:         OpInsert,
		Database:   c.target.Database,
		Table:      c.target.Table,
		Wrote:      true,
		Values:     maps.Clone(c.data),
		Generated:  generated,
		Deliveries: c.deliveries(c.data),
	}}, nil
}

// Complete reports the generated key so it can be copied into the owner.
func (c *Insert) Complete() []Event {
	if !c.executed {
		return nil
	}
	ev := Event{Kind: EventCompleted, Command: c, Op: OpInsert, Database: c.target.Database, Table: c.target.Table, Values: maps.Clone(c.data)}
	if c.generated != nil {
		ev.Generated = map[string]any{c.target.Generated: c.generated}
	}
	return []Event{ev}
}

// Rollback forgets the execution and any generated key.
func (c *Insert) Rollback() []Event {
	if !c.executed {
		return nil
	}
	c.executed = false
	if c.generated != nil {
		c.data[c.target.Generated] = nil
		c.generated = nil
	}
	return []Event{{Kind: EventRolledBack, Command: c, Op: OpInsert, Database: c.target.Database, Table: c.target.Table}}
}

// Update changes the columns in its context on the row matched by its scope.
// An update with an empty context executes without touching storage.
type Update struct {
	target Target
	channel
	scope

	executed bool
	wrote    bool
}

// NewUpdate creates an update of data on the row addressed by where.
func NewUpdate(target Target, data, where map[string]any) *Update {
	return &Update{target: target, channel: newChannel(data), scope: newScope(where)}
}

func (c *Update) String() string {
	return describe(OpUpdate, c.target.Table, c.waiting, c.scopeWaiting)
}

// IsReady reports whether no context or scope value is outstanding.
func (c *Update) IsReady() bool {
	return len(c.waiting) == 0 && len(c.scopeWaiting) == 0
}

// IsExecuted reports whether the update ran.
func (c *Update) IsExecuted() bool {
	return c.executed
}

// Cancel drops key from the values this update writes.
func (c *Update) Cancel(key string) {
	delete(c.waiting, key)
	delete(c.data, key)
}

// Execute writes the pending changes, if any.
func (c *Update) Execute(ctx context.Context, conns Connections) ([]Event, error) {
	if c.executed {
		return nil, nil
	}
	produced := maps.Clone(c.where)
	maps.Copy(produced, c.data)

	ev := Event{
		Kind:     EventExecuted,
		Command:  c,
		Op:       OpUpdate,
		Database: c.target.Database,
		Table:    c.target.Table,
		Values:   maps.Clone(c.data),
	}

	if len(c.data) > 0 {
		w, err := conns.Writer(ctx, c.target.Database)
		if err != nil {
			return nil, err
		}
		if _, err := w.Update(ctx, c.target.Table, c.target.row(c.data), c.target.row(c.where)); err != nil {
			return nil, ir.NewStorageError(string(OpUpdate), c.target.Table, err)
		}
		c.wrote = true
		ev.Wrote = true
	}
	c.executed = true
	ev.Deliveries = c.deliveries(produced)
	return []Event{ev}, nil
}

// Complete reports the written values.
func (c *Update) Complete() []Event {
	if !c.executed {
		return nil
	}
	return []Event{{Kind: EventCompleted, Command: c, Op: OpUpdate, Database: c.target.Database, Table: c.target.Table, Wrote: c.wrote, Values: maps.Clone(c.data)}}
}

// Rollback forgets the execution.
func (c *Update) Rollback() []Event {
	if !c.executed {
		return nil
	}
	c.executed = false
	c.wrote = false
	return []Event{{Kind: EventRolledBack, Command: c, Op: OpUpdate, Database: c.target.Database, Table: c.target.Table}}
}

// Delete removes the row matched by its scope.
type Delete struct {
	target Target
	scope

	executed bool
}

// NewDelete creates a delete of the row addressed by where.
func NewDelete(target Target, where map[string]any) *Delete {
	return &Delete{target: target, scope: newScope(where)}
}

func (c *Delete) String() string {
	return describe(OpDelete, c.target.Table, c.scopeWaiting)
}

// IsReady reports whether the key condition is complete.
func (c *Delete) IsReady() bool {
	return len(c.scopeWaiting) == 0
}

// IsExecuted reports whether the row was deleted.
func (c *Delete) IsExecuted() bool {
	return c.executed
}

// Execute deletes the row.
func (c *Delete) Execute(ctx context.Context, conns Connections) ([]Event, error) {
	if c.executed {
		return nil, nil
	}
	w, err := conns.Writer(ctx, c.target.Database)
	if err != nil {
		return nil, err
	}
	if _, err := w.Delete(ctx, c.target.Table, c.target.row(c.where)); err != nil {
		return nil, ir.NewStorageError(string(OpDelete), c.target.Table, err)
	}
	c.executed = true
	return []Event{{
		Kind:     EventExecuted,
		Command:  c,
		Op:       OpDelete,
		Database: c.target.Database,
		Table:    c.target.Table,
		Wrote:    true,
		Values:   maps.Clone(c.where),
	}}, nil
}

// Complete reports the deleted key.
func (c *Delete) Complete() []Event {
	if !c.executed {
		return nil
	}
	return []Event{{Kind: EventCompleted, Command: c, Op: OpDelete, Database: c.target.Database, Table: c.target.Table, Values: maps.Clone(c.where)}}
}

// Rollback forgets the execution.
func (c *Delete) Rollback() []Event {
	if !c.executed {
		return nil
	}
	c.executed = false
	return []Event{{Kind: EventRolledBack, Command: c, Op: OpDelete, Database: c.target.Database, Table: c.target.Table}}
}
