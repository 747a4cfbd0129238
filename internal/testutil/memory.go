package testutil

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/roach88/persist/internal/command"
	"github.com/roach88/persist/internal/ir"
)

// Write is one statement that reached a MemoryDriver.
type Write struct {
	Database string
	Op       command.Op
	Table    string
	Values   map[string]any
	Where    map[string]any
}

func (w Write) String() string {
	return fmt.Sprintf("%s %s", w.Op, w.Table)
}

// MemoryDriver is an in-memory command.Driver for tests. It keeps committed
// rows per table, assigns auto-increment ids per table, records every
// statement it receives, and can fail a chosen statement.
//
// Thread-safety: all methods are safe for concurrent use.
type MemoryDriver struct {
	mu       sync.Mutex
	database string
	tables   map[string][]map[string]any
	ids      map[string]*Sequence
	writes   []Write
	failAt   int
	failErr  error

	Begins    int
	Commits   int
	Rollbacks int
}

// NewMemoryDriver creates an empty driver for the named database.
func NewMemoryDriver(database string) *MemoryDriver {
	return &MemoryDriver{
		database: database,
		tables:   make(map[string][]map[string]any),
		ids:      make(map[string]*Sequence),
	}
}

// FailAt makes the n-th statement (1-based, counted over the driver's
// lifetime) fail with err.
func (d *MemoryDriver) FailAt(n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAt = n
	d.failErr = err
}

// Writes returns every statement received so far, including rolled back ones.
func (d *MemoryDriver) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Write, len(d.writes))
	copy(out, d.writes)
	return out
}

// ResetWrites clears the statement log.
func (d *MemoryDriver) ResetWrites() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes = nil
}

// Rows returns the committed rows of table.
func (d *MemoryDriver) Rows(table string) []map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneRows(d.tables[table])
}

// Seed stores committed rows directly, bypassing the statement log.
func (d *MemoryDriver) Seed(table string, rows ...map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range rows {
		d.tables[table] = append(d.tables[table], maps.Clone(r))
	}
}

// Begin implements command.Driver.
func (d *MemoryDriver) Begin(ctx context.Context) (command.Tx, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Begins++
	work := make(map[string][]map[string]any, len(d.tables))
	for t, rows := range d.tables {
		work[t] = cloneRows(rows)
	}
	return &memoryTx{driver: d, work: work}, nil
}

func (d *MemoryDriver) record(w Write) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes = append(d.writes, w)
	if d.failAt > 0 && len(d.writes) == d.failAt {
		return d.failErr
	}
	return nil
}

func (d *MemoryDriver) nextID(table string) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	seq, ok := d.ids[table]
	if !ok {
		seq = NewSequence()
		d.ids[table] = seq
	}
	return seq.Next()
}

type memoryTx struct {
	driver *MemoryDriver
	work   map[string][]map[string]any
	done   bool
}

func (tx *memoryTx) Insert(ctx context.Context, table string, values map[string]any, returning string) (any, error) {
	if err := tx.driver.record(Write{Database: tx.driver.database, Op: command.OpInsert, Table: table, Values: maps.Clone(values)}); err != nil {
		return nil, err
	}
	row := maps.Clone(values)
	var id any
	if returning != "" {
		id = tx.driver.nextID(table)
		row[returning] = id
	}
	tx.work[table] = append(tx.work[table], row)
	return id, nil
}

func (tx *memoryTx) Update(ctx context.Context, table string, values, where map[string]any) (int64, error) {
	if err := tx.driver.record(Write{Database: tx.driver.database, Op: command.OpUpdate, Table: table, Values: maps.Clone(values), Where: maps.Clone(where)}); err != nil {
		return 0, err
	}
	var n int64
	for _, row := range tx.work[table] {
		if matches(row, where) {
			maps.Copy(row, values)
			n++
		}
	}
	return n, nil
}

func (tx *memoryTx) Delete(ctx context.Context, table string, where map[string]any) (int64, error) {
	if err := tx.driver.record(Write{Database: tx.driver.database, Op: command.OpDelete, Table: table, Where: maps.Clone(where)}); err != nil {
		return 0, err
	}
	kept := tx.work[table][:0]
	var n int64
	for _, row := range tx.work[table] {
		if matches(row, where) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	tx.work[table] = kept
	return n, nil
}

func (tx *memoryTx) Commit() error {
	if tx.done {
		return fmt.Errorf("transaction already closed")
	}
	tx.done = true
	d := tx.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables = tx.work
	d.Commits++
	return nil
}

func (tx *memoryTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	d := tx.driver
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Rollbacks++
	return nil
}

func matches(row, where map[string]any) bool {
	for k, v := range where {
		if !ir.SameValue(row[k], v) {
			return false
		}
	}
	return true
}

func cloneRows(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = maps.Clone(r)
	}
	return out
}

// Connections hands every database the same writer. It lets command tests
// execute without a unit of work.
type Connections struct {
	W command.Writer
}

// Writer implements command.Connections.
func (c Connections) Writer(ctx context.Context, database string) (command.Writer, error) {
	return c.W, nil
}
