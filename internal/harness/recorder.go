package harness

import (
	"context"
	"errors"
	"maps"
	"sync"

	"github.com/roach88/persist/internal/command"
)

// errInjected is the driver failure a step's fail_at produces.
var errInjected = errors.New("injected driver failure")

// recorder collects the statements of every wrapped driver into one log.
//
// Thread-safety: all methods are safe for concurrent use.
type recorder struct {
	mu      sync.Mutex
	log     []LogEntry
	step    int
	inStep  int
	failAt  int
	stepLog int // index of the step's first entry
}

// begin starts recording a new step.
func (r *recorder) begin(step, failAt int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.step = step
	r.inStep = 0
	r.failAt = failAt
	r.stepLog = len(r.log)
}

// finish closes the step, marking its statements rolled back when the run
// failed, and returns how many statements it recorded.
func (r *recorder) finish(failed bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if failed {
		for i := r.stepLog; i < len(r.log); i++ {
			r.log[i].RolledBack = true
		}
	}
	return len(r.log) - r.stepLog
}

func (r *recorder) record(e LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.Seq = len(r.log) + 1
	e.Step = r.step
	r.log = append(r.log, e)
	r.inStep++
	if r.failAt > 0 && r.inStep == r.failAt {
		return errInjected
	}
	return nil
}

func (r *recorder) entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogEntry, len(r.log))
	copy(out, r.log)
	return out
}

// recordingDriver wraps a driver so every statement is logged before it
// is handed on.
type recordingDriver struct {
	database string
	inner    command.Driver
	rec      *recorder
}

// Begin implements command.Driver.
func (d *recordingDriver) Begin(ctx context.Context) (command.Tx, error) {
	tx, err := d.inner.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &recordingTx{Tx: tx, driver: d}, nil
}

type recordingTx struct {
	command.Tx
	driver *recordingDriver
}

func (t *recordingTx) log(op command.Op, table string, values, where map[string]any) error {
	return t.driver.rec.record(LogEntry{
		Database: t.driver.database,
		Op:       op,
		Table:    table,
		Values:   maps.Clone(values),
		Where:    maps.Clone(where),
	})
}

func (t *recordingTx) Insert(ctx context.Context, table string, values map[string]any, returning string) (any, error) {
	if err := t.log(command.OpInsert, table, values, nil); err != nil {
		return nil, err
	}
	return t.Tx.Insert(ctx, table, values, returning)
}

func (t *recordingTx) Update(ctx context.Context, table string, values, where map[string]any) (int64, error) {
	if err := t.log(command.OpUpdate, table, values, where); err != nil {
		return 0, err
	}
	return t.Tx.Update(ctx, table, values, where)
}

func (t *recordingTx) Delete(ctx context.Context, table string, where map[string]any) (int64, error) {
	if err := t.log(command.OpDelete, table, nil, where); err != nil {
		return 0, err
	}
	return t.Tx.Delete(ctx, table, where)
}
