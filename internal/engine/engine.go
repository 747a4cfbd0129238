package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/persist/internal/command"
	"github.com/roach88/persist/internal/heap"
	"github.com/roach88/persist/internal/mapper"
	"github.com/roach88/persist/internal/relation"
)

// DefaultMaxPasses bounds the scheduler passes of one run.
const DefaultMaxPasses = 1000

// RunIDGenerator generates the id logged with each run.
// Implemented by UUIDv7Generator (production) and fixed generators in tests.
type RunIDGenerator interface {
	Generate() string
}

// KeyGenerator assigns primary keys of uuid-keyed roles before their
// inserts are queued. Implemented by UUIDv7Generator.
type KeyGenerator interface {
	Generate() string
}

// UnitOfWork collects entities to persist or delete and writes them in one
// transactional run.
//
// A UnitOfWork is not safe for concurrent use. Runs sharing a heap must not
// overlap; concurrent writers use separate heaps.
type UnitOfWork struct {
	registry  *mapper.Registry
	heap      *heap.Heap
	drivers   map[string]command.Driver
	resolvers relation.Table
	factory   command.Factory
	runIDs    RunIDGenerator
	keys      KeyGenerator
	maxPasses int
	logger    *slog.Logger
	metrics   *Metrics

	ops []op
}

// op is one queued persist or delete.
type op struct {
	entity  any
	delete  bool
	cascade bool
}

// Option configures a UnitOfWork.
type Option func(*UnitOfWork)

// WithFactory replaces the atomic command factory.
func WithFactory(f command.Factory) Option {
	return func(u *UnitOfWork) {
		u.factory = f
	}
}

// WithRunIDGenerator replaces the run id generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(u *UnitOfWork) {
		u.runIDs = g
	}
}

// WithKeyGenerator replaces the uuid primary key generator.
func WithKeyGenerator(g KeyGenerator) Option {
	return func(u *UnitOfWork) {
		u.keys = g
	}
}

// WithMaxPasses sets the scheduler pass budget.
//
// Default: 1000 passes (DefaultMaxPasses). Every pass must make progress,
// so the budget only matters for very deep command graphs.
func WithMaxPasses(n int) Option {
	return func(u *UnitOfWork) {
		u.maxPasses = n
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(u *UnitOfWork) {
		u.logger = l
	}
}

// WithMetrics enables run metrics.
func WithMetrics(m *Metrics) Option {
	return func(u *UnitOfWork) {
		u.metrics = m
	}
}

// New creates a unit of work over registry's schema. drivers maps each
// database name used by the schema to its driver. The relation resolvers
// are selected here, once per (role, relation).
func New(registry *mapper.Registry, h *heap.Heap, drivers map[string]command.Driver, opts ...Option) (*UnitOfWork, error) {
	resolvers, err := relation.NewTable(registry.Schema())
	if err != nil {
		return nil, fmt.Errorf("build resolvers: %w", err)
	}
	u := &UnitOfWork{
		registry:  registry,
		heap:      h,
		drivers:   drivers,
		resolvers: resolvers,
		factory:   command.DefaultFactory{},
		runIDs:    UUIDv7Generator{},
		keys:      UUIDv7Generator{},
		maxPasses: DefaultMaxPasses,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Heap returns the session identity map.
func (u *UnitOfWork) Heap() *heap.Heap {
	return u.heap
}

// Persist queues entity for storing. With cascade unset only the entity's
// own row is written and its relations are left alone. A later Delete of
// the same entity cancels the persist.
func (u *UnitOfWork) Persist(entity any, cascade bool) {
	u.queue(op{entity: entity, cascade: cascade})
}

// Delete queues entity for deletion. With cascade set, owned children and
// pivot rows are released first. A later Persist of the same entity
// cancels the delete.
func (u *UnitOfWork) Delete(entity any, cascade bool) {
	u.queue(op{entity: entity, delete: true, cascade: cascade})
}

func (u *UnitOfWork) queue(next op) {
	kept := u.ops[:0]
	for _, o := range u.ops {
		if o.entity != next.entity {
			kept = append(kept, o)
		}
	}
	u.ops = append(kept, next)
}

// Pending returns the number of queued operations.
func (u *UnitOfWork) Pending() int {
	return len(u.ops)
}

// Run builds the command graph of every queued operation and executes it.
// The queue is emptied whether or not the run succeeds.
//
// On failure every opened transaction is rolled back, executed commands
// are rolled back, every touched node is reset, and the error is returned
// unchanged. On success transactions are committed, generated values are
// copied into their nodes, and the heap is synchronized.
func (u *UnitOfWork) Run(ctx context.Context) (*Outcome, error) {
	ops := u.ops
	u.ops = nil

	runID := u.runIDs.Generate()
	start := time.Now()
	logger := u.logger.With("run_id", runID)
	logger.Debug("run starting", "operations", len(ops))

	b := newBuilder(u)
	roots, err := b.build(ops)
	if err != nil {
		u.resetTouched()
		u.metrics.observeRun(resultOf(err), 0, time.Since(start))
		logger.Error("run failed while building commands", "error", err)
		return nil, err
	}

	s := newScheduler(u, b.bound, logger)
	if err := s.execute(ctx, roots); err != nil {
		s.rollback(roots)
		u.resetTouched()
		u.metrics.observeRun(resultOf(err), s.passes, time.Since(start))
		logger.Error("run rolled back", "error", err, "passes", s.passes)
		return nil, err
	}
	if err := s.commit(); err != nil {
		s.rollback(roots)
		u.resetTouched()
		u.metrics.observeRun(resultOf(err), s.passes, time.Since(start))
		logger.Error("commit failed", "error", err)
		return nil, err
	}
	s.complete(roots)
	detached, conflicts := u.sync(logger)

	out := &Outcome{
		RunID:     runID,
		Writes:    len(s.log),
		Commands:  s.commands,
		Passes:    s.passes,
		Detached:  detached,
		Conflicts: conflicts,
		Log:       s.log,
	}
	u.metrics.observeRun("ok", s.passes, time.Since(start))
	logger.Info("run complete", "writes", out.Writes, "passes", out.Passes, "detached", out.Detached)
	return out, nil
}

// resetTouched reverts every node changed by the failed run.
func (u *UnitOfWork) resetTouched() {
	for _, n := range u.heap.All() {
		if n.HasState() {
			n.ResetState()
		}
	}
}

// sync detaches deleted unclaimed entities and merges every other touched
// node, re-hydrating its entity. It returns the number detached and the
// index conflicts met while re-indexing.
func (u *UnitOfWork) sync(logger *slog.Logger) (int, []error) {
	type touched struct {
		entity any
		node   *heap.Node
	}
	var nodes []touched
	for e, n := range u.heap.All() {
		if n.HasState() {
			nodes = append(nodes, touched{e, n})
		}
	}

	detached := 0
	var conflicts []error
	for _, t := range nodes {
		if t.node.Status() == heap.StatusScheduledDelete && !t.node.HasClaims() {
			u.heap.Detach(t.entity)
			detached++
			continue
		}
		merged := t.node.SyncState()
		m, err := u.registry.For(t.entity)
		if err != nil {
			logger.Warn("sync skipped entity", "role", t.node.Role(), "error", err)
			continue
		}
		if err := m.Hydrate(t.entity, merged); err != nil {
			logger.Warn("hydrate failed", "role", t.node.Role(), "error", err)
		}
		if err := u.heap.Attach(t.entity, t.node, m.Schema().IndexKeys()...); err != nil {
			logger.Warn("re-index failed", "role", t.node.Role(), "error", err)
			conflicts = append(conflicts, err)
		}
	}
	return detached, conflicts
}

// Outcome reports a successful run.
type Outcome struct {
	RunID string

	// Writes counts statements that reached a driver.
	Writes int

	// Commands counts atomic commands executed, including updates with
	// nothing to write.
	Commands int

	Passes   int
	Detached int

	// Conflicts lists index keys that another tracked entity already held
	// after the commit. Such an entity keeps its previous index entries.
	Conflicts []error

	// Log lists the writes in execution order.
	Log []Write
}

// Write is one statement issued by a run.
type Write struct {
	Seq      int
	Op       command.Op
	Database string
	Table    string
	Values   map[string]any
}

func (w Write) String() string {
	return fmt.Sprintf("%d %s %s", w.Seq, w.Op, w.Table)
}
