package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/persist/internal/command"
	"github.com/roach88/persist/internal/compiler"
	"github.com/roach88/persist/internal/engine"
	"github.com/roach88/persist/internal/heap"
	"github.com/roach88/persist/internal/ir"
	"github.com/roach88/persist/internal/mapper"
	"github.com/roach88/persist/internal/store"
	"github.com/roach88/persist/internal/testutil"
)

// Default connection used when a Config leaves the driver empty.
const (
	DefaultDriver = "sqlite3"
	DefaultDSN    = ":memory:"
)

// Config selects the databases a scenario runs against.
type Config struct {
	Driver string
	DSN    string

	// DSNs overrides DSN per schema database name. A database without an
	// entry uses DSN, which must then be in-memory unless it is the
	// default database, so two databases never share one file.
	DSNs map[string]string

	// Logger receives unit of work logs. Default: discarded.
	Logger *slog.Logger
}

func (c Config) driver() string {
	if c.Driver == "" {
		return DefaultDriver
	}
	return c.Driver
}

func (c Config) dsnFor(database string) (string, error) {
	if dsn, ok := c.DSNs[database]; ok {
		return dsn, nil
	}
	dsn := c.DSN
	if dsn == "" {
		dsn = DefaultDSN
	}
	if database != ir.DefaultDatabase && dsn != DefaultDSN {
		return "", fmt.Errorf("no dsn configured for database %q", database)
	}
	return dsn, nil
}

// Harness executes the steps of one scenario.
type Harness struct {
	schema   *ir.Schema
	stores   map[string]*store.Store
	rec      *recorder
	uow      *engine.UnitOfWork
	entities map[string]*mapper.Record
	logger   *slog.Logger
}

// Run executes a scenario against fresh in-memory SQLite databases.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithConfig(context.Background(), scenario, Config{})
}

// RunWithConfig executes a scenario and returns the result.
//
// Execution flow:
// 1. Compile and validate the schema files
// 2. Open one store per schema database and run the setup SQL on each
// 3. Build the declared entities
// 4. Run each step as one unit of work, recording every statement
// 5. Evaluate assertions against the log and the databases
//
// Run ids and uuid keys come from deterministic generators so logs are
// reproducible. The returned error covers harness failures only; failed
// expectations are reported in the Result.
func RunWithConfig(ctx context.Context, scenario *Scenario, cfg Config) (*Result, error) {
	schema, err := compiler.CompileFiles(scenario.Schema...)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	h := &Harness{
		schema: schema,
		stores: make(map[string]*store.Store),
		rec:    &recorder{},
		logger: logger,
	}
	defer h.close()

	drivers := make(map[string]command.Driver)
	for _, db := range databases(schema) {
		dsn, err := cfg.dsnFor(db)
		if err != nil {
			return nil, err
		}
		st, err := store.Open(cfg.driver(), dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open database %q: %w", db, err)
		}
		h.stores[db] = st
		for i, stmt := range scenario.Setup {
			if err := st.Exec(ctx, stmt); err != nil {
				return nil, fmt.Errorf("setup[%d] on %q: %w", i, db, err)
			}
		}
		drivers[db] = &recordingDriver{database: db, inner: st, rec: h.rec}
	}

	h.uow, err = engine.New(mapper.NewRegistry(schema), heap.New(), drivers,
		engine.WithLogger(logger),
		engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.RunID)),
		engine.WithKeyGenerator(testutil.NewSequentialKeyGenerator()),
	)
	if err != nil {
		return nil, err
	}

	if err := h.buildEntities(scenario.Entities); err != nil {
		return nil, fmt.Errorf("failed to build entities: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i+1, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	result.Log = h.rec.entries()

	actx := &AssertionContext{Stores: h.stores, Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) close() {
	for db, st := range h.stores {
		if err := st.Close(); err != nil {
			h.logger.Warn("error closing database", "database", db, "error", err)
		}
	}
}

// databases returns every database name the schema writes to, sorted.
func databases(s *ir.Schema) []string {
	seen := map[string]bool{ir.DefaultDatabase: true}
	for _, rs := range s.Roles {
		seen[rs.Database] = true
		for _, rel := range rs.Relations {
			if rel.Through != nil && rel.Through.Database != "" {
				seen[rel.Through.Database] = true
			}
		}
	}
	return ir.SortedKeys(seen)
}

// buildEntities creates the declared records, then wires their relations
// once every ref exists.
func (h *Harness) buildEntities(decls []EntityDecl) error {
	h.entities = make(map[string]*mapper.Record, len(decls))
	for _, d := range decls {
		rs, ok := h.schema.Role(d.Role)
		if !ok {
			return fmt.Errorf("entity %q: unknown role %q", d.Ref, d.Role)
		}
		for field := range d.Fields {
			if !rs.HasField(field) {
				return fmt.Errorf("entity %q: role %s has no field %q", d.Ref, d.Role, field)
			}
		}
		h.entities[d.Ref] = mapper.NewRecord(d.Role, d.Fields)
	}

	for _, d := range decls {
		for name, refs := range d.Relations {
			if err := h.link(d.Ref, name, refs, true); err != nil {
				return err
			}
		}
	}
	return nil
}

// link attaches refs to a relation of the entity ref. replace resets
// collections first.
func (h *Harness) link(ref, name string, refs RefSet, replace bool) error {
	owner := h.entities[ref]
	rel, err := h.relation(owner, name)
	if err != nil {
		return err
	}

	targets := make([]any, len(refs))
	for i, r := range refs {
		targets[i] = h.entities[r]
	}

	switch rel.Kind {
	case ir.HasMany, ir.ManyToMany:
		if replace {
			owner.SetRelated(name, targets)
			return nil
		}
		owner.Add(name, targets...)
	default:
		if len(targets) > 1 {
			return fmt.Errorf("%s.%s holds one entity, got %d", ref, name, len(targets))
		}
		if len(targets) == 0 {
			owner.SetRelated(name, nil)
			return nil
		}
		owner.SetRelated(name, targets[0])
	}
	return nil
}

// unlink detaches refs from a relation of the entity ref. A single
// relation is cleared whatever it holds.
func (h *Harness) unlink(ref, name string, refs RefSet) error {
	owner := h.entities[ref]
	rel, err := h.relation(owner, name)
	if err != nil {
		return err
	}

	switch rel.Kind {
	case ir.HasMany, ir.ManyToMany:
		for _, r := range refs {
			owner.Remove(name, h.entities[r])
		}
	default:
		owner.SetRelated(name, nil)
	}
	return nil
}

func (h *Harness) relation(owner *mapper.Record, name string) (ir.RelationSchema, error) {
	rs, _ := h.schema.Role(owner.Role())
	rel, ok := rs.Relation(name)
	if !ok {
		return rel, fmt.Errorf("role %s has no relation %q", owner.Role(), name)
	}
	return rel, nil
}

// executeStep applies the step's changes, runs the unit of work and
// checks the step's expectations.
func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	for _, ref := range ir.SortedKeys(step.Set) {
		e := h.entities[ref]
		rs, _ := h.schema.Role(e.Role())
		for field, value := range step.Set[ref] {
			if !rs.HasField(field) {
				return fmt.Errorf("set: role %s has no field %q", e.Role(), field)
			}
			e.Set(field, value)
		}
	}
	for _, ref := range ir.SortedKeys(step.Link) {
		for _, name := range ir.SortedKeys(step.Link[ref]) {
			if err := h.link(ref, name, step.Link[ref][name], false); err != nil {
				return fmt.Errorf("link: %w", err)
			}
		}
	}
	for _, ref := range ir.SortedKeys(step.Unlink) {
		for _, name := range ir.SortedKeys(step.Unlink[ref]) {
			if err := h.unlink(ref, name, step.Unlink[ref][name]); err != nil {
				return fmt.Errorf("unlink: %w", err)
			}
		}
	}

	for _, ref := range step.Persist {
		h.uow.Persist(h.entities[ref], step.cascade())
	}
	for _, ref := range step.Delete {
		h.uow.Delete(h.entities[ref], step.cascade())
	}

	h.rec.begin(index, step.FailAt)
	out, err := h.uow.Run(ctx)
	sr := StepResult{Index: index, Writes: h.rec.finish(err != nil)}
	if out != nil {
		sr.Passes = out.Passes
	}
	if err != nil {
		sr.Error = errorCode(err)
	}
	result.Steps = append(result.Steps, sr)

	h.logger.Info("step completed",
		"step", index,
		"writes", sr.Writes,
		"passes", sr.Passes,
		"error", sr.Error,
	)

	var expect StepExpect
	if step.Expect != nil {
		expect = *step.Expect
	}
	if sr.Error != expect.Error {
		msg := fmt.Sprintf("step %d: expected error %q, got %q", index, expect.Error, sr.Error)
		if err != nil {
			msg += fmt.Sprintf(" (%v)", err)
		}
		result.AddError(msg)
	}
	if expect.Writes != nil && *expect.Writes != sr.Writes {
		result.AddError(fmt.Sprintf("step %d: expected %d writes, got %d", index, *expect.Writes, sr.Writes))
	}
	return nil
}

// errorCode names a run failure by its error code; errors outside the
// write path's kinds report as ERROR.
func errorCode(err error) string {
	if code := ir.CodeOf(err); code != "" {
		return string(code)
	}
	return "ERROR"
}
