package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/roach88/persist/internal/command"
	"github.com/roach88/persist/internal/heap"
	"github.com/roach88/persist/internal/ir"
)

// scheduler executes the roots of one run. It implements
// command.Connections, beginning one transaction per database on first use.
type scheduler struct {
	uow    *UnitOfWork
	bound  map[command.Command]*heap.Node
	logger *slog.Logger

	txs   map[string]command.Tx
	order []string

	passes   int
	commands int
	log      []Write
}

func newScheduler(u *UnitOfWork, bound map[command.Command]*heap.Node, logger *slog.Logger) *scheduler {
	return &scheduler{
		uow:    u,
		bound:  bound,
		logger: logger,
		txs:    make(map[string]command.Tx),
	}
}

// Writer implements command.Connections.
func (s *scheduler) Writer(ctx context.Context, database string) (command.Writer, error) {
	if tx, ok := s.txs[database]; ok {
		return tx, nil
	}
	drv, ok := s.uow.drivers[database]
	if !ok {
		return nil, ir.NewStorageError("begin", database, fmt.Errorf("no driver for database %q", database))
	}
	tx, err := drv.Begin(ctx)
	if err != nil {
		return nil, ir.NewStorageError("begin", database, err)
	}
	s.txs[database] = tx
	s.order = append(s.order, database)
	s.logger.Debug("transaction opened", "database", database)
	return tx, nil
}

// execute runs passes over the roots until all executed. A pass executes
// every ready root in order and applies its events before moving on, so
// later roots see the values earlier ones produced.
func (s *scheduler) execute(ctx context.Context, roots []command.Command) error {
	work := newWorklist(roots)
	quota := newPassQuota(s.uow.maxPasses)

	for work.Len() > 0 {
		if err := quota.Check(); err != nil {
			return err
		}
		s.passes++

		progress := false
		for _, cmd := range work.Items() {
			if !cmd.IsReady() {
				continue
			}
			events, err := cmd.Execute(ctx, s)
			if err != nil {
				return err
			}
			if len(events) > 0 {
				progress = true
			}
			s.apply(events)
		}
		work.Compact()

		if !progress && work.Len() > 0 {
			return s.stuck(work)
		}
	}
	return nil
}

// stuck builds the ordering failure naming every pending root.
func (s *scheduler) stuck(work *worklist) error {
	pending := make(map[string]string, work.Len())
	for i, cmd := range work.Items() {
		pending[fmt.Sprintf("root[%d]", i)] = cmd.String()
	}
	return ir.NewOrderingError(fmt.Sprintf("no command ready after pass %d", s.passes), pending)
}

// apply updates nodes from executed events and hands forwarded values to
// their targets.
func (s *scheduler) apply(events []command.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case command.EventSkipped:
			s.logger.Debug("command skipped", "command", ev.Command.String())
			continue
		case command.EventExecuted:
		default:
			continue
		}

		s.commands++
		if node := s.bound[ev.Command]; node != nil {
			switch ev.Op {
			case command.OpInsert, command.OpUpdate:
				for k, v := range ev.Values {
					node.Register(k, v)
				}
			case command.OpDelete:
				node.State().SetStatus(heap.StatusScheduledDelete)
			}
		}
		if ev.Wrote {
			w := Write{
				Seq:      len(s.log) + 1,
				Op:       ev.Op,
				Database: ev.Database,
				Table:    ev.Table,
				Values:   maps.Clone(ev.Values),
			}
			s.log = append(s.log, w)
			s.uow.metrics.observeWrite(ev.Op)
			s.logger.Debug("write executed", "seq", w.Seq, "op", string(w.Op), "table", w.Table, "database", w.Database)
		}
		for _, d := range ev.Deliveries {
			d.Apply()
			if d.Scope {
				continue
			}
			if node := s.bound[d.Target]; node != nil {
				node.Register(d.Key, d.Value)
			}
		}
	}
}

// commit commits every transaction in the order it was opened.
func (s *scheduler) commit() error {
	for i, db := range s.order {
		if err := s.txs[db].Commit(); err != nil {
			// Transactions already committed cannot be undone; the rest are
			// rolled back by the caller.
			s.order = s.order[i+1:]
			return ir.NewStorageError("commit", db, err)
		}
		s.logger.Debug("transaction committed", "database", db)
	}
	s.order = nil
	return nil
}

// rollback closes every open transaction in reverse order, then rolls back
// the roots in reverse order.
func (s *scheduler) rollback(roots []command.Command) {
	for i := len(s.order) - 1; i >= 0; i-- {
		db := s.order[i]
		if err := s.txs[db].Rollback(); err != nil {
			s.logger.Warn("transaction rollback failed", "database", db, "error", err)
		}
	}
	s.order = nil

	undone := 0
	for i := len(roots) - 1; i >= 0; i-- {
		undone += len(roots[i].Rollback())
	}
	s.logger.Debug("commands rolled back", "count", undone)
}

// complete finalizes every root and copies generated values into nodes.
func (s *scheduler) complete(roots []command.Command) {
	for _, root := range roots {
		for _, ev := range root.Complete() {
			node := s.bound[ev.Command]
			if node == nil {
				continue
			}
			for k, v := range ev.Generated {
				node.Register(k, v)
			}
		}
	}
}
