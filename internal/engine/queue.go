package engine

import "github.com/roach88/persist/internal/command"

// worklist holds the roots that have not fully executed, in the order
// they were queued.
//
// Not safe for concurrent use; a run is single-threaded.
type worklist struct {
	items []command.Command
}

// newWorklist creates a worklist of the unexecuted roots.
func newWorklist(roots []command.Command) *worklist {
	w := &worklist{items: make([]command.Command, 0, len(roots))}
	for _, r := range roots {
		if r != nil && !r.IsExecuted() {
			w.items = append(w.items, r)
		}
	}
	return w
}

// Items returns the pending roots. The slice must not be kept across
// Compact.
func (w *worklist) Items() []command.Command {
	return w.items
}

// Compact drops roots that finished executing.
func (w *worklist) Compact() {
	kept := w.items[:0]
	for _, c := range w.items {
		if !c.IsExecuted() {
			kept = append(kept, c)
		}
	}
	// Nil out the dropped tail so executed commands can be collected.
	for i := len(kept); i < len(w.items); i++ {
		w.items[i] = nil
	}
	w.items = kept
}

// Len returns the number of pending roots.
func (w *worklist) Len() int {
	return len(w.items)
}
