package engine

import "github.com/roach88/persist/internal/heap"

// visitGuard records the nodes the builder already visited in a run.
//
// Entity graphs are cyclic: a parent's hasMany reaches the child, whose
// belongsTo reaches the parent again. The second visit returns the
// parent's existing pending write instead of building another.
type visitGuard struct {
	seen map[*heap.Node]bool
}

func newVisitGuard() *visitGuard {
	return &visitGuard{seen: make(map[*heap.Node]bool)}
}

// Seen reports whether node was visited in this run.
func (g *visitGuard) Seen(node *heap.Node) bool {
	return g.seen[node]
}

// Record marks node as visited.
func (g *visitGuard) Record(node *heap.Node) {
	g.seen[node] = true
}

// Len returns the number of visited nodes.
func (g *visitGuard) Len() int {
	return len(g.seen)
}
