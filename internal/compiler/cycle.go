package compiler

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/persist/internal/ir"
)

// CycleWarning represents a cycle of required parents between roles.
//
// Cycles are warnings, not errors, because they can still be written when
// one side of the cycle already has its key: a stored parent, or a uuid
// key assigned before the insert is queued. New entities on every side of
// the cycle fail the run with an ordering failure.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static cycle analysis on required parent edges.
//
// Steps:
//  1. Build role → target graph from non-nullable belongsTo relations
//  2. Find strongly connected components with Tarjan's algorithm
//  3. Report every component with more than one role, or a self-loop
//
// A cycle made only of uuid-keyed roles is reported at info level.
// An acyclic schema returns an empty warning list.
func AnalyzeCycles(s *ir.Schema) []CycleWarning {
	graph := buildParentGraph(s)
	if len(graph) == 0 {
		return []CycleWarning{}
	}

	warnings := []CycleWarning{}
	for _, component := range tarjanSCC(graph) {
		if len(component) > 1 || slices.Contains(graph[component[0]], component[0]) {
			warnings = append(warnings, componentWarning(s, component, graph))
		}
	}
	sort.Slice(warnings, func(i, j int) bool {
		return strings.Join(warnings[i].Path, ",") < strings.Join(warnings[j].Path, ",")
	})
	return warnings
}

// dependencyGraph maps role → roles it requires to be stored first.
type dependencyGraph map[string][]string

// buildParentGraph adds an edge for every required belongsTo relation.
// Nullable parents can be linked after the fact and never block.
func buildParentGraph(s *ir.Schema) dependencyGraph {
	graph := make(dependencyGraph)
	for _, name := range s.RoleNames() {
		r := s.Roles[name]
		for _, rel := range r.Relations {
			if rel.Kind != ir.BelongsTo || rel.Nullable {
				continue
			}
			if _, ok := s.Roles[rel.Target]; !ok {
				continue
			}
			graph[name] = append(graph[name], rel.Target)
			if graph[rel.Target] == nil {
				graph[rel.Target] = []string{}
			}
		}
	}
	for _, parents := range graph {
		sort.Strings(parents)
	}
	return graph
}

// sccFinder is one run of Tarjan's strongly connected components search.
type sccFinder struct {
	graph   dependencyGraph
	next    int
	index   map[string]int
	low     map[string]int
	stack   []string
	onStack map[string]bool
	found   [][]string
}

// tarjanSCC returns the strongly connected components of graph. Roots are
// visited in sorted order and members are sorted, so results are stable.
func tarjanSCC(graph dependencyGraph) [][]string {
	f := &sccFinder{
		graph:   graph,
		index:   make(map[string]int),
		low:     make(map[string]int),
		onStack: make(map[string]bool),
	}
	for _, role := range ir.SortedKeys(graph) {
		if _, seen := f.index[role]; !seen {
			f.visit(role)
		}
	}
	return f.found
}

func (f *sccFinder) visit(role string) {
	f.index[role], f.low[role] = f.next, f.next
	f.next++
	f.stack = append(f.stack, role)
	f.onStack[role] = true

	for _, parent := range f.graph[role] {
		if _, seen := f.index[parent]; !seen {
			f.visit(parent)
			f.low[role] = min(f.low[role], f.low[parent])
		} else if f.onStack[parent] {
			f.low[role] = min(f.low[role], f.index[parent])
		}
	}

	if f.low[role] != f.index[role] {
		return
	}
	var component []string
	for {
		top := f.stack[len(f.stack)-1]
		f.stack = f.stack[:len(f.stack)-1]
		f.onStack[top] = false
		component = append(component, top)
		if top == role {
			break
		}
	}
	sort.Strings(component)
	f.found = append(f.found, component)
}

func componentWarning(s *ir.Schema, component []string, graph dependencyGraph) CycleWarning {
	level := "info"
	for _, role := range component {
		if s.Roles[role].Generated != ir.GeneratedUUID {
			level = "warning"
		}
	}

	if len(component) == 1 {
		role := component[0]
		return CycleWarning{
			Path:    []string{role, role},
			Message: fmt.Sprintf("Role requires a parent of its own role: %s → %s", role, role),
			Level:   level,
		}
	}

	path := cyclePath(component, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Required parent cycle detected: %s", strings.Join(path, " → ")),
		Level:   level,
	}
}

// cyclePath walks edges inside the component from its first member back
// to it, preferring members not yet on the path.
func cyclePath(component []string, graph dependencyGraph) []string {
	start := component[0]
	path := []string{start}
	onPath := map[string]bool{start: true}
	for current := start; ; {
		next := ""
		for _, parent := range graph[current] {
			if parent == start || (slices.Contains(component, parent) && !onPath[parent]) {
				next = parent
				break
			}
		}
		if next == "" {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		onPath[next] = true
		current = next
	}
}
