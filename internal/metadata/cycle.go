package metadata

import (
	"fmt"
	"slices"
	"strings"
)

// Cycle is a loop in the controller graph, e.g. product -> component ->
// product. Cycles are legal: the resolver fires each rule at most once per
// cascade, so a loop settles after one pass. They are reported because the
// settled values then depend on which attribute the user edited first.
type Cycle struct {
	Path    []string `json:"path"`
	Message string   `json:"message"`
}

// Cycles returns the loops among rule controllers and dependents, each
// starting at its lexically smallest attribute. An acyclic table returns nil.
func (t *Table) Cycles() []Cycle {
	if t == nil {
		return nil
	}
	graph := make(map[string][]string)
	for _, r := range t.rules {
		graph[r.Controller] = append(graph[r.Controller], r.Dependent)
		if _, ok := graph[r.Dependent]; !ok {
			graph[r.Dependent] = nil
		}
	}

	var cycles []Cycle
	for _, scc := range stronglyConnected(graph) {
		if len(scc) == 1 && !slices.Contains(graph[scc[0]], scc[0]) {
			continue
		}
		path := cyclePath(scc, graph)
		cycles = append(cycles, Cycle{
			Path:    path,
			Message: fmt.Sprintf("dependency cycle: %s", strings.Join(path, " -> ")),
		})
	}
	slices.SortFunc(cycles, func(a, b Cycle) int { return strings.Compare(a.Path[0], b.Path[0]) })
	return cycles
}

// stronglyConnected is Tarjan's algorithm over nodes in sorted order.
func stronglyConnected(graph map[string][]string) [][]string {
	var (
		index   int
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var connect func(string)
	connect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, seen := indices[w]; !seen {
				connect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	for _, n := range nodes {
		if _, seen := indices[n]; !seen {
			connect(n)
		}
	}
	return sccs
}

// cyclePath walks edges inside scc from its smallest member back to itself.
func cyclePath(scc []string, graph map[string][]string) []string {
	start := slices.Min(scc)
	path := []string{start}
	visited := map[string]bool{start: true}
	for current := start; ; {
		next := ""
		for _, w := range graph[current] {
			if slices.Contains(scc, w) && (w == start || !visited[w]) {
				next = w
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
		visited[next] = true
		current = next
	}
}
