package orchestration

import (
	"fmt"
	"sync"

	"github.com/mapreason/mapreason/core"
)

// SubqueryGraph is the arena of subqueries plus index-based adjacency.
// All resolution state lives here behind one lock, so result application
// and transitive empty-flag propagation are atomic with respect to
// concurrent resolution of sibling subqueries.
type SubqueryGraph struct {
	mu         sync.Mutex
	nodes      []*Subquery
	dependents [][]int // reverse edges: dependents[i] consume nodes[i]
}

// NewSubqueryGraph validates the decomposition and builds the graph.
// Dangling dependency indices and cycles are contract violations.
func NewSubqueryGraph(nodes []*Subquery) (*SubqueryGraph, error) {
	g := &SubqueryGraph{
		nodes:      nodes,
		dependents: make([][]int, len(nodes)),
	}

	for i, node := range nodes {
		for _, dep := range node.DependsOn {
			if dep < 0 || dep >= len(nodes) {
				return nil, &core.QueryError{
					Op:      "build_graph",
					Kind:    "decomposition",
					ID:      node.ID,
					Message: fmt.Sprintf("dependency index %d out of range", dep),
					Err:     core.ErrInvalidQuery,
				}
			}
			if dep == i {
				return nil, &core.QueryError{
					Op:      "build_graph",
					Kind:    "decomposition",
					ID:      node.ID,
					Message: "subquery depends on itself",
					Err:     core.ErrCyclicDecomposition,
				}
			}
			g.dependents[dep] = append(g.dependents[dep], i)
		}
	}

	if g.hasCycle() {
		return nil, &core.QueryError{
			Op:      "build_graph",
			Kind:    "decomposition",
			Message: "decomposition contains a dependency cycle",
			Err:     core.ErrCyclicDecomposition,
		}
	}
	return g, nil
}

// hasCycle runs Kahn's algorithm over the dependency edges
func (g *SubqueryGraph) hasCycle() bool {
	indegree := make([]int, len(g.nodes))
	for i := range g.nodes {
		indegree[i] = len(g.nodes[i].DependsOn)
	}

	queue := make([]int, 0, len(g.nodes))
	for i, d := range indegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}

	visited := 0
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range g.dependents[i] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	return visited != len(g.nodes)
}

// Len returns the arena size
func (g *SubqueryGraph) Len() int {
	return len(g.nodes)
}

// Node returns a copy of one subquery's current state
func (g *SubqueryGraph) Node(i int) Subquery {
	g.mu.Lock()
	defer g.mu.Unlock()
	return *g.nodes[i]
}

// Ready returns the indices of unresolved subqueries whose dependencies
// are all resolved or empty-flagged. An empty upstream counts as
// resolved because the dependent will have been flagged by propagation,
// so Ready never offers a subquery whose inputs are still in flight.
func (g *SubqueryGraph) Ready() []int {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ready []int
	for i, node := range g.nodes {
		if node.Resolved {
			continue
		}
		eligible := true
		for _, dep := range node.DependsOn {
			if !g.nodes[dep].Resolved {
				eligible = false
				break
			}
		}
		if eligible {
			ready = append(ready, i)
		}
	}
	return ready
}

// Levels groups arena indices into dependency levels: level 0 has no
// dependencies, level n+1 depends only on levels <= n.
func (g *SubqueryGraph) Levels() [][]int {
	depth := make([]int, len(g.nodes))
	var levelOf func(i int) int
	levelOf = func(i int) int {
		if depth[i] > 0 {
			return depth[i]
		}
		max := 0
		for _, dep := range g.nodes[i].DependsOn {
			if d := levelOf(dep); d > max {
				max = d
			}
		}
		depth[i] = max + 1
		return depth[i]
	}

	maxLevel := 0
	for i := range g.nodes {
		if d := levelOf(i); d > maxLevel {
			maxLevel = d
		}
	}

	levels := make([][]int, maxLevel)
	for i := range g.nodes {
		levels[depth[i]-1] = append(levels[depth[i]-1], i)
	}
	return levels
}

// DependencyResults returns the resolved results consumed by subquery i,
// keyed by the dependency's ID.
func (g *SubqueryGraph) DependencyResults(i int) map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]string, len(g.nodes[i].DependsOn))
	for _, dep := range g.nodes[i].DependsOn {
		node := g.nodes[dep]
		if node.Resolved && !node.Empty {
			out[node.ID] = node.Result
		}
	}
	return out
}

// Snapshot returns copies of every subquery for audit and synthesis
func (g *SubqueryGraph) Snapshot() []Subquery {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Subquery, len(g.nodes))
	for i, node := range g.nodes {
		out[i] = *node
	}
	return out
}
