package orchestration

import (
	"errors"
	"testing"

	"github.com/mapreason/mapreason/core"
)

func chainGraph(t *testing.T, n int) *SubqueryGraph {
	t.Helper()
	nodes := make([]*Subquery, n)
	for i := range nodes {
		nodes[i] = &Subquery{ID: idFor(i), Text: "step", Route: RouteDirect}
		if i > 0 {
			nodes[i].DependsOn = []int{i - 1}
		}
	}
	graph, err := NewSubqueryGraph(nodes)
	if err != nil {
		t.Fatalf("NewSubqueryGraph failed: %v", err)
	}
	return graph
}

func idFor(i int) string {
	return "sq-" + string(rune('a'+i))
}

func TestGraphRejectsCycle(t *testing.T) {
	nodes := []*Subquery{
		{ID: "sq-a", Text: "a", DependsOn: []int{1}},
		{ID: "sq-b", Text: "b", DependsOn: []int{0}},
	}
	_, err := NewSubqueryGraph(nodes)
	if !errors.Is(err, core.ErrCyclicDecomposition) {
		t.Errorf("expected cyclic decomposition error, got %v", err)
	}
}

func TestGraphRejectsSelfDependency(t *testing.T) {
	nodes := []*Subquery{{ID: "sq-a", Text: "a", DependsOn: []int{0}}}
	_, err := NewSubqueryGraph(nodes)
	if !errors.Is(err, core.ErrCyclicDecomposition) {
		t.Errorf("expected cyclic decomposition error, got %v", err)
	}
}

func TestGraphRejectsDanglingIndex(t *testing.T) {
	nodes := []*Subquery{{ID: "sq-a", Text: "a", DependsOn: []int{5}}}
	_, err := NewSubqueryGraph(nodes)
	if !errors.Is(err, core.ErrInvalidQuery) {
		t.Errorf("expected invalid query error, got %v", err)
	}
}

func TestGraphLevels(t *testing.T) {
	// diamond: a → b, a → c, {b,c} → d
	nodes := []*Subquery{
		{ID: "sq-a", Text: "a"},
		{ID: "sq-b", Text: "b", DependsOn: []int{0}},
		{ID: "sq-c", Text: "c", DependsOn: []int{0}},
		{ID: "sq-d", Text: "d", DependsOn: []int{1, 2}},
	}
	graph, err := NewSubqueryGraph(nodes)
	if err != nil {
		t.Fatalf("NewSubqueryGraph failed: %v", err)
	}

	levels := graph.Levels()
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d", len(levels))
	}
	if len(levels[0]) != 1 || levels[0][0] != 0 {
		t.Errorf("level 0 should be [0], got %v", levels[0])
	}
	if len(levels[1]) != 2 {
		t.Errorf("level 1 should hold b and c, got %v", levels[1])
	}
	if len(levels[2]) != 1 || levels[2][0] != 3 {
		t.Errorf("level 2 should be [3], got %v", levels[2])
	}
}

func TestGraphReadyRespectsDependencies(t *testing.T) {
	graph := chainGraph(t, 3)

	ready := graph.Ready()
	if len(ready) != 1 || ready[0] != 0 {
		t.Fatalf("only the root should be ready, got %v", ready)
	}

	NewPropagator(graph).Apply(0, Outcome{Result: "done"})
	ready = graph.Ready()
	if len(ready) != 1 || ready[0] != 1 {
		t.Fatalf("second node should be ready after root resolves, got %v", ready)
	}
}

func TestGraphDependencyResults(t *testing.T) {
	graph := chainGraph(t, 2)
	NewPropagator(graph).Apply(0, Outcome{Result: "boundary data"})

	deps := graph.DependencyResults(1)
	if deps[idFor(0)] != "boundary data" {
		t.Errorf("unexpected dependency results %v", deps)
	}
}
