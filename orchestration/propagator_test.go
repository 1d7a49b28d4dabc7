package orchestration

import (
	"testing"
)

func TestPropagatorAppliesResult(t *testing.T) {
	graph := chainGraph(t, 2)
	p := NewPropagator(graph)

	flagged := p.Apply(0, Outcome{Result: "42 records"})
	if len(flagged) != 0 {
		t.Errorf("non-empty result should flag nothing, got %v", flagged)
	}

	node := graph.Node(0)
	if !node.Resolved || node.Empty || node.Result != "42 records" {
		t.Errorf("unexpected node state %+v", node)
	}
}

func TestPropagatorFlagsTransitiveDependents(t *testing.T) {
	// a → b → d, a → c; flagging a must reach d through b
	nodes := []*Subquery{
		{ID: "sq-a", Text: "a"},
		{ID: "sq-b", Text: "b", DependsOn: []int{0}},
		{ID: "sq-c", Text: "c", DependsOn: []int{0}},
		{ID: "sq-d", Text: "d", DependsOn: []int{1}},
	}
	graph, err := NewSubqueryGraph(nodes)
	if err != nil {
		t.Fatalf("NewSubqueryGraph failed: %v", err)
	}

	flagged := NewPropagator(graph).Apply(0, Outcome{Empty: true})
	if len(flagged) != 3 {
		t.Fatalf("expected 3 flagged dependents, got %v", flagged)
	}
	for i := 1; i < 4; i++ {
		node := graph.Node(i)
		if !node.Resolved || !node.Empty {
			t.Errorf("node %d should be resolved-empty, got %+v", i, node)
		}
	}
	if len(graph.Ready()) != 0 {
		t.Errorf("nothing should remain eligible after full propagation")
	}
}

func TestPropagatorIsIdempotent(t *testing.T) {
	graph := chainGraph(t, 3)
	p := NewPropagator(graph)

	first := p.Apply(0, Outcome{Empty: true})
	if len(first) != 2 {
		t.Fatalf("expected 2 flagged, got %v", first)
	}

	before := graph.Snapshot()
	second := p.Apply(0, Outcome{Empty: true})
	if len(second) != 0 {
		t.Errorf("re-applying should flag nothing, got %v", second)
	}
	after := graph.Snapshot()
	for i := range before {
		if before[i].Resolved != after[i].Resolved ||
			before[i].Empty != after[i].Empty ||
			before[i].Result != after[i].Result ||
			before[i].Failure != after[i].Failure {
			t.Errorf("node %d changed on re-application: %+v vs %+v", i, before[i], after[i])
		}
	}
}

func TestPropagatorDoesNotOverwriteResolved(t *testing.T) {
	graph := chainGraph(t, 1)
	p := NewPropagator(graph)

	p.Apply(0, Outcome{Result: "original"})
	p.Apply(0, Outcome{Result: "overwrite attempt"})

	if got := graph.Node(0).Result; got != "original" {
		t.Errorf("resolved subquery was revisited, result %q", got)
	}
}
