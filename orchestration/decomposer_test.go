package orchestration

import (
	"context"
	"errors"
	"testing"

	"github.com/mapreason/mapreason/core"
	"github.com/mapreason/mapreason/reasoning"
	"github.com/mapreason/mapreason/schema"
)

func testSchemaContext() *schema.Context {
	return &schema.Context{
		Tables: map[string]schema.Table{
			"wards": {
				Name:     "wards",
				Endpoint: "/wards",
				Fields: []schema.Field{
					{Name: "name", Type: "string", Filterable: true},
					{Name: "geometry", Type: "geometry"},
				},
			},
			"properties": {
				Name:     "properties",
				Endpoint: "/properties",
				Fields: []schema.Field{
					{Name: "ward_name", Type: "string", Filterable: true},
					{Name: "pollutant", Type: "string", Filterable: true},
					{Name: "concentration", Type: "number", Filterable: true},
				},
			},
		},
	}
}

const wardDecomposition = `{"subqueries": [
  {"text": "identify the Northfield ward boundary", "depends_on": [], "route": "api",
   "request": {"table": "wards", "filters": [{"field": "name", "op": "eq", "value": "Northfield"}]}},
  {"text": "find properties in Northfield with lead above 40", "depends_on": [0], "route": "api",
   "request": {"table": "properties", "filters": [
     {"field": "ward_name", "op": "eq", "value": "Northfield"},
     {"field": "pollutant", "op": "eq", "value": "lead"},
     {"field": "concentration", "op": "gt", "value": 40}]}}
]}`

func TestDecompose(t *testing.T) {
	mock := reasoning.NewMockReasoner().AddRule("Decompose", wardDecomposition)
	d := NewDecomposer(mock, core.DefaultConfig())

	query := &Query{ID: "q-1", Text: "How many properties in Northfield have lead above 40?"}
	graph, err := d.Decompose(context.Background(), query, testSchemaContext())
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	if graph.Len() != 2 {
		t.Fatalf("expected 2 subqueries, got %d", graph.Len())
	}
	second := graph.Node(1)
	if second.Route != RouteAPI || second.Request == nil || second.Request.Table != "properties" {
		t.Errorf("unexpected second subquery %+v", second)
	}
	if len(second.DependsOn) != 1 || second.DependsOn[0] != 0 {
		t.Errorf("second subquery should depend on the first, got %v", second.DependsOn)
	}
}

func TestDecomposeToleratesSurroundingProse(t *testing.T) {
	mock := reasoning.NewMockReasoner().
		AddRule("Decompose", "Here is the plan:\n"+wardDecomposition+"\nLet me know if this helps.")
	d := NewDecomposer(mock, core.DefaultConfig())

	graph, err := d.Decompose(context.Background(), &Query{ID: "q-1", Text: "q"}, testSchemaContext())
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if graph.Len() != 2 {
		t.Errorf("expected 2 subqueries, got %d", graph.Len())
	}
}

func TestDecomposeCoarsensOnce(t *testing.T) {
	fine := `{"subqueries": [
      {"text": "a", "route": "direct"}, {"text": "b", "route": "direct"},
      {"text": "c", "route": "direct"}, {"text": "d", "route": "direct"}]}`
	coarse := `{"subqueries": [{"text": "a+b+c+d", "route": "direct"}]}`

	// the coarsen retry's prompt announces the previous attempt was too fine
	mock := reasoning.NewMockReasoner().
		AddRule("too fine-grained", coarse).
		AddRule("Decompose", fine)

	config := core.DefaultConfig()
	config.MaxSubqueries = 2
	config.CoarseMaxSubqueries = 2

	graph, err := NewDecomposer(mock, config).Decompose(context.Background(), &Query{ID: "q-1", Text: "q"}, testSchemaContext())
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}
	if graph.Len() != 1 {
		t.Errorf("expected coarsened decomposition of 1, got %d", graph.Len())
	}
	if mock.CallCount() != 2 {
		t.Errorf("expected exactly 2 reasoning calls, got %d", mock.CallCount())
	}
}

func TestDecomposeOverflowAfterCoarsening(t *testing.T) {
	over := `{"subqueries": [
      {"text": "a", "route": "direct"}, {"text": "b", "route": "direct"},
      {"text": "c", "route": "direct"}]}`
	mock := reasoning.NewMockReasoner()
	mock.Default = over

	config := core.DefaultConfig()
	config.MaxSubqueries = 2
	config.CoarseMaxSubqueries = 2

	_, err := NewDecomposer(mock, config).Decompose(context.Background(), &Query{ID: "q-1", Text: "q"}, testSchemaContext())
	if !errors.Is(err, core.ErrDecompositionOverflow) {
		t.Errorf("expected decomposition overflow, got %v", err)
	}
}

func TestDecomposeRejectsCycles(t *testing.T) {
	cyclic := `{"subqueries": [
      {"text": "a", "depends_on": [1], "route": "direct"},
      {"text": "b", "depends_on": [0], "route": "direct"}]}`
	mock := reasoning.NewMockReasoner()
	mock.Default = cyclic

	_, err := NewDecomposer(mock, core.DefaultConfig()).Decompose(context.Background(), &Query{ID: "q-1", Text: "q"}, testSchemaContext())
	if !errors.Is(err, core.ErrCyclicDecomposition) {
		t.Errorf("expected cyclic decomposition error, got %v", err)
	}
}

func TestDecomposeMalformedResponse(t *testing.T) {
	mock := reasoning.NewMockReasoner()
	mock.Default = "I cannot help with that."

	_, err := NewDecomposer(mock, core.DefaultConfig()).Decompose(context.Background(), &Query{ID: "q-1", Text: "q"}, testSchemaContext())
	if !errors.Is(err, core.ErrInvalidQuery) {
		t.Errorf("expected invalid query error, got %v", err)
	}
}

func TestFindJSONBounds(t *testing.T) {
	content := `prose {"a": {"b": 1}} trailing`
	start := findJSONStart(content)
	if start != 6 {
		t.Errorf("findJSONStart = %d, want 6", start)
	}
	end := findJSONEnd(content, start)
	if content[start:end] != `{"a": {"b": 1}}` {
		t.Errorf("unexpected JSON slice %q", content[start:end])
	}
	if findJSONStart("no json here") != -1 {
		t.Error("expected -1 for content without JSON")
	}
}
