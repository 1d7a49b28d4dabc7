package orchestration

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mapreason/mapreason/core"
	"github.com/mapreason/mapreason/geoapi"
	"github.com/mapreason/mapreason/reasoning"
)

func fastConfig() *core.Config {
	config := core.DefaultConfig()
	config.RetryInitialDelay = time.Millisecond
	config.RetryMaxDelay = 5 * time.Millisecond
	config.FetchTimeout = time.Second
	return config
}

func newTestResolver(baseURL string, reasoner core.Reasoner, config *core.Config) *Resolver {
	return NewResolver(geoapi.NewConstructor(baseURL), geoapi.NewFetcher(config), reasoner, config)
}

// orderCheckReasoner verifies that no subquery starts resolving before
// all of its dependencies have finished.
type orderCheckReasoner struct {
	mu         sync.Mutex
	deps       map[int][]int
	done       map[int]bool
	violations []string
}

func (r *orderCheckReasoner) Reason(ctx context.Context, prompt string, options *core.ReasonOptions) (*core.ReasonResult, error) {
	idx := -1
	for i := range r.deps {
		if strings.Contains(prompt, fmt.Sprintf("Subquestion: node-%d\n", i)) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return &core.ReasonResult{Content: "ok", Model: "mock"}, nil
	}

	r.mu.Lock()
	for _, dep := range r.deps[idx] {
		if !r.done[dep] {
			r.violations = append(r.violations, fmt.Sprintf("node %d resolved before dependency %d", idx, dep))
		}
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.done[idx] = true
		r.mu.Unlock()
	}()
	return &core.ReasonResult{Content: fmt.Sprintf("answer-%d", idx), Model: "mock"}, nil
}

func TestResolveAllRandomizedDAGsRespectDependencyOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 20; trial++ {
		n := 4 + rng.Intn(8)
		deps := make(map[int][]int, n)
		nodes := make([]*Subquery, n)
		for i := 0; i < n; i++ {
			// edges only point at lower indices, so the graph is acyclic
			for j := 0; j < i; j++ {
				if rng.Intn(3) == 0 {
					deps[i] = append(deps[i], j)
				}
			}
			nodes[i] = &Subquery{
				ID:        fmt.Sprintf("sq-%d", i),
				Text:      fmt.Sprintf("node-%d", i),
				DependsOn: deps[i],
				Route:     RouteDirect,
			}
			if deps[i] == nil {
				deps[i] = []int{}
			}
		}

		graph, err := NewSubqueryGraph(nodes)
		if err != nil {
			t.Fatalf("trial %d: NewSubqueryGraph failed: %v", trial, err)
		}

		checker := &orderCheckReasoner{deps: deps, done: make(map[int]bool)}
		resolver := newTestResolver("http://unused", checker, fastConfig())
		if err := resolver.ResolveAll(context.Background(), graph, testSchemaContext()); err != nil {
			t.Fatalf("trial %d: ResolveAll failed: %v", trial, err)
		}

		for _, v := range checker.violations {
			t.Errorf("trial %d: %s", trial, v)
		}
		for i, sq := range graph.Snapshot() {
			if !sq.Resolved {
				t.Errorf("trial %d: node %d left unresolved", trial, i)
			}
		}
	}
}

func TestResolveAllTerminatesOnChainAndFanOut(t *testing.T) {
	mock := reasoning.NewMockReasoner()
	mock.Default = "resolved"

	shapes := map[string]*SubqueryGraph{}

	// depth 1: a single node
	shapes["depth-1"] = chainGraph(t, 1)
	// depth 3 chain
	shapes["depth-3"] = chainGraph(t, 3)

	// maximum-width fan-out: one root, budget-1 dependents
	config := core.DefaultConfig()
	n := config.MaxSubqueries
	nodes := make([]*Subquery, n)
	nodes[0] = &Subquery{ID: "sq-root", Text: "root", Route: RouteDirect}
	for i := 1; i < n; i++ {
		nodes[i] = &Subquery{ID: fmt.Sprintf("sq-%d", i), Text: "leaf", DependsOn: []int{0}, Route: RouteDirect}
	}
	fanOut, err := NewSubqueryGraph(nodes)
	if err != nil {
		t.Fatalf("NewSubqueryGraph failed: %v", err)
	}
	shapes["fan-out"] = fanOut

	for name, graph := range shapes {
		resolver := newTestResolver("http://unused", mock, fastConfig())

		done := make(chan error, 1)
		go func() {
			done <- resolver.ResolveAll(context.Background(), graph, testSchemaContext())
		}()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("%s: ResolveAll failed: %v", name, err)
			}
		case <-time.After(10 * time.Second):
			t.Fatalf("%s: resolution did not terminate", name)
		}

		for i, sq := range graph.Snapshot() {
			if !sq.Resolved {
				t.Errorf("%s: node %d left unresolved", name, i)
			}
		}
	}
}

func TestResolveAllEmptyShortCircuitsBranch(t *testing.T) {
	var fetches atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		_, _ = w.Write([]byte(`{"records": []}`))
	}))
	defer server.Close()

	mock := reasoning.NewMockReasoner()
	mock.Default = "should never be asked"

	nodes := []*Subquery{
		{ID: "sq-a", Text: "fetch wards", Route: RouteAPI,
			Request: &geoapi.RequestSpec{Table: "wards"}},
		{ID: "sq-b", Text: "reason over wards", DependsOn: []int{0}, Route: RouteDirect},
		{ID: "sq-c", Text: "reason further", DependsOn: []int{1}, Route: RouteDirect},
	}
	graph, err := NewSubqueryGraph(nodes)
	if err != nil {
		t.Fatalf("NewSubqueryGraph failed: %v", err)
	}

	resolver := newTestResolver(server.URL, mock, fastConfig())
	if err := resolver.ResolveAll(context.Background(), graph, testSchemaContext()); err != nil {
		t.Fatalf("ResolveAll failed: %v", err)
	}

	if got := fetches.Load(); got != 1 {
		t.Errorf("expected exactly 1 fetch, got %d", got)
	}
	if mock.CallCount() != 0 {
		t.Errorf("flagged dependents should never reach the reasoner, got %d calls", mock.CallCount())
	}
	for i := 0; i < 3; i++ {
		node := graph.Node(i)
		if !node.Resolved || !node.Empty {
			t.Errorf("node %d should be resolved-empty, got %+v", i, node)
		}
	}
}

func TestResolveAllSchemaMismatchFailsLocally(t *testing.T) {
	mock := reasoning.NewMockReasoner()
	mock.Default = "direct answer"

	nodes := []*Subquery{
		{ID: "sq-a", Text: "fetch unknown", Route: RouteAPI,
			Request: &geoapi.RequestSpec{Table: "rivers"}},
		{ID: "sq-b", Text: "independent question", Route: RouteDirect},
	}
	graph, err := NewSubqueryGraph(nodes)
	if err != nil {
		t.Fatalf("NewSubqueryGraph failed: %v", err)
	}

	resolver := newTestResolver("http://unused", mock, fastConfig())
	if err := resolver.ResolveAll(context.Background(), graph, testSchemaContext()); err != nil {
		t.Fatalf("ResolveAll failed: %v", err)
	}

	mismatched := graph.Node(0)
	if !mismatched.Empty || mismatched.Failure == "" {
		t.Errorf("schema mismatch should mark empty with failure, got %+v", mismatched)
	}
	independent := graph.Node(1)
	if independent.Empty || independent.Result != "direct answer" {
		t.Errorf("independent subquery should still resolve, got %+v", independent)
	}
}

func TestResolveAllContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	graph := chainGraph(t, 2)
	mock := reasoning.NewMockReasoner()
	mock.Default = "x"

	resolver := newTestResolver("http://unused", mock, fastConfig())
	if err := resolver.ResolveAll(ctx, graph, testSchemaContext()); err == nil {
		t.Error("expected context cancellation error")
	}
}
