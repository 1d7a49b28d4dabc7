package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/mapreason/mapreason/core"
	"github.com/mapreason/mapreason/geoapi"
)

func TestDecompositionCacheRoundTrip(t *testing.T) {
	cache := NewDecompositionCache(core.NewMemoryStore(), time.Minute)
	ctx := context.Background()

	subqueries := []Subquery{
		{ID: "sq-1", Text: "boundary", Route: RouteAPI,
			Request: &geoapi.RequestSpec{Table: "wards"},
			// resolution state must not survive caching
			Resolved: true, Result: "stale", Records: []map[string]interface{}{{"x": 1}}},
		{ID: "sq-2", Text: "filter", DependsOn: []int{0}, Route: RouteDirect, Empty: true},
	}
	cache.Put(ctx, "How many properties?", subqueries)

	nodes := cache.Get(ctx, "How many properties?")
	if nodes == nil {
		t.Fatal("expected cache hit")
	}
	if len(nodes) != 2 {
		t.Fatalf("expected 2 cached subqueries, got %d", len(nodes))
	}
	if nodes[0].Resolved || nodes[0].Result != "" || nodes[0].Records != nil {
		t.Errorf("resolution state leaked into cache: %+v", nodes[0])
	}
	if nodes[1].Empty {
		t.Errorf("empty flag leaked into cache: %+v", nodes[1])
	}
	if nodes[0].Request == nil || nodes[0].Request.Table != "wards" {
		t.Errorf("request spec not preserved: %+v", nodes[0])
	}
	if len(nodes[1].DependsOn) != 1 || nodes[1].DependsOn[0] != 0 {
		t.Errorf("dependencies not preserved: %+v", nodes[1])
	}
}

func TestDecompositionCacheNormalizesWhitespace(t *testing.T) {
	cache := NewDecompositionCache(core.NewMemoryStore(), time.Minute)
	ctx := context.Background()

	cache.Put(ctx, "How  many   properties?", []Subquery{{ID: "sq-1", Text: "t", Route: RouteDirect}})
	if cache.Get(ctx, "how many properties?") == nil {
		t.Error("expected hit for whitespace/case variant")
	}
}

func TestDecompositionCacheMiss(t *testing.T) {
	cache := NewDecompositionCache(core.NewMemoryStore(), time.Minute)
	if cache.Get(context.Background(), "never seen") != nil {
		t.Error("expected miss for unseen query")
	}
}
