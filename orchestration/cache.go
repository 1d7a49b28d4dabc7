package orchestration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/mapreason/mapreason/core"
)

// DecompositionCache memoizes decompositions keyed by the normalized
// query text, so identical queries skip the reasoning round trip. Cache
// failures degrade silently to a fresh decomposition.
type DecompositionCache struct {
	store  core.Memory
	ttl    time.Duration
	logger core.Logger
}

// NewDecompositionCache creates a cache over a memory backend
func NewDecompositionCache(store core.Memory, ttl time.Duration) *DecompositionCache {
	return &DecompositionCache{
		store:  store,
		ttl:    ttl,
		logger: &core.NoOpLogger{},
	}
}

// SetLogger sets the logger
func (c *DecompositionCache) SetLogger(logger core.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

func decompositionKey(queryText string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(queryText)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return "decomposition:" + hex.EncodeToString(sum[:16])
}

// Get returns the cached subquery set for a query, or nil on miss.
// Cached entries carry only the decomposition shape, never resolution
// state, so each run starts from unresolved subqueries.
func (c *DecompositionCache) Get(ctx context.Context, queryText string) []*Subquery {
	payload, err := c.store.Get(ctx, decompositionKey(queryText))
	if err != nil || payload == "" {
		return nil
	}

	var nodes []*Subquery
	if err := json.Unmarshal([]byte(payload), &nodes); err != nil {
		c.logger.Warn("Discarding undecodable cached decomposition", map[string]interface{}{
			"operation": "decomposition_cache",
			"error":     err.Error(),
		})
		return nil
	}
	for _, node := range nodes {
		node.Resolved = false
		node.Empty = false
		node.Result = ""
		node.Records = nil
		node.Failure = ""
	}
	return nodes
}

// Put stores a decomposition shape
func (c *DecompositionCache) Put(ctx context.Context, queryText string, subqueries []Subquery) {
	nodes := make([]*Subquery, len(subqueries))
	for i := range subqueries {
		nodes[i] = &Subquery{
			ID:        subqueries[i].ID,
			Text:      subqueries[i].Text,
			DependsOn: subqueries[i].DependsOn,
			Route:     subqueries[i].Route,
			Request:   subqueries[i].Request,
		}
	}

	payload, err := json.Marshal(nodes)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, decompositionKey(queryText), string(payload), c.ttl); err != nil {
		c.logger.Warn("Failed to cache decomposition", map[string]interface{}{
			"operation": "decomposition_cache",
			"error":     err.Error(),
		})
	}
}
