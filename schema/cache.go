package schema

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/mapreason/mapreason/core"
)

// CachingRetriever wraps a Retriever with a Memory-backed cache keyed by
// a hash of the query's token set, so rephrasings with identical token
// content share an entry. The cache store may be in-memory or Redis.
type CachingRetriever struct {
	inner  Retriever
	store  core.Memory
	ttl    time.Duration
	logger core.Logger
}

// NewCachingRetriever creates a caching wrapper around a retriever
func NewCachingRetriever(inner Retriever, store core.Memory, ttl time.Duration) *CachingRetriever {
	return &CachingRetriever{
		inner:  inner,
		store:  store,
		ttl:    ttl,
		logger: &core.NoOpLogger{},
	}
}

// SetLogger configures the logger
func (r *CachingRetriever) SetLogger(logger core.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Retrieve returns a cached schema context when available, otherwise
// delegates to the inner retriever and caches the result. Cache errors
// degrade to a direct retrieval, never to a query failure.
func (r *CachingRetriever) Retrieve(ctx context.Context, query string) (*Context, error) {
	key := cacheKey(query)

	if cached, err := r.store.Get(ctx, key); err == nil && cached != "" {
		var sc Context
		if err := json.Unmarshal([]byte(cached), &sc); err == nil {
			r.logger.Debug("Schema cache hit", map[string]interface{}{
				"operation": "schema_cache",
				"result":    "hit",
			})
			return &sc, nil
		}
	}

	sc, err := r.inner.Retrieve(ctx, query)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(sc); err == nil {
		if err := r.store.Set(ctx, key, string(data), r.ttl); err != nil {
			r.logger.Warn("Schema cache write failed", map[string]interface{}{
				"operation": "schema_cache",
				"error":     err.Error(),
			})
		}
	}

	return sc, nil
}

// cacheKey hashes the sorted token set of the query
func cacheKey(query string) string {
	tokens := tokenize(query)
	parts := make([]string, 0, len(tokens))
	for tok := range tokens {
		parts = append(parts, tok)
	}
	// map order is random; sort for a stable key
	sort.Strings(parts)
	sum := sha256.Sum256([]byte(strings.Join(parts, " ")))
	return "schema:" + hex.EncodeToString(sum[:16])
}
