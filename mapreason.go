// Package mapreason answers natural-language questions over a structured
// geospatial data API. A query is decomposed into a DAG of subqueries,
// each resolved by a constructed API fetch or by direct reasoning, with
// optional sandboxed code execution over the fetched records, and the
// final answer is persisted as an auditable record.
package mapreason

import (
	"context"
	"fmt"

	"github.com/mapreason/mapreason/core"
	"github.com/mapreason/mapreason/geoapi"
	"github.com/mapreason/mapreason/orchestration"
	"github.com/mapreason/mapreason/reasoning"
	"github.com/mapreason/mapreason/schema"
)

// Pipeline is the assembled query-answering system
type Pipeline struct {
	orchestrator *orchestration.Orchestrator
	catalog      *schema.Catalog
	redis        *core.RedisClient
	config       *core.Config
	logger       core.Logger
}

// Option configures the pipeline
type Option func(*options)

type options struct {
	config    *core.Config
	reasoner  core.Reasoner
	tables    []schema.Table
	records   orchestration.RecordStore
	logger    core.Logger
	telemetry core.Telemetry
}

// WithConfig supplies a configuration instead of the environment defaults
func WithConfig(config *core.Config) Option {
	return func(o *options) { o.config = config }
}

// WithReasoner supplies the reasoning backend. Without it an
// OpenAI-compatible client is built from the configuration.
func WithReasoner(reasoner core.Reasoner) Option {
	return func(o *options) { o.reasoner = reasoner }
}

// WithTables seeds the schema catalog directly instead of loading the
// configured catalog file.
func WithTables(tables []schema.Table) Option {
	return func(o *options) { o.tables = tables }
}

// WithRecordStore overrides the answer record store
func WithRecordStore(store orchestration.RecordStore) Option {
	return func(o *options) { o.records = store }
}

// WithLogger sets the logger
func WithLogger(logger core.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTelemetry sets the telemetry provider
func WithTelemetry(telemetry core.Telemetry) Option {
	return func(o *options) { o.telemetry = telemetry }
}

// New assembles a pipeline. With no options everything is configured
// from MAPREASON_* environment variables: the schema catalog from the
// configured YAML file, Redis-backed stores when a Redis URL is set,
// in-memory stores otherwise.
func New(opts ...Option) (*Pipeline, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	config := o.config
	if config == nil {
		loaded, err := core.LoadConfigFromEnv()
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	logger := o.logger
	if logger == nil {
		logger = core.NewProductionLogger("mapreason", config.LogLevel)
	}

	tables := o.tables
	if tables == nil && config.SchemaFile != "" {
		loaded, err := schema.LoadCatalogFile(config.SchemaFile)
		if err != nil {
			return nil, fmt.Errorf("load schema catalog: %w", err)
		}
		tables = loaded
	}
	catalog := schema.NewCatalog(tables)
	catalog.SetLogger(logger)

	var redisClient *core.RedisClient
	var memory core.Memory = core.NewMemoryStore()
	records := o.records
	if config.RedisURL != "" {
		client, err := core.NewRedisClient(core.RedisClientOptions{
			RedisURL:  config.RedisURL,
			Namespace: "mapreason",
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		redisClient = client
		memory = core.NewRedisMemory(client)
		if records == nil {
			store := orchestration.NewRedisRecordStore(client, config)
			store.SetLogger(logger)
			records = store
		}
	}

	var retriever schema.Retriever = catalog
	if config.CacheEnabled {
		caching := schema.NewCachingRetriever(catalog, memory, config.CacheTTL)
		caching.SetLogger(logger)
		retriever = caching
	}

	reasoner := o.reasoner
	if reasoner == nil {
		reasoner = reasoning.NewClient("",
			reasoning.WithBaseURL(config.ReasonBaseURL),
			reasoning.WithModel(config.ReasonModel),
			reasoning.WithTimeout(config.ReasonTimeout),
			reasoning.WithLogger(logger),
		)
	}

	var cache *orchestration.DecompositionCache
	if config.CacheEnabled {
		cache = orchestration.NewDecompositionCache(memory, config.CacheTTL)
	}

	orchestrator := orchestration.NewOrchestrator(orchestration.Dependencies{
		Retriever:   retriever,
		Reasoner:    reasoner,
		Constructor: geoapi.NewConstructor(config.GeoAPIBaseURL),
		Fetcher:     geoapi.NewFetcher(config),
		Records:     records,
		Cache:       cache,
		Config:      config,
	})
	orchestrator.SetLogger(logger)
	if o.telemetry != nil {
		orchestrator.SetTelemetry(o.telemetry)
	}

	return &Pipeline{
		orchestrator: orchestrator,
		catalog:      catalog,
		redis:        redisClient,
		config:       config,
		logger:       logger,
	}, nil
}

// Ask answers one natural-language query
func (p *Pipeline) Ask(ctx context.Context, query string) (*orchestration.AnswerRecord, error) {
	return p.orchestrator.ProcessQuery(ctx, query)
}

// Records exposes the answer record store
func (p *Pipeline) Records() orchestration.RecordStore {
	return p.orchestrator.Records()
}

// Metrics returns the orchestrator's counters
func (p *Pipeline) Metrics() orchestration.OrchestratorMetrics {
	return p.orchestrator.Metrics()
}

// ReplaceSchema swaps the schema catalog contents
func (p *Pipeline) ReplaceSchema(tables []schema.Table) {
	p.catalog.Replace(tables)
}

// Close releases held resources
func (p *Pipeline) Close() error {
	if p.redis != nil {
		return p.redis.Close()
	}
	return nil
}
