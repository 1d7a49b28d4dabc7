package orchestration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mapreason/mapreason/core"
	"github.com/mapreason/mapreason/geoapi"
	"github.com/mapreason/mapreason/sandbox"
	"github.com/mapreason/mapreason/schema"
)

// Orchestrator runs the full state machine for one query:
// RetrieveSchema → Decompose → Plan → ResolveLoop → DecideCode →
// {Synthesize | GenerateCode → Execute → Synthesize} → End.
// Each query is a single independent flow; concurrent queries share
// nothing mutable beyond the read-only schema cache. The policy is
// fail-soft: only malformed input and irrecoverable decomposition
// overflow abort a run, every other failure degrades into the answer
// record's audit trail.
type Orchestrator struct {
	retriever  schema.Retriever
	reasoner   core.Reasoner
	decomposer *Decomposer
	planner    *Planner
	resolver   *Resolver
	codegen    *CodeSynthesizer
	executor   *sandbox.Executor
	answerer   *AnswerSynthesizer
	records    RecordStore
	cache      *DecompositionCache
	config     *core.Config
	logger     core.Logger
	telemetry  core.Telemetry

	metrics OrchestratorMetrics
	mu      sync.Mutex
}

// OrchestratorMetrics tracks run counts and latency
type OrchestratorMetrics struct {
	TotalQueries  int64         `json:"total_queries"`
	Succeeded     int64         `json:"succeeded"`
	Failed        int64         `json:"failed"`
	TotalDuration time.Duration `json:"total_duration"`
}

// Dependencies wires up one orchestrator
type Dependencies struct {
	Retriever   schema.Retriever
	Reasoner    core.Reasoner
	Constructor *geoapi.Constructor
	Fetcher     *geoapi.Fetcher
	Records     RecordStore
	Cache       *DecompositionCache // optional
	Config      *core.Config
}

// NewOrchestrator assembles the pipeline
func NewOrchestrator(deps Dependencies) *Orchestrator {
	config := deps.Config
	if config == nil {
		config = core.DefaultConfig()
	}
	records := deps.Records
	if records == nil {
		records = NewMemoryRecordStore(config.HistorySize)
	}

	return &Orchestrator{
		retriever:  deps.Retriever,
		reasoner:   deps.Reasoner,
		decomposer: NewDecomposer(deps.Reasoner, config),
		planner:    NewPlanner(),
		resolver:   NewResolver(deps.Constructor, deps.Fetcher, deps.Reasoner, config),
		codegen:    NewCodeSynthesizer(deps.Reasoner),
		executor:   sandbox.NewExecutor(config),
		answerer:   NewAnswerSynthesizer(deps.Reasoner),
		records:    records,
		cache:      deps.Cache,
		config:     config,
		logger:     &core.NoOpLogger{},
		telemetry:  &core.NoOpTelemetry{},
	}
}

// SetLogger sets the logger and pushes it down the pipeline
func (o *Orchestrator) SetLogger(logger core.Logger) {
	if logger == nil {
		return
	}
	o.logger = logger
	o.decomposer.SetLogger(logger)
	o.planner.SetLogger(logger)
	o.resolver.SetLogger(logger)
	o.codegen.SetLogger(logger)
	o.executor.SetLogger(logger)
	o.answerer.SetLogger(logger)
	if o.cache != nil {
		o.cache.SetLogger(logger)
	}
}

// SetTelemetry sets the telemetry provider
func (o *Orchestrator) SetTelemetry(telemetry core.Telemetry) {
	if telemetry != nil {
		o.telemetry = telemetry
	}
}

// Records exposes the record store for inspection endpoints
func (o *Orchestrator) Records() RecordStore {
	return o.records
}

// Metrics returns a copy of the current counters
func (o *Orchestrator) Metrics() OrchestratorMetrics {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.metrics
}

// ProcessQuery runs one query through the pipeline and persists its
// answer record. The returned error is non-nil only for the hard
// aborts: empty input, failed decomposition, or context cancellation.
func (o *Orchestrator) ProcessQuery(ctx context.Context, text string) (*AnswerRecord, error) {
	startTime := time.Now()

	text = strings.TrimSpace(text)
	if text == "" {
		o.recordOutcome(false, time.Since(startTime))
		return nil, fmt.Errorf("query text is empty: %w", core.ErrEmptyQuery)
	}

	query := &Query{ID: "q-" + uuid.New().String(), Text: text}

	ctx, span := o.telemetry.StartSpan(ctx, "orchestration.process_query")
	defer span.End()
	span.SetAttribute("query.id", query.ID)

	o.logger.Info("Processing query", map[string]interface{}{
		"operation": "process_query",
		"query_id":  query.ID,
	})

	record, err := o.run(ctx, query)
	if err != nil {
		span.RecordError(err)
		o.recordOutcome(false, time.Since(startTime))
		o.logger.Error("Query failed", map[string]interface{}{
			"operation": "process_query",
			"query_id":  query.ID,
			"error":     err.Error(),
		})
		return nil, err
	}

	record.CreatedAt = time.Now()
	record.Duration = time.Since(startTime)
	if err := o.records.Save(ctx, record); err != nil {
		// The answer still reaches the caller; persistence failure is
		// logged, not fatal.
		o.logger.Error("Failed to persist answer record", map[string]interface{}{
			"operation": "process_query",
			"query_id":  query.ID,
			"record_id": record.ID,
			"error":     err.Error(),
		})
	}

	o.recordOutcome(true, record.Duration)
	o.logger.Info("Query completed", map[string]interface{}{
		"operation":   "process_query",
		"query_id":    query.ID,
		"record_id":   record.ID,
		"duration_ms": record.Duration.Milliseconds(),
	})
	return record, nil
}

func (o *Orchestrator) run(ctx context.Context, query *Query) (*AnswerRecord, error) {
	// RetrieveSchema. A retrieval failure degrades to an empty schema
	// context: api routes will fail locally and the run still answers.
	sc, err := o.retriever.Retrieve(ctx, query.Text)
	if err != nil {
		o.logger.Warn("Schema retrieval failed, continuing without schema", map[string]interface{}{
			"operation": "retrieve_schema",
			"query_id":  query.ID,
			"error":     err.Error(),
		})
		sc = &schema.Context{Tables: map[string]schema.Table{}}
	}

	// Decompose, consulting the cache first
	graph, err := o.decompose(ctx, query, sc)
	if err != nil {
		return nil, err
	}

	// Plan settles each subquery's route before the loop starts
	o.planner.Plan(graph)

	// ResolveLoop
	if err := o.resolver.ResolveAll(ctx, graph, sc); err != nil {
		return nil, err
	}
	subqueries := graph.Snapshot()

	// DecideCode → GenerateCode → Execute, all fail-soft
	var artifact *sandbox.CodeArtifact
	var execution *sandbox.ExecutionOutcome
	if NeedsCode(subqueries) {
		artifact, err = o.codegen.Synthesize(ctx, query, subqueries)
		if err != nil {
			o.logger.Warn("Code synthesis failed, answering without code", map[string]interface{}{
				"operation": "synthesize_code",
				"query_id":  query.ID,
				"error":     err.Error(),
			})
			artifact = nil
		}
		if artifact != nil {
			execution = o.executor.Execute(ctx, artifact, Bindings(subqueries))
		}
	}

	// Synthesize
	answer := o.answerer.Synthesize(ctx, query, subqueries, execution)

	return Record("qr-"+uuid.New().String(), query, answer, subqueries, artifact, execution), nil
}

func (o *Orchestrator) decompose(ctx context.Context, query *Query, sc *schema.Context) (*SubqueryGraph, error) {
	if o.cache != nil {
		if nodes := o.cache.Get(ctx, query.Text); nodes != nil {
			if graph, err := NewSubqueryGraph(nodes); err == nil {
				o.logger.Debug("Decomposition served from cache", map[string]interface{}{
					"operation": "decompose",
					"query_id":  query.ID,
				})
				return graph, nil
			}
		}
	}

	graph, err := o.decomposer.Decompose(ctx, query, sc)
	if err != nil {
		return nil, err
	}
	if o.cache != nil {
		o.cache.Put(ctx, query.Text, graph.Snapshot())
	}
	return graph, nil
}

func (o *Orchestrator) recordOutcome(success bool, duration time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.metrics.TotalQueries++
	o.metrics.TotalDuration += duration
	if success {
		o.metrics.Succeeded++
	} else {
		o.metrics.Failed++
	}
	o.telemetry.RecordMetric("orchestration.queries", 1, map[string]string{
		"success": fmt.Sprintf("%t", success),
	})
}
