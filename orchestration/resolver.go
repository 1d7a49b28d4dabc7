package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/mapreason/mapreason/core"
	"github.com/mapreason/mapreason/geoapi"
	"github.com/mapreason/mapreason/schema"
)

// Resolver drives the resolution loop over one graph. Each iteration
// takes the currently eligible subqueries and resolves them in parallel
// under a semaphore: api routes construct and execute a fetch, direct
// routes reason over their dependencies' results. Failures never abort
// the loop; a failed subquery is marked resolved-empty with its failure
// annotated, and propagation short-circuits its dependents.
type Resolver struct {
	constructor *geoapi.Constructor
	fetcher     *geoapi.Fetcher
	reasoner    core.Reasoner
	semaphore   chan struct{}
	logger      core.Logger
}

// NewResolver creates a resolver with concurrency taken from config
func NewResolver(constructor *geoapi.Constructor, fetcher *geoapi.Fetcher, reasoner core.Reasoner, config *core.Config) *Resolver {
	if config == nil {
		config = core.DefaultConfig()
	}
	return &Resolver{
		constructor: constructor,
		fetcher:     fetcher,
		reasoner:    reasoner,
		semaphore:   make(chan struct{}, config.ResolverConcurrency),
		logger:      &core.NoOpLogger{},
	}
}

// SetLogger sets the logger
func (r *Resolver) SetLogger(logger core.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// ResolveAll runs the loop until no subquery remains eligible. The only
// error it returns is context cancellation; everything else degrades
// into the graph's audit state.
func (r *Resolver) ResolveAll(ctx context.Context, graph *SubqueryGraph, sc *schema.Context) error {
	propagator := NewPropagator(graph)
	propagator.SetLogger(r.logger)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ready := graph.Ready()
		if len(ready) == 0 {
			return nil
		}

		var wg sync.WaitGroup
		for _, i := range ready {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				r.semaphore <- struct{}{}
				defer func() { <-r.semaphore }()

				defer func() {
					if rec := recover(); rec != nil {
						r.logger.Error("Panic during subquery resolution", map[string]interface{}{
							"operation":   "resolve_subquery",
							"panic":       fmt.Sprintf("%v", rec),
							"stack_trace": string(debug.Stack()),
						})
						propagator.Apply(i, Outcome{Empty: true, Failure: fmt.Sprintf("panic: %v", rec)})
					}
				}()

				outcome := r.resolveOne(ctx, graph, sc, i)
				propagator.Apply(i, outcome)
			}(i)
		}
		wg.Wait()
	}
}

func (r *Resolver) resolveOne(ctx context.Context, graph *SubqueryGraph, sc *schema.Context, i int) Outcome {
	node := graph.Node(i)

	r.logger.Debug("Resolving subquery", map[string]interface{}{
		"operation":   "resolve_subquery",
		"subquery_id": node.ID,
		"route":       string(node.Route),
	})

	if node.Route == RouteAPI {
		return r.resolveAPI(ctx, &node, sc)
	}
	return r.resolveDirect(ctx, graph, &node, i)
}

// resolveAPI constructs and executes a structured fetch. Schema
// mismatches fail locally; transport exhaustion is treated as empty
// with the failure annotated.
func (r *Resolver) resolveAPI(ctx context.Context, node *Subquery, sc *schema.Context) Outcome {
	request, err := r.constructor.Construct(*node.Request, sc)
	if err != nil {
		if errors.Is(err, core.ErrSchemaMismatch) {
			return Outcome{Empty: true, Failure: err.Error()}
		}
		return Outcome{Empty: true, Failure: fmt.Sprintf("construct request: %v", err)}
	}

	response, err := r.fetcher.Fetch(ctx, request)
	if err != nil {
		return Outcome{Empty: true, Failure: err.Error()}
	}
	if response.Empty() {
		return Outcome{Empty: true}
	}

	encoded, err := json.Marshal(response.Records)
	if err != nil {
		return Outcome{Empty: true, Failure: fmt.Sprintf("encode records: %v", err)}
	}
	return Outcome{Result: string(encoded), Records: response.Records}
}

// resolveDirect answers a subquery by reasoning over dependency results
func (r *Resolver) resolveDirect(ctx context.Context, graph *SubqueryGraph, node *Subquery, i int) Outcome {
	deps := graph.DependencyResults(i)

	var b strings.Builder
	b.WriteString("Answer the following subquestion concisely using only the given context.\n\n")
	if len(deps) > 0 {
		b.WriteString("Context from resolved subqueries:\n")
		ids := make([]string, 0, len(deps))
		for id := range deps {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(&b, "- %s: %s\n", id, deps[id])
		}
		b.WriteString("\n")
	}
	b.WriteString("Subquestion: ")
	b.WriteString(node.Text)
	b.WriteString("\n\nIf the context is insufficient to answer, respond with exactly NO_DATA.")

	response, err := r.reasoner.Reason(ctx, b.String(), &core.ReasonOptions{Temperature: 0.2})
	if err != nil {
		return Outcome{Empty: true, Failure: fmt.Sprintf("direct resolution: %v", err)}
	}

	answer := strings.TrimSpace(response.Content)
	if answer == "" || answer == "NO_DATA" {
		return Outcome{Empty: true}
	}
	return Outcome{Result: answer}
}
