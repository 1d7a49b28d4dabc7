package orchestration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mapreason/mapreason/core"
	"github.com/mapreason/mapreason/geoapi"
	"github.com/mapreason/mapreason/schema"
)

// Decomposer turns the root query into a bounded DAG of subqueries using
// the reasoning backend. Each subquery carries a route classification
// and, for api routes, a structured request spec against the schema
// context. A decomposition over budget is coarsened and retried once;
// a cyclic decomposition is rejected outright.
type Decomposer struct {
	reasoner      core.Reasoner
	maxSubqueries int
	coarseMax     int
	logger        core.Logger
}

// NewDecomposer creates a decomposer bounded by config
func NewDecomposer(reasoner core.Reasoner, config *core.Config) *Decomposer {
	if config == nil {
		config = core.DefaultConfig()
	}
	return &Decomposer{
		reasoner:      reasoner,
		maxSubqueries: config.MaxSubqueries,
		coarseMax:     config.CoarseMaxSubqueries,
		logger:        &core.NoOpLogger{},
	}
}

// SetLogger sets the logger
func (d *Decomposer) SetLogger(logger core.Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// wire format expected from the reasoning backend
type decompositionPlan struct {
	Subqueries []struct {
		Text      string              `json:"text"`
		DependsOn []int               `json:"depends_on"`
		Route     string              `json:"route"`
		Request   *geoapi.RequestSpec `json:"request,omitempty"`
	} `json:"subqueries"`
}

// Decompose produces the subquery graph for one query
func (d *Decomposer) Decompose(ctx context.Context, query *Query, sc *schema.Context) (*SubqueryGraph, error) {
	nodes, err := d.decomposeOnce(ctx, query, sc, d.maxSubqueries, false)
	if err == nil && len(nodes) > d.maxSubqueries {
		d.logger.Warn("Decomposition over budget, coarsening", map[string]interface{}{
			"operation":  "decompose",
			"query_id":   query.ID,
			"subqueries": len(nodes),
			"budget":     d.maxSubqueries,
		})
		nodes, err = d.decomposeOnce(ctx, query, sc, d.coarseMax, true)
		if err == nil && len(nodes) > d.maxSubqueries {
			return nil, &core.QueryError{
				Op:      "decompose",
				Kind:    "decomposition",
				ID:      query.ID,
				Message: fmt.Sprintf("still %d subqueries after coarsening, budget %d", len(nodes), d.maxSubqueries),
				Err:     core.ErrDecompositionOverflow,
			}
		}
	}
	if err != nil {
		return nil, err
	}

	graph, err := NewSubqueryGraph(nodes)
	if err != nil {
		if errors.Is(err, core.ErrCyclicDecomposition) {
			return nil, err
		}
		return nil, fmt.Errorf("invalid decomposition for query %s: %w", query.ID, err)
	}

	d.logger.Info("Query decomposed", map[string]interface{}{
		"operation":  "decompose",
		"query_id":   query.ID,
		"subqueries": len(nodes),
	})
	return graph, nil
}

func (d *Decomposer) decomposeOnce(ctx context.Context, query *Query, sc *schema.Context, budget int, coarse bool) ([]*Subquery, error) {
	prompt := d.buildPrompt(query, sc, budget, coarse)
	response, err := d.reasoner.Reason(ctx, prompt, &core.ReasonOptions{
		SystemPrompt: "You decompose geospatial questions into minimal dependency-ordered subqueries. Respond with JSON only.",
		Temperature:  0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("decompose query %s: %w", query.ID, err)
	}

	plan, err := parseDecomposition(response.Content)
	if err != nil {
		return nil, &core.QueryError{
			Op:      "decompose",
			Kind:    "decomposition",
			ID:      query.ID,
			Message: err.Error(),
			Err:     core.ErrInvalidQuery,
		}
	}

	nodes := make([]*Subquery, len(plan.Subqueries))
	for i, sq := range plan.Subqueries {
		route := Route(sq.Route)
		if route != RouteAPI && route != RouteDirect {
			route = RouteUnresolved
		}
		nodes[i] = &Subquery{
			ID:        fmt.Sprintf("sq-%d", i+1),
			Text:      sq.Text,
			DependsOn: sq.DependsOn,
			Route:     route,
			Request:   sq.Request,
		}
	}
	return nodes, nil
}

func (d *Decomposer) buildPrompt(query *Query, sc *schema.Context, budget int, coarse bool) string {
	var b strings.Builder
	b.WriteString("Decompose the question into at most ")
	fmt.Fprintf(&b, "%d subqueries forming a dependency DAG.\n\n", budget)
	if coarse {
		b.WriteString("The previous decomposition was too fine-grained. Merge related steps into coarser subqueries.\n\n")
	}
	b.WriteString("Available data tables:\n")
	b.WriteString(sc.Describe())
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query.Text)
	b.WriteString(`

Respond with JSON of this shape:
{"subqueries": [
  {"text": "...", "depends_on": [], "route": "api",
   "request": {"table": "...", "filters": [{"field": "...", "op": "eq", "value": "..."}], "fields": ["..."]}},
  {"text": "...", "depends_on": [0], "route": "direct"}
]}

Rules:
- depends_on holds zero-based indices of earlier subqueries whose results this one consumes.
- route "api" means the subquery fetches structured data; it must include a request using only listed tables and fields.
- route "direct" means the subquery is answered by reasoning over dependency results.
- Dependencies must not form cycles.`)
	return b.String()
}

// parseDecomposition extracts the JSON plan from the response content,
// tolerating surrounding prose.
func parseDecomposition(content string) (*decompositionPlan, error) {
	start := findJSONStart(content)
	if start == -1 {
		return nil, fmt.Errorf("no JSON object in decomposition response")
	}
	end := findJSONEnd(content, start)
	if end == -1 {
		return nil, fmt.Errorf("unterminated JSON object in decomposition response")
	}

	var plan decompositionPlan
	if err := json.Unmarshal([]byte(content[start:end]), &plan); err != nil {
		return nil, fmt.Errorf("parse decomposition: %w", err)
	}
	if len(plan.Subqueries) == 0 {
		return nil, fmt.Errorf("decomposition produced no subqueries")
	}
	for i, sq := range plan.Subqueries {
		if strings.TrimSpace(sq.Text) == "" {
			return nil, fmt.Errorf("subquery %d has no text", i)
		}
	}
	return &plan, nil
}

// findJSONStart finds the first JSON object opening in a string
func findJSONStart(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '{' {
			return i
		}
	}
	return -1
}

// findJSONEnd finds the end of the JSON object starting at start
func findJSONEnd(s string, start int) int {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
