// Package orchestration implements the decomposition-and-resolution
// control loop: one natural-language query is decomposed into a DAG of
// subqueries, each resolved against the geospatial API or by direct
// reasoning, with empty results propagated to dependents, optional
// synthesized-code execution, and a final audited answer record.
package orchestration

import (
	"time"

	"github.com/mapreason/mapreason/geoapi"
	"github.com/mapreason/mapreason/sandbox"
)

// Route is the chosen resolution strategy for one subquery
type Route string

const (
	RouteAPI        Route = "api"
	RouteDirect     Route = "direct"
	RouteUnresolved Route = "unresolved"
)

// Query is the immutable root of one run
type Query struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Subquery is one atomic, independently resolvable fragment of the
// decomposed query. Dependencies are arena indices into the graph.
type Subquery struct {
	ID        string              `json:"id"`
	Text      string              `json:"text"`
	DependsOn []int               `json:"depends_on,omitempty"`
	Route     Route               `json:"route"`
	Request   *geoapi.RequestSpec `json:"request,omitempty"`

	// Resolution state, owned by the graph
	Resolved bool                     `json:"resolved"`
	Empty    bool                     `json:"empty"`
	Result   string                   `json:"result,omitempty"`
	Records  []map[string]interface{} `json:"records,omitempty"`
	Failure  string                   `json:"failure,omitempty"`
}

// ResolutionPlan orders arena indices so every subquery appears after
// all of its dependencies. Levels group indices that are mutually
// independent and may resolve concurrently.
type ResolutionPlan struct {
	Order  []int   `json:"order"`
	Levels [][]int `json:"levels"`
}

// AuditEntry records how one subquery contributed to the final answer
type AuditEntry struct {
	SubqueryID    string `json:"subquery_id"`
	Text          string `json:"text"`
	Route         Route  `json:"route"`
	ResultSummary string `json:"result_summary,omitempty"`
	Empty         bool   `json:"empty"`
	Failure       string `json:"failure,omitempty"`
}

// AnswerRecord is the persisted terminal output of one query. It is
// structured so the answer can be audited back to its inputs: every
// subquery appears with its route, result summary, and empty flag, and
// any code execution is attached with its outcome.
type AnswerRecord struct {
	ID         string                    `json:"id"`
	QueryID    string                    `json:"query_id"`
	Query      string                    `json:"query"`
	Answer     string                    `json:"answer"`
	Subqueries []AuditEntry              `json:"subqueries"`
	Artifact   *sandbox.CodeArtifact     `json:"artifact,omitempty"`
	Execution  *sandbox.ExecutionOutcome `json:"execution,omitempty"`
	CreatedAt  time.Time                 `json:"created_at"`
	Duration   time.Duration             `json:"duration"`
}

const resultSummaryLimit = 200

// summarize truncates a result payload for the audit trail
func summarize(result string) string {
	if len(result) <= resultSummaryLimit {
		return result
	}
	return result[:resultSummaryLimit] + "..."
}
