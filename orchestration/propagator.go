package orchestration

import "github.com/mapreason/mapreason/core"

// Propagator applies one subquery's outcome to the graph. When the
// outcome is empty, every direct and transitive dependent is marked
// empty-flagged in the same pass so no downstream resolution is ever
// attempted against data that cannot exist. The whole update happens
// under the graph lock, atomically with respect to sibling resolution.
type Propagator struct {
	graph  *SubqueryGraph
	logger core.Logger
}

// NewPropagator creates a propagator over one graph
func NewPropagator(graph *SubqueryGraph) *Propagator {
	return &Propagator{graph: graph, logger: &core.NoOpLogger{}}
}

// SetLogger sets the logger
func (p *Propagator) SetLogger(logger core.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Outcome is the resolution result being applied to one subquery
type Outcome struct {
	Result  string
	Records []map[string]interface{}
	Empty   bool
	Failure string
}

// Apply marks subquery i resolved with the given outcome and, if the
// outcome is empty, flags all transitive dependents. It returns the
// indices that were short-circuited. Re-applying an empty outcome to an
// already-flagged branch is a no-op.
func (p *Propagator) Apply(i int, outcome Outcome) []int {
	g := p.graph
	g.mu.Lock()
	defer g.mu.Unlock()

	node := g.nodes[i]
	if !node.Resolved {
		node.Resolved = true
		node.Result = outcome.Result
		node.Records = outcome.Records
		node.Empty = outcome.Empty
		node.Failure = outcome.Failure
	}

	if !node.Empty {
		return nil
	}

	flagged := p.flagDependentsLocked(i)
	if len(flagged) > 0 {
		p.logger.Info("Empty result short-circuited dependents", map[string]interface{}{
			"operation":   "propagate_empty",
			"subquery_id": node.ID,
			"flagged":     len(flagged),
		})
	}
	return flagged
}

// flagDependentsLocked walks the reverse edges breadth-first, marking
// every unresolved dependent resolved-empty. Caller holds the lock.
func (p *Propagator) flagDependentsLocked(start int) []int {
	g := p.graph
	var flagged []int

	queue := append([]int(nil), g.dependents[start]...)
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]

		node := g.nodes[i]
		if node.Resolved {
			continue
		}
		node.Resolved = true
		node.Empty = true
		node.Failure = "empty dependency"
		flagged = append(flagged, i)
		queue = append(queue, g.dependents[i]...)
	}
	return flagged
}
