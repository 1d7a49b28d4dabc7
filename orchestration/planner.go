package orchestration

import (
	"github.com/mapreason/mapreason/core"
)

// Planner turns a subquery graph into a resolution plan and settles each
// subquery's route. An api-classified subquery without a usable request
// spec cannot fetch anything, so it is downgraded to direct resolution
// rather than failing the run.
type Planner struct {
	logger core.Logger
}

// NewPlanner creates a planner
func NewPlanner() *Planner {
	return &Planner{logger: &core.NoOpLogger{}}
}

// SetLogger sets the logger
func (p *Planner) SetLogger(logger core.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Plan computes the dependency-ordered plan over the graph
func (p *Planner) Plan(graph *SubqueryGraph) *ResolutionPlan {
	levels := graph.Levels()
	order := make([]int, 0, graph.Len())
	for _, level := range levels {
		order = append(order, level...)
	}

	for _, i := range order {
		node := graph.Node(i)
		switch node.Route {
		case RouteAPI:
			if node.Request == nil || node.Request.Table == "" {
				p.downgrade(graph, i, "api route without request spec")
			}
		case RouteDirect:
			// nothing to settle
		default:
			p.downgrade(graph, i, "unclassified route")
		}
	}

	p.logger.Debug("Resolution plan computed", map[string]interface{}{
		"operation":  "plan",
		"subqueries": len(order),
		"levels":     len(levels),
	})
	return &ResolutionPlan{Order: order, Levels: levels}
}

func (p *Planner) downgrade(graph *SubqueryGraph, i int, reason string) {
	graph.mu.Lock()
	defer graph.mu.Unlock()
	node := graph.nodes[i]
	p.logger.Debug("Subquery downgraded to direct resolution", map[string]interface{}{
		"operation":   "plan",
		"subquery_id": node.ID,
		"reason":      reason,
	})
	node.Route = RouteDirect
	node.Request = nil
}
