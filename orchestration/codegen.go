package orchestration

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mapreason/mapreason/core"
	"github.com/mapreason/mapreason/sandbox"
)

// CodeSynthesizer decides whether the aggregated subquery results need
// programmatic transformation beyond what answer synthesis can do by
// reasoning, and emits a code artifact when they do. The artifact names
// only the bindings it needs; the executor exposes nothing else.
type CodeSynthesizer struct {
	reasoner core.Reasoner
	logger   core.Logger
}

// NewCodeSynthesizer creates a code synthesizer
func NewCodeSynthesizer(reasoner core.Reasoner) *CodeSynthesizer {
	return &CodeSynthesizer{reasoner: reasoner, logger: &core.NoOpLogger{}}
}

// SetLogger sets the logger
func (c *CodeSynthesizer) SetLogger(logger core.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Bindings builds the named-binding set available to generated code:
// for each non-empty resolved subquery with index i, <id>_records holds
// its structured records and <id>_result its textual result. Binding
// names use underscores so they are valid identifiers.
func Bindings(subqueries []Subquery) map[string]interface{} {
	bindings := make(map[string]interface{})
	for _, sq := range subqueries {
		if !sq.Resolved || sq.Empty {
			continue
		}
		name := bindingName(sq.ID)
		if len(sq.Records) > 0 {
			bindings[name+"_records"] = recordsToInterface(sq.Records)
		}
		if sq.Result != "" {
			bindings[name+"_result"] = sq.Result
		}
	}
	return bindings
}

func bindingName(id string) string {
	return strings.ReplaceAll(id, "-", "_")
}

func recordsToInterface(records []map[string]interface{}) []interface{} {
	out := make([]interface{}, len(records))
	for i, r := range records {
		out[i] = map[string]interface{}(r)
	}
	return out
}

// NeedsCode reports whether code generation is worth attempting: there
// must be structured records to transform. A run whose API branches all
// came back empty has nothing for code to compute over.
func NeedsCode(subqueries []Subquery) bool {
	for _, sq := range subqueries {
		if sq.Resolved && !sq.Empty && len(sq.Records) > 0 {
			return true
		}
	}
	return false
}

// wire format expected from the reasoning backend
type codePlan struct {
	Needed bool     `json:"needed"`
	Source string   `json:"source"`
	Inputs []string `json:"inputs"`
}

// Synthesize asks the reasoning backend for a transformation program.
// A nil artifact with nil error means no code is needed. Errors degrade
// to reasoning-only synthesis at the orchestrator.
func (c *CodeSynthesizer) Synthesize(ctx context.Context, query *Query, subqueries []Subquery) (*sandbox.CodeArtifact, error) {
	bindings := Bindings(subqueries)
	if len(bindings) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}

	prompt := c.buildPrompt(query, subqueries, names)
	response, err := c.reasoner.Reason(ctx, prompt, &core.ReasonOptions{
		SystemPrompt: "You write small Starlark data-transformation programs. Respond with JSON only.",
		Temperature:  0.1,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize code for query %s: %w", query.ID, err)
	}

	start := findJSONStart(response.Content)
	if start == -1 {
		return nil, fmt.Errorf("no JSON object in code synthesis response")
	}
	end := findJSONEnd(response.Content, start)
	if end == -1 {
		return nil, fmt.Errorf("unterminated JSON object in code synthesis response")
	}

	var plan codePlan
	if err := json.Unmarshal([]byte(response.Content[start:end]), &plan); err != nil {
		return nil, fmt.Errorf("parse code synthesis response: %w", err)
	}
	if !plan.Needed {
		return nil, nil
	}
	if strings.TrimSpace(plan.Source) == "" {
		return nil, fmt.Errorf("code synthesis claimed needed but produced no source")
	}

	// The artifact may only declare bindings that actually exist
	for _, input := range plan.Inputs {
		if _, ok := bindings[input]; !ok {
			return nil, fmt.Errorf("code synthesis declared unknown input %q", input)
		}
	}

	artifact := &sandbox.CodeArtifact{
		ID:     "art-" + uuid.New().String(),
		Source: plan.Source,
		Inputs: plan.Inputs,
	}
	c.logger.Info("Code artifact synthesized", map[string]interface{}{
		"operation":   "synthesize_code",
		"query_id":    query.ID,
		"artifact_id": artifact.ID,
		"inputs":      len(artifact.Inputs),
	})
	return artifact, nil
}

func (c *CodeSynthesizer) buildPrompt(query *Query, subqueries []Subquery, bindingNames []string) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(query.Text)
	b.WriteString("\n\nResolved subqueries:\n")
	for _, sq := range subqueries {
		if !sq.Resolved || sq.Empty {
			continue
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", sq.ID, bindingName(sq.ID), summarize(sq.Result))
	}
	b.WriteString("\nAvailable bindings: ")
	b.WriteString(strings.Join(bindingNames, ", "))
	b.WriteString(`

Decide whether answering the question requires programmatic transformation
of the data (aggregation, joins, numeric computation over records). If so,
write a Starlark program that assigns the computed value to a global named
result, reading only the bindings it declares in inputs.

Respond with JSON: {"needed": true|false, "source": "...", "inputs": ["..."]}`)
	return b.String()
}
