package orchestration

import (
	"context"
	"fmt"
	"strings"

	"github.com/mapreason/mapreason/core"
	"github.com/mapreason/mapreason/sandbox"
)

// AnswerSynthesizer composes the final natural-language answer from the
// resolved subquery tree and any code-execution output. It always
// produces an answer: if the reasoning backend fails, a deterministic
// fallback is built from the audit entries instead.
type AnswerSynthesizer struct {
	reasoner core.Reasoner
	logger   core.Logger
}

// NewAnswerSynthesizer creates an answer synthesizer
func NewAnswerSynthesizer(reasoner core.Reasoner) *AnswerSynthesizer {
	return &AnswerSynthesizer{reasoner: reasoner, logger: &core.NoOpLogger{}}
}

// SetLogger sets the logger
func (s *AnswerSynthesizer) SetLogger(logger core.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Synthesize builds the answer text for one run
func (s *AnswerSynthesizer) Synthesize(ctx context.Context, query *Query, subqueries []Subquery, execution *sandbox.ExecutionOutcome) string {
	prompt := s.buildPrompt(query, subqueries, execution)

	response, err := s.reasoner.Reason(ctx, prompt, &core.ReasonOptions{Temperature: 0.3})
	if err != nil {
		s.logger.Warn("Answer synthesis fell back to deterministic summary", map[string]interface{}{
			"operation": "synthesize_answer",
			"query_id":  query.ID,
			"error":     err.Error(),
		})
		return s.fallback(subqueries, execution)
	}
	answer := strings.TrimSpace(response.Content)
	if answer == "" {
		return s.fallback(subqueries, execution)
	}
	return answer
}

func (s *AnswerSynthesizer) buildPrompt(query *Query, subqueries []Subquery, execution *sandbox.ExecutionOutcome) string {
	var b strings.Builder
	b.WriteString("Compose a direct answer to the question from the resolved subqueries below.\n")
	b.WriteString("State clearly when parts of the question could not be resolved or returned no data.\n\n")
	b.WriteString("Question: ")
	b.WriteString(query.Text)
	b.WriteString("\n\nSubqueries:\n")
	for _, sq := range subqueries {
		switch {
		case sq.Empty && sq.Failure != "":
			fmt.Fprintf(&b, "- %s: NO DATA (%s)\n", sq.Text, sq.Failure)
		case sq.Empty:
			fmt.Fprintf(&b, "- %s: NO DATA\n", sq.Text)
		default:
			fmt.Fprintf(&b, "- %s: %s\n", sq.Text, summarize(sq.Result))
		}
	}
	if execution != nil {
		if execution.Success {
			fmt.Fprintf(&b, "\nComputed value: %s\n", execution.Value)
		} else {
			fmt.Fprintf(&b, "\nNote: code execution failed (%s); answer from subquery results only.\n", execution.Error)
		}
	}
	b.WriteString("\nAnswer:")
	return b.String()
}

// fallback produces a usable answer without the reasoning backend
func (s *AnswerSynthesizer) fallback(subqueries []Subquery, execution *sandbox.ExecutionOutcome) string {
	if execution != nil && execution.Success {
		return fmt.Sprintf("Computed result: %s", execution.Value)
	}

	var resolved []string
	allEmpty := true
	for _, sq := range subqueries {
		if sq.Empty {
			continue
		}
		allEmpty = false
		resolved = append(resolved, fmt.Sprintf("%s: %s", sq.Text, summarize(sq.Result)))
	}
	if allEmpty {
		return "No matching data was found for this query."
	}
	return strings.Join(resolved, "\n")
}

// Record assembles the persisted answer record for one run
func Record(recordID string, query *Query, answer string, subqueries []Subquery, artifact *sandbox.CodeArtifact, execution *sandbox.ExecutionOutcome) *AnswerRecord {
	entries := make([]AuditEntry, len(subqueries))
	for i, sq := range subqueries {
		entries[i] = AuditEntry{
			SubqueryID:    sq.ID,
			Text:          sq.Text,
			Route:         sq.Route,
			ResultSummary: summarize(sq.Result),
			Empty:         sq.Empty,
			Failure:       sq.Failure,
		}
	}
	return &AnswerRecord{
		ID:         recordID,
		QueryID:    query.ID,
		Query:      query.Text,
		Answer:     answer,
		Subqueries: entries,
		Artifact:   artifact,
		Execution:  execution,
	}
}
