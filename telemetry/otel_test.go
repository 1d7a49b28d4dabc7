package telemetry

import (
	"context"
	"errors"
	"testing"
)

func TestOTelProviderSpans(t *testing.T) {
	provider, err := NewOTelProvider("mapreason-test")
	if err != nil {
		t.Fatalf("NewOTelProvider failed: %v", err)
	}
	defer func() { _ = provider.Shutdown(context.Background()) }()

	ctx, span := provider.StartSpan(context.Background(), "test.operation")
	if ctx == nil || span == nil {
		t.Fatal("StartSpan returned nil")
	}

	span.SetAttribute("query.id", "q-1")
	span.SetAttribute("subqueries", 2)
	span.SetAttribute("empty", true)
	span.SetAttribute("duration_ms", 12.5)
	span.RecordError(errors.New("test error"))
	span.End()

	provider.RecordMetric("queries", 1, map[string]string{"success": "true"})
}
