package reasoning

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mapreason/mapreason/core"
)

// MockRule matches a prompt substring to a canned response
type MockRule struct {
	Contains string
	Response string
	Err      error
}

// MockReasoner is a scripted core.Reasoner for tests and offline runs.
// Rules are checked in order; the first whose Contains substring appears
// in the prompt wins. Calls are recorded for inspection.
type MockReasoner struct {
	mu      sync.Mutex
	rules   []MockRule
	Default string
	calls   []string
}

// NewMockReasoner creates an empty mock
func NewMockReasoner() *MockReasoner {
	return &MockReasoner{}
}

// AddRule appends a substring-matched response
func (m *MockReasoner) AddRule(contains, response string) *MockReasoner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, MockRule{Contains: contains, Response: response})
	return m
}

// AddErrorRule appends a substring-matched failure
func (m *MockReasoner) AddErrorRule(contains string, err error) *MockReasoner {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, MockRule{Contains: contains, Err: err})
	return m
}

// Reason implements core.Reasoner
func (m *MockReasoner) Reason(ctx context.Context, prompt string, options *core.ReasonOptions) (*core.ReasonResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, prompt)

	for _, rule := range m.rules {
		if strings.Contains(prompt, rule.Contains) {
			if rule.Err != nil {
				return nil, rule.Err
			}
			return &core.ReasonResult{Content: rule.Response, Model: "mock"}, nil
		}
	}
	if m.Default != "" {
		return &core.ReasonResult{Content: m.Default, Model: "mock"}, nil
	}
	return nil, fmt.Errorf("no mock rule matched prompt: %w", core.ErrReasonerUnavailable)
}

// Calls returns a copy of the prompts seen so far
func (m *MockReasoner) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of prompts seen
func (m *MockReasoner) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
