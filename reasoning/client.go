// Package reasoning provides the pluggable reasoning backend used by the
// control loop. The loop depends only on core.Reasoner; this package
// supplies an OpenAI-compatible HTTP client and a scripted mock so the
// pipeline can run against any chat-completions endpoint or fully offline
// in tests.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/mapreason/mapreason/core"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client implements core.Reasoner against an OpenAI-compatible API
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     core.Logger
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL points the client at a compatible endpoint
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		if url != "" {
			c.baseURL = url
		}
	}
}

// WithModel sets the default model
func WithModel(model string) ClientOption {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTimeout bounds each reasoning call
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger core.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a reasoning client. The API key falls back to the
// OPENAI_API_KEY environment variable.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		model:   "gpt-4o-mini",
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// chat-completions wire types
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Reason sends one prompt to the chat-completions endpoint
func (c *Client) Reason(ctx context.Context, prompt string, options *core.ReasonOptions) (*core.ReasonResult, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("reasoning API key not configured: %w", core.ErrReasonerUnavailable)
	}

	if options == nil {
		options = &core.ReasonOptions{}
	}
	model := options.Model
	if model == "" {
		model = c.model
	}

	messages := make([]chatMessage, 0, 2)
	if options.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: options.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal reasoning request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create reasoning request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Reasoning call failed", map[string]interface{}{
			"operation": "reason_call",
			"model":     model,
			"error":     err.Error(),
		})
		return nil, fmt.Errorf("reasoning call: %v: %w", err, core.ErrConnectionFailed)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read reasoning response: %w", core.ErrTransport)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Reasoning backend returned error status", map[string]interface{}{
			"operation":   "reason_call",
			"model":       model,
			"status_code": resp.StatusCode,
		})
		return nil, fmt.Errorf("reasoning backend status %d: %w", resp.StatusCode, core.ErrTransport)
	}

	var parsed chatResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("decode reasoning response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("reasoning backend error %s: %s: %w", parsed.Error.Type, parsed.Error.Message, core.ErrReasonerUnavailable)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("reasoning backend returned no choices: %w", core.ErrReasonerUnavailable)
	}

	c.logger.Debug("Reasoning call completed", map[string]interface{}{
		"operation":    "reason_call",
		"model":        parsed.Model,
		"tokens_used":  parsed.Usage.TotalTokens,
		"duration_ms":  time.Since(startTime).Milliseconds(),
		"content_size": len(parsed.Choices[0].Message.Content),
	})

	return &core.ReasonResult{
		Content: parsed.Choices[0].Message.Content,
		Model:   parsed.Model,
		Usage: core.TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}
