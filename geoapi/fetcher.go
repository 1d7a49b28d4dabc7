package geoapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mapreason/mapreason/core"
	"github.com/mapreason/mapreason/resilience"
)

const maxResponseBytes = 8 << 20

// Fetcher executes API requests. Transport and status failures are retried
// with bounded backoff behind a circuit breaker; a well-formed response
// with zero matching records is an empty outcome, which is valid data and
// never retried.
type Fetcher struct {
	httpClient  *http.Client
	retryConfig *resilience.RetryConfig
	breaker     *resilience.CircuitBreaker
	timeout     time.Duration
	logger      core.Logger
}

// NewFetcher creates a fetcher tuned by config
func NewFetcher(config *core.Config) *Fetcher {
	if config == nil {
		config = core.DefaultConfig()
	}
	return &Fetcher{
		httpClient:  &http.Client{},
		retryConfig: resilience.RetryConfigFrom(config),
		breaker: resilience.NewCircuitBreaker(
			resilience.DefaultCircuitBreakerConfig("geoapi"),
		),
		timeout: config.FetchTimeout,
		logger:  &core.NoOpLogger{},
	}
}

// SetLogger sets the logger
func (f *Fetcher) SetLogger(logger core.Logger) {
	if logger != nil {
		f.logger = logger
	}
}

// Fetch executes one request and normalizes the response. The returned
// error is non-nil only for transport failure after retry exhaustion;
// empty results come back as a StatusEmpty response with nil error.
func (f *Fetcher) Fetch(ctx context.Context, req *APIRequest) (*APIResponse, error) {
	var resp *APIResponse

	err := resilience.RetryWithCircuitBreaker(ctx, f.retryConfig, f.breaker, func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		r, err := f.fetchOnce(attemptCtx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})

	if err != nil {
		f.logger.Warn("API fetch failed after retries", map[string]interface{}{
			"operation": "api_fetch",
			"table":     req.Table,
			"url":       req.URL,
			"error":     err.Error(),
		})
		return &APIResponse{Status: StatusError, Err: err}, err
	}

	f.logger.Debug("API fetch completed", map[string]interface{}{
		"operation": "api_fetch",
		"table":     req.Table,
		"status":    string(resp.Status),
		"records":   len(resp.Records),
	})
	return resp, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, req *APIRequest) (*APIResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := f.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %v: %w", req.Table, err, core.ErrTransport)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read fetch response: %w", core.ErrTransport)
	}

	switch {
	case httpResp.StatusCode == http.StatusNotFound:
		// Missing resource is a zero-row outcome, not a fault
		return &APIResponse{Status: StatusEmpty, Raw: body}, nil
	case httpResp.StatusCode >= 400:
		return nil, fmt.Errorf("fetch %s: status %d: %w", req.Table, httpResp.StatusCode, core.ErrTransport)
	}

	records, err := normalizeRecords(body)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %v: %w", req.Table, err, core.ErrTransport)
	}

	if len(records) == 0 {
		return &APIResponse{Status: StatusEmpty, Raw: body}, nil
	}
	return &APIResponse{Status: StatusOK, Records: records, Raw: body}, nil
}

// normalizeRecords accepts either a bare JSON array of objects or an
// object wrapping one under a "records" or "features" key.
func normalizeRecords(body []byte) ([]map[string]interface{}, error) {
	var asArray []map[string]interface{}
	if err := json.Unmarshal(body, &asArray); err == nil {
		return asArray, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("malformed response payload: %w", err)
	}
	for _, key := range []string{"records", "features", "results"} {
		raw, ok := wrapper[key]
		if !ok {
			continue
		}
		var records []map[string]interface{}
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("malformed %s array: %w", key, err)
		}
		return records, nil
	}
	return nil, nil
}
