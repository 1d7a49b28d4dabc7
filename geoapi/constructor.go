package geoapi

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mapreason/mapreason/core"
	"github.com/mapreason/mapreason/schema"
)

// Constructor turns validated request specs into executable API requests.
// Every table and field reference is checked against the schema context
// before a URL is emitted; a spec that references an unknown field is a
// schema mismatch, never a best-effort guess.
type Constructor struct {
	baseURL string
	logger  core.Logger
}

// NewConstructor creates a constructor for the given API base URL
func NewConstructor(baseURL string) *Constructor {
	return &Constructor{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  &core.NoOpLogger{},
	}
}

// SetLogger sets the logger
func (c *Constructor) SetLogger(logger core.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Construct validates spec against the schema context and builds the request
func (c *Constructor) Construct(spec RequestSpec, sc *schema.Context) (*APIRequest, error) {
	if spec.Table == "" {
		return nil, &core.QueryError{
			Op:      "construct_request",
			Kind:    "schema_mismatch",
			Message: "request spec names no table",
			Err:     core.ErrSchemaMismatch,
		}
	}

	table, ok := sc.Table(spec.Table)
	if !ok {
		return nil, &core.QueryError{
			Op:      "construct_request",
			Kind:    "schema_mismatch",
			ID:      spec.Table,
			Message: fmt.Sprintf("unknown table %q", spec.Table),
			Err:     core.ErrSchemaMismatch,
		}
	}

	for _, f := range spec.Filters {
		if !sc.HasField(spec.Table, f.Field) {
			return nil, &core.QueryError{
				Op:      "construct_request",
				Kind:    "schema_mismatch",
				ID:      spec.Table,
				Message: fmt.Sprintf("filter references unknown field %q on table %q", f.Field, spec.Table),
				Err:     core.ErrSchemaMismatch,
			}
		}
		if err := validateOp(f.Op); err != nil {
			return nil, &core.QueryError{
				Op:      "construct_request",
				Kind:    "schema_mismatch",
				ID:      spec.Table,
				Message: err.Error(),
				Err:     core.ErrSchemaMismatch,
			}
		}
	}

	for _, field := range spec.Fields {
		if !sc.HasField(spec.Table, field) {
			return nil, &core.QueryError{
				Op:      "construct_request",
				Kind:    "schema_mismatch",
				ID:      spec.Table,
				Message: fmt.Sprintf("projection references unknown field %q on table %q", field, spec.Table),
				Err:     core.ErrSchemaMismatch,
			}
		}
	}

	params := url.Values{}
	for _, f := range spec.Filters {
		params.Add(f.Field+"__"+f.Op, fmt.Sprintf("%v", f.Value))
	}
	if len(spec.Fields) > 0 {
		params.Set("fields", strings.Join(spec.Fields, ","))
	}

	endpoint := table.Endpoint
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	full := c.baseURL + endpoint
	if encoded := params.Encode(); encoded != "" {
		full += "?" + encoded
	}

	c.logger.Debug("Constructed API request", map[string]interface{}{
		"operation": "construct_request",
		"table":     spec.Table,
		"filters":   len(spec.Filters),
		"url":       full,
	})

	return &APIRequest{
		Table:    spec.Table,
		Endpoint: endpoint,
		Filters:  spec.Filters,
		Fields:   spec.Fields,
		URL:      full,
	}, nil
}
