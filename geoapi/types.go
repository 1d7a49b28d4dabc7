// Package geoapi constructs and executes requests against the external
// geospatial data API. Requests are built from planner output validated
// against the retrieved schema context; responses are normalized into
// ok / empty / error outcomes so the resolution loop never has to look
// at raw payloads.
package geoapi

import "fmt"

// Status classifies one API response
type Status string

const (
	StatusOK    Status = "ok"
	StatusEmpty Status = "empty"
	StatusError Status = "error"
)

// Filter is one field comparison in a request
type Filter struct {
	Field string      `json:"field"`
	Op    string      `json:"op"` // eq, ne, gt, gte, lt, lte, like, within
	Value interface{} `json:"value"`
}

// RequestSpec is the planner's structured description of a data fetch,
// before schema validation.
type RequestSpec struct {
	Table   string   `json:"table"`
	Filters []Filter `json:"filters,omitempty"`
	Fields  []string `json:"fields,omitempty"`
}

// APIRequest is a validated, ready-to-execute request
type APIRequest struct {
	Table    string
	Endpoint string
	Filters  []Filter
	Fields   []string
	URL      string
}

// APIResponse is the normalized result of one fetch
type APIResponse struct {
	Status  Status
	Records []map[string]interface{}
	Raw     []byte
	Err     error
}

// Empty reports whether the response carried zero matching records
func (r *APIResponse) Empty() bool {
	return r.Status == StatusEmpty
}

var validOps = map[string]bool{
	"eq": true, "ne": true, "gt": true, "gte": true,
	"lt": true, "lte": true, "like": true, "within": true,
}

func validateOp(op string) error {
	if !validOps[op] {
		return fmt.Errorf("unknown filter operator %q", op)
	}
	return nil
}
