// Package schema provides the table/field catalog for the external
// geospatial data API and retrieves the query-relevant subset of it.
// The retrieved Context is read-only and shared by the decomposer, the
// planner and the URL constructor for the lifetime of one query.
package schema

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mapreason/mapreason/core"
)

// Field describes one queryable field of a table
type Field struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type" json:"type"` // string, number, boolean, geometry
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Filterable  bool   `yaml:"filterable" json:"filterable"`
}

// Table describes one table exposed by the geospatial API
type Table struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Endpoint    string   `yaml:"endpoint" json:"endpoint"`
	Keywords    []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Fields      []Field  `yaml:"fields" json:"fields"`
}

// Context is the subset of the catalog relevant to one query.
// It is immutable after retrieval.
type Context struct {
	Tables map[string]Table `json:"tables"`
}

// Table looks up a table by name
func (c *Context) Table(name string) (Table, bool) {
	t, ok := c.Tables[name]
	return t, ok
}

// HasField reports whether the named field exists on the named table
func (c *Context) HasField(table, field string) bool {
	t, ok := c.Tables[table]
	if !ok {
		return false
	}
	for _, f := range t.Fields {
		if f.Name == field {
			return true
		}
	}
	return false
}

// FieldType returns the declared type of a field, or "" when unknown
func (c *Context) FieldType(table, field string) string {
	t, ok := c.Tables[table]
	if !ok {
		return ""
	}
	for _, f := range t.Fields {
		if f.Name == field {
			return f.Type
		}
	}
	return ""
}

// TableNames returns the table names in deterministic order
func (c *Context) TableNames() []string {
	names := make([]string, 0, len(c.Tables))
	for name := range c.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe renders the context as prompt-ready text for the reasoning
// backend: one line per table with its filterable fields.
func (c *Context) Describe() string {
	var b strings.Builder
	for _, name := range c.TableNames() {
		t := c.Tables[name]
		b.WriteString("table ")
		b.WriteString(name)
		if t.Description != "" {
			b.WriteString(" (")
			b.WriteString(t.Description)
			b.WriteString(")")
		}
		b.WriteString(": ")
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
			b.WriteString(" ")
			b.WriteString(f.Type)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Retriever returns the schema subset relevant to a query
type Retriever interface {
	Retrieve(ctx context.Context, query string) (*Context, error)
}

// Catalog holds the full known schema and answers relevance queries
// against it. Safe for concurrent use; retrieval returns a snapshot.
type Catalog struct {
	mu     sync.RWMutex
	tables map[string]Table
	logger core.Logger
}

// NewCatalog creates a catalog from a table list
func NewCatalog(tables []Table) *Catalog {
	m := make(map[string]Table, len(tables))
	for _, t := range tables {
		m[t.Name] = t
	}
	return &Catalog{
		tables: m,
		logger: &core.NoOpLogger{},
	}
}

// SetLogger configures the logger
func (c *Catalog) SetLogger(logger core.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// Replace swaps the full table set, e.g. after a catalog reload
func (c *Catalog) Replace(tables []Table) {
	m := make(map[string]Table, len(tables))
	for _, t := range tables {
		m[t.Name] = t
	}
	c.mu.Lock()
	c.tables = m
	c.mu.Unlock()
}

// Retrieve returns the subset of tables relevant to the query, scored by
// token overlap with table names, keywords, field names and descriptions.
// When nothing scores, the whole catalog is returned so downstream
// components can still plan; an empty catalog is a configuration error.
func (c *Catalog) Retrieve(ctx context.Context, query string) (*Context, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.tables) == 0 {
		return nil, core.NewQueryError("schema.Retrieve", "schema", core.ErrSchemaUnavailable)
	}

	tokens := tokenize(query)
	relevant := make(map[string]Table)
	for name, table := range c.tables {
		if relevanceScore(table, tokens) > 0 {
			relevant[name] = table
		}
	}

	if len(relevant) == 0 {
		for name, table := range c.tables {
			relevant[name] = table
		}
	}

	c.logger.Debug("Schema retrieved", map[string]interface{}{
		"operation":      "schema_retrieve",
		"query_tokens":   len(tokens),
		"table_count":    len(relevant),
		"catalog_tables": len(c.tables),
	})

	return &Context{Tables: relevant}, nil
}

// relevanceScore counts token matches against a table's surface
func relevanceScore(table Table, tokens map[string]bool) int {
	score := 0
	for _, part := range tokenizeList(table.Name) {
		if tokens[part] {
			score += 3
		}
	}
	for _, kw := range table.Keywords {
		for _, part := range tokenizeList(kw) {
			if tokens[part] {
				score += 2
			}
		}
	}
	for _, f := range table.Fields {
		for _, part := range tokenizeList(f.Name) {
			if tokens[part] {
				score++
			}
		}
	}
	for _, part := range tokenizeList(table.Description) {
		if tokens[part] {
			score++
		}
	}
	return score
}

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range tokenizeList(text) {
		tokens[tok] = true
	}
	return tokens
}

// tokenizeList splits on any non-alphanumeric rune and lowercases.
// Single-character tokens are noise and dropped.
func tokenizeList(text string) []string {
	parts := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	out := parts[:0]
	for _, p := range parts {
		if len(p) > 1 {
			out = append(out, p)
		}
	}
	return out
}
