package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mapreason/mapreason/core"
)

// catalogFile is the YAML document shape for catalog definitions
type catalogFile struct {
	Tables []Table `yaml:"tables"`
}

// ParseCatalog parses a YAML catalog definition
func ParseCatalog(data []byte) ([]Table, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(file.Tables) == 0 {
		return nil, fmt.Errorf("catalog defines no tables: %w", core.ErrInvalidConfiguration)
	}

	seen := make(map[string]bool, len(file.Tables))
	for _, t := range file.Tables {
		if t.Name == "" {
			return nil, fmt.Errorf("catalog table without a name: %w", core.ErrInvalidConfiguration)
		}
		if t.Endpoint == "" {
			return nil, fmt.Errorf("table %q has no endpoint: %w", t.Name, core.ErrInvalidConfiguration)
		}
		if len(t.Fields) == 0 {
			return nil, fmt.Errorf("table %q defines no fields: %w", t.Name, core.ErrInvalidConfiguration)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("duplicate table %q: %w", t.Name, core.ErrInvalidConfiguration)
		}
		seen[t.Name] = true
	}

	return file.Tables, nil
}

// LoadCatalogFile loads a YAML catalog from disk
func LoadCatalogFile(path string) ([]Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}
