package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raniellyferreira/storage-http/protocol"
)

// yamlTemplate mirrors protocol.Template for YAML documents, where the body
// is an arbitrary YAML node re-encoded as JSON.
type yamlTemplate struct {
	StatusLine string      `yaml:"http_answer"`
	Body       interface{} `yaml:"json_message"`
}

// LoadCatalog reads the response catalog. The format is detected from the
// file extension (.yaml, .yml for YAML, otherwise JSON).
func LoadCatalog(path string) (*protocol.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ConfigError{Path: path, Err: ErrFileNotFound}
		}
		return nil, &ConfigError{Path: path, Err: err}
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		return ParseCatalogYAML(path, data)
	}
	return ParseCatalogJSON(path, data)
}

// ParseCatalogJSON builds a catalog from a JSON object of templates
func ParseCatalogJSON(path string, data []byte) (*protocol.Catalog, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, &ConfigError{Path: path, Err: ErrEmptyFile}
	}

	var templates map[string]protocol.Template
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("%w: %v", ErrInvalidCatalog, err)}
	}
	return buildCatalog(path, templates)
}

// ParseCatalogYAML builds a catalog from a YAML mapping of templates
func ParseCatalogYAML(path string, data []byte) (*protocol.Catalog, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, &ConfigError{Path: path, Err: ErrEmptyFile}
	}

	var doc map[string]yamlTemplate
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("%w: %v", ErrInvalidCatalog, err)}
	}

	templates := make(map[string]protocol.Template, len(doc))
	for code, entry := range doc {
		body, err := json.Marshal(entry.Body)
		if err != nil {
			return nil, &ConfigError{Path: path, Key: code, Err: fmt.Errorf("%w: %v", ErrInvalidCatalog, err)}
		}
		templates[code] = protocol.Template{StatusLine: entry.StatusLine, Body: body}
	}
	return buildCatalog(path, templates)
}

func buildCatalog(path string, templates map[string]protocol.Template) (*protocol.Catalog, error) {
	if len(templates) == 0 {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("%w: no responses defined", ErrInvalidCatalog)}
	}
	catalog, err := protocol.NewCatalog(templates)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: fmt.Errorf("%w: %v", ErrInvalidCatalog, err)}
	}
	return catalog, nil
}
