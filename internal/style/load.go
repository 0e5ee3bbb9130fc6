package style

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a document from a YAML (.yaml, .yml) or JSON file and validates it.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("reading style: %w", err)
	}

	var doc Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return Document{}, fmt.Errorf("parsing style %s: %w", path, err)
	}

	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Marshal encodes the document as indented JSON, or YAML when asYAML is set.
func Marshal(doc Document, asYAML bool) ([]byte, error) {
	if asYAML {
		return yaml.Marshal(doc)
	}
	return json.MarshalIndent(doc, "", "  ")
}
