package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFields reads initial form values from a JSON or YAML document whose top
// level is an object. The file extension selects the decoder; unknown
// extensions are tried as JSON first and YAML second.
func LoadFields(path string) (map[string]any, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return map[string]any{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fields file: %w", err)
	}

	var fields map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &fields)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fields)
	default:
		if err = json.Unmarshal(data, &fields); err != nil {
			err = yaml.Unmarshal(data, &fields)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("fields file %q: %w", path, err)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}
