package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned by FromFile for an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported config file extension")

// FromFile loads a queue config file. The format follows the extension:
// .yaml, .yml or .json. An empty file gives an empty Config.
//
// Environment references are expanded before parsing, so one file can
// serve several deployments:
//
//	outgoing:
//	  retries: ${EVENTQ_OUTGOING_RETRIES:-2}
//	  dispatch_rate: ${EVENTQ_OUTGOING_RATE}
//
// An unset variable without a default expands to nothing, which leaves
// the key null and its accessor on the default.
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	data = expandEnv(data)
	if len(bytes.TrimSpace(data)) == 0 {
		return New(nil), nil
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// expandEnv replaces $VAR, ${VAR} and ${VAR:-default}.
func expandEnv(data []byte) []byte {
	return []byte(os.Expand(string(data), func(ref string) string {
		name, def, hasDefault := strings.Cut(ref, ":-")
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	}))
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}
