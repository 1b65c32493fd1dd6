// Package output renders CLI results as tables, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format represents an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// Formats lists the accepted --output-format values.
var Formats = []Format{FormatTable, FormatJSON, FormatYAML}

// ParseFormat validates and normalizes a format string. Empty means table.
func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// Extension returns the file extension used when writing format to disk.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	default:
		return "txt"
	}
}

// Render encodes v for the structured formats and calls table otherwise.
// YAML goes through JSON first so both formats share the json tag names.
func Render(format Format, v any, table func() string) (string, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	case FormatYAML:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		var generic any
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return "", err
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return "", err
		}
		return string(out), nil
	default:
		return table(), nil
	}
}
