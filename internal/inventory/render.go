package inventory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/imamik/infractl/internal/util/fileutil"
)

// Format is an inventory serialization format.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatYAML, "yml":
		return FormatYAML, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported inventory format %q (allowed: yaml, json)", s)
	}
}

// Render serializes doc. Map keys are emitted in sorted order, so equal
// documents render to identical bytes.
func Render(doc *Document, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode inventory: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML, "":
		var buf bytes.Buffer
		buf.WriteString("# Generated by infractl from provisioning outputs. Do not edit.\n")
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("failed to encode inventory: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("failed to encode inventory: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported inventory format %q", format)
	}
}

// Parse reads a rendered YAML or JSON inventory back.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid inventory: %w", err)
	}
	return &doc, nil
}

// Write stores rendered inventory bytes at path atomically.
func Write(path string, data []byte) error {
	return fileutil.WriteAtomic(path, data, 0o644)
}

// OutputPath adjusts the extension of path to match format.
func OutputPath(path string, format Format) string {
	if format != FormatJSON {
		return path
	}
	ext := filepath.Ext(path)
	if ext == ".yml" || ext == ".yaml" {
		return strings.TrimSuffix(path, ext) + ".json"
	}
	return path
}
