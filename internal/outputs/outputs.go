// Package outputs models the structured outputs of a successful
// provisioning run.
//
// A [Set] is persisted in the same shape as `terraform output -json`, so
// the file can also be produced by hand with that command. Values are
// scalars, lists of scalars or nested mappings; numbers are kept as
// json.Number so re-encoding is lossless.
package outputs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/imamik/infractl/internal/util/fileutil"
)

const (
	// Unavailable is rendered for outputs that are absent or empty.
	Unavailable = "unavailable"
	// Masked replaces the value of sensitive outputs in human-facing text.
	Masked = "(sensitive)"
)

// Output is a single named output.
type Output struct {
	Sensitive bool            `json:"sensitive"`
	Type      json.RawMessage `json:"type,omitempty"`
	Value     any             `json:"value"`
}

// Set maps output names to values.
type Set map[string]Output

// Parse decodes a `terraform output -json` document.
func Parse(data []byte) (Set, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var set Set
	if err := dec.Decode(&set); err != nil {
		return nil, fmt.Errorf("invalid outputs document: %w", err)
	}
	if set == nil {
		set = Set{}
	}
	return set, nil
}

// Load reads a persisted output set.
func Load(path string) (Set, error) {
	// #nosec G304 - path comes from project configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read outputs: %w", err)
	}
	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Encode returns the indented JSON form. Keys are sorted, so equal sets
// encode to identical bytes.
func (s Set) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode outputs: %w", err)
	}
	return append(data, '\n'), nil
}

// Save writes the set to path atomically.
func (s Set) Save(path string) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, data, 0o600)
}

// Names returns the output names in sorted order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Lookup returns the first of names present in the set with a non-null
// value, together with the name that matched.
func (s Set) Lookup(names ...string) (Output, string, bool) {
	for _, name := range names {
		if out, ok := s[name]; ok && out.Value != nil {
			return out, name, true
		}
	}
	return Output{}, "", false
}

// String returns the first matching output as a string. Numbers and
// booleans are formatted; lists and maps are not strings.
func (s Set) String(names ...string) (string, bool) {
	out, _, ok := s.Lookup(names...)
	if !ok {
		return "", false
	}
	str, ok := scalar(out.Value)
	if !ok || str == "" {
		return "", false
	}
	return str, true
}

// Strings returns the first matching output as a list of strings. A scalar
// is treated as a one-element list.
func (s Set) Strings(names ...string) ([]string, bool) {
	out, _, ok := s.Lookup(names...)
	if !ok {
		return nil, false
	}
	switch v := out.Value.(type) {
	case []any:
		list := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := scalar(item)
			if !ok {
				return nil, false
			}
			list = append(list, str)
		}
		return list, true
	default:
		str, ok := scalar(v)
		if !ok || str == "" {
			return nil, false
		}
		return []string{str}, true
	}
}

// Map returns the first matching output as a mapping.
func (s Set) Map(names ...string) (map[string]any, bool) {
	out, _, ok := s.Lookup(names...)
	if !ok {
		return nil, false
	}
	m, ok := out.Value.(map[string]any)
	return m, ok
}

// Display renders the first matching output for humans. Sensitive values
// are masked and absent values render as Unavailable.
func (s Set) Display(names ...string) string {
	out, _, ok := s.Lookup(names...)
	if !ok {
		return Unavailable
	}
	if out.Sensitive {
		return Masked
	}
	if list, ok := s.Strings(names...); ok {
		if len(list) == 0 {
			return Unavailable
		}
		return strings.Join(list, ", ")
	}
	if str, ok := out.Value.(string); ok && strings.TrimSpace(str) == "" {
		return Unavailable
	}
	data, err := json.Marshal(out.Value)
	if err != nil {
		return Unavailable
	}
	return string(data)
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64:
		return fmt.Sprintf("%v", t), true
	case int:
		return fmt.Sprintf("%d", t), true
	case bool:
		return fmt.Sprintf("%t", t), true
	default:
		return "", false
	}
}
