package inventory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/infractl/internal/deployment"
)

func TestRender_YAMLShape(t *testing.T) {
	t.Parallel()
	doc, err := Generate(parse(t, fullOutputs), deployment.EnvDev, defaults())
	require.NoError(t, err)

	data, err := Render(doc, FormatYAML)
	require.NoError(t, err)
	text := string(data)

	assert.True(t, strings.HasPrefix(text, "# Generated by infractl"))
	assert.Contains(t, text, "\nall:\n  vars:\n")
	assert.NotContains(t, text, "all:\n  hosts:")
	assert.Contains(t, text, "\n  children:\n    databases:\n      hosts:\n        postgres-main:\n")

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, doc.ConnectableHosts(), back.ConnectableHosts())
}

func TestRender_JSON(t *testing.T) {
	t.Parallel()
	doc, err := Generate(parse(t, fullOutputs), deployment.EnvDev, defaults())
	require.NoError(t, err)

	data, err := Render(doc, FormatJSON)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	back, err := Parse(data)
	require.NoError(t, err)
	require.NoError(t, Validate(back))
}

func TestParseFormat(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Format{"yaml": FormatYAML, "YML": FormatYAML, "json": FormatJSON} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("ini")
	require.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "ansible/inventory/dynamic_hosts.json", OutputPath("ansible/inventory/dynamic_hosts.yml", FormatJSON))
	assert.Equal(t, "inv.json", OutputPath("inv.yaml", FormatJSON))
	assert.Equal(t, "inv.yml", OutputPath("inv.yml", FormatYAML))
	assert.Equal(t, "inv", OutputPath("inv", FormatJSON))
}

func TestWrite(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "ansible", "inventory", "dynamic_hosts.yml")
	require.NoError(t, Write(path, []byte("all: {}\n")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "all: {}\n", string(data))
}
