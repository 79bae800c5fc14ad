package prerequisites

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeLookPath(found ...string) func(string) (string, error) {
	set := map[string]bool{}
	for _, f := range found {
		set[f] = true
	}
	return func(name string) (string, error) {
		if set[name] {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("executable file not found in $PATH")
	}
}

func TestCheck_AllPresent(t *testing.T) {
	t.Parallel()
	c := Checker{
		LookPath: fakeLookPath("terraform", "ansible-playbook", "ansible"),
		Version:  func(_ context.Context, path string) string { return path + " v1" },
	}

	tools := append(ProvisioningTools(), ConfigurationTools()...)
	results := c.Check(context.Background(), tools)

	assert.False(t, results.HasErrors())
	assert.NoError(t, results.Error())
	require.Len(t, results.Results, 3)
	assert.Equal(t, "/usr/bin/terraform", results.Results[0].Path)
	assert.Equal(t, "/usr/bin/terraform v1", results.Results[0].Version)
}

func TestCheck_MissingRequired(t *testing.T) {
	t.Parallel()
	c := Checker{LookPath: fakeLookPath("ansible")}

	tools := append(ProvisioningTools(), ConfigurationTools()...)
	results := c.Check(context.Background(), tools)

	require.True(t, results.HasErrors())
	names := []string{}
	for _, tool := range results.MissingRequired() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"terraform", "ansible-playbook"}, names)
	assert.Contains(t, results.Error().Error(), "terraform (https://developer.hashicorp.com/terraform/install)")
}

func TestCheck_MissingOptionalIsNotAnError(t *testing.T) {
	t.Parallel()
	results := Checker{LookPath: fakeLookPath()}.Check(context.Background(), OptionalTools())

	assert.Len(t, results.Missing, 1)
	assert.False(t, results.HasErrors())
	assert.NoError(t, results.Error())
}
