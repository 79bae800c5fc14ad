package ansible

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/infractl/internal/configmgmt"
)

// fakeBinary writes an executable shell script that records its arguments
// and prints body.
func fakeBinary(t *testing.T, name, body string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	argsFile := filepath.Join(dir, name+".args")
	script := "#!/bin/sh\necho \"$@\" > " + argsFile + "\n" + body + "\n"
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path, argsFile
}

func readArgs(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestAdapter_SyntaxCheck(t *testing.T) {
	t.Parallel()
	bin, args := fakeBinary(t, "ansible-playbook", "echo 'playbook: site.yml'")
	a := New(Options{PlaybookBinary: bin, Playbook: "site.yml"})

	require.NoError(t, a.SyntaxCheck(context.Background(), "inventory.yml"))
	got := readArgs(t, args)
	assert.Contains(t, got, "--syntax-check")
	assert.Contains(t, got, "inventory.yml")
	assert.Contains(t, got, "site.yml")
}

func TestAdapter_SyntaxCheckFailure(t *testing.T) {
	t.Parallel()
	bin, _ := fakeBinary(t, "ansible-playbook", "echo 'ERROR! no action detected in task'\nexit 4")
	a := New(Options{PlaybookBinary: bin, Playbook: "site.yml"})

	err := a.SyntaxCheck(context.Background(), "inventory.yml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no action detected in task")
}

func TestAdapter_Ping(t *testing.T) {
	t.Parallel()
	bin, args := fakeBinary(t, "ansible", `cat <<'OUT'
web-1 | SUCCESS => {
    "changed": false,
    "ping": "pong"
}
web-2 | UNREACHABLE! => {"changed": false, "msg": "timed out", "unreachable": true}
OUT
exit 4`)
	a := New(Options{AdhocBinary: bin})

	results, err := a.Ping(context.Background(), "inventory.yml", []string{"web-1", "web-2"})
	require.NoError(t, err)
	assert.Equal(t, []configmgmt.PingResult{
		{Host: "web-1", Reachable: true},
		{Host: "web-2", Message: "timed out"},
	}, results)
	got := readArgs(t, args)
	assert.Contains(t, got, "web-1,web-2")
	assert.Contains(t, got, "ping")
}

func TestAdapter_PingToolFailure(t *testing.T) {
	t.Parallel()
	bin, _ := fakeBinary(t, "ansible", "echo 'ERROR! Unable to parse inventory' >&2\nexit 1")
	a := New(Options{AdhocBinary: bin})

	_, err := a.Ping(context.Background(), "inventory.yml", []string{"web-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping failed")
}

func TestAdapter_PingNoHosts(t *testing.T) {
	t.Parallel()
	a := New(Options{AdhocBinary: "/nonexistent/ansible"})
	results, err := a.Ping(context.Background(), "inventory.yml", nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAdapter_RunPlaybook(t *testing.T) {
	t.Parallel()
	bin, args := fakeBinary(t, "ansible-playbook", `cat <<'OUT'
TASK [nginx : Install nginx] ***
fatal: [web-2]: FAILED! => {"changed": false, "msg": "boom"}

PLAY RECAP ***
web-1                      : ok=3    changed=1    unreachable=0    failed=0    skipped=0    rescued=0    ignored=0
web-2                      : ok=1    changed=0    unreachable=0    failed=1    skipped=0    rescued=0    ignored=0

OUT
exit 2`)
	var stream bytes.Buffer
	a := New(Options{PlaybookBinary: bin, Playbook: "site.yml", Stdout: &stream})

	result, err := a.RunPlaybook(context.Background(), configmgmt.PlaybookOptions{
		Inventory:         "inventory.yml",
		VaultPasswordFile: ".vault_pass",
		Verbose:           true,
		ExtraVars:         map[string]any{"deploy_env": "dev"},
	})
	require.Error(t, err)
	require.NotNil(t, result)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "web-2", result.Failures[0].Host)
	assert.Equal(t, 1, result.Recap["web-2"].Failed)
	assert.Equal(t, 3, result.Recap["web-1"].OK)
	assert.Contains(t, stream.String(), "PLAY RECAP")

	got := readArgs(t, args)
	assert.Contains(t, got, ".vault_pass")
	assert.Contains(t, got, "-vvv")
	assert.Contains(t, got, "deploy_env")
}
