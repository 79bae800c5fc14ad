package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomic_CreatesParents(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "outputs.json")

	require.NoError(t, WriteAtomic(path, []byte(`{"a":1}`), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteAtomic_Replaces(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "inventory.yml")

	require.NoError(t, WriteAtomic(path, []byte("old"), 0o644))
	require.NoError(t, WriteAtomic(path, []byte("new"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files should be left behind")
}

func TestCopyAtomic(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "terraform.tfstate")
	dst := filepath.Join(dir, "backups", "snap", "terraform.tfstate")
	require.NoError(t, os.WriteFile(src, []byte(`{"version":4}`), 0o640))

	require.NoError(t, CopyAtomic(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, `{"version":4}`, string(data))
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestCopyAtomic_MissingSource(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	err := CopyAtomic(filepath.Join(dir, "missing"), filepath.Join(dir, "dst"))

	require.Error(t, err)
	assert.False(t, Exists(filepath.Join(dir, "dst")))
}

func TestExists(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	assert.True(t, Exists(dir))
	assert.False(t, Exists(filepath.Join(dir, "nope")))
}
