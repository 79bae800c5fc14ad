package outputs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
  "instance_public_ips": {"sensitive": false, "type": ["list", "string"], "value": ["54.1.1.1", "54.1.1.2"]},
  "rds_endpoint": {"sensitive": false, "type": "string", "value": "db.internal:5432"},
  "rds_password": {"sensitive": true, "type": "string", "value": "hunter2"},
  "replicas": {"sensitive": false, "type": "number", "value": 3},
  "environment_info": {"sensitive": false, "type": ["object", {"region": "string"}], "value": {"region": "eu-west-1"}},
  "empty_list": {"sensitive": false, "type": ["list", "string"], "value": []},
  "nothing": {"sensitive": false, "type": "string", "value": null}
}`

func TestParse_Accessors(t *testing.T) {
	t.Parallel()
	set, err := Parse([]byte(sample))
	require.NoError(t, err)

	ips, ok := set.Strings("web_instance_ips", "instance_public_ips")
	require.True(t, ok)
	assert.Equal(t, []string{"54.1.1.1", "54.1.1.2"}, ips)

	endpoint, ok := set.String("database_endpoint", "rds_endpoint")
	require.True(t, ok)
	assert.Equal(t, "db.internal:5432", endpoint)

	replicas, ok := set.String("replicas")
	require.True(t, ok)
	assert.Equal(t, "3", replicas)

	info, ok := set.Map("environment_info")
	require.True(t, ok)
	assert.Equal(t, "eu-west-1", info["region"])

	_, ok = set.String("nothing")
	assert.False(t, ok, "null values count as absent")
	_, ok = set.String("instance_public_ips")
	assert.False(t, ok, "a list is not a string")

	_, name, ok := set.Lookup("missing", "rds_endpoint")
	require.True(t, ok)
	assert.Equal(t, "rds_endpoint", name)
}

func TestDisplay(t *testing.T) {
	t.Parallel()
	set, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "54.1.1.1, 54.1.1.2", set.Display("instance_public_ips"))
	assert.Equal(t, Masked, set.Display("rds_password"))
	assert.Equal(t, Unavailable, set.Display("s3_bucket_name"))
	assert.Equal(t, Unavailable, set.Display("empty_list"))
	assert.Equal(t, `{"region":"eu-west-1"}`, set.Display("environment_info"))

	blank := Set{"s3_bucket_name": {Value: "  "}}
	assert.Equal(t, Unavailable, blank.Display("s3_bucket_name"))
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()
	_, err := Parse([]byte(`[1,2]`))
	require.Error(t, err)

	set, err := Parse([]byte(`null`))
	require.NoError(t, err)
	assert.Empty(t, set)
}

func TestSaveLoad_Deterministic(t *testing.T) {
	t.Parallel()
	set, err := Parse([]byte(sample))
	require.NoError(t, err)

	dir := t.TempDir()
	a := filepath.Join(dir, "a", "outputs.json")
	b := filepath.Join(dir, "b", "outputs.json")
	require.NoError(t, set.Save(a))

	reloaded, err := Load(a)
	require.NoError(t, err)
	require.NoError(t, reloaded.Save(b))

	first, err := os.ReadFile(a)
	require.NoError(t, err)
	second, err := os.ReadFile(b)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	assert.True(t, json.Valid(first))
	assert.Equal(t, []string{"empty_list", "environment_info", "instance_public_ips", "nothing", "rds_endpoint", "rds_password", "replicas"}, reloaded.Names())
}

func TestLoad_Missing(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "outputs.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read outputs")
}
