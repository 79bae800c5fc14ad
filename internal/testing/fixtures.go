package testing

import (
	"encoding/json"

	"github.com/stretchr/testify/require"

	"github.com/imamik/infractl/internal/outputs"
)

// OutputsJSON is a complete output document with five web servers.
const OutputsJSON = `{
  "alb_dns_name": {"sensitive": false, "type": "string", "value": "shop-alb-123.eu-west-1.elb.amazonaws.com"},
  "environment_info": {"sensitive": false, "type": ["object", {"environment": "string", "project_name": "string", "region": "string"}], "value": {"environment": "dev", "project_name": "shop", "region": "eu-west-1"}},
  "instance_ids": {"sensitive": false, "type": ["list", "string"], "value": ["i-001", "i-002", "i-003", "i-004", "i-005"]},
  "instance_private_ips": {"sensitive": false, "type": ["list", "string"], "value": ["10.0.1.11", "10.0.1.12", "10.0.1.13", "10.0.1.14", "10.0.1.15"]},
  "instance_public_ips": {"sensitive": false, "type": ["list", "string"], "value": ["54.0.0.11", "54.0.0.12", "54.0.0.13", "54.0.0.14", "54.0.0.15"]},
  "rds_endpoint": {"sensitive": false, "type": "string", "value": "shop-db.abc.eu-west-1.rds.amazonaws.com:5432"},
  "rds_password": {"sensitive": true, "type": "string", "value": "s3cr3t"},
  "s3_bucket_name": {"sensitive": false, "type": "string", "value": "shop-assets-dev"},
  "vpc_id": {"sensitive": false, "type": "string", "value": "vpc-0abc"}
}`

// WebHosts are the inventory names of the web servers in OutputsJSON.
var WebHosts = []string{"web-1", "web-2", "web-3", "web-4", "web-5"}

// Outputs parses OutputsJSON.
func Outputs(t TB) outputs.Set {
	t.Helper()
	set, err := outputs.Parse([]byte(OutputsJSON))
	require.NoError(t, err)
	return set
}

// OutputsWithout returns OutputsJSON without the named outputs.
func OutputsWithout(t TB, names ...string) string {
	t.Helper()
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(OutputsJSON), &doc))
	for _, name := range names {
		delete(doc, name)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	require.NoError(t, err)
	return string(data)
}
