package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imamik/infractl/internal/config"
	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/outputs"
)

const fullOutputs = `{
  "instance_public_ips": {"sensitive": false, "value": ["54.0.0.1", "54.0.0.2", "54.0.0.3"]},
  "instance_private_ips": {"sensitive": false, "value": ["10.0.1.10", "10.0.1.11"]},
  "instance_ids": {"sensitive": false, "value": ["i-aaa", "i-bbb", "i-ccc"]},
  "rds_endpoint": {"sensitive": false, "value": "shop-db.abc.us-west-2.rds.amazonaws.com:6432"},
  "load_balancer_dns": {"sensitive": false, "value": "shop-alb-123.us-west-2.elb.amazonaws.com"},
  "s3_bucket_name": {"sensitive": false, "value": "shop-assets-dev"},
  "vpc_id": {"sensitive": false, "value": "vpc-0abc"},
  "rds_username": {"sensitive": false, "value": "shop"},
  "environment_info": {"sensitive": false, "value": {"project_name": "shop", "environment": "dev", "region": "eu-west-1"}}
}`

func parse(t *testing.T, doc string) outputs.Set {
	t.Helper()
	set, err := outputs.Parse([]byte(doc))
	require.NoError(t, err)
	return set
}

func defaults() Defaults {
	return DefaultsFor(config.Default(), deployment.EnvDev)
}

func TestGenerate_Full(t *testing.T) {
	t.Parallel()
	doc, err := Generate(parse(t, fullOutputs), deployment.EnvDev, defaults())
	require.NoError(t, err)
	require.NoError(t, Validate(doc))

	vars := doc.All.Vars
	assert.Equal(t, "shop", vars["project_name"])
	assert.Equal(t, "eu-west-1", vars["aws_region"])
	assert.Equal(t, "dev", vars["environment"])
	assert.Equal(t, "shop-db.abc.us-west-2.rds.amazonaws.com", vars["database_host"])
	assert.Equal(t, 6432, vars["database_port"])
	assert.Equal(t, "shop", vars["database_username"])
	assert.Equal(t, config.DefaultDatabaseName, vars["database_name"])
	assert.Equal(t, "shop-assets-dev", vars["s3_bucket_name"])
	assert.Equal(t, "vpc-0abc", vars["vpc_id"])
	assert.Equal(t, "/opt/shop", vars["app_directory"])
	assert.Equal(t, config.DefaultSSHUser, vars["ansible_user"])

	web := doc.Group(GroupWeb)
	require.NotNil(t, web)
	require.Len(t, web.Hosts, 3)
	assert.Equal(t, Host{
		"ansible_host":            "54.0.0.1",
		"private_ip":              "10.0.1.10",
		"instance_id":             "i-aaa",
		"server_role":             "primary",
		"server_index":            1,
		"is_primary":              true,
		"enable_cron_jobs":        true,
		"enable_database_backups": true,
	}, web.Hosts["web-1"])
	assert.Equal(t, "secondary", web.Hosts["web-3"]["server_role"])
	assert.NotContains(t, web.Hosts["web-3"], "private_ip", "missing private IPs are omitted, not padded")

	db := doc.Group(GroupDatabase).Hosts[HostDatabase]
	assert.Equal(t, "shop-db.abc.us-west-2.rds.amazonaws.com", db[VarAnsibleHost])
	assert.Equal(t, 6432, db[VarDBPort])

	lb := doc.Group(GroupLoadBalancer).Hosts[HostLoadBalancer]
	assert.Equal(t, "shop-alb-123.us-west-2.elb.amazonaws.com", lb[VarLBDNSName])
}

func TestGenerate_Aliases(t *testing.T) {
	t.Parallel()
	set := parse(t, `{
	  "web_instance_ips": {"value": "3.3.3.3"},
	  "database_endpoint": {"value": "db.internal"},
	  "alb_dns_name": {"value": "lb.example.com"}
	}`)

	doc, err := Generate(set, deployment.EnvStaging, defaults())
	require.NoError(t, err)
	assert.Equal(t, "3.3.3.3", doc.Group(GroupWeb).Hosts["web-1"][VarAnsibleHost])
	assert.Equal(t, config.DefaultDatabasePort, doc.All.Vars["database_port"])
	assert.Equal(t, "staging", doc.All.Vars["environment"])
	assert.Equal(t, config.DefaultProjectName, doc.All.Vars["project_name"])
	assert.NotContains(t, doc.All.Vars, "s3_bucket_name")
}

func TestGenerate_MissingRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		outputs string
		wantKey string
	}{
		{
			name:    "database endpoint",
			outputs: `{"instance_public_ips": {"value": ["1.1.1.1"]}, "load_balancer_dns": {"value": "lb"}}`,
			wantKey: "database-endpoint",
		},
		{
			name:    "empty web list",
			outputs: `{"instance_public_ips": {"value": []}, "rds_endpoint": {"value": "db"}, "load_balancer_dns": {"value": "lb"}}`,
			wantKey: "instance-public-ips",
		},
		{
			name:    "blank load balancer",
			outputs: `{"instance_public_ips": {"value": ["1.1.1.1"]}, "rds_endpoint": {"value": "db"}, "load_balancer_dns": {"value": " "}}`,
			wantKey: "load-balancer-dns",
		},
		{
			name:    "null endpoint",
			outputs: `{"instance_public_ips": {"value": ["1.1.1.1"]}, "rds_endpoint": {"value": null}, "load_balancer_dns": {"value": "lb"}}`,
			wantKey: "database-endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc, err := Generate(parse(t, tt.outputs), deployment.EnvDev, defaults())
			assert.Nil(t, doc)
			var missing *deployment.MissingOutputError
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, tt.wantKey, missing.Key)
			assert.Contains(t, err.Error(), tt.wantKey)
		})
	}
}

func TestGenerate_EmptyWebAddress(t *testing.T) {
	t.Parallel()
	set := parse(t, `{
	  "instance_public_ips": {"value": ["", "54.0.0.2"]},
	  "instance_private_ips": {"value": ["10.0.1.10", "10.0.1.11"]},
	  "instance_ids": {"value": ["i-aaa", "i-bbb"]},
	  "rds_endpoint": {"value": "db"},
	  "load_balancer_dns": {"value": "lb"}
	}`)

	doc, err := Generate(set, deployment.EnvDev, defaults())
	assert.Nil(t, doc)
	var missing *deployment.MissingOutputError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "instance-public-ips", missing.Key)
	assert.Equal(t, 1, missing.Entry)
	assert.EqualError(t, err, `missing required output "instance-public-ips": entry 1 is empty`)
}

func TestGenerate_WebListsStayAligned(t *testing.T) {
	t.Parallel()
	set := parse(t, `{
	  "instance_public_ips": {"value": [" 54.0.0.1 ", "54.0.0.2"]},
	  "instance_private_ips": {"value": ["", "10.0.1.11"]},
	  "instance_ids": {"value": ["i-aaa", "i-bbb"]},
	  "rds_endpoint": {"value": "db"},
	  "load_balancer_dns": {"value": "lb"}
	}`)

	doc, err := Generate(set, deployment.EnvDev, defaults())
	require.NoError(t, err)
	web := doc.Group(GroupWeb).Hosts
	assert.Equal(t, "54.0.0.1", web["web-1"][VarAnsibleHost])
	assert.NotContains(t, web["web-1"], "private_ip")
	assert.Equal(t, "i-aaa", web["web-1"]["instance_id"])
	assert.Equal(t, "10.0.1.11", web["web-2"]["private_ip"])
	assert.Equal(t, "i-bbb", web["web-2"]["instance_id"])
}

func TestGenerate_ConfigVarsWin(t *testing.T) {
	t.Parallel()
	d := defaults()
	d.Vars = map[string]any{"enable_ssl": true, "app_port": 8080}

	doc, err := Generate(parse(t, fullOutputs), deployment.EnvDev, d)
	require.NoError(t, err)
	assert.Equal(t, true, doc.All.Vars["enable_ssl"])
	assert.Equal(t, 8080, doc.All.Vars["app_port"])
}

func TestGenerate_IsDeterministic(t *testing.T) {
	t.Parallel()
	set := parse(t, fullOutputs)

	var first []byte
	for i := 0; i < 20; i++ {
		doc, err := Generate(set, deployment.EnvDev, defaults())
		require.NoError(t, err)
		for _, format := range []Format{FormatYAML, FormatJSON} {
			data, err := Render(doc, format)
			require.NoError(t, err)
			if format != FormatYAML {
				continue
			}
			if first == nil {
				first = data
				continue
			}
			require.Equal(t, string(first), string(data), "iteration %d", i)
		}
	}
}

func TestTargetsAndConnectableHosts(t *testing.T) {
	t.Parallel()
	doc, err := Generate(parse(t, fullOutputs), deployment.EnvDev, defaults())
	require.NoError(t, err)

	assert.Equal(t, []string{"web-1", "web-2", "web-3"}, doc.ConnectableHosts())

	targets := doc.Targets()
	require.Len(t, targets, 5)
	assert.Equal(t, HostDatabase, targets[0].Name)
	assert.True(t, targets[0].Managed)
	assert.Equal(t, HostLoadBalancer, targets[1].Name)
	assert.Equal(t, "shop-alb-123.us-west-2.elb.amazonaws.com", targets[1].Address)
	assert.Equal(t, GroupWeb, targets[2].Group)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	assert.Error(t, Validate(nil))
	assert.Error(t, Validate(&Document{}))

	doc := &Document{All: Group{Children: map[string]*Group{
		GroupWeb: {Hosts: map[string]Host{"web-1": {"server_index": 1}}},
	}}}
	err := Validate(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "web-1 is missing ansible_host")
}

func TestSummary(t *testing.T) {
	t.Parallel()
	doc, err := Generate(parse(t, fullOutputs), deployment.EnvDev, defaults())
	require.NoError(t, err)
	assert.Equal(t, "web servers: 3, database host: shop-db.abc.us-west-2.rds.amazonaws.com, bucket: shop-assets-dev", Summary(doc))
}
