package inventory

import (
	"fmt"
	"maps"
	"net"
	"strconv"
	"strings"

	"github.com/imamik/infractl/internal/config"
	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/outputs"
	"github.com/imamik/infractl/internal/util/naming"
)

// Defaults are the environment-level values merged into the inventory.
type Defaults struct {
	ProjectName       string
	Region            string
	SSHUser           string
	SSHKeyFile        string
	PythonInterpreter string
	AppPort           int
	DatabasePort      int
	DatabaseName      string
	DatabaseUser      string
	HealthCheckPath   string
	// Vars are merged into all.vars last and win over generated values.
	Vars map[string]any
}

// DefaultsFor builds Defaults from the project configuration.
func DefaultsFor(cfg *config.Config, env deployment.Environment) Defaults {
	s := cfg.For(env)
	return Defaults{
		ProjectName:       s.ProjectName,
		Region:            s.Region,
		SSHUser:           s.SSHUser,
		SSHKeyFile:        s.SSHKeyFile,
		PythonInterpreter: cfg.Inventory.PythonInterpreter,
		AppPort:           cfg.Inventory.AppPort,
		DatabasePort:      cfg.Inventory.DatabasePort,
		DatabaseName:      cfg.Inventory.DatabaseName,
		DatabaseUser:      cfg.Inventory.DatabaseUser,
		HealthCheckPath:   cfg.Inventory.HealthCheckPath,
		Vars:              s.Vars,
	}
}

// Generate builds the inventory for env from set. A missing required
// output fails with *deployment.MissingOutputError naming the logical key.
func Generate(set outputs.Set, env deployment.Environment, defaults Defaults) (*Document, error) {
	webIPs, err := requireStrings(set, RuleFor(RoleWeb))
	if err != nil {
		return nil, err
	}
	endpoint, err := requireString(set, RuleFor(RoleDatabase))
	if err != nil {
		return nil, err
	}
	lbDNS, err := requireString(set, RuleFor(RoleLoadBalancer))
	if err != nil {
		return nil, err
	}

	dbHost, dbPort := splitEndpoint(endpoint, defaults.DatabasePort)
	project, region := projectInfo(set, defaults)

	doc := &Document{
		All: Group{
			Vars: allVars(set, env, defaults, project, region, lbDNS, dbHost, dbPort),
			Children: map[string]*Group{
				GroupWeb:          webGroup(set, webIPs),
				GroupDatabase:     databaseGroup(dbHost, dbPort),
				GroupLoadBalancer: loadBalancerGroup(lbDNS, defaults.HealthCheckPath),
			},
		},
	}
	return doc, nil
}

func allVars(set outputs.Set, env deployment.Environment, d Defaults, project, region, lbDNS, dbHost string, dbPort int) map[string]any {
	dbName := d.DatabaseName
	if v, ok := set.String(OutputDatabaseName...); ok {
		dbName = v
	}
	dbUser := d.DatabaseUser
	if v, ok := set.String(OutputDatabaseUser...); ok {
		dbUser = v
	}

	vars := map[string]any{
		"ansible_user":                 d.SSHUser,
		"ansible_ssh_private_key_file": d.SSHKeyFile,
		"ansible_python_interpreter":   d.PythonInterpreter,
		"host_key_checking":            false,
		"ansible_ssh_common_args":      "-o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null",

		"project_name": project,
		"environment":  env.String(),
		"aws_region":   region,

		"load_balancer_dns": lbDNS,

		"database_host":     dbHost,
		"database_port":     dbPort,
		"database_name":     dbName,
		"database_username": dbUser,
		"database_password": "{{ vault_db_password }}",

		"app_port":      d.AppPort,
		"app_user":      d.SSHUser,
		"app_directory": "/opt/" + project,
		"log_directory": "/var/log/" + project,

		"enable_ssl":        false,
		"enable_monitoring": true,
		"enable_cloudwatch": true,
		"enable_firewall":   true,
		"enable_fail2ban":   true,

		"max_upload_size":          "100m",
		"nginx_worker_processes":   "auto",
		"nginx_worker_connections": 1024,
	}
	if v, ok := set.String(OutputVPCID...); ok {
		vars["vpc_id"] = v
	}
	if v, ok := set.String(OutputBucket...); ok {
		vars["s3_bucket_name"] = v
	}
	maps.Copy(vars, d.Vars)
	return vars
}

func webGroup(set outputs.Set, publicIPs []string) *Group {
	privateIPs, _ := set.Strings(OutputPrivateIPs...)
	instanceIDs, _ := set.Strings(OutputInstanceIDs...)

	hosts := make(map[string]Host, len(publicIPs))
	for i, ip := range publicIPs {
		primary := i == 0
		host := Host{
			VarAnsibleHost:            ip,
			"server_role":             "secondary",
			"server_index":            i + 1,
			"is_primary":              primary,
			"enable_cron_jobs":        primary,
			"enable_database_backups": primary,
		}
		if primary {
			host["server_role"] = "primary"
		}
		if i < len(privateIPs) && privateIPs[i] != "" {
			host["private_ip"] = privateIPs[i]
		}
		if i < len(instanceIDs) && instanceIDs[i] != "" {
			host["instance_id"] = instanceIDs[i]
		}
		hosts[naming.WebHost(i+1)] = host
	}

	return &Group{
		Hosts: hosts,
		Vars: map[string]any{
			"server_type":                "web",
			"nginx_client_max_body_size": "100m",
			"node_env":                   "production",
			"log_level":                  "info",
		},
	}
}

func databaseGroup(host string, port int) *Group {
	return &Group{
		Hosts: map[string]Host{
			HostDatabase: {
				VarAnsibleHost: host,
				"db_engine":    "postgres",
				VarDBPort:      port,
				VarManaged:     true,
			},
		},
		Vars: map[string]any{
			"database_type":  "postgresql",
			"backup_enabled": true,
		},
	}
}

func loadBalancerGroup(dns, healthPath string) *Group {
	return &Group{
		Hosts: map[string]Host{
			HostLoadBalancer: {
				VarLBDNSName: dns,
				"lb_type":    "application",
				VarManaged:   true,
			},
		},
		Vars: map[string]any{
			"lb_health_check_path":     healthPath,
			"lb_health_check_interval": 30,
		},
	}
}

// projectInfo prefers the environment_info output over configured values.
func projectInfo(set outputs.Set, d Defaults) (string, string) {
	project, region := d.ProjectName, d.Region
	info, ok := set.Map(OutputEnvironmentInfo...)
	if !ok {
		return project, region
	}
	if v, ok := info["project_name"].(string); ok && v != "" {
		project = v
	}
	if v, ok := info["region"].(string); ok && v != "" {
		region = v
	}
	return project, region
}

// splitEndpoint separates "host:port"; a bare host gets defaultPort.
func splitEndpoint(endpoint string, defaultPort int) (string, int) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return strings.TrimSpace(endpoint), defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return host, defaultPort
	}
	return host, port
}

func requireString(set outputs.Set, rule Rule) (string, error) {
	v, ok := set.String(rule.Outputs...)
	if !ok || strings.TrimSpace(v) == "" {
		return "", missing(rule)
	}
	return v, nil
}

// requireStrings returns every value of a list output. Positions are kept
// so parallel lists such as private IPs and instance IDs stay aligned; an
// empty value fails instead of being dropped.
func requireStrings(set outputs.Set, rule Rule) ([]string, error) {
	list, ok := set.Strings(rule.Outputs...)
	if !ok || len(list) == 0 {
		return nil, missing(rule)
	}
	values := make([]string, len(list))
	for i, v := range list {
		if values[i] = strings.TrimSpace(v); values[i] == "" {
			return nil, &deployment.MissingOutputError{Key: rule.Key, Candidates: rule.Outputs, Entry: i + 1}
		}
	}
	return values, nil
}

func missing(rule Rule) error {
	return &deployment.MissingOutputError{Key: rule.Key, Candidates: rule.Outputs}
}

// Summary is a short description of a generated inventory.
func Summary(doc *Document) string {
	web := doc.Group(GroupWeb)
	count := 0
	if web != nil {
		count = len(web.Hosts)
	}
	dbHost, _ := doc.All.Vars["database_host"].(string)
	bucket, _ := doc.All.Vars["s3_bucket_name"].(string)
	if bucket == "" {
		bucket = outputs.Unavailable
	}
	return fmt.Sprintf("web servers: %d, database host: %s, bucket: %s", count, dbHost, bucket)
}
