package inventory

// Role is the function a group of hosts serves.
type Role string

// Roles.
const (
	RoleWeb          Role = "web"
	RoleDatabase     Role = "database"
	RoleLoadBalancer Role = "loadbalancer"
)

// Group names in the generated inventory.
const (
	GroupWeb          = "webservers"
	GroupDatabase     = "databases"
	GroupLoadBalancer = "loadbalancers"
)

// Host names of the managed service entries.
const (
	HostDatabase     = "postgres-main"
	HostLoadBalancer = "alb-main"
)

// Rule maps a logical output key to a role.
type Rule struct {
	Role  Role
	Group string
	// Key is the logical name reported when the output is missing.
	Key string
	// Outputs are the concrete output names accepted for Key, in order of
	// preference.
	Outputs  []string
	Required bool
}

// Rules is the role classification table.
var Rules = []Rule{
	{
		Role:     RoleWeb,
		Group:    GroupWeb,
		Key:      "instance-public-ips",
		Outputs:  []string{"instance_public_ips", "web_instance_ips"},
		Required: true,
	},
	{
		Role:     RoleDatabase,
		Group:    GroupDatabase,
		Key:      "database-endpoint",
		Outputs:  []string{"database_endpoint", "rds_endpoint"},
		Required: true,
	},
	{
		Role:     RoleLoadBalancer,
		Group:    GroupLoadBalancer,
		Key:      "load-balancer-dns",
		Outputs:  []string{"load_balancer_dns", "alb_dns_name"},
		Required: true,
	},
}

// Optional outputs that enrich the inventory when present.
var (
	OutputPrivateIPs      = []string{"instance_private_ips", "web_private_ips"}
	OutputInstanceIDs     = []string{"instance_ids", "web_instance_ids"}
	OutputVPCID           = []string{"vpc_id"}
	OutputBucket          = []string{"s3_bucket_name", "bucket_name"}
	OutputDatabaseName    = []string{"rds_database_name", "database_name"}
	OutputDatabaseUser    = []string{"rds_username", "database_username"}
	OutputEnvironmentInfo = []string{"environment_info"}
)

// RuleFor returns the rule of role.
func RuleFor(role Role) Rule {
	for _, r := range Rules {
		if r.Role == role {
			return r
		}
	}
	panic("inventory: no rule for role " + string(role))
}
