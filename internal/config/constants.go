package config

// DefaultFile is the project configuration file looked up in the working
// directory when --config is not given.
const DefaultFile = "infractl.yaml"

// Default paths, relative to the project root.
const (
	DefaultTerraformDir = "terraform"
	DefaultVarFileDir   = "terraform/environments"
	DefaultPlaybook     = "ansible/site.yml"
	DefaultInventory    = "ansible/inventory/dynamic_hosts.yml"
	DefaultVaultFile    = "ansible/.vault_pass"
	DefaultOutputs      = "outputs.json"
	DefaultBackups      = "backups"
	DefaultPlans        = "plans"
	DefaultReports      = "reports"
)

// Inventory defaults carried over from the hand-written inventory the
// project started with.
const (
	DefaultProjectName       = "myapp"
	DefaultRegion            = "us-west-2"
	DefaultSSHUser           = "ubuntu"
	DefaultSSHKeyFile        = "~/.ssh/id_rsa"
	DefaultPythonInterpreter = "/usr/bin/python3"
	DefaultAppPort           = 3000
	DefaultDatabasePort      = 5432
	DefaultDatabaseName      = "appdb"
	DefaultDatabaseUser      = "dbadmin"
	DefaultHealthPath        = "/health"
	DefaultHealthPort        = 80
)

// Retention and fan-out defaults.
const (
	DefaultPlanRetention   = 5
	DefaultProbeWorkers    = 8
	DefaultMetricsJob      = "infractl"
	DefaultBackupS3Prefix  = "infractl/backups"
	DefaultTerraformBinary = "terraform"
)
