package config

import (
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"strings"
	"time"

	"github.com/imamik/infractl/internal/deployment"
)

// Config is the project configuration.
type Config struct {
	Project      ProjectConfig                `yaml:"project"`
	Paths        Paths                        `yaml:"paths"`
	Terraform    TerraformConfig              `yaml:"terraform"`
	Ansible      AnsibleConfig                `yaml:"ansible"`
	Inventory    InventoryConfig              `yaml:"inventory"`
	Verification VerificationConfig           `yaml:"verification"`
	Backup       BackupConfig                 `yaml:"backup"`
	Metrics      MetricsConfig                `yaml:"metrics"`
	Environments map[string]EnvironmentConfig `yaml:"environments"`
}

// ProjectConfig names the project. Values from the environment_info output
// take precedence during inventory generation.
type ProjectConfig struct {
	Name   string `yaml:"name"`
	Region string `yaml:"region"`
}

// Paths locates the collaborator trees and derived artifacts.
type Paths struct {
	TerraformDir string `yaml:"terraform_dir"`
	VarFileDir   string `yaml:"var_file_dir"`
	Playbook     string `yaml:"playbook"`
	Inventory    string `yaml:"inventory"`
	VaultFile    string `yaml:"vault_password_file"`
	Outputs      string `yaml:"outputs"`
	Backups      string `yaml:"backups"`
	Plans        string `yaml:"plans"`
	Reports      string `yaml:"reports"`
}

// TerraformConfig controls how the provisioning tool is driven.
type TerraformConfig struct {
	Binary string `yaml:"binary"`
	// Workspaces selects one Terraform workspace per environment.
	Workspaces    bool          `yaml:"workspaces"`
	PlanRetention int           `yaml:"plan_retention"`
	LockTimeout   time.Duration `yaml:"lock_timeout"`
}

// AnsibleConfig controls how the configuration tool is driven.
type AnsibleConfig struct {
	PlaybookBinary string `yaml:"playbook_binary"`
	AdhocBinary    string `yaml:"adhoc_binary"`
	// ExtraVars are passed to every playbook run.
	ExtraVars map[string]any `yaml:"extra_vars"`
}

// InventoryConfig holds the connection and application defaults written to
// the generated inventory.
type InventoryConfig struct {
	SSHUser           string         `yaml:"ssh_user"`
	SSHKeyFile        string         `yaml:"ssh_key_file"`
	PythonInterpreter string         `yaml:"python_interpreter"`
	AppPort           int            `yaml:"app_port"`
	DatabasePort      int            `yaml:"database_port"`
	DatabaseName      string         `yaml:"database_name"`
	DatabaseUser      string         `yaml:"database_user"`
	HealthCheckPath   string         `yaml:"health_check_path"`
	Vars              map[string]any `yaml:"vars"`
}

// VerificationConfig selects the post-deployment checks.
type VerificationConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Services   []string `yaml:"services"`
	HealthPort int      `yaml:"health_port"`
	HealthPath string   `yaml:"health_path"`
	Workers    int      `yaml:"workers"`
}

// BackupConfig controls snapshot retention and the optional S3 mirror.
type BackupConfig struct {
	MaxAge   time.Duration `yaml:"max_age"`
	Bucket   string        `yaml:"bucket"`
	Prefix   string        `yaml:"prefix"`
	Region   string        `yaml:"region"`
	Endpoint string        `yaml:"endpoint"`
}

// MetricsConfig selects where run metrics are exported. Both targets are
// optional.
type MetricsConfig struct {
	Textfile    string `yaml:"textfile"`
	Pushgateway string `yaml:"pushgateway"`
	Job         string `yaml:"job"`
}

// EnvironmentConfig overrides defaults for a single environment.
type EnvironmentConfig struct {
	SSHUser    string         `yaml:"ssh_user"`
	SSHKeyFile string         `yaml:"ssh_key_file"`
	Region     string         `yaml:"region"`
	Vars       map[string]any `yaml:"vars"`
	// RequireConfirmation prompts before apply unless --yes is given.
	RequireConfirmation *bool `yaml:"require_confirmation"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Project: ProjectConfig{Name: DefaultProjectName, Region: DefaultRegion},
		Paths: Paths{
			TerraformDir: DefaultTerraformDir,
			VarFileDir:   DefaultVarFileDir,
			Playbook:     DefaultPlaybook,
			Inventory:    DefaultInventory,
			VaultFile:    DefaultVaultFile,
			Outputs:      DefaultOutputs,
			Backups:      DefaultBackups,
			Plans:        DefaultPlans,
			Reports:      DefaultReports,
		},
		Terraform: TerraformConfig{
			Binary:        DefaultTerraformBinary,
			Workspaces:    true,
			PlanRetention: DefaultPlanRetention,
		},
		Ansible: AnsibleConfig{
			PlaybookBinary: "ansible-playbook",
			AdhocBinary:    "ansible",
		},
		Inventory: InventoryConfig{
			SSHUser:           DefaultSSHUser,
			SSHKeyFile:        DefaultSSHKeyFile,
			PythonInterpreter: DefaultPythonInterpreter,
			AppPort:           DefaultAppPort,
			DatabasePort:      DefaultDatabasePort,
			DatabaseName:      DefaultDatabaseName,
			DatabaseUser:      DefaultDatabaseUser,
			HealthCheckPath:   DefaultHealthPath,
		},
		Verification: VerificationConfig{
			Enabled:    true,
			Services:   []string{"nginx"},
			HealthPort: DefaultHealthPort,
			HealthPath: DefaultHealthPath,
			Workers:    DefaultProbeWorkers,
		},
		Backup: BackupConfig{
			MaxAge: 30 * 24 * time.Hour,
			Prefix: DefaultBackupS3Prefix,
		},
		Metrics: MetricsConfig{Job: DefaultMetricsJob},
	}
}

// WithRoot returns a copy of c whose relative paths are anchored at root.
func (c *Config) WithRoot(root string) *Config {
	out := *c
	p := &out.Paths
	for _, field := range []*string{
		&p.TerraformDir, &p.VarFileDir, &p.Playbook, &p.Inventory, &p.VaultFile,
		&p.Outputs, &p.Backups, &p.Plans, &p.Reports,
	} {
		if *field != "" && !filepath.IsAbs(*field) {
			*field = filepath.Join(root, *field)
		}
	}
	if out.Metrics.Textfile != "" && !filepath.IsAbs(out.Metrics.Textfile) {
		out.Metrics.Textfile = filepath.Join(root, out.Metrics.Textfile)
	}
	return &out
}

// VarFile returns the Terraform variable file for env.
func (c *Config) VarFile(env deployment.Environment) string {
	return filepath.Join(c.Paths.VarFileDir, env.String()+".tfvars")
}

// StateFile returns the local Terraform state file of env.
func (c *Config) StateFile(env deployment.Environment) string {
	if c.Terraform.Workspaces {
		return filepath.Join(c.Paths.TerraformDir, "terraform.tfstate.d", env.String(), "terraform.tfstate")
	}
	return filepath.Join(c.Paths.TerraformDir, "terraform.tfstate")
}

// StateArtifacts returns the files captured by snapshots and emergency
// copies, in a stable order.
func (c *Config) StateArtifacts(env deployment.Environment) []string {
	return []string{c.StateFile(env), c.Paths.Inventory, c.Paths.Outputs}
}

// Settings is the effective per-environment view of the configuration.
type Settings struct {
	Environment deployment.Environment
	ProjectName string
	Region      string
	SSHUser     string
	SSHKeyFile  string
	Vars        map[string]any
	// Confirm is true when apply needs an interactive confirmation.
	Confirm bool
}

// For merges the environment override of env over the defaults.
func (c *Config) For(env deployment.Environment) Settings {
	s := Settings{
		Environment: env,
		ProjectName: c.Project.Name,
		Region:      c.Project.Region,
		SSHUser:     c.Inventory.SSHUser,
		SSHKeyFile:  c.Inventory.SSHKeyFile,
		Vars:        maps.Clone(c.Inventory.Vars),
		Confirm:     env == deployment.EnvProd,
	}
	if s.Vars == nil {
		s.Vars = map[string]any{}
	}

	override, ok := c.Environments[env.String()]
	if !ok {
		return s
	}
	if override.SSHUser != "" {
		s.SSHUser = override.SSHUser
	}
	if override.SSHKeyFile != "" {
		s.SSHKeyFile = override.SSHKeyFile
	}
	if override.Region != "" {
		s.Region = override.Region
	}
	maps.Copy(s.Vars, override.Vars)
	if override.RequireConfirmation != nil {
		s.Confirm = *override.RequireConfirmation
	}
	return s
}

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	required := map[string]string{
		"paths.terraform_dir": c.Paths.TerraformDir,
		"paths.var_file_dir":  c.Paths.VarFileDir,
		"paths.playbook":      c.Paths.Playbook,
		"paths.inventory":     c.Paths.Inventory,
		"paths.outputs":       c.Paths.Outputs,
		"paths.backups":       c.Paths.Backups,
		"paths.plans":         c.Paths.Plans,
		"paths.reports":       c.Paths.Reports,
		"terraform.binary":    c.Terraform.Binary,
	}
	for _, key := range sortedKeys(required) {
		if strings.TrimSpace(required[key]) == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", key))
		}
	}

	if c.Terraform.PlanRetention < 1 {
		errs = append(errs, fmt.Errorf("terraform.plan_retention must be at least 1, got %d", c.Terraform.PlanRetention))
	}
	if c.Terraform.LockTimeout < 0 {
		errs = append(errs, fmt.Errorf("terraform.lock_timeout must not be negative"))
	}
	if c.Verification.Workers < 1 {
		errs = append(errs, fmt.Errorf("verification.workers must be at least 1, got %d", c.Verification.Workers))
	}
	if c.Verification.HealthPort < 1 || c.Verification.HealthPort > 65535 {
		errs = append(errs, fmt.Errorf("verification.health_port %d is out of range", c.Verification.HealthPort))
	}
	if !strings.HasPrefix(c.Verification.HealthPath, "/") {
		errs = append(errs, fmt.Errorf("verification.health_path must start with '/', got %q", c.Verification.HealthPath))
	}
	if c.Backup.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("backup.max_age must not be negative"))
	}
	for name := range c.Environments {
		if !deployment.Environment(name).Valid() {
			errs = append(errs, fmt.Errorf("environments.%s: unknown environment", name))
		}
	}

	return errors.Join(errs...)
}
