// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument parsing,
// flag binding, and validation. Command execution is delegated to handler
// functions in the handlers package.
package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/imamik/infractl/cmd/infractl/handlers"
	"github.com/imamik/infractl/internal/deployment"
)

// Root returns the root command for the infractl CLI.
//
// Without a subcommand the root command runs a deployment:
//
//	infractl [environment] [action] [flags]
//
// Every flag has an environment variable of the same meaning (DRY_RUN,
// SKIP_PROVISIONING, ...). Positional arguments win over ENVIRONMENT and
// ACTION.
func Root() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "infractl [environment] [action]",
		Short: "Provision infrastructure with Terraform and configure it with Ansible",
		Long: `Deploy an environment end to end: validate prerequisites, snapshot state,
plan and apply infrastructure changes, generate the Ansible inventory from the
Terraform outputs, run the playbook and verify the result.

Environments: dev, staging, prod (default: dev)
Actions:      plan, apply, destroy (default: apply)

Examples:
  # Review changes for staging
  infractl staging plan

  # Apply to dev without touching hosts
  infractl dev apply --skip-configuration

  # Reconfigure prod hosts from the last saved outputs
  infractl prod apply --skip-provisioning --yes

  # Tear down dev
  infractl dev destroy --confirm-destroy destroy-dev`,
		Args:          cobra.MaximumNArgs(2),
		ValidArgs:     validArgs(),
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	lookup := bindDeployFlags(cmd.Flags())
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: infractl.yaml)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return handlers.Deploy(cmd.Context(), handlers.DeployOptions{
			Args:       args,
			Lookup:     lookup,
			ConfigPath: configPath,
		})
	}

	cmd.AddCommand(Doctor())
	cmd.AddCommand(Inventory())
	cmd.AddCommand(Backups())
	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}

// bindDeployFlags registers the deployment flags and returns a lookup that
// prefers a flag set on the command line over the environment variable of
// the same meaning.
func bindDeployFlags(flags *pflag.FlagSet) deployment.LookupFunc {
	flags.Bool("skip-provisioning", false, "Skip Terraform and reuse the saved outputs")
	flags.Bool("skip-configuration", false, "Skip the Ansible playbook run")
	flags.Bool("dry-run", false, "Show what would happen without changing anything")
	flags.Bool("debug", false, "Enable debug logging")
	flags.BoolP("yes", "y", false, "Apply without asking for confirmation")
	flags.String("confirm-destroy", "", "Destroy confirmation token (destroy-<environment>)")

	v := viper.New()
	for name, key := range map[string]string{
		"skip-provisioning":  deployment.VarSkipProvisioning,
		"skip-configuration": deployment.VarSkipConfiguration,
		"dry-run":            deployment.VarDryRun,
		"debug":              deployment.VarDebug,
		"yes":                deployment.VarAutoApprove,
		"confirm-destroy":    deployment.VarConfirmDestroy,
	} {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}
	v.AutomaticEnv()

	return func(name string) (string, bool) {
		if !v.IsSet(name) {
			return "", false
		}
		return v.GetString(name), true
	}
}

func validArgs() []string {
	var args []string
	for _, e := range deployment.Environments() {
		args = append(args, e.String())
	}
	for _, a := range deployment.Actions() {
		args = append(args, a.String())
	}
	return args
}
