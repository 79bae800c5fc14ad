package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/infractl/cmd/infractl/handlers"
)

// Doctor returns the command that checks every prerequisite of a
// deployment and reports all results instead of stopping at the first
// failure.
//
// It accepts the same arguments and flags as a deployment, so that
// --skip-provisioning or --skip-configuration narrow the checks the same
// way.
func Doctor() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "doctor [environment] [action]",
		Short: "Check tools, credentials and project files",
		Long: `Check every prerequisite of a deployment: required and optional tools on
PATH, the cloud credential identity and the environment variable file and
playbook entry point.

Examples:
  # Check what a dev apply needs
  infractl doctor

  # Check a prod plan without configuration
  infractl doctor prod plan --skip-configuration`,
		Args:      cobra.MaximumNArgs(2),
		ValidArgs: validArgs(),
	}

	lookup := bindDeployFlags(cmd.Flags())
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: infractl.yaml)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return handlers.Doctor(cmd.Context(), handlers.DeployOptions{
			Args:       args,
			Lookup:     lookup,
			ConfigPath: configPath,
		})
	}
	return cmd
}
