package commands

import (
	"github.com/spf13/cobra"

	"github.com/imamik/infractl/cmd/infractl/handlers"
)

// Inventory returns the command that generates the Ansible inventory from
// saved Terraform outputs.
//
// Optional flags:
//
//	--output, -o: Inventory path, "-" for stdout (default: paths.inventory)
//	--format: yaml or json
//	--environment, -e: Environment whose defaults are applied
//	--validate: Check the generated inventory before writing it
func Inventory() *cobra.Command {
	var opts handlers.InventoryOptions

	cmd := &cobra.Command{
		Use:   "inventory [outputs-file]",
		Short: "Generate the Ansible inventory from Terraform outputs",
		Long: `Generate the Ansible inventory from a saved Terraform outputs file
(default: outputs.json) without running any deployment stage.

Examples:
  # Regenerate the dev inventory
  infractl inventory

  # Render a staging inventory as JSON on stdout
  infractl inventory staging-outputs.json -e staging --format json -o -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.OutputsPath = args[0]
			}
			return handlers.Inventory(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.OutputPath, "output", "o", "", "Inventory path, - for stdout (default: paths.inventory)")
	cmd.Flags().StringVar(&opts.Format, "format", "yaml", "Inventory format: yaml or json")
	cmd.Flags().StringVarP(&opts.Environment, "environment", "e", "dev", "Environment whose defaults are applied")
	cmd.Flags().BoolVar(&opts.Validate, "validate", false, "Validate the generated inventory")
	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to configuration file (default: infractl.yaml)")

	return cmd
}
