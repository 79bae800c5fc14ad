package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/imamik/infractl/cmd/infractl/handlers"
)

// Backups returns the command group for state snapshots.
func Backups() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List and prune state snapshots",
	}
	cmd.AddCommand(backupsList())
	cmd.AddCommand(backupsPrune())
	return cmd
}

func backupsList() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List state snapshots, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return handlers.BackupsList(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: infractl.yaml)")
	return cmd
}

func backupsPrune() *cobra.Command {
	var (
		configPath string
		olderThan  time.Duration
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete state snapshots older than a retention period",
		Long: `Delete state snapshots older than a retention period, including their
copies in the backup bucket when one is configured.

Examples:
  # Apply the configured retention (backup.max_age)
  infractl backups prune

  # Show what a one week retention would delete
  infractl backups prune --older-than 168h --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.BackupsPrune(cmd.Context(), configPath, olderThan, dryRun)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: infractl.yaml)")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Retention period (default: backup.max_age)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be deleted")
	return cmd
}
