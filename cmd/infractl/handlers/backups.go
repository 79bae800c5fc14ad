package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/infractl/internal/backup"
	"github.com/imamik/infractl/internal/config"
	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/ui"
)

// now is the clock used for snapshot ages; replaced in tests.
var now = time.Now

// BackupsList prints the snapshots in the backups directory, oldest first.
func BackupsList(configPath string) error {
	manager, _, err := backupManager(context.Background(), configPath, false, logr.Discard())
	if err != nil {
		return err
	}
	snaps, err := manager.List()
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Fprintln(stdout, "No snapshots found.")
		return nil
	}

	rows := make([][]string, 0, len(snaps))
	for _, s := range snaps {
		rows = append(rows, []string{
			s.Name,
			s.CreatedAt.Format(time.RFC3339),
			now().Sub(s.CreatedAt).Truncate(time.Minute).String(),
			strconv.Itoa(len(s.Files)),
			strings.Join(s.Files, ", "),
		})
	}
	fmt.Fprintln(stdout, ui.Table([]string{"Snapshot", "Created", "Age", "Files", "Contents"}, rows))
	return nil
}

// BackupsPrune deletes snapshots older than olderThan, including their
// mirrored copies. A zero olderThan uses backup.max_age from the
// configuration.
func BackupsPrune(ctx context.Context, configPath string, olderThan time.Duration, dryRun bool) error {
	log, flush, err := newLogger(false)
	if err != nil {
		return err
	}
	defer flush()

	manager, cfg, err := backupManager(ctx, configPath, dryRun, log)
	if err != nil {
		return err
	}
	if olderThan == 0 {
		olderThan = cfg.Backup.MaxAge
	}

	removed, err := manager.Prune(ctx, olderThan)
	for _, s := range removed {
		fmt.Fprintf(stdout, "Deleted %s\n", s.Name)
	}
	if err != nil {
		return err
	}
	if len(removed) == 0 && !dryRun {
		fmt.Fprintf(stdout, "No snapshots older than %s.\n", olderThan)
	}
	return nil
}

func backupManager(ctx context.Context, configPath string, dryRun bool, log logr.Logger) (*backup.Manager, *config.Config, error) {
	dir, err := workDir()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to determine working directory: %w", err)
	}
	cfg, err := loadConfig(configPath, dir)
	if err != nil {
		return nil, nil, err
	}

	opts := []backup.Option{backup.WithDryRun(dryRun), backup.WithClock(now)}
	if cfg.Backup.Bucket != "" {
		mirror, err := newMirror(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create snapshot mirror: %w", err)
		}
		opts = append(opts, backup.WithMirror(mirror))
	}
	return backup.NewManager(cfg, deployment.DefaultEnvironment, log, opts...), cfg, nil
}
