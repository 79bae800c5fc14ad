package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/imamik/infractl/internal/util/fileutil"
	"github.com/imamik/infractl/internal/util/naming"
)

// List returns the snapshots in the backups directory, oldest first.
// Entries that are not snapshot directories are ignored.
func (m *Manager) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(m.cfg.Paths.Backups)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backups directory: %w", err)
	}

	var snaps []Snapshot
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		created, ok := naming.SnapshotTime(e.Name())
		if !ok {
			continue
		}
		snap := Snapshot{
			Name:      e.Name(),
			Path:      filepath.Join(m.cfg.Paths.Backups, e.Name()),
			CreatedAt: created,
		}
		if manifest, err := readManifest(snap.Path); err == nil {
			for _, f := range manifest.Files {
				snap.Files = append(snap.Files, f.Name)
			}
		}
		snaps = append(snaps, snap)
	}
	slices.SortFunc(snaps, func(a, b Snapshot) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return snaps, nil
}

// Prune deletes snapshots older than maxAge, including their mirrored
// copies. It returns the removed snapshots.
func (m *Manager) Prune(ctx context.Context, maxAge time.Duration) ([]Snapshot, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("retention must be positive, got %s", maxAge)
	}
	snaps, err := m.List()
	if err != nil {
		return nil, err
	}
	cutoff := m.now().UTC().Add(-maxAge)

	var removed []Snapshot
	var errs []error
	for _, snap := range snaps {
		if !snap.CreatedAt.Before(cutoff) {
			continue
		}
		if m.dryRun {
			m.log.Info("dry-run: would delete snapshot", "snapshot", snap.Name)
			continue
		}
		if err := os.RemoveAll(snap.Path); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", snap.Name, err))
			continue
		}
		if m.mirroring() {
			if err := m.deleteRemote(ctx, snap.Name); err != nil {
				errs = append(errs, err)
			}
		}
		removed = append(removed, snap)
	}
	if len(removed) > 0 {
		m.log.Info("pruned snapshots", "removed", len(removed), "olderThan", maxAge.String())
	}
	return removed, errors.Join(errs...)
}

func (m *Manager) deleteRemote(ctx context.Context, name string) error {
	keys, err := m.mirror.ListObjects(ctx, m.cfg.Backup.Bucket, m.remotePrefix(name))
	if err != nil {
		return err
	}
	var errs []error
	for _, key := range keys {
		if err := m.mirror.DeleteObject(ctx, m.cfg.Backup.Bucket, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EmergencyCopy copies every existing state artifact next to the
// snapshots as <artifact>.error.<timestamp>. It returns the written paths.
func (m *Manager) EmergencyCopy() ([]string, error) {
	if m.dryRun {
		m.log.Info("dry-run: would write emergency copies", "dir", m.cfg.Paths.Backups)
		return nil, nil
	}
	stamp := m.now()
	var written []string
	var errs []error
	for _, src := range m.cfg.StateArtifacts(m.env) {
		if !fileutil.Exists(src) {
			continue
		}
		dst := filepath.Join(m.cfg.Paths.Backups, naming.EmergencyCopy(filepath.Base(src), stamp))
		if err := os.MkdirAll(m.cfg.Paths.Backups, 0o750); err != nil {
			return written, fmt.Errorf("failed to create backups directory: %w", err)
		}
		if err := fileutil.CopyAtomic(src, dst); err != nil {
			errs = append(errs, fmt.Errorf("failed to copy %s: %w", src, err))
			continue
		}
		written = append(written, dst)
	}
	if len(written) > 0 {
		m.log.Info("emergency copies written", "paths", written)
	}
	return written, errors.Join(errs...)
}

func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest in %s: %w", dir, err)
	}
	return &manifest, nil
}
