// Package backup takes timestamped snapshots of the provisioning state
// before mutating actions.
//
// A snapshot is a directory under the backups root named after the UTC
// time it was taken, holding copies of the state artifacts and a
// manifest.json. Snapshots are never modified after creation. They can be
// mirrored to an S3 bucket and are removed only by [Manager.Prune].
package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/infractl/internal/config"
	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/util/fileutil"
	"github.com/imamik/infractl/internal/util/naming"
	"github.com/imamik/infractl/internal/util/retry"
)

// ManifestFile is the name of the manifest inside every snapshot.
const ManifestFile = "manifest.json"

// Mirror stores snapshot files remotely. *s3.Client implements it.
type Mirror interface {
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

// Snapshot is one backup directory.
type Snapshot struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"createdAt"`
	Files     []string  `json:"files"`
	// Remote is the mirror location, empty when not mirrored.
	Remote string `json:"remote,omitempty"`
}

// Manifest describes the contents of a snapshot.
type Manifest struct {
	Snapshot    string                 `json:"snapshot"`
	CreatedAt   time.Time              `json:"createdAt"`
	Environment deployment.Environment `json:"environment"`
	Action      deployment.Action      `json:"action,omitempty"`
	Files       []ManifestEntry        `json:"files"`
}

// ManifestEntry is one copied artifact.
type ManifestEntry struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Manager creates, lists and prunes snapshots of one environment.
type Manager struct {
	cfg    *config.Config
	env    deployment.Environment
	action deployment.Action
	log    logr.Logger
	dryRun bool
	now    func() time.Time
	mirror Mirror
	retry  []retry.Option
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithDryRun turns Create into an intent log.
func WithDryRun(dryRun bool) Option {
	return func(m *Manager) { m.dryRun = dryRun }
}

// WithMirror uploads every snapshot to the configured bucket.
func WithMirror(mirror Mirror) Option {
	return func(m *Manager) { m.mirror = mirror }
}

// WithAction records the action that triggered the snapshot in the manifest.
func WithAction(action deployment.Action) Option {
	return func(m *Manager) { m.action = action }
}

// WithRetry sets the retry policy of mirror uploads.
func WithRetry(opts ...retry.Option) Option {
	return func(m *Manager) { m.retry = opts }
}

// NewManager creates a Manager.
func NewManager(cfg *config.Config, env deployment.Environment, log logr.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg: cfg,
		env: env,
		log: log.WithName("backup"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create snapshots the state artifacts that exist. It returns (nil, nil)
// when there is nothing to back up yet, and in dry-run mode.
func (m *Manager) Create(ctx context.Context) (*Snapshot, error) {
	var sources []string
	for _, path := range m.cfg.StateArtifacts(m.env) {
		if fileutil.Exists(path) {
			sources = append(sources, path)
		}
	}
	if len(sources) == 0 {
		m.log.Info("no state artifacts yet, skipping backup", "environment", m.env)
		return nil, nil
	}

	created := m.now().UTC().Truncate(time.Second)
	if m.dryRun {
		m.log.Info("dry-run: would create backup snapshot",
			"snapshot", filepath.Join(m.cfg.Paths.Backups, naming.Snapshot(created)),
			"files", len(sources))
		return nil, nil
	}

	dir, name, err := m.reserve(created)
	if err != nil {
		return nil, err
	}

	manifest := Manifest{
		Snapshot:    name,
		CreatedAt:   created,
		Environment: m.env,
		Action:      m.action,
	}
	snap := &Snapshot{Name: name, Path: dir, CreatedAt: created}
	if err := populate(dir, sources, &manifest, snap); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			m.log.Error(rmErr, "failed to remove incomplete snapshot", "snapshot", name)
		}
		return nil, err
	}
	m.log.Info("backup snapshot created", "snapshot", name, "files", len(snap.Files))

	if m.mirroring() {
		remote, err := m.upload(ctx, snap)
		if err != nil {
			m.log.Error(err, "failed to mirror snapshot, local copy kept", "snapshot", name, "bucket", m.cfg.Backup.Bucket)
		} else {
			snap.Remote = remote
		}
	}
	return snap, nil
}

// reserve creates the snapshot directory, adding a -N suffix when a
// snapshot with the same second already exists.
func (m *Manager) reserve(created time.Time) (string, string, error) {
	if err := os.MkdirAll(m.cfg.Paths.Backups, 0o750); err != nil {
		return "", "", fmt.Errorf("failed to create backups directory: %w", err)
	}
	base := naming.Snapshot(created)
	for i := 0; ; i++ {
		name := base
		if i > 0 {
			name = base + "-" + strconv.Itoa(i)
		}
		dir := filepath.Join(m.cfg.Paths.Backups, name)
		err := os.Mkdir(dir, 0o750)
		if err == nil {
			return dir, name, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", "", fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}
}

// populate copies sources into dir and writes the manifest last. A
// directory without a manifest is incomplete.
func populate(dir string, sources []string, manifest *Manifest, snap *Snapshot) error {
	for _, src := range sources {
		entry, err := copyArtifact(src, dir)
		if err != nil {
			return fmt.Errorf("failed to back up %s: %w", src, err)
		}
		manifest.Files = append(manifest.Files, entry)
		snap.Files = append(snap.Files, entry.Name)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := fileutil.WriteAtomic(filepath.Join(dir, ManifestFile), append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// copyArtifact writes the bytes it hashes, so the manifest always
// describes the copy.
func copyArtifact(src, dir string) (ManifestEntry, error) {
	info, err := os.Stat(src)
	if err != nil {
		return ManifestEntry{}, err
	}
	// #nosec G304 - sources are the configured state artifacts
	data, err := os.ReadFile(src)
	if err != nil {
		return ManifestEntry{}, err
	}
	name := filepath.Base(src)
	if err := fileutil.WriteAtomic(filepath.Join(dir, name), data, info.Mode().Perm()); err != nil {
		return ManifestEntry{}, err
	}
	sum := sha256.Sum256(data)
	return ManifestEntry{
		Name:   name,
		Source: src,
		Size:   int64(len(data)),
		SHA256: hex.EncodeToString(sum[:]),
	}, nil
}

func (m *Manager) mirroring() bool {
	return m.mirror != nil && m.cfg.Backup.Bucket != ""
}

func (m *Manager) remotePrefix(name string) string {
	if m.cfg.Backup.Prefix == "" {
		return name + "/"
	}
	return m.cfg.Backup.Prefix + "/" + name + "/"
}

func (m *Manager) upload(ctx context.Context, snap *Snapshot) (string, error) {
	prefix := m.remotePrefix(snap.Name)
	files := append([]string{ManifestFile}, snap.Files...)
	for _, file := range files {
		data, err := os.ReadFile(filepath.Join(snap.Path, file))
		if err != nil {
			return "", err
		}
		key := prefix + file
		err = retry.Do(ctx, func(ctx context.Context) error {
			return m.mirror.PutObject(ctx, m.cfg.Backup.Bucket, key, data)
		}, m.retry...)
		if err != nil {
			return "", err
		}
	}
	remote := fmt.Sprintf("s3://%s/%s", m.cfg.Backup.Bucket, prefix)
	m.log.V(1).Info("snapshot mirrored", "snapshot", snap.Name, "remote", remote)
	return remote, nil
}
