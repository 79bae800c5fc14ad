package provisioning

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/util/fileutil"
	"github.com/imamik/infractl/internal/util/naming"
)

// Errors returned when a plan artifact fails its preconditions.
var (
	ErrNoArtifact          = errors.New("no reviewed plan artifact")
	ErrArtifactMissing     = errors.New("plan artifact no longer exists")
	ErrArtifactEnvironment = errors.New("plan artifact belongs to a different environment")
	ErrArtifactStale       = errors.New("variable file changed since the plan was produced")
)

// SidecarExtension is appended to an artifact path to name its fingerprint file.
const SidecarExtension = ".sha256"

// PlanArtifact is a reviewed, not yet applied, plan file.
type PlanArtifact struct {
	Environment deployment.Environment `json:"environment"`
	Path        string                 `json:"path"`
	CreatedAt   time.Time              `json:"createdAt"`
	// VarFileDigest fingerprints the variable file the plan was made with.
	VarFileDigest string `json:"varFileDigest,omitempty"`
}

// SidecarPath returns the fingerprint file of the artifact.
func (a *PlanArtifact) SidecarPath() string {
	return a.Path + SidecarExtension
}

// Name returns the artifact file name.
func (a *PlanArtifact) Name() string {
	return filepath.Base(a.Path)
}

// Fingerprint returns the hex SHA-256 of the file at path.
func Fingerprint(path string) (string, error) {
	// #nosec G304 - variable files come from project configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint %s: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// writeSidecar records the var-file fingerprint next to the artifact in
// sha256sum format.
func writeSidecar(a *PlanArtifact, varFile string) error {
	line := fmt.Sprintf("%s  %s\n", a.VarFileDigest, filepath.Base(varFile))
	return fileutil.WriteAtomic(a.SidecarPath(), []byte(line), 0o600)
}

func readSidecar(a *PlanArtifact) (string, error) {
	// #nosec G304 - sidecar path is derived from the artifact path
	data, err := os.ReadFile(a.SidecarPath())
	if err != nil {
		return "", err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", fmt.Errorf("empty fingerprint file %s", a.SidecarPath())
	}
	return fields[0], nil
}

// verify checks that a can still be applied to env with varFile.
func verify(a *PlanArtifact, env deployment.Environment, varFile string) error {
	if a == nil {
		return ErrNoArtifact
	}
	if a.Environment != env {
		return fmt.Errorf("%w: %s, not %s", ErrArtifactEnvironment, a.Environment, env)
	}
	if _, err := os.Stat(a.Path); err != nil {
		return fmt.Errorf("%w: %s", ErrArtifactMissing, a.Path)
	}

	recorded, err := readSidecar(a)
	if err != nil {
		return fmt.Errorf("%w: fingerprint unreadable: %v", ErrArtifactStale, err)
	}
	current, err := Fingerprint(varFile)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArtifactStale, err)
	}
	if recorded != current || (a.VarFileDigest != "" && a.VarFileDigest != current) {
		return fmt.Errorf("%w: %s", ErrArtifactStale, varFile)
	}
	return nil
}

// discard removes an artifact and its sidecar.
func discard(a *PlanArtifact) error {
	var errs []error
	for _, path := range []string{a.Path, a.SidecarPath()} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ListArtifacts returns the plan artifacts of env in dir, newest first.
func ListArtifacts(dir string, env deployment.Environment) ([]PlanArtifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list plan artifacts: %w", err)
	}

	var artifacts []PlanArtifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ts, ok := naming.ParsePlanArtifact(entry.Name())
		if !ok || name != env.String() {
			continue
		}
		artifacts = append(artifacts, PlanArtifact{
			Environment: env,
			Path:        filepath.Join(dir, entry.Name()),
			CreatedAt:   ts,
		})
	}

	slices.SortFunc(artifacts, func(a, b PlanArtifact) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.Path, a.Path)
	})
	return artifacts, nil
}
