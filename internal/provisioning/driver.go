package provisioning

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/infractl/internal/config"
	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/outputs"
	"github.com/imamik/infractl/internal/util/fileutil"
	"github.com/imamik/infractl/internal/util/naming"
)

// ErrConfirmationRequired is returned by Destroy when the confirmation
// token is missing or wrong.
var ErrConfirmationRequired = errors.New("destroy requires the confirmation token")

// dataDir is the directory init creates inside the working directory.
const dataDir = ".terraform"

// Outcome is the tri-state result of a plan.
type Outcome string

// Plan outcomes.
const (
	NoChanges      Outcome = "no-changes"
	ChangesPending Outcome = "changes-pending"
	Error          Outcome = "error"
)

// PlanResult is the result of Driver.Plan.
type PlanResult struct {
	Outcome Outcome `json:"outcome"`
	// Artifact is nil in dry-run mode and on error.
	Artifact *PlanArtifact `json:"artifact,omitempty"`
}

// Driver sequences provisioning tool calls for one project.
type Driver struct {
	tool     Tool
	cfg      *config.Config
	timeouts *config.Timeouts
	dryRun   bool
	log      logr.Logger
	now      func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithClock overrides the time source used to name artifacts.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// WithDryRun replaces mutating calls with intent logs.
func WithDryRun(dryRun bool) Option {
	return func(d *Driver) { d.dryRun = dryRun }
}

// NewDriver creates a Driver.
func NewDriver(tool Tool, cfg *config.Config, timeouts *config.Timeouts, log logr.Logger, opts ...Option) *Driver {
	d := &Driver{
		tool:     tool,
		cfg:      cfg,
		timeouts: timeouts,
		log:      log.WithName("provisioning"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Prepare initializes the working directory and selects the workspace of
// env. It returns false when dry-run prevented a step that changes tool
// state: initializing a fresh directory, or selecting or creating the
// workspace. A plan is meaningless in that case.
func (d *Driver) Prepare(ctx context.Context, env deployment.Environment) (bool, error) {
	if d.dryRun {
		if !fileutil.Exists(filepath.Join(d.cfg.Paths.TerraformDir, dataDir)) {
			d.log.Info("dry-run: would initialize working directory", "dir", d.cfg.Paths.TerraformDir)
			return false, nil
		}
	} else {
		initCtx, cancel := context.WithTimeout(ctx, d.timeouts.Init)
		defer cancel()
		if err := d.tool.Init(initCtx); err != nil {
			return false, fmt.Errorf("init failed: %w", err)
		}
	}

	if !d.cfg.Terraform.Workspaces {
		return true, nil
	}

	names, current, err := d.tool.Workspaces(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list workspaces: %w", err)
	}
	name := env.String()
	exists := slices.Contains(names, name)
	switch {
	case current == name:
		return true, nil
	case d.dryRun && exists:
		d.log.Info("dry-run: would select workspace", "workspace", name, "previous", current)
		return false, nil
	case d.dryRun:
		d.log.Info("dry-run: would create workspace", "workspace", name)
		return false, nil
	case exists:
		d.log.V(1).Info("selecting workspace", "workspace", name, "previous", current)
		if err := d.tool.SelectWorkspace(ctx, name); err != nil {
			return false, fmt.Errorf("failed to select workspace %s: %w", name, err)
		}
		return true, nil
	default:
		d.log.Info("creating workspace", "workspace", name)
		if err := d.tool.NewWorkspace(ctx, name); err != nil {
			return false, fmt.Errorf("failed to create workspace %s: %w", name, err)
		}
		return true, nil
	}
}

// Validate runs static validation. Invalid configuration is reported as a
// *deployment.ValidationError carrying the tool diagnostics verbatim.
func (d *Driver) Validate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeouts.Validate)
	defer cancel()

	res, err := d.tool.Validate(ctx)
	if err != nil {
		return fmt.Errorf("validate failed: %w", err)
	}
	if !res.Valid {
		return &deployment.ValidationError{Diagnostics: res.Diagnostics}
	}
	return nil
}

// Plan produces a plan artifact for env. "No changes" is a normal outcome.
// In dry-run mode the plan is computed without an artifact and without
// taking the state lock.
func (d *Driver) Plan(ctx context.Context, env deployment.Environment) (PlanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeouts.Plan)
	defer cancel()

	varFile := d.cfg.VarFile(env)
	opts := PlanOptions{
		VarFile:     varFile,
		Lock:        !d.dryRun,
		LockTimeout: d.cfg.Terraform.LockTimeout,
	}

	var artifact *PlanArtifact
	if !d.dryRun {
		digest, err := Fingerprint(varFile)
		if err != nil {
			return PlanResult{Outcome: Error}, &deployment.PlanError{Environment: env, Err: err}
		}
		if err := os.MkdirAll(d.cfg.Paths.Plans, 0o750); err != nil {
			return PlanResult{Outcome: Error}, &deployment.PlanError{Environment: env, Err: err}
		}
		created := d.now().UTC().Truncate(time.Second)
		artifact = &PlanArtifact{
			Environment:   env,
			Path:          filepath.Join(d.cfg.Paths.Plans, naming.PlanArtifact(env.String(), created)),
			CreatedAt:     created,
			VarFileDigest: digest,
		}
		opts.Out = artifact.Path
	}

	changes, err := d.tool.Plan(ctx, opts)
	if err != nil {
		if artifact != nil {
			_ = discard(artifact)
		}
		return PlanResult{Outcome: Error}, d.wrap(err, func(err error) error {
			return &deployment.PlanError{Environment: env, Err: err}
		})
	}

	outcome := NoChanges
	if changes {
		outcome = ChangesPending
	}

	if artifact != nil {
		if err := writeSidecar(artifact, varFile); err != nil {
			_ = discard(artifact)
			return PlanResult{Outcome: Error}, &deployment.PlanError{Environment: env, Err: err}
		}
	}

	d.log.Info("plan finished", "environment", env, "outcome", outcome)
	return PlanResult{Outcome: outcome, Artifact: artifact}, nil
}

// Apply applies exactly the given artifact and persists the resulting
// outputs. An artifact that fails its preconditions is deleted and never
// applied.
func (d *Driver) Apply(ctx context.Context, env deployment.Environment, artifact *PlanArtifact) (outputs.Set, error) {
	if d.dryRun {
		name := "<none>"
		if artifact != nil {
			name = artifact.Name()
		}
		d.log.Info("dry-run: would apply plan", "environment", env, "artifact", name)
		return nil, nil
	}

	if err := verify(artifact, env, d.cfg.VarFile(env)); err != nil {
		if artifact != nil {
			if rmErr := discard(artifact); rmErr != nil {
				d.log.Error(rmErr, "failed to discard plan artifact", "artifact", artifact.Path)
			} else {
				d.log.Info("discarded plan artifact", "artifact", artifact.Name(), "reason", err.Error())
			}
		}
		return nil, &deployment.ApplyError{Environment: env, Err: err}
	}

	applyCtx, cancel := context.WithTimeout(ctx, d.timeouts.Apply)
	defer cancel()
	if err := d.tool.Apply(applyCtx, artifact.Path); err != nil {
		return nil, d.wrap(err, func(err error) error {
			return &deployment.ApplyError{Environment: env, Err: err}
		})
	}

	set, err := d.fetchOutputs(ctx)
	if err != nil {
		return nil, &deployment.ApplyError{Environment: env, Err: err}
	}
	if err := set.Save(d.cfg.Paths.Outputs); err != nil {
		return nil, &deployment.ApplyError{Environment: env, Err: err}
	}
	d.log.Info("outputs saved", "path", d.cfg.Paths.Outputs, "count", len(set))
	return set, nil
}

// CurrentOutputs returns the outputs of the already applied state. It is
// used when a plan has no changes: the persisted outputs are reused as is,
// and only fetched from the tool when none were persisted yet.
func (d *Driver) CurrentOutputs(ctx context.Context, env deployment.Environment) (outputs.Set, error) {
	set, err := outputs.Load(d.cfg.Paths.Outputs)
	if err == nil {
		return set, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	set, err = d.fetchOutputs(ctx)
	if err != nil {
		return nil, &deployment.ApplyError{Environment: env, Err: err}
	}
	if d.dryRun {
		d.log.Info("dry-run: would save outputs", "path", d.cfg.Paths.Outputs)
		return set, nil
	}
	if err := set.Save(d.cfg.Paths.Outputs); err != nil {
		return nil, err
	}
	return set, nil
}

// Destroy tears down env. The token must equal deployment.DestroyToken(env);
// otherwise the tool is never called.
func (d *Driver) Destroy(ctx context.Context, env deployment.Environment, token string) error {
	if d.dryRun {
		d.log.Info("dry-run: would destroy all resources", "environment", env, "varFile", d.cfg.VarFile(env))
		return nil
	}
	if token != deployment.DestroyToken(env) {
		return &deployment.DestroyError{
			Environment: env,
			Err:         fmt.Errorf("%w %q", ErrConfirmationRequired, deployment.DestroyToken(env)),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeouts.Destroy)
	defer cancel()
	err := d.tool.Destroy(ctx, DestroyOptions{
		VarFile:     d.cfg.VarFile(env),
		LockTimeout: d.cfg.Terraform.LockTimeout,
	})
	if err != nil {
		return d.wrap(err, func(err error) error {
			return &deployment.DestroyError{Environment: env, Err: err}
		})
	}

	// Outputs describe resources that no longer exist.
	if err := os.Remove(d.cfg.Paths.Outputs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		d.log.Error(err, "failed to remove stale outputs", "path", d.cfg.Paths.Outputs)
	}
	return nil
}

// PruneArtifacts keeps the newest plan artifacts of env up to the
// configured retention and deletes the rest. It returns the removed paths.
func (d *Driver) PruneArtifacts(env deployment.Environment) ([]string, error) {
	artifacts, err := ListArtifacts(d.cfg.Paths.Plans, env)
	if err != nil {
		return nil, err
	}
	keep := d.cfg.Terraform.PlanRetention
	if len(artifacts) <= keep {
		return nil, nil
	}

	var removed []string
	var errs []error
	for _, a := range artifacts[keep:] {
		if d.dryRun {
			d.log.Info("dry-run: would delete plan artifact", "artifact", a.Name())
			continue
		}
		if err := discard(&a); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, a.Path)
	}
	if len(removed) > 0 {
		d.log.V(1).Info("pruned plan artifacts", "environment", env, "removed", len(removed), "kept", keep)
	}
	return removed, errors.Join(errs...)
}

func (d *Driver) fetchOutputs(ctx context.Context) (outputs.Set, error) {
	set, err := d.tool.Output(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read outputs: %w", err)
	}
	return set, nil
}

// wrap passes state lock errors through unchanged and wraps everything
// else with the stage-specific error.
func (d *Driver) wrap(err error, stageErr func(error) error) error {
	var locked *deployment.StateLockedError
	if errors.As(err, &locked) {
		return locked
	}
	return stageErr(err)
}
