package terraform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"

	"github.com/hashicorp/terraform-exec/tfexec"

	"github.com/imamik/infractl/internal/outputs"
	"github.com/imamik/infractl/internal/provisioning"
)

// Adapter drives the terraform binary in one working directory.
type Adapter struct {
	tf     *tfexec.Terraform
	stderr *tailBuffer
}

var _ provisioning.Tool = (*Adapter)(nil)

// New creates an adapter for the configuration in dir. binary is looked
// up on PATH unless it is a path already. Tool output is copied to stdout
// and stderr; either may be nil.
func New(dir, binary string, stdout, stderr io.Writer) (*Adapter, error) {
	execPath := binary
	if !filepath.IsAbs(binary) {
		resolved, err := exec.LookPath(binary)
		if err != nil {
			return nil, fmt.Errorf("failed to find %s: %w", binary, err)
		}
		execPath = resolved
	}

	tf, err := tfexec.NewTerraform(dir, execPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create terraform runner: %w", err)
	}

	tail := newTailBuffer(16 * 1024)
	if stdout != nil {
		tf.SetStdout(stdout)
	}
	if stderr != nil {
		tf.SetStderr(io.MultiWriter(stderr, tail))
	} else {
		tf.SetStderr(tail)
	}

	return &Adapter{tf: tf, stderr: tail}, nil
}

// Init runs terraform init.
func (a *Adapter) Init(ctx context.Context) error {
	return a.check(a.tf.Init(ctx))
}

// Workspaces lists workspaces and the current one.
func (a *Adapter) Workspaces(ctx context.Context) ([]string, string, error) {
	names, current, err := a.tf.WorkspaceList(ctx)
	return names, current, a.check(err)
}

// SelectWorkspace switches to an existing workspace.
func (a *Adapter) SelectWorkspace(ctx context.Context, name string) error {
	return a.check(a.tf.WorkspaceSelect(ctx, name))
}

// NewWorkspace creates and selects a workspace.
func (a *Adapter) NewWorkspace(ctx context.Context, name string) error {
	return a.check(a.tf.WorkspaceNew(ctx, name))
}

// Validate runs terraform validate and renders its diagnostics.
func (a *Adapter) Validate(ctx context.Context) (provisioning.ValidateResult, error) {
	out, err := a.tf.Validate(ctx)
	if err != nil {
		return provisioning.ValidateResult{}, a.check(err)
	}
	return provisioning.ValidateResult{
		Valid:       out.Valid,
		Diagnostics: RenderDiagnostics(out.Diagnostics),
	}, nil
}

// Plan runs terraform plan with detailed exit codes.
func (a *Adapter) Plan(ctx context.Context, opts provisioning.PlanOptions) (bool, error) {
	planOpts := []tfexec.PlanOption{
		tfexec.Lock(opts.Lock),
	}
	if opts.VarFile != "" {
		planOpts = append(planOpts, tfexec.VarFile(opts.VarFile))
	}
	if opts.Out != "" {
		planOpts = append(planOpts, tfexec.Out(opts.Out))
	}
	if opts.Lock {
		planOpts = append(planOpts, tfexec.LockTimeout(opts.LockTimeout.String()))
	}

	a.stderr.Reset()
	changes, err := a.tf.Plan(ctx, planOpts...)
	return changes, a.check(err)
}

// Apply applies a saved plan file.
func (a *Adapter) Apply(ctx context.Context, planFile string) error {
	a.stderr.Reset()
	return a.check(a.tf.Apply(ctx, tfexec.DirOrPlan(planFile)))
}

// Destroy runs terraform destroy.
func (a *Adapter) Destroy(ctx context.Context, opts provisioning.DestroyOptions) error {
	destroyOpts := []tfexec.DestroyOption{
		tfexec.LockTimeout(opts.LockTimeout.String()),
	}
	if opts.VarFile != "" {
		destroyOpts = append(destroyOpts, tfexec.VarFile(opts.VarFile))
	}

	a.stderr.Reset()
	return a.check(a.tf.Destroy(ctx, destroyOpts...))
}

// Output reads all root module outputs.
func (a *Adapter) Output(ctx context.Context) (outputs.Set, error) {
	meta, err := a.tf.Output(ctx)
	if err != nil {
		return nil, a.check(err)
	}
	return ConvertOutputs(meta)
}

// ConvertOutputs converts terraform-exec output metadata into a Set.
func ConvertOutputs(meta map[string]tfexec.OutputMeta) (outputs.Set, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode outputs: %w", err)
	}
	return outputs.Parse(data)
}

// check turns lock contention into a StateLockedError.
func (a *Adapter) check(err error) error {
	if err == nil {
		return nil
	}
	if locked := LockError(err, a.stderr.String()); locked != nil {
		return locked
	}
	return err
}
