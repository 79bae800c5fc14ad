package provisioning

import (
	"context"
	"time"

	"github.com/imamik/infractl/internal/outputs"
)

// Tool is the typed surface of the provisioning tool. Implementations
// return *deployment.StateLockedError when the state is held elsewhere.
type Tool interface {
	Init(ctx context.Context) error
	Workspaces(ctx context.Context) (names []string, current string, err error)
	SelectWorkspace(ctx context.Context, name string) error
	NewWorkspace(ctx context.Context, name string) error
	Validate(ctx context.Context) (ValidateResult, error)
	// Plan reports whether the plan contains changes.
	Plan(ctx context.Context, opts PlanOptions) (bool, error)
	Apply(ctx context.Context, planFile string) error
	Destroy(ctx context.Context, opts DestroyOptions) error
	Output(ctx context.Context) (outputs.Set, error)
}

// ValidateResult is the outcome of static validation.
type ValidateResult struct {
	Valid bool
	// Diagnostics is the tool's diagnostic text, unmodified.
	Diagnostics string
}

// PlanOptions parameterizes a plan.
type PlanOptions struct {
	VarFile string
	// Out is where the plan artifact is written; empty means no artifact.
	Out         string
	Lock        bool
	LockTimeout time.Duration
}

// DestroyOptions parameterizes a destroy.
type DestroyOptions struct {
	VarFile     string
	LockTimeout time.Duration
}
