package deployment

import (
	"errors"
	"fmt"
	"strings"
)

// Process exit codes.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// ErrInterrupted marks a run stopped by an external interrupt.
var ErrInterrupted = errors.New("deployment interrupted")

var errInvalidBool = errors.New("invalid boolean")

// InvalidRequestError rejects an unknown environment, action or flag value.
type InvalidRequestError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid %s %q (allowed: %s)", e.Field, e.Value, strings.Join(e.Allowed, ", "))
}

// PrerequisiteKind names the class of a failed prerequisite.
type PrerequisiteKind string

// Prerequisite kinds.
const (
	PrerequisiteTool        PrerequisiteKind = "tool"
	PrerequisiteCredentials PrerequisiteKind = "credentials"
	PrerequisiteFile        PrerequisiteKind = "file"
)

// PrerequisiteError reports the first missing requirement found during pre-flight.
type PrerequisiteError struct {
	Kind        PrerequisiteKind
	Requirement string
	Err         error
}

func (e *PrerequisiteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("prerequisite %s %q not satisfied: %v", e.Kind, e.Requirement, e.Err)
	}
	return fmt.Sprintf("prerequisite %s %q not satisfied", e.Kind, e.Requirement)
}

func (e *PrerequisiteError) Unwrap() error { return e.Err }

// ValidationError carries the provisioning tool's validation diagnostics verbatim.
type ValidationError struct {
	Diagnostics string
}

func (e *ValidationError) Error() string {
	return "configuration is invalid:\n" + e.Diagnostics
}

// Diagnostic returns the tool output.
func (e *ValidationError) Diagnostic() string { return e.Diagnostics }

// PlanError is a failed plan, as opposed to a plan with no changes.
type PlanError struct {
	Environment Environment
	Err         error
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("plan for %s failed: %v", e.Environment, e.Err)
}

func (e *PlanError) Unwrap() error { return e.Err }

// ApplyError is a failed apply. State artifacts are left untouched.
type ApplyError struct {
	Environment Environment
	Err         error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply for %s failed: %v", e.Environment, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// DestroyError is a failed or refused destroy.
type DestroyError struct {
	Environment Environment
	Err         error
}

func (e *DestroyError) Error() string {
	return fmt.Sprintf("destroy for %s failed: %v", e.Environment, e.Err)
}

func (e *DestroyError) Unwrap() error { return e.Err }

// MissingOutputError names a provisioning output the inventory needs but
// could not find.
type MissingOutputError struct {
	// Key is the logical output name, e.g. "database-endpoint".
	Key string
	// Candidates are the concrete output names that were looked up.
	Candidates []string
	// Entry is the 1-based position of an empty value in a list output;
	// zero when the output itself is missing.
	Entry int
}

func (e *MissingOutputError) Error() string {
	if e.Entry > 0 {
		return fmt.Sprintf("missing required output %q: entry %d is empty", e.Key, e.Entry)
	}
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("missing required output %q", e.Key)
	}
	return fmt.Sprintf("missing required output %q (looked for: %s)", e.Key, strings.Join(e.Candidates, ", "))
}

// ConnectivityError lists every host that failed the reachability probe.
type ConnectivityError struct {
	Unreachable []string
	Details     map[string]string
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%d host(s) unreachable: %s", len(e.Unreachable), strings.Join(e.Unreachable, ", "))
}

// TaskFailure identifies one failed configuration task on one host.
type TaskFailure struct {
	Host    string `json:"host"`
	Task    string `json:"task"`
	Message string `json:"message,omitempty"`
}

// ConfigurationTaskError is a failed playbook run.
type ConfigurationTaskError struct {
	Failures []TaskFailure
	Output   string
	Err      error
}

func (e *ConfigurationTaskError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("configuration run failed: %v", e.Err)
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Host, f.Task))
	}
	return fmt.Sprintf("configuration run failed on %s", strings.Join(parts, "; "))
}

func (e *ConfigurationTaskError) Unwrap() error { return e.Err }

// Diagnostic returns the captured tool output.
func (e *ConfigurationTaskError) Diagnostic() string { return e.Output }

// StateLockedError reports that the provisioning state is held by another process.
type StateLockedError struct {
	LockID string
	Err    error
}

func (e *StateLockedError) Error() string {
	if e.LockID != "" {
		return fmt.Sprintf("state is locked by another process (lock ID %s); release it with 'terraform force-unlock %s' once that process is gone", e.LockID, e.LockID)
	}
	return "state is locked by another process"
}

func (e *StateLockedError) Unwrap() error { return e.Err }

// InterruptedError records the stage that was running when the interrupt arrived.
type InterruptedError struct {
	Stage string
}

func (e *InterruptedError) Error() string {
	if e.Stage == "" {
		return ErrInterrupted.Error()
	}
	return fmt.Sprintf("%s during %s stage", ErrInterrupted, e.Stage)
}

// Is makes errors.Is(err, ErrInterrupted) hold.
func (e *InterruptedError) Is(target error) bool { return target == ErrInterrupted }

// StageError is the user-facing failure report of a pipeline run.
type StageError struct {
	Stage string
	Err   error

	// EmergencyCopies are the paths written by the failure handler, if any.
	EmergencyCopies []string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type diagnoser interface {
	Diagnostic() string
}

// Diagnostic returns the underlying tool diagnostic carried by err, if any.
func Diagnostic(err error) string {
	var d diagnoser
	if errors.As(err, &d) {
		return d.Diagnostic()
	}
	return ""
}

// ExitCode maps a pipeline error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInterrupted):
		return ExitInterrupted
	default:
		return ExitFailure
	}
}
