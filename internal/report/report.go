// Package report builds the end-of-run summary: a JSON document written
// under the reports directory and a narrative printed to the terminal.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/imamik/infractl/internal/backup"
	"github.com/imamik/infractl/internal/configmgmt"
	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/inventory"
	"github.com/imamik/infractl/internal/outputs"
	"github.com/imamik/infractl/internal/provisioning"
	"github.com/imamik/infractl/internal/util/fileutil"
	"github.com/imamik/infractl/internal/util/naming"
	"github.com/imamik/infractl/internal/verification"
)

// Status is the overall result of a run.
type Status string

// Run results.
const (
	StatusSucceeded   Status = "succeeded"
	StatusFailed      Status = "failed"
	StatusInterrupted Status = "interrupted"
)

// StageTiming records how one stage ended.
type StageTiming struct {
	Name    string        `json:"name"`
	Result  string        `json:"result"`
	Elapsed time.Duration `json:"elapsedNs"`
}

// Input is everything a run knows when it ends. Zero fields mean the
// corresponding stage did not run.
type Input struct {
	Request    deployment.Request
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error

	Plan     *provisioning.PlanResult
	Snapshot *backup.Snapshot
	Outputs  outputs.Set
	Recap    configmgmt.Recap
	Checks   []verification.Result
	Stages   []StageTiming
}

// Highlights are the addresses an operator looks for after a deployment.
type Highlights struct {
	LoadBalancer string `json:"loadBalancer"`
	Instances    string `json:"instances"`
	Database     string `json:"database"`
	Bucket       string `json:"bucket"`
}

// PlanSummary is the plan outcome.
type PlanSummary struct {
	Outcome  provisioning.Outcome `json:"outcome"`
	Artifact string               `json:"artifact,omitempty"`
}

// SnapshotSummary names the backup taken before the run.
type SnapshotSummary struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Remote string `json:"remote,omitempty"`
}

// Summary is the persisted run report.
type Summary struct {
	Environment    deployment.Environment `json:"environment"`
	Action         deployment.Action      `json:"action"`
	Flags          deployment.Flags       `json:"flags"`
	StartedAt      time.Time              `json:"startedAt"`
	FinishedAt     time.Time              `json:"finishedAt"`
	Elapsed        string                 `json:"elapsed"`
	ElapsedSeconds float64                `json:"elapsedSeconds"`
	Status         Status                 `json:"status"`

	FailedStage     string   `json:"failedStage,omitempty"`
	Error           string   `json:"error,omitempty"`
	Diagnostic      string   `json:"diagnostic,omitempty"`
	EmergencyCopies []string `json:"emergencyCopies,omitempty"`

	Plan          *PlanSummary          `json:"plan,omitempty"`
	Snapshot      *SnapshotSummary      `json:"snapshot,omitempty"`
	Highlights    *Highlights           `json:"highlights,omitempty"`
	Configuration *configmgmt.HostStats `json:"configuration,omitempty"`
	Checks        []verification.Result `json:"checks,omitempty"`
	Stages        []StageTiming         `json:"stages,omitempty"`
}

// Build assembles the summary of a finished run.
func Build(in Input) *Summary {
	elapsed := in.FinishedAt.Sub(in.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	s := &Summary{
		Environment:    in.Request.Environment,
		Action:         in.Request.Action,
		Flags:          in.Request.Flags,
		StartedAt:      in.StartedAt.UTC(),
		FinishedAt:     in.FinishedAt.UTC(),
		Elapsed:        elapsed.Round(time.Second).String(),
		ElapsedSeconds: elapsed.Seconds(),
		Status:         status(in.Err),
		Checks:         in.Checks,
		Stages:         in.Stages,
	}

	if in.Err != nil {
		s.Error = in.Err.Error()
		s.Diagnostic = deployment.Diagnostic(in.Err)
		var stageErr *deployment.StageError
		if errors.As(in.Err, &stageErr) {
			s.FailedStage = stageErr.Stage
			s.Error = stageErr.Err.Error()
			s.EmergencyCopies = stageErr.EmergencyCopies
		}
	}

	if in.Plan != nil {
		s.Plan = &PlanSummary{Outcome: in.Plan.Outcome}
		if in.Plan.Artifact != nil {
			s.Plan.Artifact = in.Plan.Artifact.Name()
		}
	}
	if in.Snapshot != nil {
		s.Snapshot = &SnapshotSummary{
			Name:   in.Snapshot.Name,
			Path:   in.Snapshot.Path,
			Remote: in.Snapshot.Remote,
		}
	}
	if in.Outputs != nil {
		s.Highlights = highlights(in.Outputs)
	}
	if len(in.Recap) > 0 {
		totals := in.Recap.Totals()
		s.Configuration = &totals
	}
	return s
}

func status(err error) Status {
	switch {
	case err == nil:
		return StatusSucceeded
	case errors.Is(err, deployment.ErrInterrupted):
		return StatusInterrupted
	default:
		return StatusFailed
	}
}

func highlights(set outputs.Set) *Highlights {
	return &Highlights{
		LoadBalancer: set.Display(inventory.RuleFor(inventory.RoleLoadBalancer).Outputs...),
		Instances:    set.Display(inventory.RuleFor(inventory.RoleWeb).Outputs...),
		Database:     set.Display(inventory.RuleFor(inventory.RoleDatabase).Outputs...),
		Bucket:       set.Display(inventory.OutputBucket...),
	}
}

// Write persists s as reports/summary-<env>-<ts>.json under dir and
// returns the path.
func Write(dir string, s *Summary) (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode summary: %w", err)
	}
	path := filepath.Join(dir, naming.Summary(s.Environment.String(), s.FinishedAt))
	if err := fileutil.WriteAtomic(path, append(data, '\n'), 0o600); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}
	return path, nil
}
