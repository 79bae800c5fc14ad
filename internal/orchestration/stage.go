package orchestration

import (
	"context"
	"fmt"
	"time"

	"github.com/imamik/infractl/internal/backup"
	"github.com/imamik/infractl/internal/config"
	"github.com/imamik/infractl/internal/configmgmt"
	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/inventory"
	"github.com/imamik/infractl/internal/metrics"
	"github.com/imamik/infractl/internal/outputs"
	"github.com/imamik/infractl/internal/preflight"
	"github.com/imamik/infractl/internal/provisioning"
	"github.com/imamik/infractl/internal/report"
	"github.com/imamik/infractl/internal/ui"
	"github.com/imamik/infractl/internal/verification"
)

// Stage is one step of the deployment pipeline.
type Stage interface {
	// Name returns the stage name used in logs, errors and metrics.
	Name() string

	// Run executes the stage.
	Run(ctx *Context) error
}

// Skipper is implemented by stages that do not apply to every request.
type Skipper interface {
	// Skip returns a reason when the stage should not run.
	Skip(ctx *Context) (string, bool)
}

// State holds the results stages hand to each other. It is populated as
// the run progresses.
type State struct {
	Snapshot *backup.Snapshot
	Plan     *provisioning.PlanResult

	// Outputs are the outputs of the applied state. Nil until provisioning
	// produced or loaded them.
	Outputs outputs.Set

	Inventory *inventory.Document
	// RenderedInventory is the inventory as written to InventoryPath, or as
	// it would have been written in dry-run mode.
	RenderedInventory []byte
	InventoryPath     string

	Recap  configmgmt.Recap
	Checks []verification.Result
	Stages []report.StageTiming
}

// Context wraps all dependencies and state needed by a stage.
type Context struct {
	context.Context
	Request  deployment.Request
	Config   *config.Config
	Timeouts *config.Timeouts
	State    *State
	Observer Observer

	Preflight   *preflight.Validator
	Backups     *backup.Manager
	Provisioner *provisioning.Driver
	Configurer  *configmgmt.Driver
	Verifier    *verification.Runner
	Prompter    ui.Prompter
	Metrics     *metrics.Recorder
}

// DryRun reports whether the run only reports intent.
func (c *Context) DryRun() bool {
	return c.Request.Flags.DryRun
}

// RunStages executes stages sequentially. A stage starts only after the
// previous one returned. An interrupt ends the run as interrupted even when
// the stage that was running returns without an error.
func RunStages(ctx *Context, stages []Stage, h *Handler) error {
	start := time.Now()
	ctx.Observer.Printf("Starting %s with %d stages...", ctx.Request, len(stages))

	for i, stage := range stages {
		name := fmt.Sprintf("%s (%d/%d)", stage.Name(), i+1, len(stages))

		if ctx.Err() != nil {
			h.Interrupt()
			return h.Interrupted(stage.Name())
		}
		if skipper, ok := stage.(Skipper); ok {
			if reason, skip := skipper.Skip(ctx); skip {
				LogStageSkipped(ctx.Observer, stage.Name(), reason)
				ctx.record(stage.Name(), metrics.ResultSkipped, 0)
				continue
			}
		}

		h.Enter(stage.Name())
		stageStart := time.Now()
		ctx.Observer.Printf("[%s] starting", name)
		LogStageStart(ctx.Observer, stage.Name())

		if err := stage.Run(ctx); err != nil {
			elapsed := time.Since(stageStart)
			if ctx.Err() != nil {
				h.Interrupt()
			}
			stageErr := h.Fail(stage.Name(), err)
			result := metrics.ResultFailure
			if deployment.ExitCode(stageErr) == deployment.ExitInterrupted {
				result = metrics.ResultInterrupted
			}
			ctx.record(stage.Name(), result, elapsed)
			return stageErr
		}

		elapsed := time.Since(stageStart)
		if ctx.Err() != nil || h.State() == Interrupted {
			h.Interrupt()
			ctx.record(stage.Name(), metrics.ResultInterrupted, elapsed)
			return h.Interrupted(stage.Name())
		}
		ctx.record(stage.Name(), metrics.ResultSuccess, elapsed)
		LogStageComplete(ctx.Observer, stage.Name(), elapsed)
		ctx.Observer.Printf("[%s] completed in %v", name, elapsed.Round(time.Millisecond))
	}

	h.Done()
	ctx.Observer.Printf("%s completed in %v", ctx.Request, time.Since(start).Round(time.Millisecond))
	return nil
}

func (c *Context) record(stage, result string, elapsed time.Duration) {
	c.State.Stages = append(c.State.Stages, report.StageTiming{Name: stage, Result: result, Elapsed: elapsed})
}
