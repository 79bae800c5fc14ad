package orchestration

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/inventory"
	"github.com/imamik/infractl/internal/outputs"
	"github.com/imamik/infractl/internal/provisioning"
	"github.com/imamik/infractl/internal/ui"
	"github.com/imamik/infractl/internal/verification"
)

// Stage names.
const (
	StagePreflight = "preflight"
	StageBackup    = "backup"
	StageProvision = "provision"
	StageInventory = "inventory"
	StageConfigure = "configure"
	StageVerify    = "verify"
)

// ErrNotConfirmed is returned when the operator declined, or could not be
// asked for, the apply confirmation.
var ErrNotConfirmed = errors.New("apply was not confirmed")

// Stages returns the pipeline. Every request gets the same list; stages
// that do not apply to the request skip themselves.
func Stages() []Stage {
	return []Stage{
		&preflightStage{},
		&backupStage{},
		&provisionStage{},
		&inventoryStage{},
		&configureStage{},
		&verifyStage{},
	}
}

type preflightStage struct{}

func (s *preflightStage) Name() string { return StagePreflight }

func (s *preflightStage) Run(ctx *Context) error {
	return ctx.Preflight.Validate(ctx, ctx.Request)
}

type backupStage struct{}

func (s *backupStage) Name() string { return StageBackup }

func (s *backupStage) Skip(ctx *Context) (string, bool) {
	if !ctx.Request.Action.Mutating() {
		return fmt.Sprintf("%s does not change state", ctx.Request.Action), true
	}
	return "", false
}

func (s *backupStage) Run(ctx *Context) error {
	snap, err := ctx.Backups.Create(ctx)
	if err != nil {
		return fmt.Errorf("failed to create backup snapshot: %w", err)
	}
	if snap == nil {
		if ctx.DryRun() {
			LogIntent(ctx.Observer, StageBackup, "would snapshot existing state artifacts")
			return nil
		}
		ctx.Observer.Event(Event{
			Type:    EventBackupSkipped,
			Stage:   StageBackup,
			Message: "no state artifacts yet",
		})
		return nil
	}

	ctx.State.Snapshot = snap
	fields := map[string]string{"snapshot": snap.Name, "path": snap.Path}
	if snap.Remote != "" {
		fields["remote"] = snap.Remote
	}
	ctx.Observer.Event(Event{
		Type:    EventBackupCreated,
		Stage:   StageBackup,
		Message: fmt.Sprintf("snapshot %s created with %d file(s)", snap.Name, len(snap.Files)),
		Fields:  fields,
	})
	return nil
}

type provisionStage struct{}

func (s *provisionStage) Name() string { return StageProvision }

func (s *provisionStage) Skip(ctx *Context) (string, bool) {
	if !ctx.Request.RunsProvisioning() {
		return "provisioning skipped by request", true
	}
	return "", false
}

func (s *provisionStage) Run(ctx *Context) error {
	env := ctx.Request.Environment
	d := ctx.Provisioner

	ready, err := d.Prepare(ctx, env)
	if err != nil {
		return err
	}
	if !ready {
		LogIntent(ctx.Observer, StageProvision, fmt.Sprintf("workspace %s is not ready, nothing to %s", env, ctx.Request.Action))
		return nil
	}
	if err := d.Validate(ctx); err != nil {
		return err
	}

	switch ctx.Request.Action {
	case deployment.ActionPlan:
		return s.plan(ctx)
	case deployment.ActionApply:
		if err := s.apply(ctx); err != nil {
			return err
		}
	case deployment.ActionDestroy:
		if err := s.destroy(ctx); err != nil {
			return err
		}
	}

	if removed, err := d.PruneArtifacts(env); err != nil {
		ctx.Observer.Printf("failed to prune plan artifacts: %v", err)
	} else if len(removed) > 0 {
		ctx.Observer.Printf("pruned %d plan artifact(s)", len(removed))
	}
	return nil
}

func (s *provisionStage) plan(ctx *Context) error {
	res, err := ctx.Provisioner.Plan(ctx, ctx.Request.Environment)
	ctx.State.Plan = &res
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("plan outcome: %s", res.Outcome)
	if res.Artifact != nil {
		msg += fmt.Sprintf(" (artifact %s)", res.Artifact.Name())
	}
	ctx.Observer.Printf("%s", msg)
	return nil
}

func (s *provisionStage) apply(ctx *Context) error {
	env := ctx.Request.Environment
	if err := s.plan(ctx); err != nil {
		return err
	}

	if ctx.State.Plan.Outcome == provisioning.NoChanges {
		ctx.Observer.Printf("no changes, reusing the outputs of the applied state")
		set, err := ctx.Provisioner.CurrentOutputs(ctx, env)
		if err != nil {
			return err
		}
		ctx.State.Outputs = set
		return nil
	}

	if !ctx.DryRun() {
		if err := confirmApply(ctx); err != nil {
			return &deployment.ApplyError{Environment: env, Err: err}
		}
	}

	set, err := ctx.Provisioner.Apply(ctx, env, ctx.State.Plan.Artifact)
	if err != nil {
		return err
	}
	if set == nil && ctx.DryRun() {
		// Downstream dry-run stages work from what is already applied.
		existing, loadErr := outputs.Load(ctx.Config.Paths.Outputs)
		if loadErr == nil {
			set = existing
		}
	}
	ctx.State.Outputs = set
	return nil
}

func confirmApply(ctx *Context) error {
	if ctx.Request.AutoApprove || !ctx.Config.For(ctx.Request.Environment).Confirm {
		return nil
	}
	if ctx.Prompter == nil {
		return fmt.Errorf("%w: rerun with --yes", ErrNotConfirmed)
	}
	ok, err := ctx.Prompter.Confirm(ctx,
		fmt.Sprintf("Apply pending changes to %s?", ctx.Request.Environment),
		fmt.Sprintf("Plan artifact: %s", ctx.State.Plan.Artifact.Name()))
	if errors.Is(err, ui.ErrNotInteractive) {
		return fmt.Errorf("%w: stdin is not a terminal, rerun with --yes", ErrNotConfirmed)
	}
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotConfirmed
	}
	return nil
}

func (s *provisionStage) destroy(ctx *Context) error {
	env := ctx.Request.Environment
	token := ctx.Request.DestroyToken
	if token == "" && !ctx.DryRun() && ctx.Prompter != nil {
		entered, err := ctx.Prompter.Input(ctx,
			fmt.Sprintf("Destroy every resource in %s?", env),
			fmt.Sprintf("Type %q to confirm.", deployment.DestroyToken(env)))
		if err != nil && !errors.Is(err, ui.ErrNotInteractive) {
			return err
		}
		token = entered
	}
	return ctx.Provisioner.Destroy(ctx, env, token)
}

type inventoryStage struct{}

func (s *inventoryStage) Name() string { return StageInventory }

func (s *inventoryStage) Skip(ctx *Context) (string, bool) {
	if ctx.Request.Action != deployment.ActionApply {
		return fmt.Sprintf("no inventory for %s", ctx.Request.Action), true
	}
	return "", false
}

func (s *inventoryStage) Run(ctx *Context) error {
	env := ctx.Request.Environment
	path := ctx.Config.Paths.Inventory

	set := ctx.State.Outputs
	if set == nil {
		loaded, err := outputs.Load(ctx.Config.Paths.Outputs)
		switch {
		case err == nil:
			set = loaded
			ctx.State.Outputs = set
		case errors.Is(err, fs.ErrNotExist) && ctx.DryRun():
			LogIntent(ctx.Observer, StageInventory, "no outputs available yet, would generate the inventory after apply")
			return nil
		default:
			return fmt.Errorf("no provisioning outputs available: %w", err)
		}
	}

	doc, err := inventory.Generate(set, env, inventory.DefaultsFor(ctx.Config, env))
	if err != nil {
		return err
	}
	if err := inventory.Validate(doc); err != nil {
		return err
	}
	data, err := inventory.Render(doc, inventory.FormatYAML)
	if err != nil {
		return err
	}

	ctx.State.Inventory = doc
	ctx.State.RenderedInventory = data
	ctx.State.InventoryPath = path

	if ctx.DryRun() {
		LogIntent(ctx.Observer, StageInventory, fmt.Sprintf("would write inventory to %s (%s)", path, inventory.Summary(doc)))
		return nil
	}
	if err := inventory.Write(path, data); err != nil {
		return err
	}
	ctx.Observer.Printf("inventory written to %s (%s)", path, inventory.Summary(doc))
	return nil
}

type configureStage struct{}

func (s *configureStage) Name() string { return StageConfigure }

func (s *configureStage) Skip(ctx *Context) (string, bool) {
	switch {
	case ctx.Request.Action != deployment.ActionApply:
		return fmt.Sprintf("no configuration for %s", ctx.Request.Action), true
	case !ctx.Request.RunsConfiguration():
		return "configuration skipped by request", true
	}
	return "", false
}

func (s *configureStage) Run(ctx *Context) error {
	env := ctx.Request.Environment
	doc := ctx.State.Inventory
	if doc == nil {
		LogIntent(ctx.Observer, StageConfigure, "no inventory yet, would run the playbook after apply")
		return nil
	}

	if ctx.DryRun() {
		return ctx.Configurer.DryRun(ctx, ctx.State.RenderedInventory, env)
	}

	if err := ctx.Configurer.SyntaxCheck(ctx, ctx.State.InventoryPath); err != nil {
		return err
	}
	if err := ctx.Configurer.ConnectivityCheck(ctx, ctx.State.InventoryPath, doc.ConnectableHosts(), ctx.Timeouts.Ping); err != nil {
		return err
	}
	res, err := ctx.Configurer.Run(ctx, ctx.State.InventoryPath, env, nil)
	if res != nil {
		ctx.State.Recap = res.Recap
	}
	return err
}

type verifyStage struct{}

func (s *verifyStage) Name() string { return StageVerify }

func (s *verifyStage) Skip(ctx *Context) (string, bool) {
	switch {
	case ctx.Request.Action != deployment.ActionApply:
		return fmt.Sprintf("nothing to verify after %s", ctx.Request.Action), true
	case ctx.DryRun():
		return "dry-run", true
	case !ctx.Config.Verification.Enabled:
		return "verification disabled", true
	case ctx.State.Inventory == nil:
		return "no inventory", true
	}
	return "", false
}

func (s *verifyStage) Run(ctx *Context) error {
	results := ctx.Verifier.Run(ctx, ctx.State.Inventory)
	ctx.State.Checks = results

	env := ctx.Request.Environment.String()
	for _, r := range results {
		if ctx.Metrics != nil {
			ctx.Metrics.ObserveCheck(env, string(r.Status))
		}
	}
	if failed := verification.Failed(results); len(failed) > 0 {
		ctx.Observer.Printf("[!!] %d of %d verification check(s) failed", len(failed), len(results))
	}
	return nil
}
