// Package configmgmt drives the configuration-management tool against a
// generated inventory.
package configmgmt

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/go-logr/logr"
	"github.com/samber/lo"

	"github.com/imamik/infractl/internal/config"
	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/util/fileutil"
)

// Driver sequences configuration tool calls.
type Driver struct {
	tool     Tool
	cfg      *config.Config
	timeouts *config.Timeouts
	dryRun   bool
	debug    bool
	log      logr.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithDryRun limits the driver to a syntax check.
func WithDryRun(dryRun bool) Option {
	return func(d *Driver) { d.dryRun = dryRun }
}

// WithDebug makes playbook runs verbose.
func WithDebug(debug bool) Option {
	return func(d *Driver) { d.debug = debug }
}

// NewDriver creates a Driver.
func NewDriver(tool Tool, cfg *config.Config, timeouts *config.Timeouts, log logr.Logger, opts ...Option) *Driver {
	d := &Driver{
		tool:     tool,
		cfg:      cfg,
		timeouts: timeouts,
		log:      log.WithName("configmgmt"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SyntaxCheck parses the playbook against inventory.
func (d *Driver) SyntaxCheck(ctx context.Context, inventory string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeouts.Validate)
	defer cancel()

	if err := d.tool.SyntaxCheck(ctx, inventory); err != nil {
		return &deployment.ConfigurationTaskError{Output: err.Error(), Err: err}
	}
	d.log.V(1).Info("playbook syntax ok", "playbook", d.cfg.Paths.Playbook)
	return nil
}

// ConnectivityCheck probes every host within timeout. All unreachable hosts
// are reported together in a *deployment.ConnectivityError.
func (d *Driver) ConnectivityCheck(ctx context.Context, inventory string, hosts []string, timeout time.Duration) error {
	if len(hosts) == 0 {
		d.log.Info("no connectable hosts in inventory, skipping connectivity check")
		return nil
	}
	if timeout <= 0 {
		timeout = d.timeouts.Ping
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := d.tool.Ping(pingCtx, inventory, hosts)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if pingCtx.Err() != nil {
			return &deployment.ConnectivityError{
				Unreachable: slices.Sorted(slices.Values(hosts)),
				Details:     lo.SliceToMap(hosts, func(h string) (string, string) { return h, "timed out after " + timeout.String() }),
			}
		}
		return fmt.Errorf("connectivity check failed: %w", err)
	}

	failed := lo.Filter(results, func(r PingResult, _ int) bool { return !r.Reachable })
	if len(failed) == 0 {
		d.log.Info("all hosts reachable", "hosts", len(hosts))
		return nil
	}

	unreachable := lo.Map(failed, func(r PingResult, _ int) string { return r.Host })
	slices.Sort(unreachable)
	return &deployment.ConnectivityError{
		Unreachable: unreachable,
		Details:     lo.SliceToMap(failed, func(r PingResult) (string, string) { return r.Host, r.Message }),
	}
}

// Run executes the full playbook. It is never retried. Failures are
// returned as a *deployment.ConfigurationTaskError listing every failed
// host and task.
func (d *Driver) Run(ctx context.Context, inventory string, env deployment.Environment, extraVars map[string]any) (*RunResult, error) {
	opts := PlaybookOptions{
		Inventory: inventory,
		ExtraVars: d.extraVars(env, extraVars),
		Verbose:   d.debug,
	}
	if fileutil.Exists(d.cfg.Paths.VaultFile) {
		opts.VaultPasswordFile = d.cfg.Paths.VaultFile
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeouts.Apply)
	defer cancel()

	start := time.Now()
	result, err := d.tool.RunPlaybook(ctx, opts)
	if result == nil {
		result = &RunResult{}
	}
	totals := result.Recap.Totals()
	d.log.Info("playbook finished",
		"duration", time.Since(start).Round(time.Second),
		"ok", totals.OK,
		"changed", totals.Changed,
		"unreachable", totals.Unreachable,
		"failed", totals.Failed,
		"skipped", totals.Skipped,
	)
	if err != nil {
		return result, &deployment.ConfigurationTaskError{
			Failures: result.Failures,
			Output:   result.Output,
			Err:      err,
		}
	}
	return result, nil
}

// DryRun writes rendered inventory to a temporary file, syntax checks the
// playbook against it and logs what a real run would do.
func (d *Driver) DryRun(ctx context.Context, rendered []byte, env deployment.Environment) error {
	tmp, err := os.CreateTemp("", "infractl-inventory-*.yml")
	if err != nil {
		return fmt.Errorf("failed to create temporary inventory: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	_, werr := tmp.Write(rendered)
	if err := errors.Join(werr, tmp.Close()); err != nil {
		return fmt.Errorf("failed to write temporary inventory: %w", err)
	}

	if err := d.SyntaxCheck(ctx, tmp.Name()); err != nil {
		return err
	}
	d.log.Info("dry-run: would run playbook",
		"playbook", d.cfg.Paths.Playbook,
		"inventory", d.cfg.Paths.Inventory,
		"environment", env,
		"vault", fileutil.Exists(d.cfg.Paths.VaultFile),
	)
	return nil
}

func (d *Driver) extraVars(env deployment.Environment, extra map[string]any) map[string]any {
	vars := map[string]any{"deployment_environment": env.String()}
	maps.Copy(vars, d.cfg.Ansible.ExtraVars)
	maps.Copy(vars, extra)
	return vars
}
