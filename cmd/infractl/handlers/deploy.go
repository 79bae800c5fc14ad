package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"

	"github.com/imamik/infractl/internal/config"
	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/metrics"
	"github.com/imamik/infractl/internal/orchestration"
	"github.com/imamik/infractl/internal/report"
	"github.com/imamik/infractl/internal/ui"
)

// runDeployment runs the request; replaced in tests.
var runDeployment = func(ctx context.Context, o *orchestration.Orchestrator, req deployment.Request) (*report.Summary, error) {
	return o.Run(ctx, req)
}

// DeployOptions are the inputs of a deployment collected by the root command.
type DeployOptions struct {
	// Args are the positional arguments: [environment] [action].
	Args []string
	// Lookup resolves flags and environment variables by their variable name.
	Lookup deployment.LookupFunc
	// ConfigPath is the project configuration file; empty auto-detects.
	ConfigPath string
}

// Deploy resolves a deployment request and runs it through every stage.
//
// The workflow:
//  1. Loads .env.<environment> and .env from the project root
//  2. Resolves the request from arguments, flags and variables
//  3. Loads the project configuration and timeouts
//  4. Creates the tool adapters and optional collaborators
//  5. Runs the orchestrator and prints the narrative
//
// The returned error maps to the exit code through deployment.ExitCode.
func Deploy(ctx context.Context, opts DeployOptions) error {
	dir, err := workDir()
	if err != nil {
		return fmt.Errorf("failed to determine working directory: %w", err)
	}

	if _, err := config.LoadDotEnv(dir, environmentHint(opts.Args, opts.Lookup, dir)); err != nil {
		return err
	}

	req, err := deployment.Resolve(deployment.Input{Args: opts.Args, Lookup: opts.Lookup})
	if err != nil {
		return err
	}

	log, flush, err := newLogger(req.Flags.Debug)
	if err != nil {
		return err
	}
	defer flush()

	cfg, err := loadConfig(opts.ConfigPath, dir)
	if err != nil {
		return err
	}

	deps, err := buildDependencies(ctx, cfg, req, log)
	if err != nil {
		return err
	}

	o := orchestration.New(cfg, config.LoadTimeouts(), deps, log,
		orchestration.WithNarrative(stdout, themeFor(stdout)),
		orchestration.WithMetrics(metrics.NewRecorder()),
	)
	_, err = runDeployment(ctx, o, req)
	return err
}

// buildDependencies creates the collaborators req needs. Optional
// collaborators that cannot be created are logged and left out.
func buildDependencies(ctx context.Context, cfg *config.Config, req deployment.Request, log logr.Logger) (orchestration.Dependencies, error) {
	deps := orchestration.Dependencies{
		Preflight: preflightOptions(),
		Prompter:  newPrompter(),
	}

	if req.RunsProvisioning() {
		tool, err := newProvisioningTool(cfg, stdout, stderr)
		if err != nil {
			return deps, &deployment.PrerequisiteError{
				Kind:        deployment.PrerequisiteTool,
				Requirement: cfg.Terraform.Binary,
				Err:         err,
			}
		}
		deps.Provisioning = tool
	}

	if req.RunsConfiguration() {
		deps.Configuration = newConfigurationTool(cfg, stdout, stderr)
	}

	if cfg.Backup.Bucket != "" {
		mirror, err := newMirror(ctx, cfg)
		if err != nil {
			log.Info("snapshot mirror disabled", "bucket", cfg.Backup.Bucket, "error", err.Error())
		} else {
			deps.Mirror = mirror
		}
	}

	if req.RunsConfiguration() && cfg.Verification.Enabled && len(cfg.Verification.Services) > 0 {
		runner, err := newCommandRunner(cfg.For(req.Environment))
		if err != nil {
			log.V(1).Info("service checks disabled", "error", err.Error())
		} else {
			deps.CommandRunner = runner
		}
	}
	return deps, nil
}

func themeFor(w any) ui.Theme {
	if f, ok := w.(*os.File); ok {
		return ui.ThemeFor(f)
	}
	return ui.Plain
}
