package handlers

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/go-logr/logr"

	"github.com/imamik/infractl/internal/backup"
	"github.com/imamik/infractl/internal/config"
	"github.com/imamik/infractl/internal/configmgmt"
	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/orchestration"
	"github.com/imamik/infractl/internal/preflight"
	"github.com/imamik/infractl/internal/provisioning"
	"github.com/imamik/infractl/internal/report"
	itest "github.com/imamik/infractl/internal/testing"
	"github.com/imamik/infractl/internal/ui"
	"github.com/imamik/infractl/internal/verification"
)

// saveAndRestoreFactories restores every factory variable when the test
// ends. Tests that call it must not run in parallel.
func saveAndRestoreFactories(t *testing.T) {
	t.Helper()
	origWorkDir := workDir
	origStdout := stdout
	origStderr := stderr
	origNewLogger := newLogger
	origLoadConfig := loadConfig
	origNewProvisioningTool := newProvisioningTool
	origNewConfigurationTool := newConfigurationTool
	origNewMirror := newMirror
	origNewCommandRunner := newCommandRunner
	origNewPrompter := newPrompter
	origRunDeployment := runDeployment
	origPreflightOptions := preflightOptions
	origNow := now

	t.Cleanup(func() {
		workDir = origWorkDir
		stdout = origStdout
		stderr = origStderr
		newLogger = origNewLogger
		loadConfig = origLoadConfig
		newProvisioningTool = origNewProvisioningTool
		newConfigurationTool = origNewConfigurationTool
		newMirror = origNewMirror
		newCommandRunner = origNewCommandRunner
		newPrompter = origNewPrompter
		runDeployment = origRunDeployment
		preflightOptions = origPreflightOptions
		now = origNow
	})
}

// fakeProject points the handlers at a generated project tree backed by
// fake tools and returns the tree's configuration and the captured stdout.
type fakeProject struct {
	dir       string
	cfg       *config.Config
	out       *bytes.Buffer
	provision *itest.FakeProvisioner
	configure *itest.FakeConfigTool
	prompter  *itest.FakePrompter
}

func newFakeProject(t *testing.T, builder *itest.ProjectBuilder) *fakeProject {
	t.Helper()
	saveAndRestoreFactories(t)

	dir := t.TempDir()
	p := &fakeProject{
		dir:       dir,
		cfg:       builder.BuildIn(t, dir),
		out:       &bytes.Buffer{},
		provision: itest.NewFakeProvisioner().WithOutputs(itest.Outputs(t)),
		configure: itest.NewFakeConfigTool(),
		prompter:  &itest.FakePrompter{},
	}

	workDir = func() (string, error) { return dir, nil }
	stdout = p.out
	stderr = io.Discard
	newLogger = func(bool) (logr.Logger, func(), error) {
		return itest.TestLogger(t), func() {}, nil
	}
	newProvisioningTool = func(*config.Config, io.Writer, io.Writer) (provisioning.Tool, error) {
		return p.provision, nil
	}
	newConfigurationTool = func(*config.Config, io.Writer, io.Writer) configmgmt.Tool {
		return p.configure
	}
	newMirror = func(context.Context, *config.Config) (backup.Mirror, error) {
		return nil, context.DeadlineExceeded
	}
	newCommandRunner = func(config.Settings) (verification.CommandRunner, error) {
		return nil, context.DeadlineExceeded
	}
	newPrompter = func() ui.Prompter { return p.prompter }
	preflightOptions = func() []preflight.Option {
		return []preflight.Option{
			preflight.WithChecker(itest.ToolsChecker()),
			preflight.WithProberFactory(itest.ValidCredentials()),
		}
	}
	return p
}

// captureRequest replaces the run with one that records the request.
func captureRequest(t *testing.T) *deployment.Request {
	t.Helper()
	var got deployment.Request
	runDeployment = func(_ context.Context, _ *orchestration.Orchestrator, req deployment.Request) (*report.Summary, error) {
		got = req
		return &report.Summary{}, nil
	}
	return &got
}
