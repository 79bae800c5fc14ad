package orchestration_test

import (
	"context"
	"net/http"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/imamik/infractl/internal/config"
	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/orchestration"
	"github.com/imamik/infractl/internal/preflight"
	"github.com/imamik/infractl/internal/report"
	itest "github.com/imamik/infractl/internal/testing"
)

// TestDeploymentScenarios is the entry point for the Ginkgo scenario suite.
func TestDeploymentScenarios(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Deployment Scenario Suite")
}

// harness is one project tree with fake tools behind an orchestrator.
type harness struct {
	cfg        *config.Config
	root       string
	provision  *itest.FakeProvisioner
	configure  *itest.FakeConfigTool
	observer   *itest.RecordingObserver
	prompter   *itest.FakePrompter
	httpClient *http.Client
}

func newHarness(builder *itest.ProjectBuilder) *harness {
	root := GinkgoT().TempDir()
	cfg := builder.BuildIn(GinkgoT(), root)
	tool := itest.NewFakeProvisioner().WithOutputs(itest.Outputs(GinkgoT()))
	tool.StateFile = cfg.StateFile(deployment.EnvDev)
	return &harness{
		cfg:       cfg,
		root:      root,
		provision: tool,
		configure: itest.NewFakeConfigTool(),
		observer:  itest.NewRecordingObserver(),
	}
}

// withWorkspace makes the environment workspace exist and be selected.
func (h *harness) withWorkspace(env deployment.Environment) *harness {
	h.provision.WorkspaceNames = append(h.provision.WorkspaceNames, env.String())
	h.provision.CurrentWorkspace = env.String()
	return h
}

func (h *harness) run(ctx context.Context, req deployment.Request) (*report.Summary, error) {
	deps := orchestration.Dependencies{
		Provisioning:  h.provision,
		Configuration: h.configure,
		Preflight: []preflight.Option{
			preflight.WithChecker(itest.ToolsChecker()),
			preflight.WithProberFactory(itest.ValidCredentials()),
		},
		HTTPClient: itest.StaticHTTPClient(200),
	}
	if h.httpClient != nil {
		deps.HTTPClient = h.httpClient
	}
	if h.prompter != nil {
		deps.Prompter = h.prompter
	}
	o := orchestration.New(h.cfg, itest.FastTimeouts(), deps, GinkgoLogr,
		orchestration.WithObserver(h.observer))
	return o.Run(ctx, req)
}

func (h *harness) digest() map[string]string {
	return itest.TreeDigest(GinkgoT(), h.root)
}

func request(env deployment.Environment, action deployment.Action) deployment.Request {
	return deployment.Request{Environment: env, Action: action}
}
