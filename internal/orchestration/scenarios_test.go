package orchestration_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/imamik/infractl/internal/backup"
	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/orchestration"
	"github.com/imamik/infractl/internal/outputs"
	"github.com/imamik/infractl/internal/provisioning"
	"github.com/imamik/infractl/internal/report"
	itest "github.com/imamik/infractl/internal/testing"
)

const existingState = `{"version": 4, "serial": 1}`

var _ = Describe("Deployment", func() {
	var ctx context.Context

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		DeferCleanup(cancel)
	})

	snapshots := func(h *harness) []backup.Snapshot {
		snaps, err := backup.NewManager(h.cfg, deployment.EnvDev, logr.Discard()).List()
		Expect(err).NotTo(HaveOccurred())
		return snaps
	}

	Context("plan for an environment without state", func() {
		var h *harness

		BeforeEach(func() {
			h = newHarness(itest.NewProjectBuilder())
			h.provision.WithChanges(true)
		})

		It("reports pending changes without touching configuration", func() {
			summary, err := h.run(ctx, request(deployment.EnvDev, deployment.ActionPlan))

			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Status).To(Equal(report.StatusSucceeded))
			Expect(summary.Plan).NotTo(BeNil())
			Expect(summary.Plan.Outcome).To(Equal(provisioning.ChangesPending))
			Expect(summary.Plan.Artifact).To(HavePrefix("dev-"))

			Expect(h.observer.Stages(orchestration.EventStageSkipped)).To(ContainElements(
				orchestration.StageBackup,
				orchestration.StageInventory,
				orchestration.StageConfigure,
				orchestration.StageVerify,
			))
			Expect(h.provision.Called("NewWorkspace")).To(BeTrue())
			Expect(h.provision.Called("Apply")).To(BeFalse())
			Expect(h.configure.Names()).To(BeEmpty())
		})

		It("takes no snapshot", func() {
			_, err := h.run(ctx, request(deployment.EnvDev, deployment.ActionPlan))

			Expect(err).NotTo(HaveOccurred())
			Expect(snapshots(h)).To(BeEmpty())
			Expect(h.observer.EventsOf(orchestration.EventBackupCreated)).To(BeEmpty())
		})
	})

	Context("apply with nothing to change", func() {
		var h *harness

		BeforeEach(func() {
			h = newHarness(itest.NewProjectBuilder().
				WithState(deployment.EnvDev, existingState).
				WithOutputs(itest.OutputsJSON)).
				withWorkspace(deployment.EnvDev)
		})

		It("reuses the outputs and still configures the hosts", func() {
			before, err := os.ReadFile(h.cfg.Paths.Outputs)
			Expect(err).NotTo(HaveOccurred())

			summary, err := h.run(ctx, request(deployment.EnvDev, deployment.ActionApply))

			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Plan.Outcome).To(Equal(provisioning.NoChanges))
			Expect(h.provision.Called("Apply")).To(BeFalse())

			after, err := os.ReadFile(h.cfg.Paths.Outputs)
			Expect(err).NotTo(HaveOccurred())
			Expect(after).To(Equal(before))

			Expect(h.cfg.Paths.Inventory).To(BeAnExistingFile())
			Expect(h.configure.Names()).To(Equal([]string{"SyntaxCheck", "Ping", "RunPlaybook"}))
			Expect(h.configure.PingedHosts).To(Equal(itest.WebHosts))
			Expect(h.configure.Count("RunPlaybook")).To(Equal(1))
			Expect(h.configure.Playbooks[0].Inventory).To(Equal(h.cfg.Paths.Inventory))
			Expect(h.configure.Playbooks[0].ExtraVars).To(HaveKeyWithValue("deployment_environment", "dev"))
		})

		It("records verification results and writes the summary", func() {
			summary, err := h.run(ctx, request(deployment.EnvDev, deployment.ActionApply))

			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Checks).NotTo(BeEmpty())
			Expect(summary.Highlights).NotTo(BeNil())
			Expect(summary.Highlights.LoadBalancer).To(Equal("shop-alb-123.eu-west-1.elb.amazonaws.com"))

			reports, err := os.ReadDir(h.cfg.Paths.Reports)
			Expect(err).NotTo(HaveOccurred())
			Expect(reports).To(HaveLen(1))
			Expect(reports[0].Name()).To(HavePrefix("summary-dev-"))
		})

		It("takes exactly one snapshot", func() {
			summary, err := h.run(ctx, request(deployment.EnvDev, deployment.ActionApply))

			Expect(err).NotTo(HaveOccurred())
			Expect(snapshots(h)).To(HaveLen(1))
			Expect(h.observer.EventsOf(orchestration.EventBackupCreated)).To(HaveLen(1))
			Expect(summary.Snapshot).NotTo(BeNil())
			Expect(summary.Snapshot.Name).To(Equal(snapshots(h)[0].Name))
		})
	})

	Context("apply whose outputs lack the database endpoint", func() {
		var h *harness

		BeforeEach(func() {
			h = newHarness(itest.NewProjectBuilder().WithState(deployment.EnvDev, existingState)).
				withWorkspace(deployment.EnvDev)
			set, err := outputs.Parse([]byte(itest.OutputsWithout(GinkgoT(), "rds_endpoint")))
			Expect(err).NotTo(HaveOccurred())
			h.provision.WithChanges(true).WithOutputs(set)
		})

		It("fails the inventory stage before configuration starts", func() {
			summary, err := h.run(ctx, request(deployment.EnvDev, deployment.ActionApply))

			var stageErr *deployment.StageError
			Expect(errors.As(err, &stageErr)).To(BeTrue())
			Expect(err).To(MatchError(ContainSubstring("database-endpoint")))
			var missing *deployment.MissingOutputError
			Expect(errors.As(err, &missing)).To(BeTrue())
			Expect(missing.Key).To(Equal("database-endpoint"))

			Expect(summary.FailedStage).To(Equal(orchestration.StageInventory))
			Expect(summary.EmergencyCopies).NotTo(BeEmpty())
			Expect(h.provision.Count("Apply")).To(Equal(1))
			Expect(h.configure.Names()).To(BeEmpty())
			Expect(deployment.ExitCode(err)).To(Equal(deployment.ExitFailure))
		})
	})

	Context("apply with unreachable hosts", func() {
		var h *harness

		BeforeEach(func() {
			h = newHarness(itest.NewProjectBuilder().
				WithState(deployment.EnvDev, existingState).
				WithOutputs(itest.OutputsJSON)).
				withWorkspace(deployment.EnvDev)

			// A first run writes the inventory.
			_, err := h.run(ctx, request(deployment.EnvDev, deployment.ActionApply))
			Expect(err).NotTo(HaveOccurred())
		})

		It("lists every unreachable host and leaves outputs and inventory as they were", func() {
			outputsBefore, err := os.ReadFile(h.cfg.Paths.Outputs)
			Expect(err).NotTo(HaveOccurred())
			inventoryBefore, err := os.ReadFile(h.cfg.Paths.Inventory)
			Expect(err).NotTo(HaveOccurred())

			h.configure.Unreachable = map[string]string{
				"web-4": "ssh: connect to host 54.0.0.14 port 22: Connection timed out",
				"web-2": "ssh: connect to host 54.0.0.12 port 22: Connection refused",
			}
			summary, err := h.run(ctx, request(deployment.EnvDev, deployment.ActionApply))

			var connErr *deployment.ConnectivityError
			Expect(errors.As(err, &connErr)).To(BeTrue())
			Expect(connErr.Unreachable).To(Equal([]string{"web-2", "web-4"}))
			Expect(connErr.Details).To(HaveKeyWithValue("web-2", ContainSubstring("refused")))
			Expect(summary.FailedStage).To(Equal(orchestration.StageConfigure))
			Expect(h.configure.Count("RunPlaybook")).To(Equal(1), "only the first run reached the playbook")

			outputsAfter, err := os.ReadFile(h.cfg.Paths.Outputs)
			Expect(err).NotTo(HaveOccurred())
			Expect(outputsAfter).To(Equal(outputsBefore))
			inventoryAfter, err := os.ReadFile(h.cfg.Paths.Inventory)
			Expect(err).NotTo(HaveOccurred())
			Expect(inventoryAfter).To(Equal(inventoryBefore))
		})
	})

	Context("apply with a broken playbook", func() {
		var h *harness

		BeforeEach(func() {
			h = newHarness(itest.NewProjectBuilder().
				WithState(deployment.EnvDev, existingState).
				WithOutputs(itest.OutputsJSON)).
				withWorkspace(deployment.EnvDev)
			h.configure.SyntaxErr = errors.New("ERROR! 'hosts' is a required field")
		})

		It("fails the syntax check before any host is contacted", func() {
			summary, err := h.run(ctx, request(deployment.EnvDev, deployment.ActionApply))

			var taskErr *deployment.ConfigurationTaskError
			Expect(errors.As(err, &taskErr)).To(BeTrue())
			Expect(err).To(MatchError(ContainSubstring("'hosts' is a required field")))
			Expect(summary.FailedStage).To(Equal(orchestration.StageConfigure))
			Expect(h.configure.Names()).To(Equal([]string{"SyntaxCheck"}))
		})
	})

	Context("dry-run", func() {
		var h *harness

		BeforeEach(func() {
			h = newHarness(itest.NewProjectBuilder().
				Initialized().
				WithState(deployment.EnvDev, existingState).
				WithOutputs(itest.OutputsJSON)).
				withWorkspace(deployment.EnvDev)
			h.provision.WithChanges(true)
		})

		DescribeTable("leaves the project tree unchanged",
			func(action deployment.Action) {
				before := h.digest()

				req := request(deployment.EnvDev, action)
				req.Flags.DryRun = true
				summary, err := h.run(ctx, req)

				Expect(err).NotTo(HaveOccurred())
				Expect(h.digest()).To(Equal(before))
				Expect(summary.Snapshot).To(BeNil())
				Expect(h.provision.Called("Apply")).To(BeFalse())
				Expect(h.provision.Called("Destroy")).To(BeFalse())
				Expect(h.configure.Called("RunPlaybook")).To(BeFalse())
				Expect(h.configure.Called("Ping")).To(BeFalse())
			},
			Entry("plan", deployment.ActionPlan),
			Entry("apply", deployment.ActionApply),
			Entry("destroy", deployment.ActionDestroy),
		)

		It("syntax checks the playbook and reports intent", func() {
			req := request(deployment.EnvDev, deployment.ActionApply)
			req.Flags.DryRun = true
			_, err := h.run(ctx, req)

			Expect(err).NotTo(HaveOccurred())
			Expect(h.configure.Called("SyntaxCheck")).To(BeTrue())
			Expect(h.observer.Stages(orchestration.EventIntent)).To(ContainElement(orchestration.StageInventory))
			Expect(h.provision.PlanOptions).To(HaveLen(1))
			Expect(h.provision.PlanOptions[0].Out).To(BeEmpty())
			Expect(h.provision.PlanOptions[0].Lock).To(BeFalse())
			Expect(h.provision.Called("Init")).To(BeFalse())
		})

		It("leaves a fresh working directory and the selected workspace alone", func() {
			fresh := newHarness(itest.NewProjectBuilder().WithOutputs(itest.OutputsJSON))
			fresh.provision.WorkspaceNames = append(fresh.provision.WorkspaceNames, "dev")
			before := fresh.digest()

			req := request(deployment.EnvDev, deployment.ActionPlan)
			req.Flags.DryRun = true
			_, err := fresh.run(ctx, req)

			Expect(err).NotTo(HaveOccurred())
			Expect(fresh.digest()).To(Equal(before))
			Expect(fresh.provision.Called("Init")).To(BeFalse())
			Expect(fresh.provision.Called("SelectWorkspace")).To(BeFalse())
			Expect(fresh.provision.Called("Plan")).To(BeFalse())
			Expect(fresh.observer.Stages(orchestration.EventIntent)).To(ContainElement(orchestration.StageProvision))
		})
	})

	Context("destroy", func() {
		var h *harness

		BeforeEach(func() {
			h = newHarness(itest.NewProjectBuilder().
				WithState(deployment.EnvDev, existingState).
				WithOutputs(itest.OutputsJSON)).
				withWorkspace(deployment.EnvDev)
		})

		It("never calls the tool without the confirmation token", func() {
			summary, err := h.run(ctx, request(deployment.EnvDev, deployment.ActionDestroy))

			Expect(err).To(MatchError(provisioning.ErrConfirmationRequired))
			Expect(deployment.ExitCode(err)).To(Equal(deployment.ExitFailure))
			Expect(summary.FailedStage).To(Equal(orchestration.StageProvision))
			Expect(h.provision.Called("Destroy")).To(BeFalse())
			Expect(h.cfg.Paths.Outputs).To(BeAnExistingFile())
		})

		It("rejects a token for another environment", func() {
			req := request(deployment.EnvDev, deployment.ActionDestroy)
			req.DestroyToken = deployment.DestroyToken(deployment.EnvProd)
			_, err := h.run(ctx, req)

			Expect(err).To(HaveOccurred())
			Expect(h.provision.Called("Destroy")).To(BeFalse())
		})

		It("asks for the token when a prompter is available", func() {
			h.prompter = &itest.FakePrompter{Text: deployment.DestroyToken(deployment.EnvDev)}
			_, err := h.run(ctx, request(deployment.EnvDev, deployment.ActionDestroy))

			Expect(err).NotTo(HaveOccurred())
			Expect(h.prompter.Count("Input")).To(Equal(1))
			Expect(h.provision.Count("Destroy")).To(Equal(1))
		})

		It("destroys with the token after one snapshot and drops stale outputs", func() {
			req := request(deployment.EnvDev, deployment.ActionDestroy)
			req.DestroyToken = deployment.DestroyToken(deployment.EnvDev)
			_, err := h.run(ctx, req)

			Expect(err).NotTo(HaveOccurred())
			Expect(h.provision.Count("Destroy")).To(Equal(1))
			Expect(h.provision.DestroyOptions[0].VarFile).To(Equal(h.cfg.VarFile(deployment.EnvDev)))
			Expect(snapshots(h)).To(HaveLen(1))
			Expect(h.cfg.Paths.Outputs).NotTo(BeAnExistingFile())
			Expect(h.configure.Names()).To(BeEmpty())
		})
	})

	Context("apply to an environment that requires confirmation", func() {
		var h *harness

		BeforeEach(func() {
			h = newHarness(itest.NewProjectBuilder().WithState(deployment.EnvProd, existingState)).
				withWorkspace(deployment.EnvProd)
			h.provision.WithChanges(true)
		})

		It("refuses to apply when nobody can confirm", func() {
			_, err := h.run(ctx, request(deployment.EnvProd, deployment.ActionApply))

			Expect(err).To(MatchError(orchestration.ErrNotConfirmed))
			Expect(h.provision.Called("Apply")).To(BeFalse())
		})

		It("refuses to apply when the operator declines", func() {
			h.prompter = &itest.FakePrompter{Answer: false}
			_, err := h.run(ctx, request(deployment.EnvProd, deployment.ActionApply))

			Expect(err).To(MatchError(orchestration.ErrNotConfirmed))
			Expect(h.prompter.Count("Confirm")).To(Equal(1))
			Expect(h.provision.Called("Apply")).To(BeFalse())
		})

		It("applies with --yes", func() {
			req := request(deployment.EnvProd, deployment.ActionApply)
			req.AutoApprove = true
			req.Flags.SkipConfiguration = true
			_, err := h.run(ctx, req)

			Expect(err).NotTo(HaveOccurred())
			Expect(h.provision.Count("Apply")).To(Equal(1))
			Expect(h.configure.Names()).To(BeEmpty())
		})
	})

	Context("interrupt during apply", func() {
		var h *harness

		BeforeEach(func() {
			h = newHarness(itest.NewProjectBuilder().WithState(deployment.EnvDev, existingState)).
				withWorkspace(deployment.EnvDev)
			h.provision.WithChanges(true)
			h.provision.BlockApply = true
			h.provision.ApplyStarted = make(chan struct{})
		})

		It("stops the tool, starts no further stage and exits with 130", func() {
			runCtx, interrupt := context.WithCancel(ctx)
			defer interrupt()

			type result struct {
				summary *report.Summary
				err     error
			}
			done := make(chan result, 1)
			go func() {
				defer GinkgoRecover()
				s, err := h.run(runCtx, request(deployment.EnvDev, deployment.ActionApply))
				done <- result{s, err}
			}()

			Eventually(h.provision.ApplyStarted).Should(BeClosed())
			interrupt()

			var res result
			Eventually(done).WithTimeout(10 * time.Second).Should(Receive(&res))

			Expect(deployment.ExitCode(res.err)).To(Equal(deployment.ExitInterrupted))
			Expect(res.summary.Status).To(Equal(report.StatusInterrupted))
			Expect(res.summary.FailedStage).To(Equal(orchestration.StageProvision))
			Expect(res.summary.EmergencyCopies).To(BeEmpty())
			Expect(h.configure.Names()).To(BeEmpty())
			Expect(h.observer.Contains("interrupt received during provision stage")).To(BeTrue())
		})
	})

	Context("interrupt during verification", func() {
		var h *harness

		BeforeEach(func() {
			h = newHarness(itest.NewProjectBuilder().
				WithState(deployment.EnvDev, existingState).
				WithOutputs(itest.OutputsJSON)).
				withWorkspace(deployment.EnvDev)
		})

		It("exits with 130 although the last stage returned", func() {
			runCtx, interrupt := context.WithCancel(ctx)
			defer interrupt()

			healthy := itest.StaticHTTPClient(200)
			h.httpClient = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
				interrupt()
				return healthy.Transport.RoundTrip(req)
			})}

			summary, err := h.run(runCtx, request(deployment.EnvDev, deployment.ActionApply))

			Expect(err).To(MatchError(deployment.ErrInterrupted))
			Expect(deployment.ExitCode(err)).To(Equal(deployment.ExitInterrupted))
			Expect(summary.Status).To(Equal(report.StatusInterrupted))
			Expect(summary.FailedStage).To(Equal(orchestration.StageVerify))
			Expect(summary.EmergencyCopies).To(BeEmpty())
			Expect(h.configure.Count("RunPlaybook")).To(Equal(1))
		})
	})
})

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
