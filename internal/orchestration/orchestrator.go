package orchestration

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/imamik/infractl/internal/backup"
	"github.com/imamik/infractl/internal/config"
	"github.com/imamik/infractl/internal/configmgmt"
	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/metrics"
	"github.com/imamik/infractl/internal/preflight"
	"github.com/imamik/infractl/internal/provisioning"
	"github.com/imamik/infractl/internal/report"
	"github.com/imamik/infractl/internal/ui"
	"github.com/imamik/infractl/internal/verification"
)

const metricsPushTimeout = 10 * time.Second

// Dependencies are the external collaborators of a run.
type Dependencies struct {
	Provisioning  provisioning.Tool
	Configuration configmgmt.Tool

	// Preflight customizes the prerequisite checks.
	Preflight []preflight.Option
	// Mirror receives a copy of every snapshot; nil keeps snapshots local.
	Mirror backup.Mirror
	// CommandRunner runs service checks; nil skips them.
	CommandRunner verification.CommandRunner
	HTTPClient    *http.Client
	// Prompter asks for confirmations; nil means non-interactive.
	Prompter ui.Prompter
}

// Orchestrator runs deployment requests against one project.
type Orchestrator struct {
	cfg      *config.Config
	timeouts *config.Timeouts
	deps     Dependencies
	log      logr.Logger
	observer Observer
	metrics  *metrics.Recorder
	now      func() time.Time
	out      io.Writer
	theme    ui.Theme
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithObserver replaces the default log observer.
func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) { o.observer = observer }
}

// WithNarrative prints the end-of-run narrative to w.
func WithNarrative(w io.Writer, theme ui.Theme) Option {
	return func(o *Orchestrator) {
		o.out = w
		o.theme = theme
	}
}

// WithMetrics records run metrics into rec.
func WithMetrics(rec *metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = rec }
}

// New creates an Orchestrator.
func New(cfg *config.Config, timeouts *config.Timeouts, deps Dependencies, log logr.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:      cfg,
		timeouts: timeouts,
		deps:     deps,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.observer == nil {
		o.observer = NewLogObserver(log.WithName("orchestration"))
	}
	if o.metrics == nil {
		o.metrics = metrics.NewRecorder()
	}
	return o
}

// Run executes req and returns its summary. The error is nil on success,
// otherwise a *deployment.StageError; deployment.ExitCode maps it to the
// process exit code. Cancelling ctx interrupts the run.
func (o *Orchestrator) Run(ctx context.Context, req deployment.Request) (*report.Summary, error) {
	started := o.now()
	dryRun := req.Flags.DryRun

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	observer := o.observer.WithFields(map[string]string{
		"environment": req.Environment.String(),
		"action":      req.Action.String(),
	})

	backupOpts := []backup.Option{
		backup.WithDryRun(dryRun),
		backup.WithAction(req.Action),
		backup.WithClock(o.now),
	}
	if o.deps.Mirror != nil && o.cfg.Backup.Bucket != "" {
		backupOpts = append(backupOpts, backup.WithMirror(o.deps.Mirror))
	}
	backups := backup.NewManager(o.cfg, req.Environment, o.log, backupOpts...)

	var verifyOpts []verification.Option
	if o.deps.CommandRunner != nil {
		verifyOpts = append(verifyOpts, verification.WithCommandRunner(o.deps.CommandRunner))
	}
	if o.deps.HTTPClient != nil {
		verifyOpts = append(verifyOpts, verification.WithHTTPClient(o.deps.HTTPClient))
	}

	h := NewHandler(cancel, backups.EmergencyCopy, observer)
	stop := h.Watch(ctx)
	defer stop()

	sctx := &Context{
		Context:  runCtx,
		Request:  req,
		Config:   o.cfg,
		Timeouts: o.timeouts,
		State:    &State{},
		Observer: observer,

		Preflight: preflight.NewValidator(o.cfg, o.timeouts, o.log, o.deps.Preflight...),
		Backups:   backups,
		Provisioner: provisioning.NewDriver(o.deps.Provisioning, o.cfg, o.timeouts, o.log,
			provisioning.WithDryRun(dryRun),
			provisioning.WithClock(o.now)),
		Configurer: configmgmt.NewDriver(o.deps.Configuration, o.cfg, o.timeouts, o.log,
			configmgmt.WithDryRun(dryRun),
			configmgmt.WithDebug(req.Flags.Debug)),
		Verifier: verification.NewRunner(o.cfg.Verification, o.timeouts, o.log, verifyOpts...),
		Prompter: o.deps.Prompter,
		Metrics:  o.metrics,
	}

	err := RunStages(sctx, Stages(), h)
	stop()

	summary := report.Build(report.Input{
		Request:    req,
		StartedAt:  started,
		FinishedAt: o.now(),
		Err:        err,
		Plan:       sctx.State.Plan,
		Snapshot:   sctx.State.Snapshot,
		Outputs:    sctx.State.Outputs,
		Recap:      sctx.State.Recap,
		Checks:     sctx.State.Checks,
		Stages:     sctx.State.Stages,
	})
	o.finish(ctx, observer, summary)
	return summary, err
}

// finish publishes the summary. Failures here are logged and never change
// the outcome of the run.
func (o *Orchestrator) finish(ctx context.Context, observer Observer, s *report.Summary) {
	o.recordMetrics(s)

	if s.Flags.DryRun {
		LogIntent(observer, "report", "would write summary to "+o.cfg.Paths.Reports)
	} else {
		path, err := report.Write(o.cfg.Paths.Reports, s)
		if err != nil {
			o.log.Error(err, "failed to write summary")
		} else {
			observer.Printf("summary written to %s", path)
		}
		o.exportMetrics(ctx, s)
	}

	if o.out != nil {
		if err := report.Narrative(o.out, s, o.theme); err != nil {
			o.log.Error(err, "failed to print summary")
		}
	}
}

func (o *Orchestrator) recordMetrics(s *report.Summary) {
	env, action := s.Environment.String(), s.Action.String()
	for _, st := range s.Stages {
		o.metrics.ObserveStage(env, action, st.Name, st.Result, st.Elapsed)
	}
	result := metrics.ResultSuccess
	switch s.Status {
	case report.StatusFailed:
		result = metrics.ResultFailure
	case report.StatusInterrupted:
		result = metrics.ResultInterrupted
	}
	o.metrics.ObserveDeployment(env, action, result, s.FinishedAt.Sub(s.StartedAt), s.FinishedAt)
}

func (o *Orchestrator) exportMetrics(ctx context.Context, s *report.Summary) {
	m := o.cfg.Metrics
	if m.Textfile != "" {
		if err := o.metrics.WriteTextfile(m.Textfile); err != nil {
			o.log.Error(err, "failed to export metrics", "textfile", m.Textfile)
		}
	}
	if m.Pushgateway != "" {
		// The run context may already be cancelled by an interrupt.
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsPushTimeout)
		defer cancel()
		if err := o.metrics.Push(pushCtx, m.Pushgateway, m.Job, s.Environment.String()); err != nil {
			o.log.Error(err, "failed to export metrics", "pushgateway", m.Pushgateway)
		}
	}
}
