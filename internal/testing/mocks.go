package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/imamik/infractl/internal/configmgmt"
	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/orchestration"
	"github.com/imamik/infractl/internal/outputs"
	"github.com/imamik/infractl/internal/platform/aws"
	"github.com/imamik/infractl/internal/preflight"
	"github.com/imamik/infractl/internal/provisioning"
	"github.com/imamik/infractl/internal/util/prerequisites"
)

// Calls records the names of the methods invoked on a fake, in order.
type Calls struct {
	mu    sync.Mutex
	names []string
}

func (c *Calls) record(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
}

// Names returns the recorded method names.
func (c *Calls) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.names)
}

// Count returns how often name was called.
func (c *Calls) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, called := range c.names {
		if called == name {
			n++
		}
	}
	return n
}

// Called reports whether name was called at least once.
func (c *Calls) Called(name string) bool {
	return c.Count(name) > 0
}

// FakeProvisioner implements provisioning.Tool without running Terraform.
type FakeProvisioner struct {
	Calls

	mu sync.Mutex

	WorkspaceNames   []string
	CurrentWorkspace string

	Diagnostics string
	Changes     bool
	Outputs     outputs.Set

	// StateFile is written by Apply when set.
	StateFile string
	// BlockApply makes Apply wait for context cancellation.
	BlockApply bool
	// ApplyStarted is closed when Apply begins, if non-nil.
	ApplyStarted chan struct{}

	InitErr    error
	PlanErr    error
	ApplyErr   error
	DestroyErr error
	OutputErr  error

	PlanOptions    []provisioning.PlanOptions
	AppliedPlans   []string
	DestroyOptions []provisioning.DestroyOptions
}

var _ provisioning.Tool = (*FakeProvisioner)(nil)

// NewFakeProvisioner returns a provisioner with a "default" workspace only
// and no pending changes.
func NewFakeProvisioner() *FakeProvisioner {
	return &FakeProvisioner{
		WorkspaceNames:   []string{"default"},
		CurrentWorkspace: "default",
	}
}

// WithChanges sets whether plans report changes.
func (f *FakeProvisioner) WithChanges(changes bool) *FakeProvisioner {
	f.Changes = changes
	return f
}

// WithOutputs sets the outputs returned after apply.
func (f *FakeProvisioner) WithOutputs(set outputs.Set) *FakeProvisioner {
	f.Outputs = set
	return f
}

// Init implements provisioning.Tool.
func (f *FakeProvisioner) Init(ctx context.Context) error {
	f.record("Init")
	return f.InitErr
}

// Workspaces implements provisioning.Tool.
func (f *FakeProvisioner) Workspaces(ctx context.Context) ([]string, string, error) {
	f.record("Workspaces")
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.WorkspaceNames), f.CurrentWorkspace, nil
}

// SelectWorkspace implements provisioning.Tool.
func (f *FakeProvisioner) SelectWorkspace(ctx context.Context, name string) error {
	f.record("SelectWorkspace")
	f.mu.Lock()
	defer f.mu.Unlock()
	if !slices.Contains(f.WorkspaceNames, name) {
		return fmt.Errorf("workspace %q doesn't exist", name)
	}
	f.CurrentWorkspace = name
	return nil
}

// NewWorkspace implements provisioning.Tool.
func (f *FakeProvisioner) NewWorkspace(ctx context.Context, name string) error {
	f.record("NewWorkspace")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.WorkspaceNames = append(f.WorkspaceNames, name)
	f.CurrentWorkspace = name
	return nil
}

// Validate implements provisioning.Tool.
func (f *FakeProvisioner) Validate(ctx context.Context) (provisioning.ValidateResult, error) {
	f.record("Validate")
	return provisioning.ValidateResult{Valid: f.Diagnostics == "", Diagnostics: f.Diagnostics}, nil
}

// Plan implements provisioning.Tool.
func (f *FakeProvisioner) Plan(ctx context.Context, opts provisioning.PlanOptions) (bool, error) {
	f.record("Plan")
	f.mu.Lock()
	f.PlanOptions = append(f.PlanOptions, opts)
	f.mu.Unlock()
	if f.PlanErr != nil {
		return false, f.PlanErr
	}
	if opts.Out != "" {
		if err := writeArtifact(opts.Out, "plan"); err != nil {
			return false, err
		}
	}
	return f.Changes, nil
}

// Apply implements provisioning.Tool.
func (f *FakeProvisioner) Apply(ctx context.Context, planFile string) error {
	f.record("Apply")
	f.mu.Lock()
	f.AppliedPlans = append(f.AppliedPlans, planFile)
	f.mu.Unlock()
	if f.ApplyStarted != nil {
		close(f.ApplyStarted)
	}
	if f.BlockApply {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.ApplyErr != nil {
		return f.ApplyErr
	}
	if f.StateFile != "" {
		return writeArtifact(f.StateFile, `{"version": 4, "serial": 2}`)
	}
	return nil
}

// Destroy implements provisioning.Tool.
func (f *FakeProvisioner) Destroy(ctx context.Context, opts provisioning.DestroyOptions) error {
	f.record("Destroy")
	f.mu.Lock()
	f.DestroyOptions = append(f.DestroyOptions, opts)
	f.mu.Unlock()
	return f.DestroyErr
}

// Output implements provisioning.Tool.
func (f *FakeProvisioner) Output(ctx context.Context) (outputs.Set, error) {
	f.record("Output")
	if f.OutputErr != nil {
		return nil, f.OutputErr
	}
	return maps.Clone(f.Outputs), nil
}

func writeArtifact(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o600)
}

// FakeConfigTool implements configmgmt.Tool without running Ansible.
type FakeConfigTool struct {
	Calls

	mu sync.Mutex

	// Unreachable maps host names to the ping failure message.
	Unreachable map[string]string

	SyntaxErr error
	PingErr   error
	RunErr    error
	Failures  []string
	Recap     configmgmt.Recap

	PingedHosts []string
	Playbooks   []configmgmt.PlaybookOptions
}

var _ configmgmt.Tool = (*FakeConfigTool)(nil)

// NewFakeConfigTool returns a tool whose hosts are all reachable.
func NewFakeConfigTool() *FakeConfigTool {
	return &FakeConfigTool{Unreachable: map[string]string{}}
}

// SyntaxCheck implements configmgmt.Tool.
func (f *FakeConfigTool) SyntaxCheck(ctx context.Context, inventory string) error {
	f.record("SyntaxCheck")
	return f.SyntaxErr
}

// Ping implements configmgmt.Tool.
func (f *FakeConfigTool) Ping(ctx context.Context, inventory string, hosts []string) ([]configmgmt.PingResult, error) {
	f.record("Ping")
	f.mu.Lock()
	f.PingedHosts = append(f.PingedHosts, hosts...)
	f.mu.Unlock()
	if f.PingErr != nil {
		return nil, f.PingErr
	}
	results := make([]configmgmt.PingResult, 0, len(hosts))
	for _, host := range hosts {
		msg, down := f.Unreachable[host]
		results = append(results, configmgmt.PingResult{Host: host, Reachable: !down, Message: msg})
	}
	return results, nil
}

// RunPlaybook implements configmgmt.Tool.
func (f *FakeConfigTool) RunPlaybook(ctx context.Context, opts configmgmt.PlaybookOptions) (*configmgmt.RunResult, error) {
	f.record("RunPlaybook")
	f.mu.Lock()
	f.Playbooks = append(f.Playbooks, opts)
	f.mu.Unlock()

	res := &configmgmt.RunResult{Recap: f.Recap}
	for _, host := range f.Failures {
		res.Failures = append(res.Failures, deployment.TaskFailure{Host: host, Task: "deploy application"})
	}
	return res, f.RunErr
}

// StaticProber is a preflight.CredentialProber returning a fixed identity.
type StaticProber struct {
	Identity aws.Identity
	Err      error
}

// Probe implements preflight.CredentialProber.
func (p StaticProber) Probe(ctx context.Context) (aws.Identity, error) {
	return p.Identity, p.Err
}

// StaticProberFactory returns a factory handing out p.
func StaticProberFactory(p StaticProber) preflight.ProberFactory {
	return func(ctx context.Context, region string) (preflight.CredentialProber, error) {
		return p, nil
	}
}

// TestIdentity is the identity used by ValidCredentials.
var TestIdentity = aws.Identity{
	Account: "123456789012",
	ARN:     "arn:aws:iam::123456789012:user/deployer",
	UserID:  "AIDATEST",
}

// ValidCredentials returns a factory whose probe always succeeds.
func ValidCredentials() preflight.ProberFactory {
	return StaticProberFactory(StaticProber{Identity: TestIdentity})
}

// ToolsChecker returns a checker that finds every tool except missing.
func ToolsChecker(missing ...string) prerequisites.Checker {
	return prerequisites.Checker{
		LookPath: func(name string) (string, error) {
			if slices.Contains(missing, name) {
				return "", errors.New("executable file not found in $PATH")
			}
			return "/usr/local/bin/" + name, nil
		},
	}
}

// FakePrompter implements ui.Prompter with canned answers.
type FakePrompter struct {
	Calls

	Answer  bool
	Text    string
	Err     error
	Prompts []string
}

// Confirm implements ui.Prompter.
func (p *FakePrompter) Confirm(ctx context.Context, title, description string) (bool, error) {
	p.record("Confirm")
	p.Prompts = append(p.Prompts, title)
	return p.Answer, p.Err
}

// Input implements ui.Prompter.
func (p *FakePrompter) Input(ctx context.Context, title, description string) (string, error) {
	p.record("Input")
	p.Prompts = append(p.Prompts, title)
	return p.Text, p.Err
}

// RecordingObserver implements orchestration.Observer and keeps every
// event and line. Observers derived with WithFields share the recording.
type RecordingObserver struct {
	rec    *recording
	fields map[string]string
}

type recording struct {
	mu     sync.Mutex
	lines  []string
	events []orchestration.Event
}

var _ orchestration.Observer = (*RecordingObserver)(nil)

// NewRecordingObserver creates an empty recorder.
func NewRecordingObserver() *RecordingObserver {
	return &RecordingObserver{rec: &recording{}, fields: map[string]string{}}
}

// Printf implements orchestration.Observer.
func (o *RecordingObserver) Printf(format string, v ...any) {
	o.rec.mu.Lock()
	defer o.rec.mu.Unlock()
	o.rec.lines = append(o.rec.lines, fmt.Sprintf(format, v...))
}

// Event implements orchestration.Observer.
func (o *RecordingObserver) Event(event orchestration.Event) {
	merged := maps.Clone(o.fields)
	maps.Copy(merged, event.Fields)
	event.Fields = merged

	o.rec.mu.Lock()
	defer o.rec.mu.Unlock()
	o.rec.events = append(o.rec.events, event)
}

// WithFields implements orchestration.Observer.
func (o *RecordingObserver) WithFields(fields map[string]string) orchestration.Observer {
	merged := maps.Clone(o.fields)
	maps.Copy(merged, fields)
	return &RecordingObserver{rec: o.rec, fields: merged}
}

// Lines returns the recorded Printf output.
func (o *RecordingObserver) Lines() []string {
	o.rec.mu.Lock()
	defer o.rec.mu.Unlock()
	return slices.Clone(o.rec.lines)
}

// Events returns the recorded events.
func (o *RecordingObserver) Events() []orchestration.Event {
	o.rec.mu.Lock()
	defer o.rec.mu.Unlock()
	return slices.Clone(o.rec.events)
}

// EventsOf returns the recorded events of type t.
func (o *RecordingObserver) EventsOf(t orchestration.EventType) []orchestration.Event {
	var out []orchestration.Event
	for _, e := range o.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Stages returns the stage names of the events of type t, in order.
func (o *RecordingObserver) Stages(t orchestration.EventType) []string {
	var out []string
	for _, e := range o.EventsOf(t) {
		out = append(out, e.Stage)
	}
	return out
}

// Contains reports whether any Printf line contains substr.
func (o *RecordingObserver) Contains(substr string) bool {
	return slices.ContainsFunc(o.Lines(), func(line string) bool {
		return strings.Contains(line, substr)
	})
}

// StaticHTTPClient returns a client answering every request with status.
func StaticHTTPClient(status int) *http.Client {
	return &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: status,
			Status:     http.StatusText(status),
			Body:       io.NopCloser(strings.NewReader("")),
			Header:     http.Header{},
			Request:    req,
		}, nil
	})}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
