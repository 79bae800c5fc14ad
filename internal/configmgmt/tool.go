package configmgmt

import (
	"context"

	"github.com/imamik/infractl/internal/deployment"
)

// Tool is the configuration-management tool as seen by the driver.
type Tool interface {
	// SyntaxCheck parses the playbook against inventory without running it.
	SyntaxCheck(ctx context.Context, inventory string) error
	// Ping probes hosts and returns one result per requested host. An error
	// is returned only when the probe itself could not run.
	Ping(ctx context.Context, inventory string, hosts []string) ([]PingResult, error)
	// RunPlaybook runs the playbook. The result is populated from the tool
	// output even when the run fails.
	RunPlaybook(ctx context.Context, opts PlaybookOptions) (*RunResult, error)
}

// PingResult is the reachability of one host.
type PingResult struct {
	Host      string
	Reachable bool
	Message   string
}

// PlaybookOptions parameterize a playbook run.
type PlaybookOptions struct {
	Inventory         string
	ExtraVars         map[string]any
	VaultPasswordFile string
	Verbose           bool
}

// HostStats is one PLAY RECAP line.
type HostStats struct {
	OK          int `json:"ok"`
	Changed     int `json:"changed"`
	Unreachable int `json:"unreachable"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
	Rescued     int `json:"rescued"`
	Ignored     int `json:"ignored"`
}

// Recap maps host names to their run statistics.
type Recap map[string]HostStats

// Totals sums the statistics over all hosts.
func (r Recap) Totals() HostStats {
	var t HostStats
	for _, s := range r {
		t.OK += s.OK
		t.Changed += s.Changed
		t.Unreachable += s.Unreachable
		t.Failed += s.Failed
		t.Skipped += s.Skipped
		t.Rescued += s.Rescued
		t.Ignored += s.Ignored
	}
	return t
}

// RunResult is what a playbook run reported.
type RunResult struct {
	Recap    Recap
	Failures []deployment.TaskFailure
	Output   string
}
