// Package verification runs post-deployment checks against the hosts of
// an inventory.
package verification

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/samber/lo"

	"github.com/imamik/infractl/internal/config"
	"github.com/imamik/infractl/internal/inventory"
	"github.com/imamik/infractl/internal/platform/ssh"
	"github.com/imamik/infractl/internal/util/async"
)

// Status is the outcome of one check.
type Status string

// Check outcomes.
const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusSkipped Status = "skipped"
)

// Check names.
const (
	CheckServiceActive = "service-active"
	CheckHTTPHealth    = "http-health"
)

// Result is the outcome of one check on one host. Service checks are
// named after the service, e.g. "service-active/nginx".
type Result struct {
	Check   string        `json:"check"`
	Host    string        `json:"host"`
	Status  Status        `json:"status"`
	Message string        `json:"message,omitempty"`
	Elapsed time.Duration `json:"elapsedNs"`
}

// CommandRunner runs a shell command on a remote host.
type CommandRunner interface {
	Run(ctx context.Context, host, command string) (ssh.Result, error)
}

// Runner executes the configured checks.
type Runner struct {
	cfg      config.VerificationConfig
	timeouts *config.Timeouts
	commands CommandRunner
	http     *http.Client
	log      logr.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithCommandRunner enables service checks. Without one they are skipped.
func WithCommandRunner(r CommandRunner) Option {
	return func(rn *Runner) { rn.commands = r }
}

// WithHTTPClient replaces the client used for health checks.
func WithHTTPClient(c *http.Client) Option {
	return func(rn *Runner) { rn.http = c }
}

// NewRunner creates a Runner.
func NewRunner(cfg config.VerificationConfig, timeouts *config.Timeouts, log logr.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		timeouts: timeouts,
		http:     &http.Client{},
		log:      log.WithName("verification"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run checks every host of doc. Checks run concurrently and independently;
// the returned results are sorted by host and check.
func (r *Runner) Run(ctx context.Context, doc *inventory.Document) []Result {
	var (
		mu      sync.Mutex
		results []Result
		tasks   []async.Task
	)
	record := func(res Result) {
		mu.Lock()
		results = append(results, res)
		mu.Unlock()
	}

	for _, target := range doc.Targets() {
		switch {
		case target.Group == inventory.GroupLoadBalancer:
			tasks = append(tasks, r.healthTask(target, 80, r.cfg.HealthPath, record))
		case !target.Managed:
			for _, svc := range r.cfg.Services {
				tasks = append(tasks, r.serviceTask(target, svc, record))
			}
			tasks = append(tasks, r.healthTask(target, r.cfg.HealthPort, r.cfg.HealthPath, record))
		}
	}

	async.RunAll(ctx, tasks, r.cfg.Workers)

	slices.SortFunc(results, func(a, b Result) int {
		if c := cmp.Compare(a.Host, b.Host); c != 0 {
			return c
		}
		return cmp.Compare(a.Check, b.Check)
	})

	counts := Count(results)
	r.log.Info("verification finished",
		"pass", counts[StatusPass], "fail", counts[StatusFail], "skipped", counts[StatusSkipped])
	return results
}

func (r *Runner) serviceTask(target inventory.Target, service string, record func(Result)) async.Task {
	check := CheckServiceActive + "/" + service
	return async.Task{
		Name: target.Name + ":" + check,
		Func: func(ctx context.Context) error {
			res := Result{Check: check, Host: target.Name}
			if r.commands == nil {
				res.Status = StatusSkipped
				res.Message = "no SSH key available"
				record(res)
				return nil
			}
			ctx, cancel := context.WithTimeout(ctx, r.timeouts.Probe)
			defer cancel()

			start := time.Now()
			out, err := r.commands.Run(ctx, target.Address, "systemctl is-active "+shellQuote(service))
			res.Elapsed = time.Since(start)
			switch {
			case err != nil:
				res.Status = StatusFail
				res.Message = err.Error()
			case out.ExitStatus != 0:
				res.Status = StatusFail
				res.Message = fmt.Sprintf("%s is %s", service, lo.CoalesceOrEmpty(out.Output, "inactive"))
			default:
				res.Status = StatusPass
				res.Message = out.Output
			}
			record(res)
			return nil
		},
	}
}

func (r *Runner) healthTask(target inventory.Target, port int, path string, record func(Result)) async.Task {
	return async.Task{
		Name: target.Name + ":" + CheckHTTPHealth,
		Func: func(ctx context.Context) error {
			res := Result{Check: CheckHTTPHealth, Host: target.Name}
			if target.Address == "" {
				res.Status = StatusSkipped
				res.Message = "no address"
				record(res)
				return nil
			}
			start := time.Now()
			status, err := r.get(ctx, healthURL(target.Address, port, path))
			res.Elapsed = time.Since(start)
			switch {
			case err != nil:
				res.Status = StatusFail
				res.Message = err.Error()
			case status >= 200 && status < 400:
				res.Status = StatusPass
				res.Message = "HTTP " + strconv.Itoa(status)
			default:
				res.Status = StatusFail
				res.Message = "HTTP " + strconv.Itoa(status)
			}
			record(res)
			return nil
		},
	}
}

func (r *Runner) get(ctx context.Context, url string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeouts.Probe)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	return resp.StatusCode, nil
}

func healthURL(host string, port int, path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if port == 0 || port == 80 {
		return "http://" + host + path
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + path
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Count tallies results by status.
func Count(results []Result) map[Status]int {
	return lo.CountValuesBy(results, func(r Result) Status { return r.Status })
}

// Failed returns the failed results.
func Failed(results []Result) []Result {
	return lo.Filter(results, func(r Result, _ int) bool { return r.Status == StatusFail })
}
