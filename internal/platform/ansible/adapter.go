// Package ansible implements the configuration-management tool with
// go-ansible.
package ansible

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/apenella/go-ansible/v2/pkg/adhoc"
	"github.com/apenella/go-ansible/v2/pkg/execute"
	"github.com/apenella/go-ansible/v2/pkg/playbook"

	"github.com/imamik/infractl/internal/configmgmt"
)

// Default binaries.
const (
	DefaultPlaybookBinary = "ansible-playbook"
	DefaultAdhocBinary    = "ansible"
)

// Options configure an Adapter.
type Options struct {
	PlaybookBinary string
	AdhocBinary    string
	// Playbook is the entry point, relative to WorkDir.
	Playbook string
	WorkDir  string
	// Stdout and Stderr receive the tool output as it is produced. Either
	// may be nil.
	Stdout io.Writer
	Stderr io.Writer
}

// Adapter runs ansible-playbook and ansible.
type Adapter struct {
	opts Options
}

var _ configmgmt.Tool = (*Adapter)(nil)

// New creates an adapter.
func New(opts Options) *Adapter {
	if opts.PlaybookBinary == "" {
		opts.PlaybookBinary = DefaultPlaybookBinary
	}
	if opts.AdhocBinary == "" {
		opts.AdhocBinary = DefaultAdhocBinary
	}
	return &Adapter{opts: opts}
}

// SyntaxCheck runs ansible-playbook --syntax-check.
func (a *Adapter) SyntaxCheck(ctx context.Context, inventory string) error {
	cmd := playbook.NewAnsiblePlaybookCmd(
		playbook.WithBinary(a.opts.PlaybookBinary),
		playbook.WithPlaybooks(a.opts.Playbook),
		playbook.WithPlaybookOptions(&playbook.AnsiblePlaybookOptions{
			Inventory:   inventory,
			SyntaxCheck: true,
		}),
	)
	var out bytes.Buffer
	if err := a.execute(ctx, cmd, &out); err != nil {
		return fmt.Errorf("syntax check failed: %w\n%s", err, strings.TrimSpace(out.String()))
	}
	return nil
}

// Ping runs the ping module against hosts.
func (a *Adapter) Ping(ctx context.Context, inventory string, hosts []string) ([]configmgmt.PingResult, error) {
	if len(hosts) == 0 {
		return nil, nil
	}
	cmd := adhoc.NewAnsibleAdhocCmd(
		adhoc.WithBinary(a.opts.AdhocBinary),
		adhoc.WithPattern(strings.Join(hosts, ",")),
		adhoc.WithAdhocOptions(&adhoc.AnsibleAdhocOptions{
			Inventory:  inventory,
			ModuleName: "ping",
		}),
	)
	var out bytes.Buffer
	err := a.execute(ctx, cmd, &out)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	results := ParsePing(out.String(), hosts)
	// A failed run that produced no per-host line means ansible itself failed.
	if err != nil && !strings.Contains(out.String(), " | ") {
		return nil, fmt.Errorf("ping failed: %w", err)
	}
	return results, nil
}

// RunPlaybook runs the playbook and parses failures and the recap from
// its output.
func (a *Adapter) RunPlaybook(ctx context.Context, opts configmgmt.PlaybookOptions) (*configmgmt.RunResult, error) {
	cmd := playbook.NewAnsiblePlaybookCmd(
		playbook.WithBinary(a.opts.PlaybookBinary),
		playbook.WithPlaybooks(a.opts.Playbook),
		playbook.WithPlaybookOptions(&playbook.AnsiblePlaybookOptions{
			Inventory:         opts.Inventory,
			ExtraVars:         opts.ExtraVars,
			VaultPasswordFile: opts.VaultPasswordFile,
			VerboseVVV:        opts.Verbose,
		}),
	)

	var out bytes.Buffer
	err := a.execute(ctx, cmd, &out, execute.WithErrorEnrich(playbook.NewAnsiblePlaybookErrorEnrich()))
	output := out.String()
	return &configmgmt.RunResult{
		Recap:    ParseRecap(output),
		Failures: ParseFailures(output),
		Output:   output,
	}, err
}

type commander interface {
	Command() ([]string, error)
	String() string
}

func (a *Adapter) execute(ctx context.Context, cmd commander, capture io.Writer, extra ...execute.ExecuteOptions) error {
	stdout, stderr := capture, capture
	if a.opts.Stdout != nil {
		stdout = io.MultiWriter(capture, a.opts.Stdout)
	}
	if a.opts.Stderr != nil {
		stderr = io.MultiWriter(capture, a.opts.Stderr)
	}

	opts := []execute.ExecuteOptions{
		execute.WithCmd(cmd),
		execute.WithWrite(stdout),
		execute.WithWriteError(stderr),
		execute.WithEnvVars(map[string]string{
			"ANSIBLE_NOCOLOR":             "1",
			"ANSIBLE_RETRY_FILES_ENABLED": "0",
		}),
	}
	if a.opts.WorkDir != "" {
		opts = append(opts, execute.WithCmdRunDir(a.opts.WorkDir))
	}
	opts = append(opts, extra...)

	return execute.NewDefaultExecute(opts...).Execute(ctx)
}
