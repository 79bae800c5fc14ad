// Package preflight checks that a deployment can start: tools on PATH,
// cloud credentials, and the input files of the stages that will run.
package preflight

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"

	"github.com/imamik/infractl/internal/config"
	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/platform/aws"
	"github.com/imamik/infractl/internal/util/prerequisites"
)

// CredentialProber resolves the caller identity of the active credentials.
type CredentialProber interface {
	Probe(ctx context.Context) (aws.Identity, error)
}

// ProberFactory creates a CredentialProber for region.
type ProberFactory func(ctx context.Context, region string) (CredentialProber, error)

// DefaultProberFactory probes AWS STS with the default credential chain.
func DefaultProberFactory(ctx context.Context, region string) (CredentialProber, error) {
	return aws.NewIdentityProber(ctx, region)
}

// Validator runs the pre-flight checks.
type Validator struct {
	cfg      *config.Config
	timeouts *config.Timeouts
	checker  prerequisites.Checker
	prober   ProberFactory
	log      logr.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithChecker replaces the PATH lookup.
func WithChecker(c prerequisites.Checker) Option {
	return func(v *Validator) { v.checker = c }
}

// WithProberFactory replaces the credential probe.
func WithProberFactory(f ProberFactory) Option {
	return func(v *Validator) { v.prober = f }
}

// NewValidator creates a Validator.
func NewValidator(cfg *config.Config, timeouts *config.Timeouts, log logr.Logger, opts ...Option) *Validator {
	v := &Validator{
		cfg:      cfg,
		timeouts: timeouts,
		prober:   DefaultProberFactory,
		log:      log.WithName("preflight"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// RequiredTools returns the tools req needs.
func RequiredTools(req deployment.Request) []prerequisites.Tool {
	var tools []prerequisites.Tool
	if req.RunsProvisioning() {
		tools = append(tools, prerequisites.ProvisioningTools()...)
	}
	if req.RunsConfiguration() {
		tools = append(tools, prerequisites.ConfigurationTools()...)
	}
	return tools
}

// RequiredFiles returns the input files req needs.
func (v *Validator) RequiredFiles(req deployment.Request) []string {
	var files []string
	if req.RunsProvisioning() {
		files = append(files, v.cfg.VarFile(req.Environment))
	}
	if req.RunsConfiguration() {
		files = append(files, v.cfg.Paths.Playbook)
	}
	return files
}

// Validate checks tools, then credentials, then files, and stops at the
// first failure with a *deployment.PrerequisiteError.
func (v *Validator) Validate(ctx context.Context, req deployment.Request) error {
	results := v.checker.Check(ctx, RequiredTools(req))
	if missing := results.MissingRequired(); len(missing) > 0 {
		return &deployment.PrerequisiteError{
			Kind:        deployment.PrerequisiteTool,
			Requirement: missing[0].Name,
			Err:         results.Error(),
		}
	}

	if req.RunsProvisioning() {
		id, err := v.probe(ctx, req.Environment)
		if err != nil {
			return &deployment.PrerequisiteError{
				Kind:        deployment.PrerequisiteCredentials,
				Requirement: "cloud credentials",
				Err:         err,
			}
		}
		v.log.Info("credentials ok", "account", id.Account, "arn", id.ARN)
	}

	for _, path := range v.RequiredFiles(req) {
		if err := checkFile(path); err != nil {
			return &deployment.PrerequisiteError{
				Kind:        deployment.PrerequisiteFile,
				Requirement: path,
				Err:         err,
			}
		}
	}
	return nil
}

func (v *Validator) probe(ctx context.Context, env deployment.Environment) (aws.Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeouts.Credentials)
	defer cancel()

	prober, err := v.prober(ctx, v.cfg.For(env).Region)
	if err != nil {
		return aws.Identity{}, err
	}
	return prober.Probe(ctx)
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
