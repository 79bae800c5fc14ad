// Package handlers implements the business logic for CLI commands.
//
// This package contains handler functions that are called by command definitions
// in the commands package. Handlers build the collaborators of a run (tool
// adapters, backup mirror, SSH runner, logger) through factory variables so
// that tests can replace any of them.
package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/imamik/infractl/internal/backup"
	"github.com/imamik/infractl/internal/config"
	"github.com/imamik/infractl/internal/configmgmt"
	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/platform/ansible"
	"github.com/imamik/infractl/internal/platform/s3"
	"github.com/imamik/infractl/internal/platform/ssh"
	"github.com/imamik/infractl/internal/platform/terraform"
	"github.com/imamik/infractl/internal/provisioning"
	"github.com/imamik/infractl/internal/ui"
	"github.com/imamik/infractl/internal/verification"
)

// Factory function variables - can be replaced in tests for dependency injection.
var (
	// workDir returns the project root used when no config file is given.
	workDir = os.Getwd

	// stdout receives narratives, tables and rendered inventories.
	stdout io.Writer = os.Stdout

	// stderr receives tool diagnostics.
	stderr io.Writer = os.Stderr

	// newLogger creates the process logger. The returned func flushes it.
	newLogger = newZapLogger

	// loadConfig loads the project configuration anchored at its root.
	loadConfig = loadProjectConfig

	// newProvisioningTool creates the Terraform adapter.
	newProvisioningTool = func(cfg *config.Config, out, errOut io.Writer) (provisioning.Tool, error) {
		tf, err := terraform.New(cfg.Paths.TerraformDir, cfg.Terraform.Binary, out, errOut)
		if err != nil {
			return nil, err
		}
		return tf, nil
	}

	// newConfigurationTool creates the Ansible adapter.
	newConfigurationTool = func(cfg *config.Config, out, errOut io.Writer) configmgmt.Tool {
		return ansible.New(ansible.Options{
			PlaybookBinary: cfg.Ansible.PlaybookBinary,
			AdhocBinary:    cfg.Ansible.AdhocBinary,
			Playbook:       filepath.Base(cfg.Paths.Playbook),
			WorkDir:        filepath.Dir(cfg.Paths.Playbook),
			Stdout:         out,
			Stderr:         errOut,
		})
	}

	// newMirror creates the S3 snapshot mirror.
	newMirror = func(ctx context.Context, cfg *config.Config) (backup.Mirror, error) {
		region := cfg.Backup.Region
		if region == "" {
			region = cfg.Project.Region
		}
		client, err := s3.NewClient(ctx, s3.Options{Region: region, Endpoint: cfg.Backup.Endpoint})
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	// newCommandRunner creates the SSH runner used by service checks.
	newCommandRunner = func(settings config.Settings) (verification.CommandRunner, error) {
		key, err := ssh.ReadPrivateKey(settings.SSHKeyFile)
		if err != nil {
			return nil, err
		}
		client, err := ssh.NewClient(&ssh.Config{User: settings.SSHUser, PrivateKey: key})
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	// newPrompter creates the interactive prompter.
	newPrompter = func() ui.Prompter { return ui.TerminalPrompter{} }
)

// newZapLogger logs at debug level in development format when debug is set
// and at info level in console format otherwise.
func newZapLogger(debug bool) (logr.Logger, func(), error) {
	var zc zap.Config
	if debug {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		zc.DisableStacktrace = true
	}
	zl, err := zc.Build()
	if err != nil {
		return logr.Discard(), func() {}, fmt.Errorf("failed to create logger: %w", err)
	}
	return zapr.NewLogger(zl), func() { _ = zl.Sync() }, nil
}

// loadProjectConfig loads path, or the default file in dir, and anchors
// relative paths at the directory holding the configuration.
func loadProjectConfig(path, dir string) (*config.Config, error) {
	root := dir
	if path != "" {
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		root = filepath.Dir(path)
	} else if _, err := os.Stat(filepath.Join(dir, config.DefaultFile)); err == nil {
		path = filepath.Join(dir, config.DefaultFile)
	}

	var cfg *config.Config
	if path == "" {
		cfg = config.Default()
	} else {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	return cfg.WithRoot(root), nil
}

// environmentHint picks the environment used to choose the .env file
// before the request is resolved.
func environmentHint(args []string, lookup deployment.LookupFunc, dir string) string {
	if len(args) > 0 {
		return args[0]
	}
	if lookup != nil {
		if v, ok := lookup(deployment.VarEnvironment); ok && v != "" {
			return v
		}
	}
	if v, ok := config.ReadDotEnvValue(dir, deployment.VarEnvironment); ok {
		return v
	}
	return ""
}
