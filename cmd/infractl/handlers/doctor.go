package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/infractl/internal/config"
	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/preflight"
	"github.com/imamik/infractl/internal/ui"
)

// preflightOptions customizes the doctor checks; replaced in tests.
var preflightOptions = func() []preflight.Option { return nil }

// errDoctorFailed is returned when a required check fails.
var errDoctorFailed = errors.New("required checks failed")

// Doctor runs every prerequisite check of the request without stopping at
// the first failure and prints one line per check.
func Doctor(ctx context.Context, opts DeployOptions) error {
	dir, err := workDir()
	if err != nil {
		return fmt.Errorf("failed to determine working directory: %w", err)
	}
	if _, err := config.LoadDotEnv(dir, environmentHint(opts.Args, opts.Lookup, dir)); err != nil {
		return err
	}
	req, err := deployment.Resolve(deployment.Input{Args: opts.Args, Lookup: opts.Lookup})
	if err != nil {
		return err
	}
	cfg, err := loadConfig(opts.ConfigPath, dir)
	if err != nil {
		return err
	}

	log, flush, err := newLogger(req.Flags.Debug)
	if err != nil {
		return err
	}
	defer flush()

	validator := preflight.NewValidator(cfg, config.LoadTimeouts(), log, preflightOptions()...)
	report := validator.Doctor(ctx, req)

	theme := themeFor(stdout)
	rows := make([][]string, 0, len(report.Checks))
	for _, c := range report.Checks {
		rows = append(rows, []string{statusMark(theme, c), string(c.Kind), c.Name, requiredLabel(c.Required), c.Detail})
	}
	fmt.Fprintln(stdout, theme.Title(fmt.Sprintf("Prerequisites for %s", req)))
	fmt.Fprintln(stdout, ui.Table([]string{"Status", "Kind", "Name", "Required", "Detail"}, rows))

	if !report.OK() {
		return errDoctorFailed
	}
	fmt.Fprintln(stdout, theme.OK("All required checks passed."))
	return nil
}

func statusMark(theme ui.Theme, c preflight.Check) string {
	switch {
	case c.OK:
		return theme.OK(ui.MarkOK)
	case c.Required:
		return theme.Fail(ui.MarkFail)
	default:
		return theme.Warn(ui.MarkWarn)
	}
}

func requiredLabel(required bool) string {
	if required {
		return "yes"
	}
	return "no"
}
