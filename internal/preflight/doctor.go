package preflight

import (
	"context"

	"github.com/samber/lo"

	"github.com/imamik/infractl/internal/deployment"
	"github.com/imamik/infractl/internal/util/prerequisites"
)

// Check is one line of a doctor report.
type Check struct {
	Kind     deployment.PrerequisiteKind
	Name     string
	Required bool
	OK       bool
	Detail   string
}

// Report is the result of Doctor.
type Report struct {
	Checks []Check
}

// OK reports whether every required check passed.
func (r *Report) OK() bool {
	return !lo.ContainsBy(r.Checks, func(c Check) bool { return c.Required && !c.OK })
}

// Doctor runs every check of req without stopping at the first failure
// and includes the optional tools.
func (v *Validator) Doctor(ctx context.Context, req deployment.Request) *Report {
	report := &Report{}

	tools := append(RequiredTools(req), prerequisites.OptionalTools()...)
	checker := v.checker
	if checker.Version == nil {
		checker.Version = prerequisites.ToolVersion
	}
	for _, r := range checker.Check(ctx, tools).Results {
		c := Check{
			Kind:     deployment.PrerequisiteTool,
			Name:     r.Tool.Name,
			Required: r.Tool.Required,
			OK:       r.Found,
			Detail:   r.Version,
		}
		if !r.Found {
			c.Detail = "not found, see " + r.Tool.InstallURL
		} else if c.Detail == "" {
			c.Detail = r.Path
		}
		report.Checks = append(report.Checks, c)
	}

	if req.RunsProvisioning() {
		c := Check{Kind: deployment.PrerequisiteCredentials, Name: "cloud credentials", Required: true}
		if id, err := v.probe(ctx, req.Environment); err != nil {
			c.Detail = err.Error()
		} else {
			c.OK = true
			c.Detail = id.ARN
		}
		report.Checks = append(report.Checks, c)
	}

	for _, path := range v.RequiredFiles(req) {
		c := Check{Kind: deployment.PrerequisiteFile, Name: path, Required: true, OK: true}
		if err := checkFile(path); err != nil {
			c.OK = false
			c.Detail = err.Error()
		}
		report.Checks = append(report.Checks, c)
	}
	return report
}
