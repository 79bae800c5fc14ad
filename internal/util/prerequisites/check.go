// Package prerequisites checks that the external tools the orchestrator
// drives are installed.
package prerequisites

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Tool represents a client tool that may be required.
type Tool struct {
	// Name is the binary name to look for in PATH.
	Name string

	// Required indicates if this tool is mandatory.
	Required bool

	// Description explains what the tool is used for.
	Description string

	// InstallURL provides a URL for installation instructions.
	InstallURL string
}

// ProvisioningTools returns the tools needed to provision infrastructure.
func ProvisioningTools() []Tool {
	return []Tool{
		{
			Name:        "terraform",
			Required:    true,
			Description: "Plans and applies infrastructure changes",
			InstallURL:  "https://developer.hashicorp.com/terraform/install",
		},
	}
}

// ConfigurationTools returns the tools needed to configure hosts.
func ConfigurationTools() []Tool {
	return []Tool{
		{
			Name:        "ansible-playbook",
			Required:    true,
			Description: "Runs the site playbook against the generated inventory",
			InstallURL:  "https://docs.ansible.com/ansible/latest/installation_guide/",
		},
		{
			Name:        "ansible",
			Required:    true,
			Description: "Runs ad-hoc connectivity checks",
			InstallURL:  "https://docs.ansible.com/ansible/latest/installation_guide/",
		},
	}
}

// OptionalTools returns tools that are useful but not required.
func OptionalTools() []Tool {
	return []Tool{
		{
			Name:        "aws",
			Required:    false,
			Description: "Useful for inspecting resources and refreshing SSO sessions",
			InstallURL:  "https://docs.aws.amazon.com/cli/latest/userguide/getting-started-install.html",
		},
	}
}

// CheckResult contains the result of checking a single tool.
type CheckResult struct {
	Tool    Tool
	Found   bool
	Path    string
	Version string
}

// CheckResults contains the results of checking multiple tools.
type CheckResults struct {
	Results []CheckResult
	Missing []Tool
}

// MissingRequired returns the required tools that were not found.
func (r *CheckResults) MissingRequired() []Tool {
	var missing []Tool
	for _, tool := range r.Missing {
		if tool.Required {
			missing = append(missing, tool)
		}
	}
	return missing
}

// HasErrors returns true if any required tools are missing.
func (r *CheckResults) HasErrors() bool {
	return len(r.MissingRequired()) > 0
}

// Error returns an error if any required tools are missing.
func (r *CheckResults) Error() error {
	missing := r.MissingRequired()
	if len(missing) == 0 {
		return nil
	}
	names := make([]string, 0, len(missing))
	for _, tool := range missing {
		names = append(names, fmt.Sprintf("%s (%s)", tool.Name, tool.InstallURL))
	}
	return fmt.Errorf("missing required tools: %s", strings.Join(names, ", "))
}

// Checker looks tools up on the PATH. The zero value uses exec.LookPath and
// does not query versions.
type Checker struct {
	LookPath func(string) (string, error)
	// Version returns the first line of the tool's version output.
	// Nil disables version probing.
	Version func(ctx context.Context, path string) string
}

// Check verifies that the specified tools are available.
func (c Checker) Check(ctx context.Context, tools []Tool) *CheckResults {
	lookPath := c.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	results := &CheckResults{}
	for _, tool := range tools {
		result := CheckResult{Tool: tool}
		path, err := lookPath(tool.Name)
		if err == nil {
			result.Found = true
			result.Path = path
			if c.Version != nil {
				result.Version = c.Version(ctx, path)
			}
		} else {
			results.Missing = append(results.Missing, tool)
		}
		results.Results = append(results.Results, result)
	}
	return results
}

// ToolVersion runs the tool with --version and returns the first line of
// its output, or an empty string when that fails.
func ToolVersion(ctx context.Context, path string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// #nosec G204 - path comes from LookPath on a fixed tool list
	output, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return ""
	}
	first, _, _ := strings.Cut(string(output), "\n")
	return strings.TrimSpace(first)
}
