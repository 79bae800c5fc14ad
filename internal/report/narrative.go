package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/imamik/infractl/internal/ui"
	"github.com/imamik/infractl/internal/verification"
)

// Narrative prints s for humans.
func Narrative(w io.Writer, s *Summary, theme ui.Theme) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", theme.Title(fmt.Sprintf("Deployment %s/%s", s.Environment, s.Action)))
	fmt.Fprintf(&b, "  %-14s %s\n", "Status:", statusText(s.Status, theme))
	fmt.Fprintf(&b, "  %-14s %s\n", "Elapsed:", s.Elapsed)
	if flags := flagList(s); flags != "" {
		fmt.Fprintf(&b, "  %-14s %s\n", "Flags:", flags)
	}
	if s.Plan != nil {
		plan := string(s.Plan.Outcome)
		if s.Plan.Artifact != "" {
			plan += theme.Dim(" (" + s.Plan.Artifact + ")")
		}
		fmt.Fprintf(&b, "  %-14s %s\n", "Plan:", plan)
	}
	if s.Snapshot != nil {
		snap := s.Snapshot.Name
		if s.Snapshot.Remote != "" {
			snap += theme.Dim(" -> " + s.Snapshot.Remote)
		}
		fmt.Fprintf(&b, "  %-14s %s\n", "Backup:", snap)
	}

	if s.Status != StatusSucceeded {
		b.WriteString("\n")
		b.WriteString(theme.Section("Failure") + "\n")
		if s.FailedStage != "" {
			fmt.Fprintf(&b, "  %-14s %s\n", "Stage:", s.FailedStage)
		}
		fmt.Fprintf(&b, "  %-14s %s\n", "Error:", theme.Fail(s.Error))
		if s.Diagnostic != "" {
			b.WriteString("  Diagnostic:\n")
			for _, line := range strings.Split(strings.TrimRight(s.Diagnostic, "\n"), "\n") {
				b.WriteString("    " + line + "\n")
			}
		}
		if len(s.EmergencyCopies) > 0 {
			fmt.Fprintf(&b, "  %-14s %s\n", "Emergency copy:", strings.Join(s.EmergencyCopies, ", "))
		} else {
			fmt.Fprintf(&b, "  %-14s %s\n", "Emergency copy:", "none")
		}
	}

	if s.Highlights != nil {
		b.WriteString("\n")
		b.WriteString(theme.Section("Endpoints") + "\n")
		fmt.Fprintf(&b, "  %-14s %s\n", "Load balancer:", s.Highlights.LoadBalancer)
		fmt.Fprintf(&b, "  %-14s %s\n", "Instances:", s.Highlights.Instances)
		fmt.Fprintf(&b, "  %-14s %s\n", "Database:", s.Highlights.Database)
		fmt.Fprintf(&b, "  %-14s %s\n", "Bucket:", s.Highlights.Bucket)
	}

	if s.Configuration != nil {
		c := s.Configuration
		b.WriteString("\n")
		b.WriteString(theme.Section("Configuration") + "\n")
		fmt.Fprintf(&b, "  ok=%d changed=%d unreachable=%d failed=%d skipped=%d\n",
			c.OK, c.Changed, c.Unreachable, c.Failed, c.Skipped)
	}

	if len(s.Checks) > 0 {
		counts := verification.Count(s.Checks)
		b.WriteString("\n")
		b.WriteString(theme.Section(fmt.Sprintf("Verification (%d passed, %d failed, %d skipped)",
			counts[verification.StatusPass], counts[verification.StatusFail], counts[verification.StatusSkipped])) + "\n")
		rows := make([][]string, 0, len(s.Checks))
		for _, c := range s.Checks {
			rows = append(rows, []string{checkMark(c.Status, theme), c.Host, c.Check, c.Message})
		}
		b.WriteString(ui.Table([]string{"", "host", "check", "detail"}, rows) + "\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func statusText(s Status, theme ui.Theme) string {
	switch s {
	case StatusSucceeded:
		return theme.OK(ui.MarkOK + " " + string(s))
	case StatusInterrupted:
		return theme.Warn(ui.MarkWarn + " " + string(s))
	default:
		return theme.Fail(ui.MarkFail + " " + string(s))
	}
}

func checkMark(s verification.Status, theme ui.Theme) string {
	switch s {
	case verification.StatusPass:
		return theme.OK(ui.MarkOK)
	case verification.StatusFail:
		return theme.Fail(ui.MarkFail)
	default:
		return theme.Dim(ui.MarkSkip)
	}
}

func flagList(s *Summary) string {
	var flags []string
	if s.Flags.SkipProvisioning {
		flags = append(flags, "skip-provisioning")
	}
	if s.Flags.SkipConfiguration {
		flags = append(flags, "skip-configuration")
	}
	if s.Flags.DryRun {
		flags = append(flags, "dry-run")
	}
	if s.Flags.Debug {
		flags = append(flags, "debug")
	}
	return strings.Join(flags, ", ")
}
