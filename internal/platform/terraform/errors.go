package terraform

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	tfjson "github.com/hashicorp/terraform-json"

	"github.com/imamik/infractl/internal/deployment"
)

const lockMarker = "Error acquiring the state lock"

var lockIDPattern = regexp.MustCompile(`(?m)^\s*ID:\s+(\S+)`)

// LockError returns a StateLockedError when err or the captured stderr
// report state lock contention, and nil otherwise.
func LockError(err error, stderr string) *deployment.StateLockedError {
	text := err.Error() + "\n" + stderr
	if !strings.Contains(text, lockMarker) {
		return nil
	}
	locked := &deployment.StateLockedError{Err: err}
	if m := lockIDPattern.FindStringSubmatch(text); m != nil {
		locked.LockID = m[1]
	}
	return locked
}

// RenderDiagnostics formats validate diagnostics the way the terraform CLI
// prints them.
func RenderDiagnostics(diags []tfjson.Diagnostic) string {
	var b strings.Builder
	for i, d := range diags {
		if i > 0 {
			b.WriteString("\n")
		}
		severity := "Error"
		if d.Severity == tfjson.DiagnosticSeverityWarning {
			severity = "Warning"
		}
		fmt.Fprintf(&b, "%s: %s\n", severity, d.Summary)
		if d.Range != nil {
			fmt.Fprintf(&b, "\n  on %s line %d:\n", d.Range.Filename, d.Range.Start.Line)
		}
		if d.Detail != "" {
			fmt.Fprintf(&b, "\n%s\n", d.Detail)
		}
	}
	return b.String()
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

func (t *tailBuffer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = t.buf[:0]
}
