package ansible

import (
	"bufio"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/imamik/infractl/internal/configmgmt"
	"github.com/imamik/infractl/internal/deployment"
)

var (
	taskHeader  = regexp.MustCompile(`^(?:TASK|RUNNING HANDLER) \[(.+?)\]`)
	failureLine = regexp.MustCompile(`^(?:fatal|failed): \[([^\]]+)\].*? => ?(.*)$`)
	recapLine   = regexp.MustCompile(`^(\S+)\s+:\s+(.*)$`)
	recapField  = regexp.MustCompile(`(\w+)=(\d+)`)
	pingLine    = regexp.MustCompile(`^(\S+) \| (SUCCESS|CHANGED|UNREACHABLE!|FAILED!)(?: \| rc=\d+)? => ?(.*)$`)
)

// ParseFailures extracts failed tasks from playbook output. Failures
// followed by "...ignoring" are dropped.
func ParseFailures(output string) []deployment.TaskFailure {
	var (
		failures []deployment.TaskFailure
		task     string
	)
	scanner := newScanner(output)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if m := taskHeader.FindStringSubmatch(line); m != nil {
			task = m[1]
			continue
		}
		if strings.TrimSpace(line) == "...ignoring" && len(failures) > 0 {
			failures = failures[:len(failures)-1]
			continue
		}
		if m := failureLine.FindStringSubmatch(line); m != nil {
			failures = append(failures, deployment.TaskFailure{
				Host:    m[1],
				Task:    task,
				Message: resultMessage(m[2]),
			})
		}
	}
	return failures
}

// ParseRecap reads the PLAY RECAP block. Hosts listed more than once
// (several plays in one run) keep the last line.
func ParseRecap(output string) configmgmt.Recap {
	recap := configmgmt.Recap{}
	inRecap := false
	scanner := newScanner(output)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, "PLAY RECAP") {
			inRecap = true
			continue
		}
		if !inRecap {
			continue
		}
		if strings.TrimSpace(line) == "" {
			inRecap = false
			continue
		}
		m := recapLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		var stats configmgmt.HostStats
		for _, f := range recapField.FindAllStringSubmatch(m[2], -1) {
			n, _ := strconv.Atoi(f[2])
			switch f[1] {
			case "ok":
				stats.OK = n
			case "changed":
				stats.Changed = n
			case "unreachable":
				stats.Unreachable = n
			case "failed":
				stats.Failed = n
			case "skipped":
				stats.Skipped = n
			case "rescued":
				stats.Rescued = n
			case "ignored":
				stats.Ignored = n
			}
		}
		recap[m[1]] = stats
	}
	return recap
}

// ParsePing reads ad-hoc ping output. Every requested host gets a result;
// hosts absent from the output are reported unreachable.
func ParsePing(output string, hosts []string) []configmgmt.PingResult {
	seen := make(map[string]configmgmt.PingResult, len(hosts))

	scanner := newScanner(output)
	for scanner.Scan() {
		m := pingLine.FindStringSubmatch(strings.TrimRight(scanner.Text(), "\r"))
		if m == nil {
			continue
		}
		body := m[3]
		if strings.TrimSpace(body) == "{" {
			var b strings.Builder
			b.WriteString("{")
			for scanner.Scan() {
				next := scanner.Text()
				b.WriteString(next)
				if strings.TrimRight(next, "\r") == "}" {
					break
				}
			}
			body = b.String()
		}
		ok := m[2] == "SUCCESS" || m[2] == "CHANGED"
		result := configmgmt.PingResult{Host: m[1], Reachable: ok}
		if !ok {
			result.Message = resultMessage(body)
		}
		seen[m[1]] = result
	}

	results := make([]configmgmt.PingResult, 0, len(hosts))
	for _, host := range hosts {
		r, ok := seen[host]
		if !ok {
			r = configmgmt.PingResult{Host: host, Message: "no response"}
		}
		results = append(results, r)
	}
	return results
}

// resultMessage pulls the human message out of a module result.
func resultMessage(raw string) string {
	raw = strings.TrimSpace(raw)
	var result map[string]any
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return raw
	}
	for _, key := range []string{"msg", "stderr", "module_stderr"} {
		switch v := result[key].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		case nil:
		default:
			if data, err := json.Marshal(v); err == nil {
				return string(data)
			}
		}
	}
	return raw
}

func newScanner(s string) *bufio.Scanner {
	scanner := bufio.NewScanner(strings.NewReader(s))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return scanner
}
