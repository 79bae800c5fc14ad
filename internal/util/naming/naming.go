package naming

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the layout used for every timestamped name.
const TimestampLayout = "20060102T150405Z"

// PlanExtension is the file extension of plan artifacts.
const PlanExtension = ".tfplan"

// Timestamp formats t in UTC.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a name produced by Timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, s, time.UTC)
}

// Snapshot returns the directory name of a backup snapshot taken at t.
func Snapshot(t time.Time) string {
	return Timestamp(t)
}

// SnapshotTime extracts the creation time from a snapshot directory name.
// Collision suffixes ("-1", "-2") are ignored.
func SnapshotTime(name string) (time.Time, bool) {
	base, _, _ := strings.Cut(name, "-")
	ts, err := ParseTimestamp(base)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// PlanArtifact returns the file name of a plan artifact for env created at t.
func PlanArtifact(env string, t time.Time) string {
	return fmt.Sprintf("%s-%s%s", env, Timestamp(t), PlanExtension)
}

// ParsePlanArtifact splits a plan artifact file name into environment and time.
func ParsePlanArtifact(name string) (string, time.Time, bool) {
	trimmed, ok := strings.CutSuffix(name, PlanExtension)
	if !ok {
		return "", time.Time{}, false
	}
	idx := strings.LastIndex(trimmed, "-")
	if idx <= 0 {
		return "", time.Time{}, false
	}
	ts, err := ParseTimestamp(trimmed[idx+1:])
	if err != nil {
		return "", time.Time{}, false
	}
	return trimmed[:idx], ts, true
}

// EmergencyCopy returns the name of an emergency copy of base taken at t.
func EmergencyCopy(base string, t time.Time) string {
	return fmt.Sprintf("%s.error.%s", base, Timestamp(t))
}

// Summary returns the file name of a run summary.
func Summary(env string, t time.Time) string {
	return fmt.Sprintf("summary-%s-%s.json", env, Timestamp(t))
}

// WebHost returns the inventory name of the i-th (1-based) web server.
func WebHost(i int) string {
	return fmt.Sprintf("web-%d", i)
}
