package orchestration

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/go-logr/logr"
)

// Observer defines the interface for structured observability during a run.
type Observer interface {
	// Printf logs a free-form progress line.
	Printf(format string, v ...any)

	// Event emits a structured event
	Event(event Event)

	// WithFields returns a new Observer with additional context fields
	WithFields(fields map[string]string) Observer
}

// Event represents a structured run event.
type Event struct {
	Type      EventType         // Type of event
	Stage     string            // Stage name (e.g., "provision", "configure")
	Message   string            // Human-readable message
	Timestamp time.Time         // When the event occurred
	Fields    map[string]string // Additional contextual fields
}

// EventType represents the type of run event.
type EventType string

const (
	// EventStageStarted indicates a stage has started.
	EventStageStarted EventType = "stage.started"
	// EventStageCompleted indicates a stage completed successfully.
	EventStageCompleted EventType = "stage.completed"
	// EventStageFailed indicates a stage failed.
	EventStageFailed EventType = "stage.failed"
	// EventStageSkipped indicates a stage does not apply to the request.
	EventStageSkipped EventType = "stage.skipped"

	// EventBackupCreated indicates a snapshot was written.
	EventBackupCreated EventType = "backup.created"
	// EventBackupSkipped indicates there was nothing to snapshot.
	EventBackupSkipped EventType = "backup.skipped"

	// EventIntent reports what a dry-run would have done.
	EventIntent EventType = "intent"
)

// LogObserver implements Observer on top of a logr.Logger.
type LogObserver struct {
	log    logr.Logger
	fields map[string]string
}

// NewLogObserver creates an observer writing to log.
func NewLogObserver(log logr.Logger) *LogObserver {
	return &LogObserver{log: log, fields: map[string]string{}}
}

// Printf implements Observer.
func (o *LogObserver) Printf(format string, v ...any) {
	o.log.Info(fmt.Sprintf(format, v...), o.keysAndValues(nil)...)
}

// Event implements Observer.
func (o *LogObserver) Event(event Event) {
	kv := []any{"event", string(event.Type)}
	if event.Stage != "" {
		kv = append(kv, "stage", event.Stage)
	}
	kv = append(kv, o.keysAndValues(event.Fields)...)

	switch event.Type {
	case EventStageFailed:
		o.log.Info("[!!] "+event.Message, kv...)
	case EventStageStarted:
		o.log.V(1).Info(event.Message, kv...)
	default:
		o.log.Info(event.Message, kv...)
	}
}

// WithFields implements Observer.
func (o *LogObserver) WithFields(fields map[string]string) Observer {
	merged := make(map[string]string, len(o.fields)+len(fields))
	maps.Copy(merged, o.fields)
	maps.Copy(merged, fields)
	return &LogObserver{log: o.log, fields: merged}
}

func (o *LogObserver) keysAndValues(extra map[string]string) []any {
	merged := make(map[string]string, len(o.fields)+len(extra))
	maps.Copy(merged, o.fields)
	maps.Copy(merged, extra)
	kv := make([]any, 0, 2*len(merged))
	for _, k := range slices.Sorted(maps.Keys(merged)) {
		kv = append(kv, k, merged[k])
	}
	return kv
}

// Helper functions for common events

// LogStageStart logs a stage start event.
func LogStageStart(observer Observer, stage string) {
	observer.Event(Event{
		Type:    EventStageStarted,
		Stage:   stage,
		Message: "starting",
	})
}

// LogStageComplete logs a stage completion event.
func LogStageComplete(observer Observer, stage string, duration time.Duration) {
	observer.Event(Event{
		Type:    EventStageCompleted,
		Stage:   stage,
		Message: fmt.Sprintf("completed in %v", duration.Round(time.Millisecond)),
	})
}

// LogStageFailed logs a stage failure event.
func LogStageFailed(observer Observer, stage string, err error) {
	observer.Event(Event{
		Type:    EventStageFailed,
		Stage:   stage,
		Message: fmt.Sprintf("failed: %v", err),
	})
}

// LogStageSkipped logs a skipped stage.
func LogStageSkipped(observer Observer, stage, reason string) {
	observer.Event(Event{
		Type:    EventStageSkipped,
		Stage:   stage,
		Message: "skipped: " + reason,
	})
}

// LogIntent logs an action a dry-run did not perform.
func LogIntent(observer Observer, stage, message string) {
	observer.Event(Event{
		Type:    EventIntent,
		Stage:   stage,
		Message: "dry-run: " + message,
	})
}
