// Package metrics records run metrics in a per-run Prometheus registry and
// exports them to a node-exporter textfile or a Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "infractl"

// Result label values.
const (
	ResultSuccess     = "success"
	ResultFailure     = "failure"
	ResultInterrupted = "interrupted"
	ResultSkipped     = "skipped"
)

// Recorder holds the metrics of one run.
type Recorder struct {
	registry *prometheus.Registry

	stageDuration      *prometheus.HistogramVec
	stageTotal         *prometheus.CounterVec
	deploymentTotal    *prometheus.CounterVec
	deploymentDuration *prometheus.GaugeVec
	lastRun            *prometheus.GaugeVec
	checksTotal        *prometheus.CounterVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "stage",
				Name:      "duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14), // 0.5s to ~68min
			},
			[]string{"environment", "action", "stage"},
		),
		stageTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "stage",
				Name:      "runs_total",
				Help:      "Pipeline stage runs by result",
			},
			[]string{"environment", "action", "stage", "result"},
		),
		deploymentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "deployment",
				Name:      "runs_total",
				Help:      "Deployment runs by result",
			},
			[]string{"environment", "action", "result"},
		),
		deploymentDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "deployment",
				Name:      "duration_seconds",
				Help:      "Wall-clock duration of the last deployment run",
			},
			[]string{"environment", "action"},
		),
		lastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "deployment",
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last deployment run finished",
			},
			[]string{"environment", "action", "result"},
		),
		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "verification",
				Name:      "checks_total",
				Help:      "Verification checks by status",
			},
			[]string{"environment", "status"},
		),
	}
	r.registry.MustRegister(
		r.stageDuration,
		r.stageTotal,
		r.deploymentTotal,
		r.deploymentDuration,
		r.lastRun,
		r.checksTotal,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveStage records one stage run.
func (r *Recorder) ObserveStage(env, action, stage, result string, d time.Duration) {
	if result != ResultSkipped {
		r.stageDuration.WithLabelValues(env, action, stage).Observe(d.Seconds())
	}
	r.stageTotal.WithLabelValues(env, action, stage, result).Inc()
}

// ObserveDeployment records the end of a run.
func (r *Recorder) ObserveDeployment(env, action, result string, d time.Duration, finished time.Time) {
	r.deploymentTotal.WithLabelValues(env, action, result).Inc()
	r.deploymentDuration.WithLabelValues(env, action).Set(d.Seconds())
	r.lastRun.WithLabelValues(env, action, result).Set(float64(finished.Unix()))
}

// ObserveCheck records one verification check.
func (r *Recorder) ObserveCheck(env, status string) {
	r.checksTotal.WithLabelValues(env, status).Inc()
}

// WriteTextfile writes the metrics in text format for the node-exporter
// textfile collector. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Push sends the metrics to a Pushgateway, grouped by environment.
func (r *Recorder) Push(ctx context.Context, url, job, env string) error {
	err := push.New(url, job).
		Gatherer(r.registry).
		Grouping("environment", env).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
