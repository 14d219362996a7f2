// Package metrics counts API attempts, retries, saved views and montage
// outcomes for a run and writes them in the Prometheus text format.
//
// A CLI run is too short-lived to scrape, so the registry is written once to a
// file for node_exporter's textfile collector.
package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"multiangle/fal"
	"multiangle/imagegen"
)

const namespace = "multiangle"

// Recorder holds the run's collectors on a private registry. It implements
// fal.Observer and imagegen.RunObserver.
type Recorder struct {
	registry *prometheus.Registry

	apiAttempts  *prometheus.CounterVec
	apiRetries   *prometheus.CounterVec
	views        *prometheus.CounterVec
	viewDuration prometheus.Histogram
	downloaded   prometheus.Counter
	montages     *prometheus.CounterVec
	lastRun      prometheus.Gauge
}

// NewRecorder creates a Recorder with every collector registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		apiAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_attempts_total",
				Help:      "FAL API attempts by outcome",
			},
			[]string{"outcome"}, // success|rate_limited|transient|permanent
		),
		apiRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_retries_total",
				Help:      "FAL API retries by reason",
			},
			[]string{"reason"}, // rate_limited|transient
		),
		views: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "views_total",
				Help:      "Generated views by result",
			},
			[]string{"result"}, // saved|failed
		),
		viewDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "view_duration_seconds",
				Help:      "Time to generate and save one view, including throttle and retries",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 9), // 1s..256s
			},
		),
		downloaded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "download_bytes_total",
				Help:      "Bytes of generated views written to disk",
			},
		),
		montages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "montage_total",
				Help:      "Montage builds by result",
			},
			[]string{"result"}, // success|error
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
		),
	}

	r.registry.MustRegister(
		r.apiAttempts,
		r.apiRetries,
		r.views,
		r.viewDuration,
		r.downloaded,
		r.montages,
		r.lastRun,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveAttempt counts one API attempt.
func (r *Recorder) ObserveAttempt(outcome string) {
	r.apiAttempts.WithLabelValues(outcome).Inc()
}

// ObserveRetry counts one scheduled retry.
func (r *Recorder) ObserveRetry(reason string) {
	r.apiRetries.WithLabelValues(reason).Inc()
}

// RunStarted is a no-op.
func (r *Recorder) RunStarted(context.Context, imagegen.RunInfo) {}

// ViewFinished counts the view and its bytes.
func (r *Recorder) ViewFinished(_ context.Context, _ string, result imagegen.GenerationResult) {
	if result.Success {
		r.views.WithLabelValues("saved").Inc()
		r.downloaded.Add(float64(result.Bytes))
	} else {
		r.views.WithLabelValues("failed").Inc()
	}
	r.viewDuration.Observe(result.Duration.Seconds())
}

// MontageFinished counts the montage outcome.
func (r *Recorder) MontageFinished(_ context.Context, _ string, _ string, err error) {
	if err != nil {
		r.montages.WithLabelValues("error").Inc()
		return
	}
	r.montages.WithLabelValues("success").Inc()
}

// RunFinished stamps the completion time.
func (r *Recorder) RunFinished(_ context.Context, summary *imagegen.RunSummary) {
	r.lastRun.Set(float64(summary.StartedAt.Add(summary.Elapsed).Unix()))
}

// WriteTextfile writes the registry to path in the text exposition format.
// The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("metrics: failed to create directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("metrics: failed to write %s: %w", path, err)
	}
	return nil
}

var (
	_ fal.Observer         = (*Recorder)(nil)
	_ imagegen.RunObserver = (*Recorder)(nil)
)
