// Package metrics exposes the outcome of an archive run to Prometheus.
// Runs are short lived, so metrics are pushed to a Pushgateway instead of
// being scraped.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/jsmithdenverdev/poc-cold-archiver/internal/archive"
)

const (
	namespace = "cold_archiver"
	jobName   = "cold_archiver"
)

// Run holds the metrics of a single archive run.
type Run struct {
	registry *prometheus.Registry

	archived       prometheus.Counter
	alreadyDeleted prometheus.Counter
	skipped        prometheus.Counter
	bytes          prometheus.Counter
	duration       prometheus.Gauge
	lastSuccess    prometheus.Gauge
}

// NewRun registers the run metrics on a fresh registry.
func NewRun() *Run {
	r := &Run{
		registry: prometheus.NewRegistry(),
		archived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_archived_total",
			Help:      "Records uploaded to blob storage and removed from the document store.",
		}),
		alreadyDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_already_deleted_total",
			Help:      "Archived records that were gone from the document store at delete time.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Records returned by the query that were not older than the cutoff.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_uploaded_total",
			Help:      "Bytes of archive blobs uploaded.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last archive run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful archive run.",
		}),
	}

	r.registry.MustRegister(r.archived, r.alreadyDeleted, r.skipped, r.bytes, r.duration, r.lastSuccess)
	return r
}

// Observe records the result of a run. lastSuccess is only set when the
// run did not fail.
func (r *Run) Observe(result archive.Result, runErr error) {
	r.archived.Add(float64(result.Archived))
	r.alreadyDeleted.Add(float64(result.AlreadyDeleted))
	r.skipped.Add(float64(result.Skipped))
	r.bytes.Add(float64(result.Bytes))
	r.duration.Set(result.Duration.Seconds())

	if runErr == nil {
		r.lastSuccess.Set(float64(result.StartedAt.Add(result.Duration).Unix()))
	}
}

// Registry returns the registry holding the run metrics.
func (r *Run) Registry() *prometheus.Registry {
	return r.registry
}

// Push sends the run metrics to the Pushgateway at url.
func (r *Run) Push(ctx context.Context, url string) error {
	if err := push.New(url, jobName).Gatherer(r.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
