// Package metrics exposes the producer's operational counters as
// Prometheus collectors, implementing producer.Metrics so the core
// never imports Prometheus directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bitskyai/producer-agent/internal/producer"
)

// Registry wraps the counters/gauges/histogram the producer reports
// into. Register it with a prometheus.Registerer (or leave nil to fall
// back to the default one); the registered collectors are then served by
// whatever Prometheus handler scrapes that registerer.
type Registry struct {
	jobsStarted                prometheus.Counter
	jobsTimedOut               prometheus.Counter
	jobDuration                prometheus.Histogram
	dispatchTargetFail         prometheus.Counter
	dispatchCPFail             prometheus.Counter
	watcherFailures            prometheus.Counter
	watcherSuccesses           prometheus.Counter
	watcherConsecutiveFailures prometheus.Gauge
}

// New builds a Registry and registers its collectors against reg. Pass
// nil to register against prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Registry{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "producer_jobs_run_total",
			Help: "Number of jobs the Job Runner has acquired.",
		}),
		jobsTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "producer_jobs_timeout_total",
			Help: "Number of jobs that ended because the collect-job timeout fired.",
		}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "producer_job_duration_seconds",
			Help:    "Wall-clock duration of a job from acquisition to teardown.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		dispatchTargetFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "producer_dispatch_target_failures_total",
			Help: "Number of result-dispatch buckets that failed to reach their target system.",
		}),
		dispatchCPFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "producer_dispatch_controlplane_failures_total",
			Help: "Number of result-dispatch buckets that failed to report back to the control plane.",
		}),
		watcherFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "producer_watcher_failures_total",
			Help: "Total number of config-watch fetch failures.",
		}),
		watcherSuccesses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "producer_watcher_successes_total",
			Help: "Number of successful config-watch fetches.",
		}),
		watcherConsecutiveFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "producer_watcher_consecutive_failures",
			Help: "Number of config-watch fetch failures since the last success; reset to 0 on success.",
		}),
	}

	reg.MustRegister(
		r.jobsStarted,
		r.jobsTimedOut,
		r.jobDuration,
		r.dispatchTargetFail,
		r.dispatchCPFail,
		r.watcherFailures,
		r.watcherSuccesses,
		r.watcherConsecutiveFailures,
	)
	return r
}

func (r *Registry) JobStarted() { r.jobsStarted.Inc() }

func (r *Registry) JobFinished(timedOut bool) {
	if timedOut {
		r.jobsTimedOut.Inc()
	}
}

func (r *Registry) DispatchTargetFailure()       { r.dispatchTargetFail.Inc() }
func (r *Registry) DispatchControlPlaneFailure() { r.dispatchCPFail.Inc() }

func (r *Registry) WatcherFailure(consecutiveFailures int) {
	r.watcherFailures.Inc()
	r.watcherConsecutiveFailures.Set(float64(consecutiveFailures))
}

func (r *Registry) WatcherSuccess() {
	r.watcherSuccesses.Inc()
	r.watcherConsecutiveFailures.Set(0)
}

func (r *Registry) JobDuration(seconds float64) { r.jobDuration.Observe(seconds) }

var _ producer.Metrics = (*Registry)(nil)
