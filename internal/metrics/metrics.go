// Package metrics exposes drip engine counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/service/drip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "drip"

// Recorder implements drip.Recorder on its own registry so tests and
// multiple engines in one process never collide on global state.
type Recorder struct {
	registry *prometheus.Registry

	sweeps        prometheus.Counter
	sweepDuration prometheus.Histogram
	sweepItems    *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	started       prometheus.Counter
	cancelled     *prometheus.CounterVec
	leaseSkips    prometheus.Counter
}

// New builds a Recorder with process and Go runtime collectors attached.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeps_total",
			Help:      "Completed sweep passes.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one sweep pass.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}),
		sweepItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_items_total",
			Help:      "Items handled by sweeps, by result.",
		}, []string{"result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Delivery attempts by template and outcome.",
		}, []string{"template", "outcome"}),
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequences_started_total",
			Help:      "Sequences created.",
		}),
		cancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sequences_cancelled_total",
			Help:      "Sequences cancelled, by reason.",
		}, []string{"reason"}),
		leaseSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_lease_skips_total",
			Help:      "Ticks skipped because another runner held the sweep lease.",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.sweeps, r.sweepDuration, r.sweepItems, r.deliveries,
		r.started, r.cancelled, r.leaseSkips,
	)
	return r
}

func (r *Recorder) ObserveSweep(rep drip.SweepReport) {
	r.sweeps.Inc()
	r.sweepDuration.Observe(rep.Duration.Seconds())
	r.sweepItems.WithLabelValues("checks_processed").Add(float64(rep.ChecksProcessed))
	r.sweepItems.WithLabelValues("advanced").Add(float64(rep.SequencesAdvanced))
	r.sweepItems.WithLabelValues("completed").Add(float64(rep.SequencesCompleted))
	r.sweepItems.WithLabelValues("failed").Add(float64(rep.Failures))
}

func (r *Recorder) ObserveDelivery(template string, outcome domain.DeliveryOutcome) {
	r.deliveries.WithLabelValues(template, string(outcome)).Inc()
}

func (r *Recorder) ObserveStarted() { r.started.Inc() }

func (r *Recorder) ObserveCancelled(reason domain.CancelReason) {
	r.cancelled.WithLabelValues(string(reason)).Inc()
}

// ObserveLeaseSkip counts a tick that found the lease taken.
func (r *Recorder) ObserveLeaseSkip() { r.leaseSkips.Inc() }

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

var _ drip.Recorder = (*Recorder)(nil)
