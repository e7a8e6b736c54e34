// Package metrics exports sync activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mrlokans/weread2flomo/internal/entities"
	"github.com/mrlokans/weread2flomo/internal/syncer"
)

const namespace = "weread2flomo"

// Recorder implements syncer.Metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	deliveries   *prometheus.CounterVec
	skipped      *prometheus.CounterVec
	features     *prometheus.CounterVec
	bookDuration *prometheus.HistogramVec
	runDuration  prometheus.Histogram
	runs         prometheus.Counter
	ledgerSize   prometheus.Gauge
}

var _ syncer.Metrics = (*Recorder)(nil)

func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Delivery attempts by outcome",
		}, []string{"status"}),

		skipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookmarks_skipped_total",
			Help:      "Bookmarks filtered out before delivery, by reason",
		}, []string{"reason"}),

		features: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feature_attempts_total",
			Help:      "Enrichment attempts by feature and result",
		}, []string{"feature", "result"}),

		bookDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "book_duration_seconds",
			Help:      "Time spent processing one book",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),

		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of sync runs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),

		runs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed sync runs",
		}),

		ledgerSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_entries",
			Help:      "Bookmark ids recorded in the sync ledger",
		}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) DeliveryCompleted(status entities.DeliveryStatus) {
	r.deliveries.WithLabelValues(string(status)).Inc()
}

func (r *Recorder) BookmarkSkipped(reason string) {
	r.skipped.WithLabelValues(reason).Inc()
}

func (r *Recorder) FeatureAttempted(feature string, ok bool) {
	result := "success"
	if !ok {
		result = "empty"
	}
	r.features.WithLabelValues(feature, result).Inc()
}

func (r *Recorder) BookProcessed(outcome string, duration time.Duration) {
	r.bookDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (r *Recorder) RunCompleted(duration time.Duration, ledgerSize int) {
	r.runs.Inc()
	r.runDuration.Observe(duration.Seconds())
	r.ledgerSize.Set(float64(ledgerSize))
}

// Noop discards everything; used when metrics are disabled.
type Noop struct{}

func (Noop) DeliveryCompleted(entities.DeliveryStatus) {}
func (Noop) BookmarkSkipped(string)                    {}
func (Noop) FeatureAttempted(string, bool)             {}
func (Noop) BookProcessed(string, time.Duration)       {}
func (Noop) RunCompleted(time.Duration, int)           {}
