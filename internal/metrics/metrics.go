// Package metrics exposes synchronization progress as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/ticksync/internal/domain"
)

const namespace = "ticksync"

// Emitter records batch and run events. It implements app.BatchEventEmitter.
type Emitter struct {
	registry      *prometheus.Registry
	batches       *prometheus.CounterVec
	words         *prometheus.CounterVec
	fetchErrors   *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	groups        *prometheus.CounterVec
	runs          *prometheus.CounterVec
}

// New registers the metrics on a fresh registry.
func New() *Emitter {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Emitter{
		registry: reg,
		batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "batches_total", Help: "Batches fetched successfully.",
		}, []string{"pool"}),
		words: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "words_total", Help: "Bitmap words fetched.",
		}, []string{"pool"}),
		fetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "fetch_errors_total", Help: "Failed batch fetches.",
		}, []string{"pool"}),
		fetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "fetch_duration_seconds", Help: "Duration of batch fetches.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"pool"}),
		groups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "group_boundaries_total", Help: "Group boundaries crossed.",
		}, []string{"pool"}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "runs_total", Help: "Finished synchronization runs by result.",
		}, []string{"pool", "result"}),
	}
}

// OnBatchFetched counts a committed batch, its words and its fetch duration.
func (e *Emitter) OnBatchFetched(pool string, b domain.Batch, d time.Duration, groupBoundary bool) {
	e.batches.WithLabelValues(pool).Inc()
	e.words.WithLabelValues(pool).Add(float64(b.Count))
	e.fetchDuration.WithLabelValues(pool).Observe(d.Seconds())
	if groupBoundary {
		e.groups.WithLabelValues(pool).Inc()
	}
}

// OnFetchError counts a failed batch fetch.
func (e *Emitter) OnFetchError(pool string, b domain.Batch, err error) {
	e.fetchErrors.WithLabelValues(pool).Inc()
}

// OnRunFinished counts a finished run under result "ok" or "error".
func (e *Emitter) OnRunFinished(pool string, words int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	e.runs.WithLabelValues(pool, result).Inc()
}

// Registry returns the registry holding the metrics.
func (e *Emitter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (e *Emitter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
