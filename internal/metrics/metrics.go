// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	documentsTotal        *prometheus.CounterVec
	bytesTotal            prometheus.Counter
	indexLinesSkipped     prometheus.Counter
	rateLimitDelaySeconds prometheus.Histogram
	activeWorkers         prometheus.Gauge

	once sync.Once
)

// Init registers the collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		documentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgar_documents_total",
				Help: "Filing documents processed, labeled by form type and outcome.",
			},
			[]string{"form_type", "outcome"},
		)

		bytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "edgar_bytes_total",
				Help: "Total bytes written to the filing store.",
			},
		)

		indexLinesSkipped = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "edgar_index_lines_skipped_total",
				Help: "Malformed index lines skipped during parsing.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "edgar_rate_limit_delay_seconds",
				Help:    "Delay introduced by the request rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "edgar_active_workers",
				Help: "Download workers currently executing.",
			},
		)
	})
}

// IncDocument counts one processed document.
func IncDocument(formType, outcome string) {
	Init()
	documentsTotal.WithLabelValues(formType, outcome).Inc()
}

// AddBytes counts bytes persisted.
func AddBytes(n int64) {
	Init()
	bytesTotal.Add(float64(n))
}

// AddSkippedLines counts malformed index lines.
func AddSkippedLines(n int) {
	Init()
	indexLinesSkipped.Add(float64(n))
}

// ObserveRateLimitDelay records time spent blocked on the rate limiter.
func ObserveRateLimitDelay(d time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(d.Seconds())
}

// WorkerStarted marks a worker as active.
func WorkerStarted() {
	Init()
	activeWorkers.Inc()
}

// WorkerDone marks a worker as idle.
func WorkerDone() {
	Init()
	activeWorkers.Dec()
}

// Handler returns the router serving /metrics.
func Handler() http.Handler {
	Init()
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	return r
}
