package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketfeed"

// Metrics holds the ingestor's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg prometheus.Gatherer

	ItemsIngested    *prometheus.CounterVec
	ItemsSkipped     *prometheus.CounterVec
	SourceErrors     *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	CyclesTotal      prometheus.Counter
	PriceMismatches  *prometheus.CounterVec
	WatermarkCommits *prometheus.CounterVec
	RowsPruned       *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg gets a
// fresh registry that also carries the Go and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &Metrics{
		reg: reg,
		ItemsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_ingested_total",
			Help:      "Items stored by poll cycles, new or already present, by entity kind.",
		}, []string{"kind"}),
		ItemsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_skipped_total",
			Help:      "Malformed items dropped, by source.",
		}, []string{"source"}),
		SourceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_errors_total",
			Help:      "Failed source fetches or stores, by source.",
		}, []string{"source"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Poll cycle duration in seconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Poll cycles completed.",
		}),
		PriceMismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_mismatches_total",
			Help:      "Cross-source price disagreements at or above the threshold, by symbol.",
		}, []string{"symbol"}),
		WatermarkCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watermark_commits_total",
			Help:      "Watermarks advanced, by source.",
		}, []string{"source"}),
		RowsPruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_pruned_total",
			Help:      "Raw rows deleted by batch commits, by table.",
		}, []string{"table"}),
	}

	reg.MustRegister(
		m.ItemsIngested,
		m.ItemsSkipped,
		m.SourceErrors,
		m.CycleDuration,
		m.CyclesTotal,
		m.PriceMismatches,
		m.WatermarkCommits,
		m.RowsPruned,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveCycle records one finished poll cycle.
func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(d.Seconds())
}

// AddIngested counts stored items of one kind.
func (m *Metrics) AddIngested(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsIngested.WithLabelValues(kind).Add(float64(n))
}

// AddSkipped counts malformed items dropped from one source.
func (m *Metrics) AddSkipped(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsSkipped.WithLabelValues(source).Add(float64(n))
}

// IncSourceError counts a failed source.
func (m *Metrics) IncSourceError(source string) {
	if m == nil {
		return
	}
	m.SourceErrors.WithLabelValues(source).Inc()
}

// IncMismatch counts a price mismatch.
func (m *Metrics) IncMismatch(symbol string) {
	if m == nil {
		return
	}
	m.PriceMismatches.WithLabelValues(symbol).Inc()
}

// AddWatermarkCommits counts watermarks advanced for one source.
func (m *Metrics) AddWatermarkCommits(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.WatermarkCommits.WithLabelValues(source).Add(float64(n))
}

// AddPruned counts rows deleted from one table.
func (m *Metrics) AddPruned(table string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.RowsPruned.WithLabelValues(table).Add(float64(n))
}
