package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flowsplit"

// IndexerMetrics holds the Prometheus metrics of the ingest runner.
// A nil *IndexerMetrics is valid and records nothing.
type IndexerMetrics struct {
	EventsMapped    *prometheus.CounterVec
	MappingFailures *prometheus.CounterVec
	LastBlock       prometheus.Gauge
	DataSources     prometheus.Gauge
}

// NewIndexerMetrics registers the runner metrics with reg.
func NewIndexerMetrics(reg prometheus.Registerer) *IndexerMetrics {
	factory := promauto.With(reg)
	return &IndexerMetrics{
		EventsMapped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "events_mapped_total",
			Help:      "Total number of events applied to the store by kind.",
		}, []string{"kind"}),
		MappingFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "mapping_failures_total",
			Help:      "Total number of logs that failed decoding or mapping by stage.",
		}, []string{"stage"}), // stage: decode, map
		LastBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "last_processed_block",
			Help:      "Highest block whose logs have been fully applied.",
		}),
		DataSources: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "data_sources",
			Help:      "Number of splitter addresses being watched.",
		}),
	}
}

func (m *IndexerMetrics) Mapped(kind string) {
	if m == nil {
		return
	}
	m.EventsMapped.WithLabelValues(kind).Inc()
}

func (m *IndexerMetrics) Failed(stage string) {
	if m == nil {
		return
	}
	m.MappingFailures.WithLabelValues(stage).Inc()
}

func (m *IndexerMetrics) Progress(block uint64, sources int) {
	if m == nil {
		return
	}
	m.LastBlock.Set(float64(block))
	m.DataSources.Set(float64(sources))
}

// ReconcileMetrics holds the Prometheus metrics of the reconciliation poller.
// A nil *ReconcileMetrics is valid and records nothing.
type ReconcileMetrics struct {
	SourceRows   *prometheus.GaugeVec
	SourceErrors *prometheus.CounterVec
	Selected     *prometheus.CounterVec
	Refreshes    *prometheus.CounterVec
}

// NewReconcileMetrics registers the reconciliation metrics with reg.
func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	factory := promauto.With(reg)
	return &ReconcileMetrics{
		SourceRows: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "source_rows",
			Help:      "Rows returned by each source in the latest cycle.",
		}, []string{"collection", "source"}),
		SourceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "source_errors_total",
			Help:      "Total number of failed source queries.",
		}, []string{"collection", "source"}),
		Selected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "selected_total",
			Help:      "Total number of times each source won the selection.",
		}, []string{"collection", "source"}),
		Refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "refreshes_total",
			Help:      "Total number of refresh cycles by outcome.",
		}, []string{"outcome"}), // outcome: published, stale, failed
	}
}

func (m *ReconcileMetrics) Rows(collection, source string, n int) {
	if m == nil {
		return
	}
	m.SourceRows.WithLabelValues(collection, source).Set(float64(n))
}

func (m *ReconcileMetrics) SourceError(collection, source string) {
	if m == nil {
		return
	}
	m.SourceErrors.WithLabelValues(collection, source).Inc()
}

func (m *ReconcileMetrics) Winner(collection, source string) {
	if m == nil {
		return
	}
	m.Selected.WithLabelValues(collection, source).Inc()
}

func (m *ReconcileMetrics) Refresh(outcome string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(outcome).Inc()
}
