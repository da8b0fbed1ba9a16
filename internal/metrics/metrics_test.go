package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func value(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	close(ch)
	var out dto.Metric
	for metric := range ch {
		if err := metric.Write(&out); err != nil {
			t.Fatalf("write metric: %v", err)
		}
	}
	switch {
	case out.Counter != nil:
		return out.Counter.GetValue()
	case out.Gauge != nil:
		return out.Gauge.GetValue()
	}
	return 0
}

func TestIndexerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewIndexerMetrics(reg)

	m.Mapped("SplitUpdated")
	m.Mapped("SplitUpdated")
	m.Failed("decode")
	m.Progress(120, 3)

	if got := value(t, m.EventsMapped.WithLabelValues("SplitUpdated")); got != 2 {
		t.Fatalf("expected 2 mapped, got %v", got)
	}
	if got := value(t, m.MappingFailures.WithLabelValues("decode")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	if got := value(t, m.LastBlock); got != 120 {
		t.Fatalf("expected last block 120, got %v", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var im *IndexerMetrics
	im.Mapped("x")
	im.Failed("map")
	im.Progress(1, 1)

	var rm *ReconcileMetrics
	rm.Rows("streams", "chain", 3)
	rm.SourceError("streams", "indexer")
	rm.Winner("streams", "chain")
	rm.Refresh("published")
}

func TestReconcileMetricsSeparateRegistries(t *testing.T) {
	first := NewReconcileMetrics(prometheus.NewRegistry())
	second := NewReconcileMetrics(prometheus.NewRegistry())

	first.Winner("flow_splitters", "chain")
	if got := value(t, second.Selected.WithLabelValues("flow_splitters", "chain")); got != 0 {
		t.Fatalf("registries should not share state, got %v", got)
	}
}
