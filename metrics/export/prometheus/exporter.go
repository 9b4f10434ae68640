package prometheus

import (
	"net/http"

	"github.com/MrEthical07/restauth/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Source provides snapshots to export. *restauth.Engine implements it.
type Source interface {
	MetricsSnapshot() metrics.Snapshot
	AuditDropped() uint64
}

// Exporter is a prometheus.Collector reading a Source on every scrape.
type Exporter struct {
	source       Source
	counters     map[metrics.ID]*prometheus.Desc
	histograms   map[metrics.ID]*prometheus.Desc
	auditDropped *prometheus.Desc
}

var _ prometheus.Collector = (*Exporter)(nil)

// New returns an Exporter for source.
func New(source Source) *Exporter {
	e := &Exporter{
		source:     source,
		counters:   make(map[metrics.ID]*prometheus.Desc, len(metrics.CounterDefs)),
		histograms: make(map[metrics.ID]*prometheus.Desc, len(metrics.HistogramDefs)),
		auditDropped: prometheus.NewDesc(
			"restauth_audit_dropped_total",
			"Dropped audit events due to dispatcher backpressure.",
			nil, nil,
		),
	}
	for _, def := range metrics.CounterDefs {
		e.counters[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	for _, def := range metrics.HistogramDefs {
		e.histograms[def.ID] = prometheus.NewDesc(def.Name, def.Help, nil, nil)
	}
	return e
}

func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	for _, def := range metrics.CounterDefs {
		ch <- e.counters[def.ID]
	}
	for _, def := range metrics.HistogramDefs {
		ch <- e.histograms[def.ID]
	}
	ch <- e.auditDropped
}

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	if e == nil || e.source == nil {
		return
	}
	snapshot := e.source.MetricsSnapshot()

	for _, def := range metrics.CounterDefs {
		value, ok := snapshot.Counters[def.ID]
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(e.counters[def.ID], prometheus.CounterValue, float64(value))
	}

	for _, def := range metrics.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		cumulative := metrics.CumulativeBuckets(metrics.NormalizeBuckets(raw))
		buckets := make(map[float64]uint64, len(metrics.HistogramUpperBounds))
		for i, le := range metrics.HistogramUpperBounds {
			buckets[le] = cumulative[i]
		}
		ch <- prometheus.MustNewConstHistogram(
			e.histograms[def.ID],
			cumulative[metrics.BucketCount-1],
			snapshot.HistogramSums[def.ID],
			buckets,
		)
	}

	ch <- prometheus.MustNewConstMetric(e.auditDropped, prometheus.CounterValue, float64(e.source.AuditDropped()))
}

// Handler serves the exporter from a dedicated registry.
func (e *Exporter) Handler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(e)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
