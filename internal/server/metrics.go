package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/fusionsync/internal/reconcile"
)

// metrics are registered on a per-server registry so that several servers
// (tests) can coexist in one process.
type metrics struct {
	registry *prometheus.Registry

	syncs    *prometheus.CounterVec
	duration prometheus.Summary
	records  *prometheus.CounterVec
	queries  *prometheus.CounterVec
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &metrics{
		registry: reg,
		syncs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fusionsync_syncs_total",
			Help: "Design sync calls by outcome code (ok on success).",
		}, []string{"code"}),
		duration: factory.NewSummary(prometheus.SummaryOpts{
			Name: "fusionsync_sync_duration_seconds",
			Help: "Time spent applying one design payload.",
		}),
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fusionsync_records_total",
			Help: "Records written by successful syncs.",
		}, []string{"action"}),
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fusionsync_report_queries_total",
			Help: "Read-only report queries by kind.",
		}, []string{"kind"}),
	}
}

func (m *metrics) observeSync(result *reconcile.Result, err error) {
	if err != nil {
		code := string(reconcile.CodeOf(err))
		if code == "" {
			code = "internal"
		}
		m.syncs.WithLabelValues(code).Inc()
		return
	}
	m.syncs.WithLabelValues("ok").Inc()
	m.records.WithLabelValues("created").Add(float64(result.Created))
	m.records.WithLabelValues("updated").Add(float64(result.Updated))
}
