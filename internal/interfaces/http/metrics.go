package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the ledger service.
type Metrics struct {
	registry *prometheus.Registry

	AppendTotal        *prometheus.CounterVec
	AppendDuration     prometheus.Histogram
	VerifyTotal        *prometheus.CounterVec
	CheckpointsWritten prometheus.Counter
	EvidenceIngested   prometheus.Counter
	StreamClients      prometheus.Gauge
}

// NewMetrics creates and registers all ledger metrics on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		AppendTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trackledger_appends_total",
				Help: "Chain append attempts by result",
			},
			[]string{"result"},
		),
		AppendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "trackledger_append_duration_seconds",
				Help:    "Duration of chain appends including conflict retries",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
		),
		VerifyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trackledger_verifications_total",
				Help: "Chain verification runs by result",
			},
			[]string{"result"},
		),
		CheckpointsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trackledger_checkpoints_written_total",
				Help: "Checkpoints persisted alongside appends",
			},
		),
		EvidenceIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "trackledger_evidence_ingested_total",
				Help: "Broker evidence records accepted",
			},
		),
		StreamClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "trackledger_stream_clients",
				Help: "Connected websocket monitor clients",
			},
		),
	}

	m.registry.MustRegister(
		m.AppendTotal,
		m.AppendDuration,
		m.VerifyTotal,
		m.CheckpointsWritten,
		m.EvidenceIngested,
		m.StreamClients,
	)
	return m
}

// Handler exposes the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
