package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	RecordsIngested  prometheus.Counter
	RecordsMalformed prometheus.Counter
	Transactions     *prometheus.CounterVec
	ApplyLatency     *prometheus.HistogramVec
	LiveWorkers      prometheus.Gauge
	Passivations     *prometheus.CounterVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		RecordsIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "txengine_records_ingested_total",
				Help: "Total records accepted from the input source.",
			},
		),
		RecordsMalformed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "txengine_records_malformed_total",
				Help: "Total malformed records dropped at ingestion.",
			},
		),
		Transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txengine_transactions_total",
				Help: "Transactions processed by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		ApplyLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "txengine_apply_duration_seconds",
				Help:    "Account state machine apply latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		LiveWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "txengine_live_workers",
				Help: "Currently resident account workers.",
			},
		),
		Passivations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "txengine_worker_passivations_total",
				Help: "Workers passivated by reason.",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(m.RecordsIngested, m.RecordsMalformed, m.Transactions, m.ApplyLatency, m.LiveWorkers, m.Passivations)
	return m
}

func (m *Metrics) ObserveIngested() {
	if m == nil {
		return
	}
	m.RecordsIngested.Inc()
}

func (m *Metrics) ObserveMalformed() {
	if m == nil {
		return
	}
	m.RecordsMalformed.Inc()
}

func (m *Metrics) ObserveApply(kind string, accepted bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "applied"
	if !accepted {
		outcome = "rejected"
	}
	m.Transactions.WithLabelValues(kind, outcome).Inc()
	m.ApplyLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *Metrics) SetLiveWorkers(n int) {
	if m == nil {
		return
	}
	m.LiveWorkers.Set(float64(n))
}

func (m *Metrics) ObservePassivation(reason string) {
	if m == nil {
		return
	}
	m.Passivations.WithLabelValues(reason).Inc()
}
