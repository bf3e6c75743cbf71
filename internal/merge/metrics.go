package merge

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Row outcomes recorded by Metrics.
const (
	OutcomeProcessed = "processed"
	OutcomeInserted  = "inserted"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Metrics collects merge counters in a private registry so a run can dump
// them to a node_exporter textfile when it finishes. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	rows          *prometheus.CounterVec
	duplicates    *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	batchSize     *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers the merge collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		rows: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgmerge_rows_total",
				Help: "Rows handled by the merge engine, by table and outcome",
			},
			[]string{"table", "outcome"},
		),
		duplicates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "msgmerge_duplicates_total",
				Help: "Source rows collapsed onto existing destination rows, by uniqueness constraint",
			},
			[]string{"table", "constraint"},
		),
		batchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "msgmerge_batch_duration_seconds",
				Help:    "Duration of batched inserts in seconds",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
			},
			[]string{"table", "status"},
		),
		batchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "msgmerge_batch_size",
				Help:    "Rows per insert batch",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1 to 2048
			},
			[]string{"table"},
		),
		registry: registry,
	}

	registry.MustRegister(m.rows, m.duplicates, m.batchDuration, m.batchSize)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) addRows(table, outcome string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.rows.WithLabelValues(table, outcome).Add(float64(n))
}

func (m *Metrics) addDuplicates(table, constraint string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.duplicates.WithLabelValues(table, constraint).Add(float64(n))
}

func (m *Metrics) observeBatch(table string, size int, took time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.batchDuration.WithLabelValues(table, status).Observe(took.Seconds())
	m.batchSize.WithLabelValues(table).Observe(float64(size))
}

// WriteTextfile writes every collected metric to path in the Prometheus text
// format. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
