package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the ledger and document collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	operations        *prometheus.CounterVec
	applyDuration     *prometheus.HistogramVec
	documentsVerified prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sklad",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Stock operations handled by the ledger, by type and outcome.",
		}, []string{"type", "outcome"}),
		applyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sklad",
			Subsystem: "ledger",
			Name:      "apply_duration_seconds",
			Help:      "Time spent applying one stock operation, including lock waits.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		documentsVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sklad",
			Subsystem: "documents",
			Name:      "verified_total",
			Help:      "Documents whose verification flag turned true.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.operations, m.applyDuration, m.documentsVerified)
	}
	return m
}

func (m *Metrics) observeApply(opType OperationType, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := typeLabel(opType)
	m.operations.WithLabelValues(label, KindName(err)).Inc()
	m.applyDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}

// typeLabel keeps the type label set closed; unknown types share one series.
func typeLabel(opType OperationType) string {
	if !opType.Valid() {
		return "unknown"
	}
	return string(opType)
}

func (m *Metrics) documentVerified() {
	if m == nil {
		return
	}
	m.documentsVerified.Inc()
}
