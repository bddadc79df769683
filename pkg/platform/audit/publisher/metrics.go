package publisher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for audit publishing.
type Metrics struct {
	Emitted               *prometheus.CounterVec
	Dropped               prometheus.Counter
	CircuitBreakerDropped prometheus.Counter
	PersistFailures       prometheus.Counter
	PersistDuration       prometheus.Histogram
	CircuitBreakerState   prometheus.Gauge
}

// NewMetrics registers the audit publisher metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Emitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aidledger_audit_events_emitted_total",
			Help: "Total number of audit events persisted, by category",
		}, []string{"category"}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "aidledger_audit_buffer_dropped_total",
			Help: "Total number of audit events dropped because the async buffer was full",
		}),
		CircuitBreakerDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "aidledger_audit_circuit_breaker_dropped_total",
			Help: "Total number of audit events dropped due to circuit breaker",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "aidledger_audit_persist_failures_total",
			Help: "Total number of audit event persistence failures",
		}),
		PersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "aidledger_audit_persist_duration_seconds",
			Help:    "Time spent writing one audit event to the sink",
			Buckets: prometheus.DefBuckets,
		}),
		CircuitBreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "aidledger_audit_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
	}
}

func (m *Metrics) IncEmitted(category string) {
	m.Emitted.WithLabelValues(category).Inc()
}

func (m *Metrics) IncDropped() {
	m.Dropped.Inc()
}

func (m *Metrics) IncCircuitBreakerDropped() {
	m.CircuitBreakerDropped.Inc()
}

func (m *Metrics) IncPersistFailures() {
	m.PersistFailures.Inc()
}

func (m *Metrics) ObservePersistDuration(seconds float64) {
	m.PersistDuration.Observe(seconds)
}

// SetCircuitBreakerState sets the circuit breaker state gauge.
func (m *Metrics) SetCircuitBreakerState(open bool) {
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}
