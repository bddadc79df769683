package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the ledger engine.
// Tracks issuance volume, rejections, lifecycle moves and operation latency.
type Metrics struct {
	AidIssued         prometheus.Counter
	AidIssuedAmount   prometheus.Counter
	Rejections        *prometheus.CounterVec
	StatusTransitions *prometheus.CounterVec
	EmergencyActions  *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Paused            prometheus.Gauge
}

// New registers every ledger metric with reg. Pass a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AidIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "aidledger_aid_issued_total",
			Help: "Total number of aid records issued",
		}),
		AidIssuedAmount: f.NewCounter(prometheus.CounterOpts{
			Name: "aidledger_aid_issued_amount_total",
			Help: "Sum of issued aid amounts in the smallest currency unit",
		}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aidledger_rejections_total",
			Help: "Ledger operations rejected, by operation and error code",
		}, []string{"operation", "code"}),
		StatusTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aidledger_status_transitions_total",
			Help: "Record status transitions, by source and target status",
		}, []string{"from", "to"}),
		EmergencyActions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aidledger_emergency_actions_total",
			Help: "Emergency controls exercised, by kind",
		}, []string{"kind"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aidledger_operation_duration_seconds",
			Help:    "Duration of ledger operations",
			Buckets: durationBuckets,
		}, []string{"operation"}),
		Paused: f.NewGauge(prometheus.GaugeOpts{
			Name: "aidledger_paused",
			Help: "1 while the ledger is paused",
		}),
	}
}

// IncrementAidIssued records a committed issuance.
func (m *Metrics) IncrementAidIssued(amount uint64) {
	m.AidIssued.Inc()
	m.AidIssuedAmount.Add(float64(amount))
}

func (m *Metrics) IncrementRejection(operation, code string) {
	m.Rejections.WithLabelValues(operation, code).Inc()
}

func (m *Metrics) IncrementTransition(from, to string) {
	m.StatusTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncrementEmergency(kind string) {
	m.EmergencyActions.WithLabelValues(kind).Inc()
}

// ObserveOperation records the duration of an operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation string, start time.Time) {
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetPaused(paused bool) {
	if paused {
		m.Paused.Set(1)
		return
	}
	m.Paused.Set(0)
}
