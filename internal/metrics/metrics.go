// Package metrics registers the Prometheus instrumentation for the
// gate discovery pipeline and ingest API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. A nil
// *Metrics is valid and records nothing, which keeps tests free of
// duplicate-registration panics.
type Metrics struct {
	// Full discovery cycle latency
	CycleDuration prometheus.Histogram

	// Cycle outcomes by result
	CycleOutcome *prometheus.CounterVec

	// Scan events accepted by the ingest API
	ScansIngested prometheus.Counter

	// Scan events linked to a gate by the assignment stage
	ScansAssigned prometheus.Counter

	// Gates removed by deduplication
	GatesMerged prometheus.Counter

	// Current gate count per event, set at the end of each cycle
	GatesActive *prometheus.GaugeVec

	// Current binding count by lifecycle status
	Bindings *prometheus.GaugeVec

	// Webhook delivery attempts by result
	WebhookDeliveries *prometheus.CounterVec
}

// New creates and registers all metrics with the default registerer.
// Call it once per process.
func New() *Metrics {
	return &Metrics{
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatewise_cycle_duration_seconds",
			Help:    "Duration of full discovery cycles including persistence",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		CycleOutcome: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewise_cycles_total",
			Help: "Total discovery cycles by result",
		}, []string{"result"}), // result: "ok", "error", "busy", "cancelled"

		ScansIngested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatewise_scans_ingested_total",
			Help: "Total scan events accepted by the ingest API",
		}),

		ScansAssigned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatewise_scans_assigned_total",
			Help: "Total scan events linked to a gate",
		}),

		GatesMerged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gatewise_gates_merged_total",
			Help: "Total duplicate gates removed by consolidation",
		}),

		GatesActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gatewise_gates_active",
			Help: "Gates known per event after the latest cycle",
		}, []string{"event"}),

		Bindings: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gatewise_bindings",
			Help: "Gate bindings by lifecycle status after the latest cycle",
		}, []string{"event", "status"}),

		WebhookDeliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gatewise_webhook_deliveries_total",
			Help: "Cycle report webhook deliveries by result",
		}, []string{"result"}), // result: "ok", "error"
	}
}

// ObserveCycleDuration records the duration of a completed cycle.
func (m *Metrics) ObserveCycleDuration(d time.Duration) {
	if m != nil {
		m.CycleDuration.Observe(d.Seconds())
	}
}

// IncrementCycleOutcome records a cycle result.
func (m *Metrics) IncrementCycleOutcome(result string) {
	if m != nil {
		m.CycleOutcome.WithLabelValues(result).Inc()
	}
}

// AddScansIngested records newly accepted scan events.
func (m *Metrics) AddScansIngested(n int) {
	if m != nil && n > 0 {
		m.ScansIngested.Add(float64(n))
	}
}

// AddScansAssigned records scan events linked to a gate.
func (m *Metrics) AddScansAssigned(n int) {
	if m != nil && n > 0 {
		m.ScansAssigned.Add(float64(n))
	}
}

// AddGatesMerged records duplicate gates removed by consolidation.
func (m *Metrics) AddGatesMerged(n int) {
	if m != nil && n > 0 {
		m.GatesMerged.Add(float64(n))
	}
}

// SetGatesActive sets the current gate count for an event.
func (m *Metrics) SetGatesActive(event string, n int) {
	if m != nil {
		m.GatesActive.WithLabelValues(event).Set(float64(n))
	}
}

// SetBindings sets the current binding count for an event and status.
func (m *Metrics) SetBindings(event, status string, n int) {
	if m != nil {
		m.Bindings.WithLabelValues(event, status).Set(float64(n))
	}
}

// IncrementWebhookDelivery records a webhook delivery attempt.
func (m *Metrics) IncrementWebhookDelivery(result string) {
	if m != nil {
		m.WebhookDeliveries.WithLabelValues(result).Inc()
	}
}
