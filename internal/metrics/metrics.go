package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mindmed/mindmed-api/internal/models"
)

// Metrics holds the application's Prometheus collectors.
type Metrics struct {
	prescriptionsGenerated *prometheus.CounterVec
	prescriptionFailures   *prometheus.CounterVec
	webhookEvents          *prometheus.CounterVec
	quotaRenewals          prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		prescriptionsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mindmed_prescriptions_generated_total",
			Help: "Prescriptions rendered and recorded, by plan.",
		}, []string{"plan"}),
		prescriptionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mindmed_prescription_failures_total",
			Help: "Prescription generation failures, by reason.",
		}, []string{"reason"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mindmed_webhook_events_total",
			Help: "Payment webhook deliveries, by event and outcome.",
		}, []string{"event", "outcome"}),
		quotaRenewals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mindmed_quota_renewals_total",
			Help: "Subscriptions whose monthly quota was reset.",
		}),
	}
	reg.MustRegister(m.prescriptionsGenerated, m.prescriptionFailures, m.webhookEvents, m.quotaRenewals)
	return m
}

func (m *Metrics) PrescriptionGenerated(plan models.Plan) {
	m.prescriptionsGenerated.WithLabelValues(string(plan)).Inc()
}

func (m *Metrics) PrescriptionFailed(reason string) {
	m.prescriptionFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) WebhookEvent(event, outcome string) {
	if event == "" {
		event = "unknown"
	}
	m.webhookEvents.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) QuotaRenewed(n int64) {
	if n > 0 {
		m.quotaRenewals.Add(float64(n))
	}
}
