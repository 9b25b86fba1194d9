// Package metrics содержит счётчики Prometheus для обработки событий биллинга.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Возможные исходы обработки события вебхука.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeIgnored   = "ignored"
	OutcomeFailed    = "failed"
)

// Metrics счётчики событий платёжного провайдера.
type Metrics struct {
	WebhookEvents *prometheus.CounterVec
}

// New создает счётчики и регистрирует их в переданном реестре.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "membooks",
			Name:      "webhook_events_total",
			Help:      "Total number of payment provider webhook events by type and outcome",
		}, []string{"type", "outcome"}),
	}
	reg.MustRegister(m.WebhookEvents)
	return m
}

// ObserveWebhook увеличивает счётчик событий для типа и исхода.
func (m *Metrics) ObserveWebhook(eventType, outcome string) {
	m.WebhookEvents.WithLabelValues(eventType, outcome).Inc()
}
