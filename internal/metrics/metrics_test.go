package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveWebhook(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveWebhook("customer.subscription.updated", OutcomeProcessed)
	m.ObserveWebhook("customer.subscription.updated", OutcomeProcessed)
	m.ObserveWebhook("customer.subscription.updated", OutcomeSkipped)
	m.ObserveWebhook("invoice.payment_failed", OutcomeFailed)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(m.WebhookEvents.WithLabelValues("customer.subscription.updated", OutcomeProcessed)))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.WebhookEvents.WithLabelValues("customer.subscription.updated", OutcomeSkipped)))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.WebhookEvents.WithLabelValues("invoice.payment_failed", OutcomeFailed)))
	assert.Equal(t, float64(0),
		testutil.ToFloat64(m.WebhookEvents.WithLabelValues("checkout.session.completed", OutcomeProcessed)))
}
