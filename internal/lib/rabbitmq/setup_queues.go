// Package rabbitmq содержит подключение к брокеру, публикацию и потребление
// сообщений для алертов биллинга.
package rabbitmq

// Топология обменника биллинга.
const (
	BillingExchange  = "billing"
	AlertsQueue      = "billing.alerts"
	AlertsRoutingKey = "alerts"
)

// QueueConfig описывает очередь и её ключ маршрутизации.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetBillingQueues возвращает очереди воркеров биллинга.
func GetBillingQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: AlertsQueue, RoutingKey: AlertsRoutingKey},
		// при необходимости дополнительные очереди для других воркеров
	}
}
