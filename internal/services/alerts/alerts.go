// Package services содержит публикацию алертов биллинга в RabbitMQ.
package services

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/membooks/membooks-api/internal/lib/rabbitmq"
	"github.com/membooks/membooks-api/internal/lib/sl"
	"github.com/membooks/membooks-api/internal/models"
)

// AlertService публикует алерты биллинга для фоновой доставки операторам.
type AlertService struct {
	ch  *amqp.Channel
	log *slog.Logger
}

// NewAlertService создает новый экземпляр AlertService.
func NewAlertService(ch *amqp.Channel, log *slog.Logger) *AlertService {
	return &AlertService{ch: ch, log: log}
}

// PublishBillingAlert публикует алерт в обменник биллинга. Пустые идентификатор
// и время создания заполняются перед отправкой.
func (s *AlertService) PublishBillingAlert(alert models.BillingAlert) error {
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	if err := rabbitmq.PublishMessage(s.ch, rabbitmq.BillingExchange, rabbitmq.AlertsRoutingKey, alert); err != nil {
		s.log.Error("failed to publish billing alert",
			slog.String("kind", alert.Kind), sl.Err(err))
		return err
	}

	s.log.Info("published billing alert",
		slog.String("kind", alert.Kind),
		slog.String("user_uid", alert.UserUID))
	return nil
}
