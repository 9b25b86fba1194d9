// Package alertsender собирает и запускает воркер доставки алертов биллинга:
// читает очередь billing.alerts и отправляет письма операторам по SMTP.
package alertsender

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/membooks/membooks-api/internal/config"
	"github.com/membooks/membooks-api/internal/lib/rabbitmq"
	"github.com/membooks/membooks-api/internal/lib/smtp"
	senderservice "github.com/membooks/membooks-api/internal/services/sender"
)

type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetBillingQueues())
	if err != nil {
		conn.Close()
		return nil, err
	}

	newTransport := smtp.NewTransport(cfg, logger)
	senderService := senderservice.NewSenderService(cfg, logger, newTransport)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		logger:        logger,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.AlertsQueue, a.senderService.SendBillingAlert)
	if err != nil {
		a.logger.Error("failed to start billing.alerts consumer", slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("alert-sender shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}

	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}

	return nil
}
