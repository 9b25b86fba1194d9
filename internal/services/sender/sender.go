// Package services содержит сервис отправки алертов биллинга оператору.
// Сообщения приходят из очереди billing.alerts и уходят письмом на адрес,
// заданный в конфигурации.
package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/membooks/membooks-api/internal/config"
	"github.com/membooks/membooks-api/internal/lib/sl"
	"github.com/membooks/membooks-api/internal/lib/smtp"
	"github.com/membooks/membooks-api/internal/models"
)

// SenderService отправляет письма с алертами биллинга.
type SenderService struct {
	transport Transport
	recipient string
	log       *slog.Logger
}

// Transport описывает SMTP-транспорт для отправки писем.
type Transport interface {
	Connect() (smtp.Client, error)
	GetSMTPUser() string
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(cfg *config.Config, log *slog.Logger, transport Transport) *SenderService {
	return &SenderService{
		transport: transport,
		recipient: cfg.AlertRecipient,
		log:       log,
	}
}

// SendBillingAlert разбирает сообщение очереди и отправляет письмо оператору.
// Ошибка возвращается в consumer, который вернет сообщение в очередь.
func (s *SenderService) SendBillingAlert(body []byte) error {
	var alert models.BillingAlert
	if err := json.Unmarshal(body, &alert); err != nil {
		s.log.Error("failed to unmarshal alert body", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	subject := alertSubject(alert.Kind)
	bodyText := fmt.Sprintf(`Алерт биллинга Membooks.

Тип: %s
Пользователь: %s
Подписка: %s
Время: %s

%s

Требуется ручная сверка состояния в Stripe с локальной базой.`,
		alert.Kind, alert.UserUID, alert.SubscriptionID,
		alert.CreatedAt.Format("2006-01-02 15:04:05 MST"), alert.Detail)

	if err := s.sendEmail([]string{s.recipient}, subject, bodyText); err != nil {
		return err
	}

	s.log.Info("billing alert delivered",
		slog.String("alert_id", alert.ID),
		slog.String("kind", alert.Kind),
		slog.String("user_uid", alert.UserUID))
	return nil
}

func alertSubject(kind string) string {
	switch kind {
	case models.AlertMirrorWriteFailed:
		return "Membooks: расхождение биллинга с локальным зеркалом"
	case models.AlertAdminOverride:
		return "Membooks: ручная правка премиума расходится с подпиской"
	default:
		return "Membooks: алерт биллинга"
	}
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetSMTPUser(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer client.Close()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", s.transport.GetSMTPUser()), sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent", slog.Any("to", to))
	return nil
}
