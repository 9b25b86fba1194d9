package billing

import (
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Типы событий Stripe, которые обрабатывает сервис.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventInvoicePaymentFailed     = "invoice.payment_failed"
)

// VerifyEvent проверяет подпись вебхука по сырому телу запроса и возвращает
// разобранное событие. Несовпадение версии API не считается ошибкой, потому что
// Stripe отправляет события в версии, настроенной у аккаунта.
func (c *Client) VerifyEvent(payload []byte, signature string) (stripe.Event, error) {
	const op = "billing.VerifyEvent"
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	return event, nil
}

// CheckoutSessionEvent полезная нагрузка события checkout.session.completed.
type CheckoutSessionEvent struct {
	ID                string `json:"id"`
	Mode              string `json:"mode"`
	Customer          string `json:"customer"`
	Subscription      string `json:"subscription"`
	ClientReferenceID string `json:"client_reference_id"`
}

// SubscriptionEvent полезная нагрузка событий customer.subscription.*.
// Поля периода дублируются на верхнем уровне и на позициях, потому что
// старые версии API кладут их на подписку, а новые на позиции.
type SubscriptionEvent struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// PeriodStart возвращает начало оплаченного периода.
func (e SubscriptionEvent) PeriodStart() time.Time {
	if e.CurrentPeriodStart != 0 {
		return time.Unix(e.CurrentPeriodStart, 0).UTC()
	}
	if len(e.Items.Data) > 0 {
		return time.Unix(e.Items.Data[0].CurrentPeriodStart, 0).UTC()
	}
	return time.Time{}
}

// PeriodEnd возвращает конец оплаченного периода.
func (e SubscriptionEvent) PeriodEnd() time.Time {
	if e.CurrentPeriodEnd != 0 {
		return time.Unix(e.CurrentPeriodEnd, 0).UTC()
	}
	if len(e.Items.Data) > 0 {
		return time.Unix(e.Items.Data[0].CurrentPeriodEnd, 0).UTC()
	}
	return time.Time{}
}

// PriceID возвращает идентификатор тарифа из первой позиции подписки.
func (e SubscriptionEvent) PriceID() string {
	if len(e.Items.Data) > 0 {
		return e.Items.Data[0].Price.ID
	}
	return ""
}

// InvoiceEvent полезная нагрузка события invoice.payment_failed.
type InvoiceEvent struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// SubscriptionID возвращает идентификатор подписки из счёта. В версии basil
// ссылка на подписку переехала в parent.subscription_details.
func (e InvoiceEvent) SubscriptionID() string {
	if e.Subscription != "" {
		return e.Subscription
	}
	return e.Parent.SubscriptionDetails.Subscription
}
