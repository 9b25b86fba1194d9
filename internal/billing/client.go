// Package billing реализует клиент платёжного провайдера Stripe:
// создание покупателей, Checkout-сессии и управление подписками.
package billing

import (
	"context"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/membooks/membooks-api/internal/config"
)

// Subscription отражает состояние подписки на стороне провайдера.
type Subscription struct {
	ID                 string
	CustomerID         string
	PriceID            string
	Status             string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
}

// CheckoutSession содержит данные созданной Checkout-сессии.
type CheckoutSession struct {
	ID  string
	URL string
}

// Client обёртка над API Stripe.
type Client struct {
	sc            *client.API
	webhookSecret string
	priceID       string
	appBaseURL    string
}

// New создает новый клиент Stripe.
func New(cfg config.Stripe) *Client {
	sc := &client.API{}
	sc.Init(cfg.SecretKey, nil)
	return &Client{
		sc:            sc,
		webhookSecret: cfg.WebhookSecret,
		priceID:       cfg.PremiumPriceID,
		appBaseURL:    cfg.AppBaseURL,
	}
}

// CreateCustomer создает покупателя в Stripe и возвращает его идентификатор.
// Локальный uid кладётся в метаданные покупателя.
func (c *Client) CreateCustomer(ctx context.Context, email, username, userUID string) (string, error) {
	const op = "billing.CreateCustomer"
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Name:  stripe.String(username),
		Metadata: map[string]string{
			"username": username,
			"user_uid": userUID,
		},
	}
	params.Context = ctx
	cust, err := c.sc.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession создает Checkout-сессию для оформления премиум-подписки.
// Идентификатор пользователя передаётся как client_reference_id, чтобы вебхук
// мог связать завершённую оплату с локальным аккаунтом.
func (c *Client) CreateCheckoutSession(ctx context.Context, customerID, userUID string) (*CheckoutSession, error) {
	const op = "billing.CreateCheckoutSession"
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(userUID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(c.priceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(c.appBaseURL + "/subscription/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(c.appBaseURL + "/subscription/cancel"),
	}
	params.Context = ctx
	sess, err := c.sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// GetSubscription возвращает актуальное состояние подписки из Stripe.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	const op = "billing.GetSubscription"
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := c.sc.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return subscriptionFromStripe(sub), nil
}

// SetCancelAtPeriodEnd включает или выключает отмену подписки в конце
// оплаченного периода. Возвращает состояние подписки после изменения.
func (c *Client) SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*Subscription, error) {
	const op = "billing.SetCancelAtPeriodEnd"
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(cancel),
	}
	params.Context = ctx
	sub, err := c.sc.Subscriptions.Update(subscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return subscriptionFromStripe(sub), nil
}

// subscriptionFromStripe переводит объект Stripe во внутреннее представление.
// Начиная с API-версии basil границы оплаченного периода лежат на позициях
// подписки, а не на самой подписке.
func subscriptionFromStripe(sub *stripe.Subscription) *Subscription {
	res := &Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		res.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		res.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		res.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		if item.Price != nil {
			res.PriceID = item.Price.ID
		}
	}
	return res
}
