// Package models содержит доменную модель подписки — локальное зеркало
// подписки Stripe, обновляемое только через webhook-события и прямые
// вызовы провайдера (отмена, возобновление).
package models

import "time"

// Статусы подписки, приходящие от провайдера. Список не закрыт:
// хранилище принимает любую строку статуса, константы покрывают
// значения, на которые завязана бизнес-логика.
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

// Subscription представляет локальную запись о подписке пользователя.
// Ровно одна строка на внешний идентификатор подписки, upsert по нему.
// Отменённые записи сохраняются для истории.
type Subscription struct {
	ID                   int       // Внутренний идентификатор записи
	UserUID              string    // Владелец подписки
	StripeSubscriptionID string    // Внешний идентификатор подписки (ключ upsert)
	StripePriceID        string    // Идентификатор тарифа в Stripe
	Status               string    // Статус подписки (active, trialing, past_due, canceled, ...)
	CurrentPeriodStart   time.Time // Начало оплаченного периода
	CurrentPeriodEnd     time.Time // Конец оплаченного периода
	CancelAtPeriodEnd    bool      // Подписка помечена на отмену в конце периода
	CreatedAt            time.Time // Дата создания записи
	UpdatedAt            time.Time // Дата последнего изменения
}

// IsPremiumStatus сообщает, даёт ли статус подписки премиум-доступ.
func IsPremiumStatus(status string) bool {
	return status == StatusActive || status == StatusTrialing
}

// SubscriptionInfo часть ответа эндпоинта статуса: то, что клиент
// видит о своей подписке. Nil, если подписки ещё не было.
type SubscriptionInfo struct {
	Status            string    `json:"status"`
	CurrentPeriodEnd  time.Time `json:"current_period_end"`
	CancelAtPeriodEnd bool      `json:"cancel_at_period_end"`
}

// SubscriptionStatus полный ответ эндпоинта статуса.
type SubscriptionStatus struct {
	IsPremium    bool              `json:"is_premium"`
	Subscription *SubscriptionInfo `json:"subscription"`
}
