package models

import "time"

// Виды алертов биллинга, публикуемых в очередь для ручной сверки оператором.
const (
	// AlertMirrorWriteFailed провайдер подтвердил операцию, а локальная
	// запись не применилась: системы разошлись до следующего webhook.
	AlertMirrorWriteFailed = "mirror_write_failed"
	// AlertAdminOverride ручная установка премиум-флага разошлась
	// с локальным зеркалом подписки.
	AlertAdminOverride = "admin_override_conflict"
)

// BillingAlert сообщение для очереди billing.alerts.
type BillingAlert struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	UserUID        string    `json:"user_uid"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	Detail         string    `json:"detail"`
	CreatedAt      time.Time `json:"created_at"`
}
