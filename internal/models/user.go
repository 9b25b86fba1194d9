// Package models содержит доменные модели системы Membooks:
// пользователя, подписку и событие биллинга. Структуры используются
// в бизнес-логике и при работе с хранилищем.
package models

import "time"

// User представляет зарегистрированного пользователя системы.
type User struct {
	UID              string    // Уникальный идентификатор пользователя
	Email            string    // Электронная почта (уникальная)
	Username         string    // Имя пользователя (уникальное)
	PasswordHash     string    // Хэш пароля пользователя
	Language         string    // Язык интерфейса, по умолчанию "en"
	IsPremium        bool      // Признак активной премиум-подписки
	StripeCustomerID *string   // Идентификатор клиента в Stripe, nil до первого чекаута
	CreatedAt        time.Time // Дата регистрации
	UpdatedAt        time.Time // Дата последнего изменения
}

// UserSummary сокращённое представление пользователя для ответов API,
// пароль и внешние идентификаторы наружу не отдаются.
type UserSummary struct {
	UID       string `json:"uid"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	Language  string `json:"language"`
	IsPremium bool   `json:"is_premium"`
}

// Summary возвращает представление пользователя без чувствительных полей.
func (u *User) Summary() UserSummary {
	return UserSummary{
		UID:       u.UID,
		Email:     u.Email,
		Username:  u.Username,
		Language:  u.Language,
		IsPremium: u.IsPremium,
	}
}
