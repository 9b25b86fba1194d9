package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/membooks/membooks-api/internal/models"
)

// UpsertSubscriptionWithPremium создаёт или обновляет запись подписки по
// внешнему идентификатору и в той же транзакции выставляет премиум-флаг
// владельца. Повторная доставка того же события даёт тот же результат:
// существующая строка перезаписывается абсолютными значениями, дубликат
// не появляется.
func (s *Storage) UpsertSubscriptionWithPremium(ctx context.Context, sub models.Subscription, isPremium bool) error {
	const op = "storage.UpsertSubscriptionWithPremium"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT INTO subscriptions (user_uid, stripe_subscription_id, stripe_price_id,
			      status, current_period_start, current_period_end, cancel_at_period_end)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  ON CONFLICT (stripe_subscription_id) DO UPDATE
			  SET status = EXCLUDED.status,
			      stripe_price_id = EXCLUDED.stripe_price_id,
			      current_period_start = EXCLUDED.current_period_start,
			      current_period_end = EXCLUDED.current_period_end,
			      cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			      updated_at = now()`
	if _, err = tx.ExecContext(ctx, query,
		sub.UserUID, sub.StripeSubscriptionID, sub.StripePriceID,
		sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE users SET is_premium = $1, updated_at = now() WHERE uid = $2`,
		isPremium, sub.UserUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdateSubscriptionWithPremium обновляет запись подписки по внешнему
// идентификатору абсолютными значениями и в той же транзакции выставляет
// премиум-флаг владельца. Возвращает UID владельца или
// ErrSubscriptionNotFound, если локальной записи нет.
func (s *Storage) UpdateSubscriptionWithPremium(ctx context.Context, stripeSubscriptionID, status string,
	periodStart, periodEnd time.Time, cancelAtPeriodEnd, isPremium bool) (string, error) {
	const op = "storage.UpdateSubscriptionWithPremium"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var userUID string
	query := `UPDATE subscriptions
			  SET status = $1,
			      current_period_start = $2,
			      current_period_end = $3,
			      cancel_at_period_end = $4,
			      updated_at = now()
			  WHERE stripe_subscription_id = $5
			  RETURNING user_uid`
	if err = tx.QueryRowContext(ctx, query,
		status, periodStart, periodEnd, cancelAtPeriodEnd, stripeSubscriptionID).Scan(&userUID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE users SET is_premium = $1, updated_at = now() WHERE uid = $2`,
		isPremium, userUID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return userUID, nil
}

// MarkSubscriptionCanceled переводит подписку в статус canceled, снимает
// флаг отмены и в той же транзакции сбрасывает премиум-флаг владельца.
// Строка подписки сохраняется для истории. Возвращает UID владельца.
func (s *Storage) MarkSubscriptionCanceled(ctx context.Context, stripeSubscriptionID string) (string, error) {
	const op = "storage.MarkSubscriptionCanceled"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var userUID string
	query := `UPDATE subscriptions
			  SET status = $1,
			      cancel_at_period_end = false,
			      updated_at = now()
			  WHERE stripe_subscription_id = $2
			  RETURNING user_uid`
	if err = tx.QueryRowContext(ctx, query, models.StatusCanceled, stripeSubscriptionID).Scan(&userUID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE users SET is_premium = false, updated_at = now() WHERE uid = $1`,
		userUID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return userUID, nil
}

// MarkSubscriptionPastDue переводит подписку в статус past_due после
// неуспешного платежа. Премиум-флаг владельца не меняется: единичный
// неуспешный платёж доступ не отзывает. Возвращает UID владельца.
func (s *Storage) MarkSubscriptionPastDue(ctx context.Context, stripeSubscriptionID string) (string, error) {
	const op = "storage.MarkSubscriptionPastDue"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var userUID string
	query := `UPDATE subscriptions
			  SET status = $1,
			      updated_at = now()
			  WHERE stripe_subscription_id = $2
			  RETURNING user_uid`
	if err := s.DB.QueryRowContext(ctx, query, models.StatusPastDue, stripeSubscriptionID).Scan(&userUID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return userUID, nil
}

// SetCancelAtPeriodEnd зеркалит флаг отмены в конце периода после
// успешного вызова провайдера.
func (s *Storage) SetCancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string, cancelAtPeriodEnd bool) error {
	const op = "storage.SetCancelAtPeriodEnd"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE subscriptions
			  SET cancel_at_period_end = $1,
			      updated_at = now()
			  WHERE stripe_subscription_id = $2`
	result, err := s.DB.ExecContext(ctx, query, cancelAtPeriodEnd, stripeSubscriptionID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
	}
	return nil
}

// GetSubscriptionByUserUID возвращает актуальную подписку пользователя:
// последнюю обновлённую строку. Исторические отменённые строки при наличии
// более свежей записи не возвращаются.
func (s *Storage) GetSubscriptionByUserUID(ctx context.Context, userUID string) (*models.Subscription, error) {
	const op = "storage.GetSubscriptionByUserUID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, stripe_subscription_id, stripe_price_id, status,
			      current_period_start, current_period_end, cancel_at_period_end,
			      created_at, updated_at
			  FROM subscriptions
			  WHERE user_uid = $1
			  ORDER BY updated_at DESC
			  LIMIT 1`
	return s.scanSubscription(s.DB.QueryRowContext(ctx, query, userUID), op)
}

// GetSubscriptionByStripeID возвращает подписку по внешнему идентификатору.
func (s *Storage) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	const op = "storage.GetSubscriptionByStripeID"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, stripe_subscription_id, stripe_price_id, status,
			      current_period_start, current_period_end, cancel_at_period_end,
			      created_at, updated_at
			  FROM subscriptions
			  WHERE stripe_subscription_id = $1`
	return s.scanSubscription(s.DB.QueryRowContext(ctx, query, stripeSubscriptionID), op)
}

func (s *Storage) scanSubscription(row *sql.Row, op string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := row.Scan(&sub.ID, &sub.UserUID, &sub.StripeSubscriptionID, &sub.StripePriceID,
		&sub.Status, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd,
		&sub.CreatedAt, &sub.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &sub, nil
}
