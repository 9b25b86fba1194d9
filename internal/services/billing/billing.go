// Package services содержит бизнес-логику премиум-подписок: оформление оплаты,
// сверку событий платёжного провайдера с локальным зеркалом и административное
// управление премиум-статусом.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"github.com/membooks/membooks-api/internal/billing"
	"github.com/membooks/membooks-api/internal/lib/sl"
	"github.com/membooks/membooks-api/internal/metrics"
	"github.com/membooks/membooks-api/internal/models"
	"github.com/membooks/membooks-api/internal/storage/repository"
)

// Ошибки нарушенных предусловий. Текст попадает в ответ клиенту как есть.
var (
	ErrAlreadyPremium         = errors.New("already premium")
	ErrNoSubscriptionToCancel = errors.New("no subscription to cancel")
	ErrNothingToReactivate    = errors.New("nothing to reactivate")
)

// BillingRepository описывает операции хранилища для пользователей и подписок.
type BillingRepository interface {
	GetUser(ctx context.Context, userUID string) (*models.User, error)
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (*models.User, error)
	SetStripeCustomerID(ctx context.Context, userUID, customerID string) error
	SetPremium(ctx context.Context, userUID string, isPremium bool) error
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)

	UpsertSubscriptionWithPremium(ctx context.Context, sub models.Subscription, isPremium bool) error
	UpdateSubscriptionWithPremium(ctx context.Context, stripeSubscriptionID, status string,
		periodStart, periodEnd time.Time, cancelAtPeriodEnd, isPremium bool) (string, error)
	MarkSubscriptionCanceled(ctx context.Context, stripeSubscriptionID string) (string, error)
	MarkSubscriptionPastDue(ctx context.Context, stripeSubscriptionID string) (string, error)
	SetCancelAtPeriodEnd(ctx context.Context, stripeSubscriptionID string, cancelAtPeriodEnd bool) error
	GetSubscriptionByUserUID(ctx context.Context, userUID string) (*models.Subscription, error)
}

// Provider описывает операции платёжного провайдера.
type Provider interface {
	CreateCustomer(ctx context.Context, email, username, userUID string) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID, userUID string) (*billing.CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*billing.Subscription, error)
	SetCancelAtPeriodEnd(ctx context.Context, subscriptionID string, cancel bool) (*billing.Subscription, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// AlertPublisher публикует алерты биллинга.
type AlertPublisher interface {
	PublishBillingAlert(alert models.BillingAlert) error
}

// BillingService реализует оформление, сверку и зеркалирование подписок.
type BillingService struct {
	repo     BillingRepository
	provider Provider
	cache    Cache
	alerts   AlertPublisher
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewBillingService создает новый экземпляр BillingService.
func NewBillingService(repo BillingRepository, provider Provider, cache Cache,
	alerts AlertPublisher, m *metrics.Metrics, log *slog.Logger) *BillingService {
	return &BillingService{
		repo:     repo,
		provider: provider,
		cache:    cache,
		alerts:   alerts,
		metrics:  m,
		log:      log,
	}
}

// Checkout создает Checkout-сессию для оформления премиум-подписки и
// возвращает её URL. Покупатель у провайдера создается и сохраняется до
// создания сессии, чтобы вебхук всегда мог связать оплату с пользователем.
func (s *BillingService) Checkout(ctx context.Context, userUID string) (string, error) {
	user, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return "", err
	}
	if user.IsPremium {
		return "", ErrAlreadyPremium
	}

	var customerID string
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		customerID = *user.StripeCustomerID
	} else {
		customerID, err = s.provider.CreateCustomer(ctx, user.Email, user.Username, user.UID)
		if err != nil {
			return "", err
		}
		if err := s.repo.SetStripeCustomerID(ctx, user.UID, customerID); err != nil {
			return "", err
		}
		s.log.Info("created provider customer",
			slog.String("user_uid", user.UID), slog.String("customer_id", customerID))
	}

	session, err := s.provider.CreateCheckoutSession(ctx, customerID, user.UID)
	if err != nil {
		return "", err
	}
	s.log.Info("created checkout session",
		slog.String("user_uid", user.UID), slog.String("session_id", session.ID))
	return session.URL, nil
}

// Status возвращает премиум-статус пользователя по локальному зеркалу.
// Провайдер не вызывается. Ответ кешируется до следующей записи.
func (s *BillingService) Status(ctx context.Context, userUID string) (*models.SubscriptionStatus, error) {
	cacheKey := statusCacheKey(userUID)

	var cached models.SubscriptionStatus
	found, err := s.cache.Get(cacheKey, &cached)
	if err != nil {
		return nil, err
	}
	if found {
		return &cached, nil
	}

	user, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return nil, err
	}

	status := &models.SubscriptionStatus{IsPremium: user.IsPremium}
	sub, err := s.repo.GetSubscriptionByUserUID(ctx, userUID)
	if err != nil && !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, err
	}
	if sub != nil {
		status.Subscription = &models.SubscriptionInfo{
			Status:            sub.Status,
			CurrentPeriodEnd:  sub.CurrentPeriodEnd,
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		}
	}

	if err := s.cache.Set(cacheKey, status, time.Hour); err != nil {
		s.log.Warn("failed to cache subscription status", slog.String("key", cacheKey), sl.Err(err))
	}
	return status, nil
}

// Cancel включает отмену подписки в конце оплаченного периода. Сначала
// изменение принимает провайдер, и только потом оно зеркалится локально.
// Ошибка провайдера не оставляет локальных следов.
func (s *BillingService) Cancel(ctx context.Context, userUID string) (*models.SubscriptionInfo, error) {
	sub, err := s.repo.GetSubscriptionByUserUID(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, ErrNoSubscriptionToCancel
		}
		return nil, err
	}

	providerSub, err := s.provider.SetCancelAtPeriodEnd(ctx, sub.StripeSubscriptionID, true)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetCancelAtPeriodEnd(ctx, sub.StripeSubscriptionID, true); err != nil {
		// Провайдер изменение уже принял, локальное зеркало разошлось.
		s.publishMirrorAlert(userUID, sub.StripeSubscriptionID, err)
		return nil, err
	}
	s.invalidateStatus(userUID)

	s.log.Info("subscription cancel scheduled",
		slog.String("user_uid", userUID),
		slog.String("subscription_id", sub.StripeSubscriptionID))
	return &models.SubscriptionInfo{
		Status:            providerSub.Status,
		CurrentPeriodEnd:  providerSub.CurrentPeriodEnd,
		CancelAtPeriodEnd: true,
	}, nil
}

// Reactivate снимает запланированную отмену подписки. Требует локальную
// запись с взведённым флагом отмены.
func (s *BillingService) Reactivate(ctx context.Context, userUID string) (*models.SubscriptionInfo, error) {
	sub, err := s.repo.GetSubscriptionByUserUID(ctx, userUID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, ErrNothingToReactivate
		}
		return nil, err
	}
	if !sub.CancelAtPeriodEnd {
		return nil, ErrNothingToReactivate
	}

	providerSub, err := s.provider.SetCancelAtPeriodEnd(ctx, sub.StripeSubscriptionID, false)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetCancelAtPeriodEnd(ctx, sub.StripeSubscriptionID, false); err != nil {
		s.publishMirrorAlert(userUID, sub.StripeSubscriptionID, err)
		return nil, err
	}
	s.invalidateStatus(userUID)

	s.log.Info("subscription reactivated",
		slog.String("user_uid", userUID),
		slog.String("subscription_id", sub.StripeSubscriptionID))
	return &models.SubscriptionInfo{
		Status:            providerSub.Status,
		CurrentPeriodEnd:  providerSub.CurrentPeriodEnd,
		CancelAtPeriodEnd: false,
	}, nil
}

// SetPremium выставляет премиум-флаг пользователя напрямую, минуя провайдера.
// Запись подписки не трогается. Если следующий вебхук перезапишет флаг, это
// ожидаемое поведение: правда провайдера всегда важнее ручной правки.
func (s *BillingService) SetPremium(ctx context.Context, userUID string, isPremium bool) (*models.UserSummary, error) {
	user, err := s.repo.GetUser(ctx, userUID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetPremium(ctx, userUID, isPremium); err != nil {
		return nil, err
	}
	s.invalidateStatus(userUID)

	// Расхождение с зеркалом подписки фиксируем алертом.
	sub, err := s.repo.GetSubscriptionByUserUID(ctx, userUID)
	if err != nil && !errors.Is(err, repository.ErrSubscriptionNotFound) {
		s.log.Warn("failed to check subscription mirror after override", sl.Err(err))
	}
	if sub != nil && models.IsPremiumStatus(sub.Status) != isPremium {
		alert := models.BillingAlert{
			Kind:           models.AlertAdminOverride,
			UserUID:        userUID,
			SubscriptionID: sub.StripeSubscriptionID,
			Detail: fmt.Sprintf("admin set is_premium=%t while subscription status is %q",
				isPremium, sub.Status),
		}
		if err := s.alerts.PublishBillingAlert(alert); err != nil {
			s.log.Error("failed to publish admin override alert", sl.Err(err))
		}
	}

	s.log.Info("premium override applied",
		slog.String("user_uid", userUID), slog.Bool("is_premium", isPremium))

	user.IsPremium = isPremium
	summary := user.Summary()
	return &summary, nil
}

// ListUsers возвращает страницу пользователей для административного отчёта.
func (s *BillingService) ListUsers(ctx context.Context, limit, offset int) ([]models.UserSummary, error) {
	users, err := s.repo.ListUsers(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	summaries := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, u.Summary())
	}
	return summaries, nil
}

func statusCacheKey(userUID string) string {
	return fmt.Sprintf("status:%s", userUID)
}

func (s *BillingService) invalidateStatus(userUID string) {
	cacheKey := statusCacheKey(userUID)
	if err := s.cache.Invalidate(cacheKey); err != nil {
		s.log.Warn("failed to invalidate status cache", slog.String("key", cacheKey), sl.Err(err))
	}
}

func (s *BillingService) publishMirrorAlert(userUID, subscriptionID string, cause error) {
	alert := models.BillingAlert{
		Kind:           models.AlertMirrorWriteFailed,
		UserUID:        userUID,
		SubscriptionID: subscriptionID,
		Detail:         cause.Error(),
	}
	if err := s.alerts.PublishBillingAlert(alert); err != nil {
		s.log.Error("failed to publish mirror alert", sl.Err(err))
	}
}

// HandleEvent применяет событие провайдера к локальному зеркалу. Возврат
// ошибки приводит к не-2xx ответу, и провайдер повторит доставку. События
// неизвестных типов и события без локального адресата подтверждаются без
// изменений: повторная доставка им не поможет.
func (s *BillingService) HandleEvent(ctx context.Context, event stripe.Event) error {
	const op = "billing.HandleEvent"
	eventType := string(event.Type)
	log := s.log.With(
		slog.String("op", op),
		slog.String("event_id", event.ID),
		slog.String("event_type", eventType),
	)

	switch eventType {
	case billing.EventCheckoutSessionCompleted:
		return s.handleCheckoutCompleted(ctx, log, event)
	case billing.EventSubscriptionUpdated:
		return s.handleSubscriptionUpdated(ctx, log, event)
	case billing.EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, log, event)
	case billing.EventInvoicePaymentFailed:
		return s.handleInvoicePaymentFailed(ctx, log, event)
	default:
		log.Info("ignoring unhandled event type")
		s.metrics.ObserveWebhook(eventType, metrics.OutcomeIgnored)
		return nil
	}
}

func (s *BillingService) handleCheckoutCompleted(ctx context.Context, log *slog.Logger, event stripe.Event) error {
	const op = "billing.handleCheckoutCompleted"
	eventType := string(event.Type)

	var session billing.CheckoutSessionEvent
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		s.metrics.ObserveWebhook(eventType, metrics.OutcomeFailed)
		return fmt.Errorf("%s: %w", op, err)
	}
	if session.Subscription == "" {
		log.Warn("checkout session carries no subscription, skipping",
			slog.String("session_id", session.ID))
		s.metrics.ObserveWebhook(eventType, metrics.OutcomeSkipped)
		return nil
	}

	user, err := s.resolveUser(ctx, session.ClientReferenceID, session.Customer)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			log.Warn("no local user for checkout session",
				slog.String("session_id", session.ID),
				slog.String("client_reference_id", session.ClientReferenceID))
			s.metrics.ObserveWebhook(eventType, metrics.OutcomeSkipped)
			return nil
		}
		s.metrics.ObserveWebhook(eventType, metrics.OutcomeFailed)
		return fmt.Errorf("%s: %w", op, err)
	}

	if (user.StripeCustomerID == nil || *user.StripeCustomerID == "") && session.Customer != "" {
		if err := s.repo.SetStripeCustomerID(ctx, user.UID, session.Customer); err != nil {
			log.Warn("failed to backfill stripe customer id", sl.Err(err))
		}
	}

	sub, err := s.provider.GetSubscription(ctx, session.Subscription)
	if err != nil {
		s.metrics.ObserveWebhook(eventType, metrics.OutcomeFailed)
		return fmt.Errorf("%s: %w", op, err)
	}

	row := models.Subscription{
		UserUID:              user.UID,
		StripeSubscriptionID: sub.ID,
		StripePriceID:        sub.PriceID,
		Status:               sub.Status,
		CurrentPeriodStart:   sub.CurrentPeriodStart,
		CurrentPeriodEnd:     sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
	}
	if err := s.repo.UpsertSubscriptionWithPremium(ctx, row, true); err != nil {
		s.metrics.ObserveWebhook(eventType, metrics.OutcomeFailed)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateStatus(user.UID)
	s.metrics.ObserveWebhook(eventType, metrics.OutcomeProcessed)

	log.Info("checkout session processed",
		slog.String("user_uid", user.UID),
		slog.String("subscription_id", sub.ID))
	return nil
}

func (s *BillingService) handleSubscriptionUpdated(ctx context.Context, log *slog.Logger, event stripe.Event) error {
	const op = "billing.handleSubscriptionUpdated"
	eventType := string(event.Type)

	var sub billing.SubscriptionEvent
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		s.metrics.ObserveWebhook(eventType, metrics.OutcomeFailed)
		return fmt.Errorf("%s: %w", op, err)
	}

	isPremium := models.IsPremiumStatus(sub.Status)
	userUID, err := s.repo.UpdateSubscriptionWithPremium(ctx,
		sub.ID, sub.Status, sub.PeriodStart(), sub.PeriodEnd(), sub.CancelAtPeriodEnd, isPremium)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			log.Warn("update for unknown local subscription", slog.String("subscription_id", sub.ID))
			s.metrics.ObserveWebhook(eventType, metrics.OutcomeSkipped)
			return nil
		}
		s.metrics.ObserveWebhook(eventType, metrics.OutcomeFailed)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateStatus(userUID)
	s.metrics.ObserveWebhook(eventType, metrics.OutcomeProcessed)

	log.Info("subscription updated",
		slog.String("subscription_id", sub.ID),
		slog.String("status", sub.Status),
		slog.Bool("is_premium", isPremium))
	return nil
}

func (s *BillingService) handleSubscriptionDeleted(ctx context.Context, log *slog.Logger, event stripe.Event) error {
	const op = "billing.handleSubscriptionDeleted"
	eventType := string(event.Type)

	var sub billing.SubscriptionEvent
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		s.metrics.ObserveWebhook(eventType, metrics.OutcomeFailed)
		return fmt.Errorf("%s: %w", op, err)
	}

	userUID, err := s.repo.MarkSubscriptionCanceled(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			log.Warn("delete for unknown local subscription", slog.String("subscription_id", sub.ID))
			s.metrics.ObserveWebhook(eventType, metrics.OutcomeSkipped)
			return nil
		}
		s.metrics.ObserveWebhook(eventType, metrics.OutcomeFailed)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateStatus(userUID)
	s.metrics.ObserveWebhook(eventType, metrics.OutcomeProcessed)

	log.Info("subscription deleted", slog.String("subscription_id", sub.ID))
	return nil
}

func (s *BillingService) handleInvoicePaymentFailed(ctx context.Context, log *slog.Logger, event stripe.Event) error {
	const op = "billing.handleInvoicePaymentFailed"
	eventType := string(event.Type)

	var invoice billing.InvoiceEvent
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		s.metrics.ObserveWebhook(eventType, metrics.OutcomeFailed)
		return fmt.Errorf("%s: %w", op, err)
	}

	subscriptionID := invoice.SubscriptionID()
	if subscriptionID == "" {
		log.Warn("invoice carries no subscription, skipping", slog.String("invoice_id", invoice.ID))
		s.metrics.ObserveWebhook(eventType, metrics.OutcomeSkipped)
		return nil
	}

	userUID, err := s.repo.MarkSubscriptionPastDue(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			log.Warn("failed invoice for unknown local subscription",
				slog.String("subscription_id", subscriptionID))
			s.metrics.ObserveWebhook(eventType, metrics.OutcomeSkipped)
			return nil
		}
		s.metrics.ObserveWebhook(eventType, metrics.OutcomeFailed)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.invalidateStatus(userUID)
	s.metrics.ObserveWebhook(eventType, metrics.OutcomeProcessed)

	log.Info("subscription marked past_due", slog.String("subscription_id", subscriptionID))
	return nil
}

// resolveUser находит пользователя по client_reference_id сессии, затем по
// идентификатору покупателя.
func (s *BillingService) resolveUser(ctx context.Context, clientReferenceID, customerID string) (*models.User, error) {
	if clientReferenceID != "" {
		user, err := s.repo.GetUser(ctx, clientReferenceID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
	}
	if customerID != "" {
		return s.repo.GetUserByStripeCustomerID(ctx, customerID)
	}
	return nil, repository.ErrUserNotFound
}
