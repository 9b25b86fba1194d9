// Package cancel реализует HTTP-обработчик отмены премиум-подписки.
//
// Отмена мягкая: подписка доживает до конца оплаченного периода.
// Изменение сначала принимает провайдер, затем оно зеркалится локально.
package cancel

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/membooks/membooks-api/internal/http/middlewarectx"
	"github.com/membooks/membooks-api/internal/http/response"
	"github.com/membooks/membooks-api/internal/lib/sl"
	"github.com/membooks/membooks-api/internal/models"
	services "github.com/membooks/membooks-api/internal/services/billing"
)

// Service описывает интерфейс бизнес-логики отмены подписки.
type Service interface {
	Cancel(ctx context.Context, userUID string) (*models.SubscriptionInfo, error)
}

// Handler обрабатывает запросы на отмену подписки.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Отменить премиум-подписку
// @Description Планирует отмену подписки в конце оплаченного периода.
// @Tags Subscription
// @Produce  json
// @Success 200 {object} response.Response "Отмена запланирована"
// @Failure 400 {object} response.ErrorResponse "Нет подписки для отмены"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка платёжного провайдера"
// @Router /subscription/cancel [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.cancel"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := r.Context().Value(middlewarectx.UserUID).(string)
	if !ok || userUID == "" {
		log.Error("user identification missing")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("user identification missing"))
		return
	}

	sub, err := h.service.Cancel(r.Context(), userUID)
	if err != nil {
		if errors.Is(err, services.ErrNoSubscriptionToCancel) {
			log.Warn("cancel rejected", slog.String("user_uid", userUID))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(services.ErrNoSubscriptionToCancel.Error()))
			return
		}
		log.Error("failed to cancel subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error(err.Error()))
		return
	}

	log.Info("subscription cancel scheduled", slog.String("user_uid", userUID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"success":      true,
		"subscription": sub,
	}))
}
