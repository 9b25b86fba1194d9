// Package reactivate реализует HTTP-обработчик снятия запланированной отмены.
package reactivate

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

// Service описывает интерфейс бизнес-логики возобновления подписки.
type Service interface {
	Reactivate(ctx context.Context, userUID string) (*models.SubscriptionInfo, error)
}

// Handler обрабатывает запросы на возобновление подписки.
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
// @Summary Возобновить премиум-подписку
// @Description Снимает запланированную отмену, подписка продолжит продлеваться.
// @Tags Subscription
// @Produce  json
// @Success 200 {object} response.Response "Отмена снята"
// @Failure 400 {object} response.ErrorResponse "Возобновлять нечего"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 500 {object} response.ErrorResponse "Ошибка платёжного провайдера"
// @Router /subscription/reactivate [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.reactivate"

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

	sub, err := h.service.Reactivate(r.Context(), userUID)
	if err != nil {
		if errors.Is(err, services.ErrNothingToReactivate) {
			log.Warn("reactivate rejected", slog.String("user_uid", userUID))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(services.ErrNothingToReactivate.Error()))
			return
		}
		log.Error("failed to reactivate subscription", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error(err.Error()))
		return
	}

	log.Info("subscription reactivated", slog.String("user_uid", userUID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"success":      true,
		"subscription": sub,
	}))
}
