// Package checkout реализует HTTP-обработчик оформления премиум-подписки.
//
// Обработчик создает Checkout-сессию у платёжного провайдера и возвращает
// её URL. Дальнейшая оплата происходит на стороне провайдера, результат
// придет асинхронно через webhook.
package checkout

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
	services "github.com/membooks/membooks-api/internal/services/billing"
	"github.com/membooks/membooks-api/internal/storage/repository"
)

// Service описывает интерфейс бизнес-логики оформления подписки.
type Service interface {
	Checkout(ctx context.Context, userUID string) (string, error)
}

// Handler обрабатывает запросы на создание Checkout-сессии.
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
// @Summary Оформить премиум-подписку
// @Description Создает Checkout-сессию у платёжного провайдера и возвращает URL для оплаты.
// @Tags Subscription
// @Produce  json
// @Success 200 {object} response.Response "URL сессии оплаты"
// @Failure 400 {object} response.ErrorResponse "Пользователь уже премиум"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка платёжного провайдера"
// @Router /subscription/checkout [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.checkout"

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

	url, err := h.service.Checkout(r.Context(), userUID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrAlreadyPremium):
			log.Warn("checkout rejected", slog.String("user_uid", userUID), sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error(services.ErrAlreadyPremium.Error()))
		case errors.Is(err, repository.ErrUserNotFound):
			log.Warn("user not found", slog.String("user_uid", userUID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		default:
			log.Error("failed to create checkout session", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error(err.Error()))
		}
		return
	}

	log.Info("checkout session created", slog.String("user_uid", userUID))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"url": url,
	}))
}
