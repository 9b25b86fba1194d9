// Package premium реализует HTTP-обработчик ручного управления премиум-статусом.
package premium

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/membooks/membooks-api/internal/http/response"
	"github.com/membooks/membooks-api/internal/lib/sl"
	"github.com/membooks/membooks-api/internal/models"
	"github.com/membooks/membooks-api/internal/storage/repository"
)

// Request описывает тело запроса на изменение премиум-статуса.
type Request struct {
	IsPremium bool `json:"is_premium"`
}

// Service описывает интерфейс бизнес-логики администратора.
type Service interface {
	SetPremium(ctx context.Context, userUID string, isPremium bool) (*models.UserSummary, error)
}

// Handler обрабатывает административные запросы на смену премиум-статуса.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Изменить премиум-статус пользователя
// @Description Вручную выставляет или снимает премиум-флаг, минуя платёжного провайдера.
// @Tags Admin
// @Accept  json
// @Produce  json
// @Param uid path string true "UID пользователя"
// @Param request body Request true "Новое значение премиум-флага"
// @Success 200 {object} response.Response "Обновленные данные пользователя"
// @Failure 400 {object} response.ErrorResponse "Невалидный UID или тело запроса"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Требуются права администратора"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Внутренняя ошибка сервера"
// @Router /admin/users/{uid}/premium [post]
// @Security BearerAuth
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.premium"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID := chi.URLParam(r, "uid")
	if err := h.validate.Var(userUID, "required,uuid"); err != nil {
		log.Error("invalid user uid", slog.String("uid", userUID))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid user uid"))
		return
	}

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}

	summary, err := h.service.SetPremium(r.Context(), userUID, req.IsPremium)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			log.Warn("user not found", slog.String("user_uid", userUID))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
			return
		}
		log.Error("failed to set premium status", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to set premium status"))
		return
	}

	log.Info("premium status updated",
		slog.String("user_uid", userUID),
		slog.Bool("is_premium", req.IsPremium))
	render.JSON(w, r, response.StatusOKWithData(summary))
}
