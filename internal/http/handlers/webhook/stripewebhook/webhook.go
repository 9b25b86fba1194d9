// Package stripewebhook реализует HTTP-обработчик вебхуков Stripe.
//
// Обработчик проверяет подпись события, передает его в сервис биллинга
// и отвечает кодом 2xx только после успешной обработки, чтобы Stripe
// повторял доставку при сбоях.
package stripewebhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/stripe/stripe-go/v82"

	"github.com/membooks/membooks-api/internal/lib/sl"
)

// maxBodyBytes ограничивает размер тела вебхука, как рекомендует Stripe.
const maxBodyBytes = 1 << 20

// Verifier проверяет подпись и разбирает событие Stripe.
type Verifier interface {
	VerifyEvent(payload []byte, signature string) (stripe.Event, error)
}

// Service описывает интерфейс бизнес-логики обработки событий.
type Service interface {
	HandleEvent(ctx context.Context, event stripe.Event) error
}

// Handler обрабатывает входящие вебхуки Stripe.
type Handler struct {
	log      *slog.Logger
	verifier Verifier
	service  Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, verifier Verifier, service Service) *Handler {
	return &Handler{
		log:      log,
		verifier: verifier,
		service:  service,
	}
}

// ServeHTTP godoc
// @Summary Принять вебхук Stripe
// @Description Принимает события биллинга от Stripe и синхронизирует локальное состояние подписок.
// @Tags Webhook
// @Accept  json
// @Produce  json
// @Success 200 {object} map[string]bool "Событие принято"
// @Failure 400 {object} map[string]string "Невалидная подпись или тело запроса"
// @Failure 500 {object} map[string]string "Ошибка обработки события"
// @Router /webhook/stripe [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.webhook.stripewebhook"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "failed to read request body"})
		return
	}

	event, err := h.verifier.VerifyEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		log.Error("webhook signature verification failed", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "signature verification failed"})
		return
	}

	log = log.With(
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
	)

	if err := h.service.HandleEvent(r.Context(), event); err != nil {
		log.Error("failed to handle webhook event", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": "event handling failed"})
		return
	}

	log.Info("webhook event accepted")
	render.JSON(w, r, map[string]bool{"received": true})
}
