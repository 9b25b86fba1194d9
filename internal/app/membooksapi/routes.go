// Package membooksapi предоставляет маршруты для основного приложения.
package membooksapi

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/membooks/membooks-api/internal/billing"
	"github.com/membooks/membooks-api/internal/config"
	"github.com/membooks/membooks-api/internal/http/handlers/admin/premium"
	"github.com/membooks/membooks-api/internal/http/handlers/admin/userlist"
	"github.com/membooks/membooks-api/internal/http/handlers/auth/login"
	"github.com/membooks/membooks-api/internal/http/handlers/auth/register"
	"github.com/membooks/membooks-api/internal/http/handlers/health"
	"github.com/membooks/membooks-api/internal/http/handlers/subscription/cancel"
	"github.com/membooks/membooks-api/internal/http/handlers/subscription/checkout"
	"github.com/membooks/membooks-api/internal/http/handlers/subscription/reactivate"
	"github.com/membooks/membooks-api/internal/http/handlers/subscription/status"
	"github.com/membooks/membooks-api/internal/http/handlers/webhook/stripewebhook"
	"github.com/membooks/membooks-api/internal/http/middlewarectx"
	"github.com/membooks/membooks-api/internal/lib/jwt"
	authservice "github.com/membooks/membooks-api/internal/services/auth"
	billingservice "github.com/membooks/membooks-api/internal/services/billing"
)

// Лимиты запросов для аутентифицированных маршрутов.
const (
	requestsPerSecond = rate.Limit(10)
	requestsBurst     = 20
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config,
	jwtMaker jwt.Maker, authService *authservice.AuthService,
	billingService *billingservice.BillingService, billingClient *billing.Client) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/auth/register", register.New(logger, authService).ServeHTTP)
		r.Post("/auth/login", login.New(logger, authService).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(jwtMaker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger, requestsPerSecond, requestsBurst))
			r.Post("/subscription/checkout", checkout.New(logger, billingService).ServeHTTP)
			r.Get("/subscription/status", status.New(logger, billingService).ServeHTTP)
			r.Post("/subscription/cancel", cancel.New(logger, billingService).ServeHTTP)
			r.Post("/subscription/reactivate", reactivate.New(logger, billingService).ServeHTTP)

			// Административные конечные точки
			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.AdminOnlyMiddleware(cfg.AdminEmailList(), logger))
				r.Get("/admin/users", userlist.New(logger, billingService).ServeHTTP)
				r.Post("/admin/users/{uid}/premium", premium.New(logger, billingService).ServeHTTP)
			})
		})

		// Webhook endpoint (без аутентификации, подпись проверяет провайдер)
		r.Post("/webhook/stripe", stripewebhook.New(logger, billingClient, billingService).ServeHTTP)
	})

	r.Get("/health", health.New(logger).ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
