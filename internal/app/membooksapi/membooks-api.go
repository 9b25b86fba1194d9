// Package membooksapi собирает и запускает основное HTTP-приложение:
// хранилище, кэш, платёжного провайдера, брокер алертов и маршруты API.
package membooksapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/streadway/amqp"

	"github.com/membooks/membooks-api/internal/billing"
	"github.com/membooks/membooks-api/internal/cache"
	"github.com/membooks/membooks-api/internal/config"
	"github.com/membooks/membooks-api/internal/lib/jwt"
	"github.com/membooks/membooks-api/internal/lib/rabbitmq"
	"github.com/membooks/membooks-api/internal/metrics"
	"github.com/membooks/membooks-api/internal/migrations"
	alertservice "github.com/membooks/membooks-api/internal/services/alerts"
	authservice "github.com/membooks/membooks-api/internal/services/auth"
	billingservice "github.com/membooks/membooks-api/internal/services/billing"
	"github.com/membooks/membooks-api/internal/storage/repository"
)

type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	conn   *amqp.Connection
	ch     *amqp.Channel
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, err
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetBillingQueues())
	if err != nil {
		conn.Close()
		return nil, err
	}

	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	billingClient := billing.New(cfg.Stripe)
	m := metrics.New(prometheus.DefaultRegisterer)

	alertService := alertservice.NewAlertService(ch, logger)
	authService := authservice.NewAuthService(db, jwtMaker)
	billingService := billingservice.NewBillingService(db, billingClient, cacheRedis, alertService, m, logger)

	router := chi.NewRouter()

	RegisterRoutes(router, logger, cfg, jwtMaker, authService, billingService, billingClient)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		conn:   conn,
		ch:     ch,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if cerr := a.ch.Close(); cerr != nil {
			a.logger.Error("failed to close channel", slog.Any("err", cerr))
		}
		if cerr := a.conn.Close(); cerr != nil {
			a.logger.Error("failed to close connection", slog.Any("err", cerr))
		}
		a.db.DB.Close()
		return err
	}
}
