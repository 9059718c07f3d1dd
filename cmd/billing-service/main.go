/**
 * @description
 * Entry point for the billing service: the HTTP API, the booking event
 * consumer and the embedded schema migrations.
 */
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/nannygold/billing-service/internal/api"
	"github.com/nannygold/billing-service/internal/app"
	"github.com/nannygold/billing-service/internal/config"
	"github.com/nannygold/billing-service/internal/store"
	"github.com/nannygold/billing-service/pkg/paystack"
	"github.com/nannygold/billing-service/pkg/rabbitmq"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	pgConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	pgConfig.MaxConns = 50
	pgConfig.MinConns = 5
	pgConfig.MaxConnLifetime = 30 * time.Minute
	pgConfig.MaxConnIdleTime = 5 * time.Minute
	pgConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	if cfg.RunMigrations {
		if err := store.NewMigrator(dbpool, logger).Run(ctx); err != nil {
			logger.Error("database migration failed", "error", err)
			os.Exit(1)
		}
	}

	var locker app.SweepLocker = app.NoopSweepLocker{}
	var limiter api.RateLimiter
	if cfg.RedisURL == "" {
		logger.Warn("redis url missing; sweeps run without a cross-replica lock", "env", "REDIS_URL")
	} else if redisOptions, parseErr := redis.ParseURL(cfg.RedisURL); parseErr != nil {
		logger.Warn("redis url parse failed; sweeps run without a cross-replica lock", "error", parseErr)
	} else {
		redisClient := redis.NewClient(redisOptions)
		pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
		pingErr := redisClient.Ping(pingCtx).Err()
		cancelPing()
		if pingErr != nil {
			logger.Warn("redis ping failed; sweeps run without a cross-replica lock", "error", pingErr)
			redisClient.Close()
		} else {
			defer redisClient.Close()
			locker = app.NewRedisSweepLocker(redisClient, cfg.RedisLockPrefix)
			limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
			logger.Info("redis connected")
		}
	}

	var publisher app.EventPublisher = &rabbitmq.EventProducerFallback{Logger: logger}
	if cfg.RabbitMQURL != "" {
		if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err == nil {
			publisher = producer
			defer producer.Close()
		} else {
			logger.Warn("failed to connect to RabbitMQ, using fallback publisher", "error", err)
		}
	}

	repository := store.NewRepository(dbpool)
	gateway := paystack.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey)
	service := app.NewService(repository, gateway, publisher, locker, app.Options{
		Timezone:         cfg.BusinessTimezone,
		Currency:         cfg.DefaultCurrency,
		InvoiceDueDays:   cfg.InvoiceDueDays,
		AuthorizationDay: cfg.AuthorizationDay,
		CaptureDay:       cfg.CaptureDay,
		SweepLockTTL:     cfg.SweepLockTTL,
		Logger:           logger,
	})

	if cfg.RabbitMQURL != "" {
		consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("failed to start booking event consumer", "error", err)
		} else {
			defer consumer.Close()
			go func() {
				err := consumer.Consume(ctx, app.EventsExchange, cfg.BookingEventQueue, app.BookingEventRoutingKeys, service.HandleBookingEvent)
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("booking event consumer stopped", "error", err)
				}
			}()
			logger.Info("booking event consumer started", "queue", cfg.BookingEventQueue)
		}
	}

	handler := api.NewHandler(service, cfg.PaymentCallbackURL, logger)
	router := api.NewRouter(handler, api.RouterConfig{
		InternalAPIKey: cfg.InternalAPIKey,
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.CORSAllowedOrigins,

		RateLimiter:             limiter,
		PaymentMethodRatePerMin: cfg.PaymentMethodRateLimitPerMinute,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
