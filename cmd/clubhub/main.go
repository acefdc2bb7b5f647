// Package main запускает HTTP-сервер сервиса членства в клубе.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/clubhub/internal/config"
	"github.com/mmeshcher/clubhub/internal/events"
	"github.com/mmeshcher/clubhub/internal/handler"
	"github.com/mmeshcher/clubhub/internal/idcard"
	"github.com/mmeshcher/clubhub/internal/mailer"
	"github.com/mmeshcher/clubhub/internal/middleware"
	"github.com/mmeshcher/clubhub/internal/model"
	"github.com/mmeshcher/clubhub/internal/outbox"
	"github.com/mmeshcher/clubhub/internal/repository"
	"github.com/mmeshcher/clubhub/internal/service"
)

func main() {
	// .env необязателен: в контейнере переменные приходят из окружения.
	_ = godotenv.Load()

	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger initialization error:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	relay := outbox.NewRelay(repo, logger.Named("outbox"), outbox.Config{
		Interval:    cfg.OutboxInterval,
		Batch:       cfg.OutboxBatch,
		MaxAttempts: cfg.OutboxMaxAttempts,
	})

	var closers []io.Closer
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				sugar.Warnw("close dispatcher", "error", err.Error())
			}
		}
	}()

	if cfg.RabbitMQURL != "" {
		mq, err := mailer.NewRabbitMQ(cfg.RabbitMQURL, cfg.EmailQueue)
		if err != nil {
			sugar.Fatalw("rabbitmq initialization error", "error", err.Error())
		}
		closers = append(closers, mq)
		relay.Register(model.TopicEmail, mq)
	} else {
		sugar.Warn("RABBITMQ_URL is not set, emails will only be logged")
		relay.Register(model.TopicEmail, mailer.NewLog(logger.Named("mailer")))
	}

	emitEvents := len(cfg.KafkaBrokers) > 0
	if emitEvents {
		pub := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		closers = append(closers, pub)
		relay.Register(model.TopicMembershipEvents, pub)
	}

	svc := service.NewService(repo, idcard.NewGenerator(cfg.ClubName), logger.Named("service"), service.Options{
		ClubName:   cfg.ClubName,
		EmitEvents: emitEvents,
	})
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		if err := svc.EnsureAdmin(ctx, cfg.AdminName, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			sugar.Fatalw("admin bootstrap error", "error", err.Error())
		}
	}

	if cfg.JWTSecret == "" {
		sugar.Warn("JWT_SECRET is not set, tokens will not survive a restart")
	}
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	h := handler.NewHandler(svc, logger.Named("http"), authMiddleware)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Доставка писем и событий из outbox
	g.Go(func() error {
		return relay.Run(ctx)
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting clubhub server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Errorw("application terminated with error", "error", err)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}
