// Package main запускает HTTP-сервер библиотечного сервиса.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mpetrova/library-system/internal/config"
	"github.com/mpetrova/library-system/internal/handler"
	"github.com/mpetrova/library-system/internal/mailer"
	"github.com/mpetrova/library-system/internal/middleware"
	"github.com/mpetrova/library-system/internal/repository"
	"github.com/mpetrova/library-system/internal/scheduler"
	"github.com/mpetrova/library-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	mailClient := mailer.NewClient(cfg.MailGatewayAddress, logger)

	svc := service.NewService(repo, mailClient, logger)
	defer svc.Close()

	secret := cfg.AuthSecret
	if secret == "" {
		secret = "library-secret"
	}
	authMiddleware := middleware.NewAuthMiddleware(secret)

	h := handler.NewHandler(svc, logger, authMiddleware)
	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фоновых задач обслуживания
	sched := scheduler.NewScheduler(svc, logger, cfg.SweepInterval)
	g.Go(func() error {
		sched.Run(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting library server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
