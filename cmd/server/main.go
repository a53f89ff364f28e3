package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/segyhp/rental-billing/internal/app"
	"github.com/segyhp/rental-billing/internal/config"
	"github.com/segyhp/rental-billing/internal/handler"
	"github.com/segyhp/rental-billing/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Bootstrap("server").Fatal("failed to load configuration", zap.Error(err))
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format).Named("server")
	defer log.Sync() //nolint:errcheck
	zap.ReplaceGlobals(log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	deps, err := app.New(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Fatal("failed to initialize dependencies", zap.Error(err))
	}
	defer deps.Close()

	health := handler.NewHealthHandler(nil, nil, cfg.Health.Timeout)
	switch {
	case deps.DB != nil && deps.Redis != nil:
		health = handler.NewHealthHandler(deps.DB, deps.Redis, cfg.Health.Timeout)
	case deps.DB != nil:
		health = handler.NewHealthHandler(deps.DB, nil, cfg.Health.Timeout)
	case deps.Redis != nil:
		health = handler.NewHealthHandler(nil, deps.Redis, cfg.Health.Timeout)
	}

	// Setup routes
	router := handler.NewRouter(handler.Handlers{
		Payments: handler.NewPaymentHandler(deps.Initiator),
		Webhooks: handler.NewWebhookHandler(deps.Reconciler, cfg.Gateway.SignatureHeader),
		Leases:   handler.NewLeaseHandler(deps.Leases),
		Invoices: handler.NewInvoiceHandler(deps.Invoices),
		Settings: handler.NewSettingsHandler(deps.Settings),
		Health:   health,
		Metrics:  deps.Metrics.Handler(),
	}, log)

	// Start server
	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Server.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
