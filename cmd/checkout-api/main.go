package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bookbharat/checkout-api/internal/handlers"
	"github.com/bookbharat/checkout-api/internal/platform/config"
	"github.com/bookbharat/checkout-api/internal/platform/observability"
	"github.com/bookbharat/checkout-api/internal/session"
	"github.com/bookbharat/checkout-api/internal/statestore"
	"github.com/bookbharat/checkout-api/internal/tax"
	"github.com/bookbharat/checkout-api/internal/upstream"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("checkout-api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	client, err := upstream.NewClient(upstream.Options{
		BaseURL: cfg.Upstream.BaseURL,
		Timeout: cfg.Upstream.Timeout,
		Logger:  logger.Named("upstream"),
	})
	if err != nil {
		logger.Fatal("failed to initialise upstream client", zap.Error(err))
	}

	var store statestore.Store
	if cfg.State.Dir != "" {
		fileStore, err := statestore.NewFileStore(cfg.State.Dir)
		if err != nil {
			logger.Fatal("failed to initialise state store", zap.Error(err))
		}
		store = fileStore
	} else {
		store = statestore.NewMemoryStore()
	}

	sessions, err := session.NewManager(session.ManagerDeps{
		Backend:           client,
		Cart:              client,
		RemoteTax:         client,
		FallbackTax:       tax.NewEstimator(),
		Store:             store,
		Reporter:          client,
		Logger:            logger,
		TaxDebounce:       cfg.Checkout.TaxDebounce,
		TelemetryInterval: cfg.Telemetry.SampleInterval,
	})
	if err != nil {
		logger.Fatal("failed to initialise session manager", zap.Error(err))
	}

	router := handlers.NewRouter(logger, handlers.NewCheckoutHandlers(sessions))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", zap.Error(err))
	}
	sessions.CloseAll(shutdownCtx)
	logger.Info("shutdown complete")
}
