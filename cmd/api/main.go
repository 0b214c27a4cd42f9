package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shapeai4-rgb/shapeai/api/routes"
	"github.com/shapeai4-rgb/shapeai/internal/ledger"
	"github.com/shapeai4-rgb/shapeai/internal/plans"
	"github.com/shapeai4-rgb/shapeai/internal/topup"
	"github.com/shapeai4-rgb/shapeai/internal/users"
	"github.com/shapeai4-rgb/shapeai/pkg/config"
	"github.com/shapeai4-rgb/shapeai/pkg/db"
	"github.com/shapeai4-rgb/shapeai/pkg/env"
	"github.com/shapeai4-rgb/shapeai/pkg/logger"
	"github.com/shapeai4-rgb/shapeai/pkg/metrics"
	"github.com/shapeai4-rgb/shapeai/pkg/migrate"
	"github.com/shapeai4-rgb/shapeai/pkg/openai"
	"github.com/shapeai4-rgb/shapeai/pkg/payment"
	"github.com/shapeai4-rgb/shapeai/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	generator, err := openai.NewClient(context.Background(), cfg.OpenAI, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create openai client", err)
		os.Exit(1)
	}

	provider, err := payment.NewProvider(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment provider", err)
		os.Exit(1)
	}

	transfermitHook, err := payment.NewTransfermitWebhook(cfg.Transfermit)
	if err != nil {
		logg.Warn(logg.WithField(context.Background(), "reason", err.Error()),
			"transfermit webhook disabled")
		transfermitHook = nil
	}

	// The Bizon confirmation route needs order lookups, which only the
	// Bizon provider offers.
	bizonClient, _ := provider.(*payment.BizonClient)

	registry := prometheus.NewRegistry()
	tokenFlow := metrics.NewTokenFlowMetrics(registry)

	userRepo := users.NewRepository(dbClient.DB())

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	plansSvc, err := plans.NewService(
		plans.NewRepository(dbClient.DB()),
		ledgerSvc,
		generator,
		dbClient,
		tokenFlow,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create plans service", err)
		os.Exit(1)
	}

	topupSvc, err := topup.NewService(
		provider,
		ledgerSvc,
		redisClient,
		redisClient,
		cfg.FreeTopup,
		cfg.Webhook,
		tokenFlow,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create topup service", err)
		os.Exit(1)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:      cfg,
			Logger:      logg,
			DB:          dbClient,
			Redis:       redisClient,
			Gatherer:    registry,
			Ledger:      ledgerSvc,
			Plans:       plansSvc,
			Topup:       topupSvc,
			Users:       userRepo,
			Transfermit: transfermitHook,
			Bizon:       bizonClient,
		}),
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
	}
}
