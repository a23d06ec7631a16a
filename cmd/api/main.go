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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/salvashop/shopapi/internal/api"
	"github.com/salvashop/shopapi/internal/config"
	"github.com/salvashop/shopapi/internal/coupons"
	"github.com/salvashop/shopapi/internal/inventory"
	"github.com/salvashop/shopapi/internal/metrics"
	"github.com/salvashop/shopapi/internal/notify"
	"github.com/salvashop/shopapi/internal/repository/postgres"
	"github.com/salvashop/shopapi/internal/service"
	"github.com/salvashop/shopapi/internal/shipping"
	"github.com/salvashop/shopapi/internal/wompi"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := postgres.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(registry)

	var mailer notify.Mailer = notify.NewLogMailer(logger)
	if cfg.Mail.Enabled() {
		mailer = notify.NewSMTPMailer(cfg.Mail)
	} else {
		logger.Warn("SMTP_HOST not set, notifications are logged instead of sent")
	}
	dispatcher := notify.NewDispatcher(mailer, cfg.Notifications, logger, orderMetrics)

	repos := postgres.NewRepositories(db, logger)
	wompiClient := wompi.NewClient(cfg.Wompi, logger)
	resolver := shipping.NewResolver(shipping.DefaultCatalog())
	validator := coupons.NewValidator(repos.Coupon, logger)

	orders := service.NewOrderService(service.Dependencies{
		Repos:    repos,
		Ledger:   inventory.NewLedger(repos.Product, logger),
		Coupons:  validator,
		Shipping: resolver,
		Gateway:  wompiClient,
		Notifier: dispatcher,
		Metrics:  orderMetrics,
		Settings: service.OrderSettings{FrontendURL: cfg.FrontendURL, Currency: cfg.Wompi.Currency},
		Logger:   logger,
	})

	router := api.NewRouter(cfg, api.Services{
		Orders:   orders,
		Coupons:  service.NewCouponService(repos.Coupon, validator, logger),
		Webhooks: service.NewWebhookService(orders, wompiClient, orderMetrics, logger),
		Shipping: resolver,
		Gatherer: registry,
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	// drain queued notifications after the last request has finished
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Warn("Notification queue not fully drained", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	zcfg := zap.NewDevelopmentConfig()
	if cfg.Environment == "production" {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = level
	return zcfg.Build()
}
