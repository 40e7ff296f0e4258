package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mindmed/mindmed-api/internal/cache"
	"github.com/mindmed/mindmed-api/internal/config"
	"github.com/mindmed/mindmed-api/internal/logging"
	"github.com/mindmed/mindmed-api/internal/metrics"
	"github.com/mindmed/mindmed-api/internal/notify"
	"github.com/mindmed/mindmed-api/internal/plans"
	"github.com/mindmed/mindmed-api/internal/store"
	"github.com/mindmed/mindmed-api/internal/worker"
	"github.com/mindmed/mindmed-api/pkg/database"
	"github.com/mindmed/mindmed-api/pkg/kafka"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := config.LoadConfig()
	logger := logging.Setup(cfg.Server.Environment, cfg.Server.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database clients
	db, err := database.NewClients(ctx, cfg.Database.URL, database.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		logger.Error("Failed to initialize database clients", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("✅ Connected to databases")

	catalog, err := plans.Load(cfg.Plans.CatalogPath)
	if err != nil {
		logger.Error("Failed to load plan catalog", "error", err)
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	scheduler, err := worker.NewRenewalScheduler(cfg.Quota.RenewalSchedule, store.New(db.DB), m, logger)
	if err != nil {
		logger.Error("Failed to create renewal scheduler", "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	if !cfg.Kafka.Enabled {
		logger.Warn("Kafka disabled, only running quota renewals")
		<-ctx.Done()
		logger.Info("Worker shutting down gracefully")
		return
	}

	smtpCfg := notify.SMTPConfig{
		From:     cfg.Email.From,
		Password: cfg.Email.Password,
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
	}
	var sender notify.Sender = notify.NopSender{Logger: logger}
	if smtpCfg.Enabled() {
		sender = notify.NewSMTPSender(smtpCfg, logger)
	} else {
		logger.Warn("SMTP is not configured, notifications will only be logged")
	}

	// Initialize Kafka consumer
	consumer, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Group)
	if err != nil {
		logger.Error("Failed to create Kafka consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()
	logger.Info("✅ Connected to Kafka")

	handler := worker.NewEventHandler(sender, cache.New(db.Redis, cfg.Cache.EmailTTL, cfg.Cache.DashboardTTL),
		catalog, cfg.Quota.WarningThreshold, logger)

	// Create and start worker
	w := worker.NewWorker(cfg, consumer, handler, logger)
	if err := w.Start(ctx); err != nil {
		logger.Error("Worker error", "error", err)
		os.Exit(1)
	}
}
