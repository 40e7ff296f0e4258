package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mindmed/mindmed-api/internal/api"
	"github.com/mindmed/mindmed-api/internal/billing"
	"github.com/mindmed/mindmed-api/internal/cache"
	"github.com/mindmed/mindmed-api/internal/config"
	"github.com/mindmed/mindmed-api/internal/events"
	"github.com/mindmed/mindmed-api/internal/identity"
	"github.com/mindmed/mindmed-api/internal/logging"
	"github.com/mindmed/mindmed-api/internal/metrics"
	"github.com/mindmed/mindmed-api/internal/pdf"
	"github.com/mindmed/mindmed-api/internal/plans"
	"github.com/mindmed/mindmed-api/internal/prescription"
	"github.com/mindmed/mindmed-api/internal/storage"
	"github.com/mindmed/mindmed-api/internal/store"
	"github.com/mindmed/mindmed-api/pkg/database"
	"github.com/mindmed/mindmed-api/pkg/kafka"
)

func main() {
	// A missing .env is fine, the environment may already be set
	_ = godotenv.Load()

	// Load configuration
	cfg := config.LoadConfig()
	logger := logging.Setup(cfg.Server.Environment, cfg.Server.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

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
	if err := database.EnsureSchema(ctx, db.DB); err != nil {
		logger.Error("Failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("✅ Connected to databases")

	catalog, err := plans.Load(cfg.Plans.CatalogPath)
	if err != nil {
		logger.Error("Failed to load plan catalog", "error", err)
		os.Exit(1)
	}
	logger.Info("Plan catalog loaded", "version", catalog.Version())

	st := store.New(db.DB)
	redisCache := cache.New(db.Redis, cfg.Cache.EmailTTL, cfg.Cache.DashboardTTL)

	authClient, err := identity.NewClient(cfg.Supabase.URL, cfg.Supabase.ServiceRoleKey)
	if err != nil {
		logger.Error("Failed to create Supabase client", "error", err)
		os.Exit(1)
	}
	if err := identity.Ping(authClient); err != nil {
		logger.Warn("Supabase auth is not reachable yet", "error", err)
	}
	directory := identity.NewGoTrueDirectory(authClient, redisCache, logger)

	images, err := newStorage(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka producer
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.RetryMax, cfg.Kafka.RetryBackoff)
		if err != nil {
			logger.Error("Failed to create Kafka producer", "error", err)
			os.Exit(1)
		}
		kafkaPublisher := events.NewKafkaPublisher(producer, cfg.Kafka.Topic)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
		logger.Info("✅ Connected to Kafka")
	} else {
		logger.Warn("Kafka disabled, domain events will not be published")
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	validate := api.NewValidator()

	generator := prescription.NewGenerator(st, pdf.FPDFRenderer{}, publisher, redisCache, m, validate, logger,
		prescription.WithLocation(cfg.Location()))
	webhooks := billing.NewWebhookProcessor(directory, st, catalog, publisher, redisCache, m, logger)

	if cfg.Webhook.Secret == "" {
		logger.Warn("WEBHOOK_SECRET is not set, webhook signatures will not be verified")
	}

	// Create and start server
	server := api.NewServer(cfg, api.Dependencies{
		Store:     st,
		Directory: directory,
		Generator: generator,
		Webhooks:  webhooks,
		Verifier:  billing.NewVerifier(cfg.Webhook.Secret),
		Storage:   images,
		Cache:     redisCache,
		Catalog:   catalog,
		Health:    db,
		Gatherer:  prometheus.DefaultGatherer,
		Validate:  validate,
		Logger:    logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutting down server")
		if err := server.Shutdown(); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	}
}

func newStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	if cfg.Storage.Driver == "local" {
		slog.Info("Using local image storage", "dir", cfg.Storage.LocalDir)
		return storage.NewLocalStorage(cfg.Storage.LocalDir, "http://localhost"+cfg.Server.Port+"/files")
	}
	return storage.NewS3Storage(ctx, storage.S3Config{
		Endpoint:  cfg.Storage.S3Endpoint,
		Region:    cfg.Storage.S3Region,
		AccessKey: cfg.Storage.S3AccessKey,
		SecretKey: cfg.Storage.S3SecretKey,
		PublicURL: cfg.Storage.PublicURL,
	})
}
