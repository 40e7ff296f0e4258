package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cache"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mindmed/mindmed-api/internal/billing"
	"github.com/mindmed/mindmed-api/internal/config"
	"github.com/mindmed/mindmed-api/internal/identity"
	"github.com/mindmed/mindmed-api/internal/models"
	"github.com/mindmed/mindmed-api/internal/plans"
	"github.com/mindmed/mindmed-api/internal/prescription"
	"github.com/mindmed/mindmed-api/internal/storage"
)

const (
	historyLimit       = 10
	billingEventsLimit = 10
)

// Store is the persistence used directly by the HTTP handlers.
type Store interface {
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
	UpsertProfile(ctx context.Context, p models.Profile) (models.Profile, error)
	CreateMinimalProfile(ctx context.Context, userID, fullName string) error
	SetProfileImage(ctx context.Context, userID string, kind models.ImageKind, url string) error
	GetSubscription(ctx context.Context, userID string) (models.Subscription, error)
	CreateSubscription(ctx context.Context, sub models.Subscription) (string, error)
	ListPrescriptions(ctx context.Context, userID string, limit int) ([]models.Prescription, error)
	DeletePrescription(ctx context.Context, userID, id string) error
	PrescriptionStats(ctx context.Context, userID string, monthStart time.Time) (models.PrescriptionStats, error)
	ListBillingEvents(ctx context.Context, subscriptionID string, limit int) ([]models.BillingEvent, error)
}

type Generator interface {
	Generate(ctx context.Context, caller prescription.Caller, req models.PrescriptionRequest) (prescription.Result, error)
}

type WebhookProcessor interface {
	Process(ctx context.Context, body []byte) (billing.Outcome, error)
}

type DashboardCache interface {
	GetDashboard(ctx context.Context, userID string) (models.DashboardResponse, bool, error)
	SetDashboard(ctx context.Context, userID string, dash models.DashboardResponse) error
	InvalidateDashboard(ctx context.Context, userID string) error
}

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators the server routes requests to.
type Dependencies struct {
	Store     Store
	Directory identity.Directory
	Generator Generator
	Webhooks  WebhookProcessor
	Verifier  *billing.Verifier
	Storage   storage.Storage
	Cache     DashboardCache
	Catalog   *plans.Catalog
	Health    HealthChecker
	Gatherer  prometheus.Gatherer
	Validate  *validator.Validate
	Logger    *slog.Logger
	Now       func() time.Time
}

type Server struct {
	app       *fiber.App
	cfg       *config.Config
	store     Store
	directory identity.Directory
	generator Generator
	webhooks  WebhookProcessor
	verifier  *billing.Verifier
	storage   storage.Storage
	cache     DashboardCache
	catalog   *plans.Catalog
	health    HealthChecker
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	server := &Server{
		cfg:       cfg,
		store:     deps.Store,
		directory: deps.Directory,
		generator: deps.Generator,
		webhooks:  deps.Webhooks,
		verifier:  deps.Verifier,
		storage:   deps.Storage,
		cache:     deps.Cache,
		catalog:   deps.Catalog,
		health:    deps.Health,
		validate:  deps.Validate,
		logger:    deps.Logger,
		now:       deps.Now,
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	server.logger = server.logger.With("component", "api")
	if server.validate == nil {
		server.validate = NewValidator()
	}
	if server.verifier == nil {
		server.verifier = billing.NewVerifier("")
	}
	if server.catalog == nil {
		server.catalog = plans.Default()
	}
	if server.now == nil {
		server.now = time.Now
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: server.errorHandler,
		BodyLimit:    8 * 1024 * 1024,
	})

	// Middleware
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${ip} ${method} ${path} ${status}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "authorization, x-client-info, apikey, content-type, x-webhook-signature, x-setup-token",
	}))
	if cfg.Server.MaxRequests > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.Server.MaxRequests,
			Expiration: cfg.Server.RequestTimeout,
		}))
	}

	server.app = app

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Routes
	server.setupRoutes()

	return server
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)

	api := s.app.Group("/api")

	// Public routes
	api.Get("/plans", cache.New(cache.Config{
		Expiration:   s.cfg.Server.CacheExpiration,
		CacheControl: true,
	}), s.handleListPlans)
	api.Post("/login", s.handleLogin)
	api.Post("/signup", s.handleSignup)
	api.Post("/admin/setup", s.handleAdminSetup)
	api.Post("/webhooks/cakto", s.handleCaktoWebhook)

	// Protected routes
	protected := api.Group("", s.authMiddleware())
	protected.Get("/profile", s.handleGetProfile)
	protected.Put("/profile", s.handleUpsertProfile)
	protected.Post("/profile/images/:kind", s.handleUploadImage)
	protected.Post("/prescriptions/generate", s.handleGeneratePrescription)
	protected.Get("/prescriptions", s.handleListPrescriptions)
	protected.Delete("/prescriptions/:id", s.handleDeletePrescription)
	protected.Get("/dashboard", s.handleDashboard)
	protected.Get("/billing", s.handleBilling)

	// Uploaded images are served by the API itself when stored on disk
	if local, ok := s.storage.(*storage.LocalStorage); ok {
		s.app.Static("/files", local.Dir())
	}
}

// App exposes the underlying Fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Start() error {
	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown stops accepting connections and waits for in-flight requests up
// to the configured timeout.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(s.cfg.Server.ShutdownTimeout)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.logger.Error("Health check failed", "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleListPlans(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"version": s.catalog.Version(),
		"plans":   s.catalog.List(),
	})
}
