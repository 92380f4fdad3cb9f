// Package server contains the HTTP handlers for the ghostwriter API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "ghostwriter/docs" // swagger docs
	"ghostwriter/internal/billing"
	"ghostwriter/internal/cache"
	"ghostwriter/internal/config"
	"ghostwriter/internal/database"
	"ghostwriter/internal/email"
	"ghostwriter/internal/featureflags"
	"ghostwriter/internal/linkedin"
	"ghostwriter/internal/middleware"
	"ghostwriter/internal/models"
	"ghostwriter/internal/notifications"
	"ghostwriter/internal/repository"
	"ghostwriter/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	notifier       *notifications.Notifier
	featureFlags   *featureflags.Manager

	authService      *service.AuthService
	agencyService    *service.AgencyService
	clientService    *service.ClientService
	postService      *service.PostService
	analyticsService *service.AnalyticsService
	linkedInService  *service.LinkedInService
	billingService   *service.BillingService
	reportService    *service.ReportService
	activityService  *service.ActivityService
}

// integrations are the third-party clients the services talk to.
type integrations struct {
	linkedIn linkedin.API
	gateway  billing.Gateway
	sender   email.Sender
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)

	return NewServerWithDeps(cfg, db, cache.GetClient())
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	ext, err := defaultIntegrations(cfg)
	if err != nil {
		return nil, err
	}
	return newServer(cfg, db, redisClient, ext)
}

func defaultIntegrations(cfg *config.Config) (integrations, error) {
	ext := integrations{
		linkedIn: linkedin.NewHTTPClient(linkedin.Config{
			ClientID:     cfg.LinkedInClientID,
			ClientSecret: cfg.LinkedInClientSecret,
			RedirectURL:  cfg.LinkedInRedirectURL,
			AuthURL:      cfg.LinkedInAuthURL,
			TokenURL:     cfg.LinkedInTokenURL,
			APIBaseURL:   cfg.LinkedInAPIBaseURL,
			RPS:          cfg.LinkedInRPS,
		}),
		sender: email.LogSender{Logger: middleware.Logger},
	}

	// Leave the interface nil rather than holding a typed nil pointer.
	if gw := billing.NewStripeGateway(billing.StripeConfig{SecretKey: cfg.StripeSecretKey}); gw != nil {
		ext.gateway = gw
	}

	if cfg.ResendAPIKey != "" {
		sender, err := email.NewResendSender(email.ResendConfig{APIKey: cfg.ResendAPIKey, From: cfg.EmailFrom})
		if err != nil {
			return ext, fmt.Errorf("email sender: %w", err)
		}
		ext.sender = sender
	} else {
		middleware.Logger.Warn("RESEND_API_KEY not set, emails are logged instead of sent")
	}
	return ext, nil
}

func newServer(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, ext integrations) (*Server, error) {
	catalog, err := billing.LoadCatalog(map[string]string{
		models.PlanPro:    cfg.StripePricePro,
		models.PlanAgency: cfg.StripePriceAgency,
	})
	if err != nil {
		return nil, err
	}
	mailer, err := email.NewMailer(ext.sender, cfg.AppBaseURL)
	if err != nil {
		return nil, err
	}

	userRepo := repository.NewUserRepository(db)
	agencyRepo := repository.NewAgencyRepository(db)
	clientRepo := repository.NewClientRepository(db)
	postRepo := repository.NewPostRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	tokenRepo := repository.NewTokenRepository(db)
	webhookRepo := repository.NewWebhookEventRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("ghostwriter-api"),
		notifier:       notifications.NewNotifier(redisClient),
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
	}

	server.activityService = service.NewActivityService(activityRepo, server.notifier)
	server.authService = service.NewAuthService(userRepo, mailer, cfg.JWTSecret)
	server.agencyService = service.NewAgencyService(agencyRepo, userRepo, mailer, server.activityService)
	server.clientService = service.NewClientService(clientRepo, userRepo, catalog, server.activityService)
	server.linkedInService = service.NewLinkedInService(service.LinkedInDeps{
		API:           ext.linkedIn,
		Tokens:        tokenRepo,
		Clients:       clientRepo,
		Posts:         postRepo,
		Users:         userRepo,
		Analytics:     analyticsRepo,
		Webhooks:      webhookRepo,
		Activity:      server.activityService,
		Flags:         server.featureFlags,
		StateSecret:   cfg.StateSecret(),
		WebhookSecret: cfg.LinkedInSigningSecret(),
		AppBaseURL:    cfg.AppBaseURL,
	})
	server.postService = service.NewPostService(postRepo, clientRepo, userRepo,
		server.linkedInService, server.featureFlags, server.activityService)
	server.analyticsService = service.NewAnalyticsService(analyticsRepo, postRepo, clientRepo, userRepo)
	server.billingService = service.NewBillingService(service.BillingDeps{
		Gateway:       ext.gateway,
		Catalog:       catalog,
		Users:         userRepo,
		Webhooks:      webhookRepo,
		Mailer:        mailer,
		Activity:      server.activityService,
		WebhookSecret: cfg.StripeWebhookSecret,
		AppBaseURL:    cfg.AppBaseURL,
	})
	server.reportService = service.NewReportService(userRepo, analyticsRepo, mailer, server.featureFlags)

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	if s.config.TracingEnabled {
		app.Use(middleware.Tracing("/health", "/metrics"))
	}

	// Propagate request, trace and user IDs into the request context.
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so error responses still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	// 100 requests per minute per IP. Provider webhooks and probes are exempt.
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || limiterExempt(c.Path())
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

func limiterExempt(path string) bool {
	return strings.HasPrefix(path, "/health") ||
		strings.HasSuffix(path, "/webhook")
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Ghostwriter API Metrics",
	}))

	api.Get("/swagger/*", swagger.HandlerDefault)

	requireAuth := middleware.RequireAuth(s.config.JWTSecret)

	// Auth
	auth := api.Group("/auth")
	auth.Post("/register", middleware.RateLimit(
		s.redis, 5, 10*time.Minute, "register"), s.Register)
	auth.Post("/login", middleware.RateLimit(
		s.redis, 10, 5*time.Minute, "login"), s.Login)
	auth.Post("/verify-email", s.VerifyEmail)
	auth.Post("/forgot-password", middleware.RateLimit(
		s.redis, 3, 15*time.Minute, "forgot_password"), s.ForgotPassword)
	auth.Post("/reset-password", s.ResetPassword)
	auth.Post("/resend-verification", requireAuth, s.ResendVerification)
	auth.Get("/me", requireAuth, s.Me)

	// Public integration endpoints
	api.Get("/billing/plans", s.GetPlans)
	api.Post("/billing/webhook", s.StripeWebhook)
	api.Get("/linkedin/callback", s.LinkedInCallback)
	api.Get("/linkedin/webhook", s.LinkedInWebhookChallenge)
	api.Post("/linkedin/webhook", s.LinkedInWebhook)

	// Scheduler-triggered batch jobs
	cron := api.Group("/cron", middleware.RequireCronSecret(s.config.CronSecret))
	cron.Post("/analytics/sync", s.SyncAnalytics)
	cron.Post("/analytics/rollup", s.RollupAnalytics)
	cron.Post("/posts/publish-due", s.PublishDuePosts)
	cron.Post("/reports/weekly", s.SendWeeklyReports)

	protected := api.Group("", requireAuth)

	// Agencies: specific routes before /me
	agencies := protected.Group("/agencies")
	agencies.Post("/", s.CreateAgency)
	agencies.Get("/invites", s.ListAgencyInvites)
	agencies.Post("/invites/accept", s.AcceptAgencyInvite)
	agencies.Post("/invites", middleware.RateLimit(
		s.redis, 20, time.Hour, "agency_invite"), s.InviteAgencyMember)
	agencies.Delete("/members/:userId", s.RemoveAgencyMember)
	agencies.Get("/me", s.GetMyAgency)
	agencies.Put("/me", s.RenameAgency)

	clients := protected.Group("/clients")
	clients.Get("/", s.GetClients)
	clients.Post("/", s.CreateClient)
	clients.Get("/:id", s.GetClient)
	clients.Put("/:id", s.UpdateClient)
	clients.Delete("/:id", s.DeleteClient)

	// Posts: /:id/:action routes before generic /:id
	posts := protected.Group("/posts")
	posts.Get("/", s.GetPosts)
	posts.Post("/", s.CreatePost)
	posts.Post("/:id/schedule", s.SchedulePost)
	posts.Post("/:id/unschedule", s.UnschedulePost)
	posts.Post("/:id/publish", middleware.RateLimit(
		s.redis, 10, time.Minute, "publish_post"), s.PublishPost)
	posts.Get("/:id", s.GetPost)
	posts.Put("/:id", s.UpdatePost)
	posts.Delete("/:id", s.DeletePost)

	analytics := protected.Group("/analytics")
	analytics.Get("/overview", s.GetAnalyticsOverview)
	analytics.Get("/posts/:id", s.GetPostAnalytics)
	analytics.Get("/clients/:id", s.GetClientAnalytics)

	li := protected.Group("/linkedin")
	li.Get("/auth", s.LinkedInAuthURL)
	li.Get("/status/:clientId", s.LinkedInStatus)
	li.Delete("/:clientId", s.LinkedInDisconnect)

	bill := protected.Group("/billing")
	bill.Get("/subscription", s.GetSubscription)
	bill.Post("/checkout", s.CreateCheckout)
	bill.Post("/portal", s.CreatePortal)

	protected.Get("/activities", s.GetActivities)
	protected.Get("/feature-flags", s.GetFeatureFlags)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	// Redis is optional: locks and rate limits fall back to process-local state.
	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// App builds the Fiber application with middleware and routes attached.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Ghostwriter API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if fe, ok := err.(*fiber.Error); ok {
				return models.RespondWithError(c, fe.Code, fe)
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})

	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Start starts the server
func (s *Server) Start() error {
	s.app = s.App()

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
