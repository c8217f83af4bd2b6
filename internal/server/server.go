// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"giftdesk/internal/bootstrap"
	"giftdesk/internal/cache"
	"giftdesk/internal/config"
	"giftdesk/internal/featureflags"
	"giftdesk/internal/middleware"
	"giftdesk/internal/models"
	"giftdesk/internal/notifications"
	"giftdesk/internal/repository"
	"giftdesk/internal/service"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
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
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	hub      *notifications.Hub
	notifier *notifications.Notifier
	channel  *notifications.Channel
	flags    *featureflags.Manager

	approvals *service.ApprovalService
	admins    *service.AdminService
	blacklist *service.BlacklistService
}

// NewServer connects the runtime dependencies and builds a server.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	db, rdb, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, db, rdb)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil, in which case events are delivered to local sockets
// only and nothing is cached.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("server requires a config and a database")
	}

	presence := notifications.NewPresence(redisClient, notifications.PresenceConfig{})
	hub := notifications.NewHub(presence)
	notifier := notifications.NewNotifier(redisClient)
	channel := notifications.NewChannel(hub, notifier)

	statuses := cache.NewStatusCache(redisClient, cfg.StatusCacheTTL())

	s := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("giftdesk-api"),
		hub:            hub,
		notifier:       notifier,
		channel:        channel,
		flags:          featureflags.NewManager(cfg.FeatureFlags),
		approvals: service.NewApprovalService(
			repository.NewRequestRepository(db), channel, statuses, cfg.VerificationCodeLength),
		admins: service.NewAdminService(repository.NewAdminRepository(db)),
		blacklist: service.NewBlacklistService(
			repository.NewBlacklistRepository(db), cache.NewIPBlockCache(redisClient)),
	}
	return s, nil
}

// NewApp builds the Fiber application with middleware and routes.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "giftdesk",
		BodyLimit:    64 * 1024,
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger())

	// CORS runs before anything that can short-circuit so error responses
	// still carry the headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-Token, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
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

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")

	// Member routes
	blocked := middleware.IPBlacklist(s.blacklist)
	requests := api.Group("/requests", blocked)
	requests.Post("/", middleware.RateLimit(s.redis, 10, time.Minute, "create_request"), s.CreateRequest)
	requests.Get("/:id/status", s.GetRequestStatus)
	requests.Post("/:id/cancel", s.CancelRequest)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/login", middleware.RateLimit(s.redis, 10, 5*time.Minute, "login"), s.Login)
	auth.Post("/logout", s.AuthRequired(), s.Logout)

	// WebSocket routes
	ws := api.Group("/ws")
	ws.Post("/ticket", s.AuthRequired(), s.IssueWSTicket)
	ws.Get("/admin", requireUpgrade, s.AuthRequired(), s.AdminWebSocketHandler())
	ws.Get("/requests/:id", blocked, requireUpgrade, s.MemberSocketGate, s.MemberWebSocketHandler())

	// Admin routes
	admin := api.Group("/admin", s.AuthRequired())
	admin.Get("/me", s.GetMe)
	admin.Get("/online", s.GetOnlineAdmins)

	adminRequests := admin.Group("/requests")
	adminRequests.Get("/pending", s.ListPendingRequests)
	adminRequests.Get("/", s.ListRequestHistory)
	adminRequests.Post("/:id/resolve", s.ResolveRequest)

	blacklist := admin.Group("/blacklist")
	blacklist.Get("/", s.ListBlacklist)
	blacklist.Post("/", s.AddBlacklistEntry)
	blacklist.Delete("/:ip", s.RemoveBlacklistEntry)

	admins := admin.Group("/admins")
	admins.Get("/", s.ListAdmins)
	admins.Post("/", s.CreateAdmin)
	admins.Put("/:id/permissions", s.UpdateAdminPermissions)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports database and Redis health. Redis is optional, so
// its absence degrades the report without failing it.
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

	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	switch {
	case dbStatus != "healthy" || redisStatus == "unhealthy":
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	case redisStatus == "unavailable":
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"features": s.flags.Raw(),
		"time":     time.Now(),
	})
}

// StartBackground subscribes the hub to cross-instance room traffic and
// starts the expiry janitor. The subscription is confirmed before it
// returns, so sockets accepted afterwards miss no events.
func (s *Server) StartBackground(ctx context.Context) error {
	if s.notifier.Enabled() {
		if err := s.hub.StartWiring(ctx, s.notifier); err != nil {
			return fmt.Errorf("failed to start %s wiring: %w", s.hub.Name(), err)
		}
	}
	if ttl := s.config.RequestTTL(); ttl > 0 && s.flags.Enabled(featureflags.ExpiryJanitor, 0) {
		go s.runExpiryJanitor(ctx, s.config.ExpirySweepInterval(), ttl)
	}
	return nil
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.NewApp()
	if err := s.StartBackground(ctx); err != nil {
		cancel()
		return err
	}

	middleware.Logger.Info("Server starting", slog.String("port", s.config.Port))
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	// Sockets get the shutdown notice before the listener closes under them.
	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down hub", slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
	}

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

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
