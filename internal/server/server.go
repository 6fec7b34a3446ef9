package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aman-churiwal/api-sentinel/internal/abuse"
	"github.com/aman-churiwal/api-sentinel/internal/analytics"
	"github.com/aman-churiwal/api-sentinel/internal/breach"
	"github.com/aman-churiwal/api-sentinel/internal/config"
	"github.com/aman-churiwal/api-sentinel/internal/handler"
	"github.com/aman-churiwal/api-sentinel/internal/healthcheck"
	"github.com/aman-churiwal/api-sentinel/internal/ipblock"
	"github.com/aman-churiwal/api-sentinel/internal/middleware"
	"github.com/aman-churiwal/api-sentinel/internal/notify"
	"github.com/aman-churiwal/api-sentinel/internal/ratelimit"
	"github.com/aman-churiwal/api-sentinel/internal/repository"
	"github.com/aman-churiwal/api-sentinel/internal/service"
	"github.com/aman-churiwal/api-sentinel/internal/storage"
)

type Server struct {
	router     *gin.Engine
	config     *config.Config
	store      storage.CounterStore
	postgres   *storage.Postgres
	logger     *zap.Logger
	health     *healthcheck.Checker
	pipeline   *middleware.Pipeline
	auth       *service.AuthService
	handlers   handlers
	httpServer *http.Server
}

type handlers struct {
	auth        *handler.AuthHandler
	users       *handler.UserHandler
	profiles    *handler.ProfileHandler
	blocks      *handler.BlockHandler
	analytics   *handler.AnalyticsHandler
	preferences *handler.PreferenceHandler
	abuse       *handler.AbuseHandler
}

func New(cfg *config.Config, store storage.CounterStore, postgres *storage.Postgres, logger *zap.Logger) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	authRepo := repository.NewUserRepository(postgres)
	profileRepo := repository.NewProfileRepository(postgres)
	prefRepo := repository.NewPreferenceRepository(postgres)

	authService := service.NewAuthService(authRepo, cfg)
	profileService := service.NewProfileService(profileRepo, store, cfg, logger)

	registry := ipblock.NewRegistry(store, cfg, logger)
	tracker := abuse.NewTracker(store, registry, cfg, logger)
	resolver := ratelimit.NewResolver(cfg)
	enforcer := ratelimit.NewEnforcer(store, cfg, logger)
	classifier := breach.NewClassifier(store, cfg, logger)
	dispatcher := notify.NewDispatcher(store, prefRepo, cfg, logger)
	aggregator := analytics.NewAggregator(store, classifier, cfg, logger)

	pipeline := &middleware.Pipeline{
		Profiles:   profileService,
		Registry:   registry,
		Tracker:    tracker,
		Resolver:   resolver,
		Enforcer:   enforcer,
		Classifier: classifier,
		Dispatcher: dispatcher,
		Metrics:    aggregator,
		Logger:     logger,
	}

	health := healthcheck.NewChecker(nil, logger,
		healthcheck.Probe{Name: "counter_store", Ping: store.Ping},
		healthcheck.Probe{Name: "database", Ping: postgres.Ping},
	)

	s := &Server{
		router:   router,
		config:   cfg,
		store:    store,
		postgres: postgres,
		logger:   logger,
		health:   health,
		pipeline: pipeline,
		auth:     authService,
		handlers: handlers{
			auth:        handler.NewAuthHandler(authService),
			users:       handler.NewUserHandler(authService),
			profiles:    handler.NewProfileHandler(profileService),
			blocks:      handler.NewBlockHandler(registry),
			analytics:   handler.NewAnalyticsHandler(aggregator, classifier),
			preferences: handler.NewPreferenceHandler(prefRepo),
			abuse:       handler.NewAbuseHandler(tracker),
		},
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger(s.logger))
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	auth := s.router.Group("/auth")
	{
		auth.POST("/register", s.handlers.auth.Register)
		auth.POST("/login", s.handlers.auth.Login)
	}

	admin := s.router.Group("/admin")
	admin.Use(middleware.Identify(s.auth, s.pipeline.Tracker))
	admin.Use(middleware.RequireRole("admin"))
	{
		admin.GET("/users", s.handlers.users.List)
		admin.GET("/user/:id", s.handlers.users.Get)

		admin.GET("/profiles/:id", s.handlers.profiles.Get)
		admin.PUT("/profiles/:id", s.handlers.profiles.Update)

		admin.GET("/blocks", s.handlers.blocks.List)
		admin.POST("/blocks", s.handlers.blocks.Block)
		admin.GET("/blocks/audit", s.handlers.blocks.AuditLog)
		admin.GET("/block/:ip", s.handlers.blocks.Check)
		admin.DELETE("/block/:ip", s.handlers.blocks.Unblock)

		admin.GET("/whitelist", s.handlers.blocks.WhitelistEntries)
		admin.POST("/whitelist", s.handlers.blocks.Whitelist)
		admin.DELETE("/whitelist/:ip", s.handlers.blocks.Unwhitelist)

		admin.GET("/analytics", s.handlers.analytics.Summary)
		admin.GET("/breaches", s.handlers.analytics.BreachHistory)

		admin.GET("/preferences/:id", s.handlers.preferences.Get)
		admin.PUT("/preferences/:id", s.handlers.preferences.Put)

		admin.POST("/abuse", s.handlers.abuse.Record)
	}

	// Everything under /api is admitted through the rate limiting pipeline.
	api := s.router.Group("/api")
	api.Use(middleware.Identify(s.auth, s.pipeline.Tracker))
	api.Use(s.pipeline.Admit())
	{
		api.Any("/*path", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":     "ok",
				"path":       c.Param("path"),
				"request_id": c.GetString("request_id"),
			})
		})
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	overall := s.health.Overall()

	statusCode := http.StatusOK
	if overall == healthcheck.Unhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    overall.String(),
		"service":   "api-sentinel",
		"version":   "1.0.0",
		"timestamp": time.Now().Unix(),
		"checks":    s.health.Statuses(),
		"uptime":    time.Since(startTime).Seconds(),
	})
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	s.health.Start()

	s.logger.Info("starting API Sentinel",
		zap.String("addr", addr),
		zap.String("environment", s.config.Server.Environment))

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	s.health.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// BootstrapAdmin seeds the admin operator account from deployment
// credentials. Open registration never assigns the admin role.
func (s *Server) BootstrapAdmin(ctx context.Context, email, password string) error {
	return s.auth.BootstrapAdmin(ctx, email, password)
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

var startTime = time.Now()
