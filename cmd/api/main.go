package main

import (
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atrium-works/pulse/internal/api/handlers"
	"github.com/atrium-works/pulse/internal/api/middleware"
	"github.com/atrium-works/pulse/internal/api/routes"
	"github.com/atrium-works/pulse/internal/domain/analytics"
	"github.com/atrium-works/pulse/internal/domain/presence"
	"github.com/atrium-works/pulse/internal/domain/session"
	"github.com/atrium-works/pulse/internal/engine"
	"github.com/atrium-works/pulse/internal/infrastructure/cache"
	"github.com/atrium-works/pulse/internal/infrastructure/persistence/postgres/connection"
	"github.com/atrium-works/pulse/internal/infrastructure/persistence/postgres/migrations"
	"github.com/atrium-works/pulse/pkg/config"
	"github.com/atrium-works/pulse/pkg/logger"
	"github.com/atrium-works/pulse/pkg/security/auth"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// RequestLoggerMiddleware logs all incoming HTTP requests
func RequestLoggerMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Info("Request completed",
			zap.String("path", path),
			zap.String("method", method),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("") // Empty string will make it search in default locations
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Configuration loaded successfully")
	log.Info("Server mode: " + cfg.Server.Mode)

	// Set up Gin
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	gin.DefaultWriter = os.Stdout

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(RequestLoggerMiddleware(log))
	router.Use(middleware.MetricsMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORS.AllowedOrigins,
		AllowMethods: cfg.CORS.AllowedMethods,
		AllowHeaders: append(cfg.CORS.AllowedHeaders,
			"Accept-Encoding",
			"Content-Type",
			"Authorization",
		),
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
		},
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}))

	// Add Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Connect to database
	db, err := connection.NewDatabase(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if err := migrations.AutoMigrate(db, log.Logger); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize Redis
	redisConfig := cache.NewConfigFromEnv(cfg)
	redisClient, err := cache.NewRedisClient(redisConfig)
	if err != nil {
		// The change feed and response caches degrade to polling and
		// recomputation without Redis; the engine itself keeps working.
		log.Warn("Failed to connect to Redis, running without cache", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	// Initialize logrus logger for the analytics service
	analyticsLogger := logrus.New()
	analyticsLogger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Server.Mode == "production" {
		analyticsLogger.SetLevel(logrus.InfoLevel)
	} else {
		analyticsLogger.SetLevel(logrus.DebugLevel)
	}

	// Initialize repositories
	sessionRepo := session.NewRepository(db)
	presenceRepo := presence.NewRepository(db)

	// Initialize services
	sessionService := session.NewService(sessionRepo, redisClient, log.Logger)
	publisher := presence.NewPublisher(presenceRepo, redisClient, log.Logger)
	resolver := presence.NewResolver(
		presenceRepo,
		redisClient,
		cfg.Presence.StalenessThreshold,
		cfg.Presence.RefreshInterval,
		log.Logger,
	)
	analyticsService := analytics.NewService(
		sessionService,
		resolver,
		cfg.Analytics.RetentionWindow,
		cfg.Analytics.LeaderboardSize,
		analyticsLogger,
	)

	// Run the presence resolver for the life of the process.
	resolverCtx, stopResolver := context.WithCancel(context.Background())
	defer stopResolver()
	go resolver.Run(resolverCtx)

	// Initialize the per-user runtime engine
	flusher := engine.NewFlusher(engine.DefaultFlushTimeout, log.Logger)
	registry := engine.NewRegistry(engine.Config{
		HeartbeatInterval: cfg.Presence.HeartbeatInterval,
		WarnAfter:         cfg.Inactivity.WarnAfter,
		ExpireAfter:       cfg.Inactivity.ExpireAfter,
	}, sessionService, publisher, flusher, log.Logger)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.Auth.JWTSecret)
	if redisClient != nil {
		rateLimiter := auth.NewRedisRateLimiter(redisClient.GetClient(), 1*time.Minute, 1000)
		router.Use(middleware.RateLimitMiddleware(rateLimiter))
	}

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(registry, sessionService, log.Logger)
	activityHandler := handlers.NewActivityHandler(registry, log.Logger)
	presenceHandler := handlers.NewPresenceHandler(registry, resolver, log.Logger)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService, redisClient, cfg.Analytics.CacheTTL, log.Logger)

	// Register routes
	api := router.Group("/api")
	routes.NewSessionRoutes(sessionHandler, authMiddleware).Register(api)
	routes.NewActivityRoutes(activityHandler, authMiddleware).Register(api)
	routes.NewPresenceRoutes(presenceHandler, authMiddleware).Register(api)
	routes.NewAnalyticsRoutes(analyticsHandler, authMiddleware).Register(api)
	routes.SetupHealthRoutes(router, db.DB, redisClient, registry)

	for _, route := range router.Routes() {
		log.Info("Route registered",
			zap.String("method", route.Method),
			zap.String("path", route.Path),
		)
	}

	// Start server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info(fmt.Sprintf("Server starting on port %d", cfg.Server.Port))
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Shutdown with timeout. Runtimes close their sessions before the
	// HTTP server stops accepting, so no open session outlives the process.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info("Shutting down server...")
	registry.Shutdown(ctx)
	stopResolver()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited properly")
}
