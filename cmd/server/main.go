package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/railconnect/route-finder/internal/config"
	"github.com/railconnect/route-finder/internal/database"
	"github.com/railconnect/route-finder/internal/handlers"
	"github.com/railconnect/route-finder/internal/middleware"
	"github.com/railconnect/route-finder/internal/services"
	"github.com/railconnect/route-finder/pkg/jwt"
	"github.com/sirupsen/logrus"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	logger.Info("Starting RailConnect route finder")
	logger.Infof("Version: %s, Build Time: %s", version, buildTime)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Set log level
	logLevel, err := logrus.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		logger.Warn("Invalid log level, using INFO")
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	// Connect to database
	db, err := database.NewConnection(cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Database connection established")

	// Initialize repositories
	timetableRepo := database.NewTimetableRepository(db.DB)
	stationRepo := database.NewStationRepository(db.DB)
	routeCacheRepo := database.NewRouteCacheRepository(db.DB)

	var routeCache services.RouteCacheStore
	if cfg.Cache.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := routeCacheRepo.EnsureTable(ctx); err != nil {
			logger.WithError(err).Warn("Route cache table unavailable, serving live searches only")
		} else {
			routeCache = routeCacheRepo
		}
		cancel()
	}

	// Initialize services
	engine := services.NewRouteEngine(timetableRepo, cfg.Search.MaxCandidates, logger)
	searchService := services.NewRouteSearchService(
		engine,
		stationRepo,
		routeCache,
		services.NewRouteMemo(cfg.Search.MemoSize, cfg.Search.MemoTTL),
		services.RouteSearchConfig{
			CacheEnabled:     routeCache != nil,
			CanonicalDate:    cfg.Cache.CanonicalDate,
			CacheTimeout:     cfg.Cache.Timeout,
			TimetableTimeout: cfg.Search.TimetableTimeout,
		},
		logger,
	)
	logger.Info("Route search service initialized")

	// Start precompute scheduler
	var cronService *services.CronService
	if cfg.Precompute.Enabled && routeCache != nil {
		precomputeService := services.NewPrecomputeService(
			engine,
			timetableRepo,
			routeCache,
			services.PrecomputeConfig{
				CanonicalDate: cfg.Cache.CanonicalDate,
				TopStations:   cfg.Precompute.TopStations,
				TopK:          cfg.Precompute.TopK,
			},
			logger,
		)
		cronService = services.NewCronService(precomputeService, cfg.Precompute.Schedule, logger)
		if err := cronService.Start(); err != nil {
			logger.Fatalf("Failed to start cron service: %v", err)
		}
	}

	// Initialize handlers
	var scheduler handlers.PrecomputeScheduler
	if cronService != nil {
		scheduler = cronService
	}
	routeHandler := handlers.NewRouteHandler(searchService, scheduler, logger)

	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, 0)
	if cfg.JWT.Secret == "" {
		logger.Warn("JWT_SECRET is not set, admin endpoints will reject every request")
	}

	// Initialize Gin router
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))

	// CORS configuration
	corsConfig := cors.Config{
		AllowOrigins:  cfg.CORS.AllowedOrigins,
		AllowMethods:  cfg.CORS.AllowedMethods,
		AllowHeaders:  cfg.CORS.AllowedHeaders,
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(db))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/routes", routeHandler.FindRoutes)
		v1.GET("/stations", routeHandler.ListStations)

		// Cache administration (admin token required)
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtService, logger, jwt.RoleAdmin))
		{
			admin.POST("/cache/precompute", routeHandler.TriggerPrecompute)
			admin.GET("/cache/status", routeHandler.PrecomputeStatus)
		}
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Search.TimetableTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if cronService != nil {
		cronService.Stop()
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited successfully")
}

// healthCheckHandler returns a health check endpoint
func healthCheckHandler(db database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		// Check database connection
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
				"error":    err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"database":  "healthy",
			"version":   version,
			"timestamp": time.Now().Unix(),
		})
	}
}
