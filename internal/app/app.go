package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/mooviq/mooviq/internal/cache"
	"github.com/mooviq/mooviq/internal/config"
	"github.com/mooviq/mooviq/internal/database"
	"github.com/mooviq/mooviq/internal/handlers"
	"github.com/mooviq/mooviq/internal/metrics"
	"github.com/mooviq/mooviq/internal/middleware"
	"github.com/mooviq/mooviq/internal/scheduler"
	"github.com/mooviq/mooviq/internal/services"
	"github.com/mooviq/mooviq/internal/ws"
)

type App struct {
	config    *config.Config
	logger    *logrus.Logger
	db        *database.Database
	cache     *cache.Cache
	services  *services.Services
	handlers  *handlers.Handlers
	hub       *ws.Hub
	scheduler *scheduler.Scheduler
	router    *gin.Engine
}

func New(cfg *config.Config) (*App, error) {
	app := &App{
		config: cfg,
		logger: setupLogger(cfg),
	}

	db, err := database.New(cfg, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db
	app.cache = cache.New(db.Redis, app.logger, cfg.Cache.Compress)

	svcs, err := services.New(cfg, app.logger, db, app.cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	app.services = svcs

	if err := app.loadIndex(); err != nil {
		return nil, fmt.Errorf("failed to load vector index: %w", err)
	}

	app.hub = ws.NewHub(app.logger)

	if cfg.Schedule.Enabled {
		sched, err := scheduler.New(cfg, svcs.Ingest, svcs.Rooms, app.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
		}
		app.scheduler = sched
		sched.Start()
	}

	app.handlers, err = handlers.New(app.logger, svcs, db, app.hub)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	app.setupRouter()

	return app, nil
}

// loadIndex restores the persisted vector index, falling back to a rebuild
// from the stored catalog when no snapshot exists yet.
func (a *App) loadIndex() error {
	idx := a.services.Index
	if err := idx.Load(); err != nil {
		return err
	}
	if idx.Len() > 0 {
		metrics.IndexSize.Set(float64(idx.Len()))
		return nil
	}

	items, err := a.services.Stores.Content.All(context.Background())
	if err != nil {
		return err
	}
	if len(items) > 0 {
		added := idx.AddBatch(items)
		a.logger.WithField("items", added).Info("Vector index rebuilt from stored catalog")
	}
	metrics.IndexSize.Set(float64(idx.Len()))
	return nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down application...")

	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	if err := a.services.Index.Save(); err != nil {
		a.logger.WithError(err).Error("Failed to persist vector index")
	}

	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Error("Error closing database connections")
		return err
	}
	return nil
}

func setupLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Logging.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}

func (a *App) setupRouter() {
	if a.config.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.Logger(a.logger))
	router.Use(middleware.Recovery(a.logger))
	router.Use(middleware.CORS(a.config))
	router.Use(middleware.Compression())
	router.Use(middleware.Metrics())

	// Health check endpoint (no auth required)
	router.GET("/health", a.handlers.Health.Check)

	// Prometheus metrics endpoint (no auth required)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Anonymous surface: public recommendations and swipe rooms
	router.POST("/api/v1/public/recommendations/emotion", a.handlers.Recommendation.PublicEmotion)
	rooms := router.Group("/rooms")
	{
		rooms.POST("", a.handlers.Room.Create)
		rooms.GET("/:code", a.handlers.Room.Get)
		rooms.GET("/:code/matches", a.handlers.Room.Matches)
		rooms.GET("/:code/ws", a.handlers.Room.Connect)
	}

	// API routes
	api := router.Group("/api/v1")
	{
		api.Use(middleware.Auth(a.config.Auth.JWTSecret, a.logger))

		recommendations := api.Group("/recommendations")
		{
			recommendations.POST("/current-emotion", a.handlers.Recommendation.CurrentEmotion)
			recommendations.POST("/hybrid", a.handlers.Recommendation.Hybrid)
			recommendations.POST("/history", a.handlers.Recommendation.History)
			recommendations.POST("/profile-based", a.handlers.Recommendation.ProfileBased)
			recommendations.GET("/history-log", a.handlers.User.HistoryLog)
			recommendations.POST("/watchlist", a.handlers.User.AddWatchlist)

			admin := recommendations.Group("/admin/embedding")
			{
				admin.GET("/stats", a.handlers.Admin.Stats)
				admin.GET("/content", a.handlers.Admin.Content)
				admin.POST("/populate", a.handlers.Admin.Populate)
				admin.POST("/bulk-popular/continue", a.handlers.Admin.Populate)
				admin.POST("/prewarm", a.handlers.Admin.Prewarm)
			}
		}

		api.POST("/ratings", a.handlers.User.SubmitRating)
		api.GET("/ratings", a.handlers.User.GetRatings)
		api.GET("/profile", a.handlers.User.GetProfile)

		watchlist := api.Group("/watchlist")
		{
			watchlist.POST("", a.handlers.User.AddWatchlist)
			watchlist.GET("", a.handlers.User.GetWatchlist)
			watchlist.PUT("/status", a.handlers.User.UpdateWatchlistStatus)
			watchlist.DELETE("", a.handlers.User.RemoveWatchlist)
		}
	}

	a.router = router
}
