package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/instabids/smartscope/internal/analysis"
	"github.com/instabids/smartscope/internal/api/handlers"
	rediscache "github.com/instabids/smartscope/internal/cache/redis"
	"github.com/instabids/smartscope/internal/costs"
	"github.com/instabids/smartscope/internal/imaging"
	"github.com/instabids/smartscope/internal/metrics"
	"github.com/instabids/smartscope/internal/middleware/ratelimit"
	"github.com/instabids/smartscope/internal/middleware/security"
	"github.com/instabids/smartscope/internal/projects"
	"github.com/instabids/smartscope/internal/storage/sqlite"
	"github.com/instabids/smartscope/internal/vision"
	"github.com/instabids/smartscope/pkg/config"
	appLogger "github.com/instabids/smartscope/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting SmartScope API server")

	metrics.Init()

	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0755); err != nil {
		appLogger.Fatal("Failed to create data directory", zap.Error(err))
	}

	db, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := db.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var cache *rediscache.Client
	if cfg.Redis.Enabled {
		cache, err = rediscache.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLSec)*time.Second,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, continuing without cache", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	preprocessor := imaging.NewProcessor(imaging.Config{
		FetchTimeout: time.Duration(cfg.Ingestion.FetchTimeoutSec) * time.Second,
		MaxDimension: cfg.Ingestion.MaxDimension,
		JPEGQuality:  cfg.Ingestion.JPEGQuality,
	})

	visionClient := vision.NewClient(
		cfg.Vision.APIKey,
		cfg.Vision.Model,
		cfg.Vision.Temperature,
		cfg.Vision.MaxOutputTokens,
	)

	costMonitor := costs.NewMonitor(db, cfg.Vision.Model, cfg.Budget.Daily, cfg.Budget.Monthly)
	gate := projects.NewGate(db)

	var snapshotCache analysis.SnapshotCache
	var budgetCache handlers.BudgetCache
	if cache != nil {
		snapshotCache = cache
		budgetCache = cache
	}

	service := analysis.NewService(db, preprocessor, visionClient, costMonitor, gate, snapshotCache)

	analysisHandler := handlers.NewAnalysisHandler(service)
	costsHandler := handlers.NewCostsHandler(costMonitor, budgetCache)

	limiter := ratelimit.NewLimiter(cfg.RateLimit.RequestsPerMinute)
	defer limiter.Close()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())
	app.Use(security.Headers())

	app.Get("/api/v1/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/api/v1/ready", func(c *fiber.Ctx) error {
		if _, err := db.AnalysisStats(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
		return c.JSON(fiber.Map{"status": "ready"})
	})
	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1/smartscope", limiter.Middleware())
	api.Post("/analyze", analysisHandler.ProcessAnalysis)
	api.Get("/analytics/accuracy", analysisHandler.GetAccuracyMetrics)
	api.Get("/costs/budget", costsHandler.BudgetStatus)
	api.Get("/costs/report", costsHandler.CostReport)
	api.Get("/project/:projectID", analysisHandler.ListAnalyses)
	api.Get("/:analysisID", analysisHandler.GetAnalysis)
	api.Post("/:analysisID/feedback", analysisHandler.SubmitFeedback)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		appLogger.Info("SmartScope API listening", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server stopped unexpectedly", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Graceful shutdown failed", zap.Error(err))
	}
}
