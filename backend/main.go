package main

import (
	"context"
	"errors"
	"time"

	"learnprogress/backend/cache"
	"learnprogress/backend/config"
	"learnprogress/backend/middleware"
	"learnprogress/backend/routes"
	"learnprogress/backend/services"
	"learnprogress/backend/store"
	"learnprogress/backend/utils"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	// Initialize logger
	logger := utils.InitLogger(utils.LoggerConfig{
		Format:       cfg.LogFormat,
		Level:        cfg.LogLevel,
		EnableColors: cfg.LogFormat != "json",
	})
	defer func() { _ = logger.Sync() }()

	// Initialize database
	db, err := utils.InitDB(cfg)
	if err != nil {
		logger.Fatal("error initializing database", zap.Error(err))
	}
	st := store.New(db, logger)

	var statsCache services.StatsCache
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisStatsCache(context.Background(), cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			logger.Warn("stats cache disabled", zap.Error(err))
		} else {
			defer rc.Close()
			statsCache = rc
		}
	}

	svc := services.New(st, statsCache, services.Options{
		ReviewDefaultStatus:    cfg.ReviewDefaultStatus,
		DefaultPassingRatio:    cfg.DefaultPassingRatio,
		AutoCompleteEnrollment: cfg.AutoCompleteEnrollment,
		CertificateBaseURL:     cfg.CertificateBaseURL,
		StatsCacheTTL:          time.Duration(cfg.StatsCacheTTLSeconds) * time.Second,
	}, logger)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		JSONEncoder:  sonic.Marshal,
		JSONDecoder:  sonic.Unmarshal,
		ErrorHandler: errorHandler(logger),
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(middleware.LoggingMiddleware(logger))

	// Setup routes
	routes.SetupRoutes(app, svc, st, cfg, logger)

	// Start server
	if err := app.Listen(":" + cfg.ServerPort); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
			return utils.InternalServerError(c, "Internal server error")
		}
		return utils.Error(c, code, err)
	}
}
