package bootstrap

import (
	"context"
	"io"
	"os"
	"strings"

	"crm_server/adapter/in/http"
	"crm_server/config"
	"crm_server/infra/middleware"
	"crm_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"
)

// NewZerolog returns the component logger handed to long-lived workers.
func NewZerolog(cfg *config.Config, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: w}).
			Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "crm-api").Logger()
}

func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	zlog := NewZerolog(cfg, os.Stdout)

	deps, cleanup, err := NewDependencies(context.Background(), cfg, zlog)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		StrictRouting:         false,
		CaseSensitive:         false,

		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:          1 * 1024 * 1024,
		ServerHeader:       "",
		DisableDefaultDate: true,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())

	// The event stream must not be buffered by the compressor.
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c *fiber.Ctx) bool {
			return strings.HasSuffix(c.Path(), "/events")
		},
	}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,X-Request-ID",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	healthHandler := http.NewHealthHandlerWithDeps(deps.DB, deps.Redis, deps.MongoDB, deps.Registry)
	healthHandler.Register(app)

	api := app.Group("/api/v1")

	http.NewSuggestionEventsHandler(deps.Hub, zlog).Register(api)

	resolutionHandler := http.NewResolutionHandler(deps.ResolutionService, deps.ContactRepo).
		WithLatency(deps.Latency).
		WithComputeLimiter(deps.ComputeLimiter)
	if deps.DecisionLog != nil {
		resolutionHandler.WithDecisionLog(deps.DecisionLog)
	}
	resolutionHandler.Register(api)

	logger.Info("API initialized (redis=%t, mongodb=%t, auto_migrate=%t)",
		deps.Redis != nil, deps.MongoDB != nil, cfg.AutoMigrate)

	return app, cleanup, nil
}
