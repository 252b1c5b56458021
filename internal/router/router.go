package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/soltixdb/sensorlog/internal/config"
	"github.com/soltixdb/sensorlog/internal/handlers"
	"github.com/soltixdb/sensorlog/internal/logging"
	"github.com/soltixdb/sensorlog/internal/middleware"
)

// Setup configures all routes and middlewares
func Setup(app *fiber.App, logger *logging.Logger, deps handlers.Deps, cfg config.Config) *handlers.Handler {
	h := handlers.New(logger, deps)

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-API-Key,X-Request-ID",
	}))
	app.Use(logging.FiberMiddleware(logger))

	// Health check (no auth required)
	app.Get("/health", h.Health)

	authMiddleware := middleware.APIKeyAuth(logger, cfg.Auth.APIKeys, cfg.Auth.Enabled)

	v1 := app.Group("/v1", authMiddleware)
	v1.Get("/readings", h.Readings)
	v1.Post("/readings", h.WriteReading)
	v1.Post("/readings/batch", h.WriteBatch)
	v1.Get("/sensors/latest", h.LatestReadings)
	v1.Get("/sensors/stats", h.SensorStats)
	v1.Get("/sensors/:sensor_id/latest", h.LatestReading)

	admin := app.Group("/admin", authMiddleware)
	admin.Get("/status", h.Status)
	admin.Get("/archives", h.Archives)
	admin.Post("/flush", h.TriggerFlush)
	admin.Post("/rotate", h.TriggerRotate)
	admin.Post("/sweep", h.TriggerSweep)

	app.Use(h.NotFound)

	return h
}

// New creates a new Fiber app with configuration
func New(logger *logging.Logger, deps handlers.Deps, cfg config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "sensorlog",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(logger),
		BodyLimit:             16 * 1024 * 1024,
	})

	Setup(app, logger, deps, cfg)

	return app
}
