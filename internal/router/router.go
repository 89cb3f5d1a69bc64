// Package router wires the thin HTTP API surface over trackers and their
// revision history.
package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"

	"github.com/secutils-dev/scheduler/internal/handler"
)

// Handlers bundles the HTTP handlers SetupRouter mounts.
type Handlers struct {
	Tracker *handler.TrackerHandler
	History *handler.HistoryHandler
	Health  *handler.HealthHandler
}

// SetupRouter configures the Fiber app's middleware and routes.
func SetupRouter(app *fiber.App, h *Handlers) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} - ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,X-User-ID,X-Request-ID",
	}))

	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Get("/health", h.Health.Health)
	app.Get("/ready", h.Health.Ready)
	app.Get("/live", h.Health.Live)

	v1 := app.Group("/api/v1")

	trackers := v1.Group("/trackers")
	trackers.Get("/", h.Tracker.List)
	trackers.Post("/", h.Tracker.Create)
	trackers.Get("/:id", h.Tracker.Get)
	trackers.Put("/:id", h.Tracker.Update)
	trackers.Delete("/:id", h.Tracker.Delete)
	trackers.Get("/:tracker_id/history", h.History.List)
	trackers.Get("/:tracker_id/history/latest", h.History.Latest)
	trackers.Get("/:tracker_id/history/diff", h.History.Diff)
}
