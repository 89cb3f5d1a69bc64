package handler

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Runner reports whether a background loop is currently active in this
// process; cmd/main.go passes the Cron Scheduler, so the Fetch Worker's
// state is not reflected.
type Runner interface {
	Running() bool
}

// HealthHandler exposes the health/ready/live trio.
type HealthHandler struct {
	db     *gorm.DB
	runner Runner
}

func NewHealthHandler(db *gorm.DB, runner Runner) *HealthHandler {
	return &HealthHandler{db: db, runner: runner}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.Ping() != nil {
		return ServiceUnavailable(c, "database connection error")
	}
	return Success(c, fiber.Map{"status": "healthy", "scheduler": h.runner.Running()})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if !h.runner.Running() {
		return ServiceUnavailable(c, "scheduler is not running")
	}
	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.Ping() != nil {
		return ServiceUnavailable(c, "database connection error")
	}
	return Success(c, fiber.Map{"status": "ready"})
}

func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return Success(c, fiber.Map{"status": "alive"})
}
