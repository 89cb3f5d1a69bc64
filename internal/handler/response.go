package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/secutils-dev/scheduler/internal/apperrors"
)

// Response is the standard API response envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func Success(c *fiber.Ctx, data interface{}) error {
	return c.JSON(Response{Success: true, Data: data})
}

func Created(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(Response{Success: true, Data: data})
}

func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

func BadRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(Response{Success: false, Error: &ErrorInfo{Code: "BAD_REQUEST", Message: message}})
}

func NotFound(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(Response{Success: false, Error: &ErrorInfo{Code: "NOT_FOUND", Message: message}})
}

func Conflict(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusConflict).JSON(Response{Success: false, Error: &ErrorInfo{Code: "CONFLICT", Message: message}})
}

func InternalError(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(Response{Success: false, Error: &ErrorInfo{Code: "INTERNAL_ERROR", Message: message}})
}

func ServiceUnavailable(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(Response{Success: false, Error: &ErrorInfo{Code: "UNAVAILABLE", Message: message}})
}

// RespondError maps an apperrors.Kind-tagged error to its HTTP status.
// Handlers funnel every store/registry error through here instead of
// hand-picking a status per call site.
func RespondError(c *fiber.Ctx, err error) error {
	message := apperrors.UserMessage(err)
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		switch appErr.Kind {
		case apperrors.KindClientValidation:
			return BadRequest(c, message)
		case apperrors.KindNotFound:
			return NotFound(c, message)
		case apperrors.KindConflict:
			return Conflict(c, message)
		}
	}
	return InternalError(c, message)
}
