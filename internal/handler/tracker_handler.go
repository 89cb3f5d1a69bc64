package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/secutils-dev/scheduler/internal/model"
)

// Validator is the slice of tracker.Validator the handler needs.
type Validator interface {
	Validate(ctx context.Context, t model.Tracker) error
}

// TrackerRegistry is the slice of tracker.Registry the handler needs,
// defined consumer-side like every other package's Store interface.
type TrackerRegistry interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Tracker, error)
	List(ctx context.Context, userID int64) ([]model.Tracker, error)
	Create(ctx context.Context, t model.Tracker) error
	Update(ctx context.Context, t model.Tracker) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// TrackerHandler exposes tracker CRUD over HTTP, a thin ambient API
// surface layered on top of the Tracker Registry and job model.
type TrackerHandler struct {
	registry  TrackerRegistry
	validator Validator
}

func NewTrackerHandler(registry TrackerRegistry, validator Validator) *TrackerHandler {
	return &TrackerHandler{registry: registry, validator: validator}
}

// trackerRequest is the wire shape for create/update, kept separate from
// model.Tracker so JSON tags and the TrackerKind string form stay out of
// the domain type.
type trackerRequest struct {
	Name     string                 `json:"name"`
	URL      string                 `json:"url"`
	Kind     string                 `json:"kind"`
	Settings trackerSettingsRequest `json:"settings"`
}

type trackerSettingsRequest struct {
	Revisions           uint              `json:"revisions"`
	Schedule            string            `json:"schedule,omitempty"`
	DelayMillis         int64             `json:"delay_millis,omitempty"`
	ResourceFilterMap   string            `json:"resource_filter_map,omitempty"`
	ExtractContent      string            `json:"extract_content,omitempty"`
	Headers             map[string]string `json:"headers,omitempty"`
	EnableNotifications bool              `json:"enable_notifications"`
}

func parseKind(s string) (model.TrackerKind, bool) {
	switch s {
	case "page_resources":
		return model.KindPageResources, true
	case "page_content":
		return model.KindPageContent, true
	default:
		return 0, false
	}
}

func (req trackerRequest) toDomain(userID int64) (model.Tracker, error) {
	kind, ok := parseKind(req.Kind)
	if !ok {
		return model.Tracker{}, fiber.NewError(fiber.StatusBadRequest, "unknown tracker kind")
	}

	settings := model.TrackerSettings{
		Revisions:           req.Settings.Revisions,
		Delay:               time.Duration(req.Settings.DelayMillis) * time.Millisecond,
		Headers:             req.Settings.Headers,
		EnableNotifications: req.Settings.EnableNotifications,
		Scripts: model.TrackerScripts{
			ResourceFilterMap: req.Settings.ResourceFilterMap,
			ExtractContent:    req.Settings.ExtractContent,
		},
	}
	if req.Settings.Schedule != "" {
		settings.Job = &model.TrackerJobConfig{Schedule: req.Settings.Schedule}
	}

	return model.Tracker{
		UserID:   userID,
		Name:     req.Name,
		URL:      req.URL,
		Kind:     kind,
		Settings: settings,
	}, nil
}

// Create registers a new tracker.
func (h *TrackerHandler) Create(c *fiber.Ctx) error {
	var req trackerRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}

	userID := getUserID(c)
	t, err := req.toDomain(userID)
	if err != nil {
		return BadRequest(c, err.Error())
	}

	if err := h.validator.Validate(c.Context(), t); err != nil {
		return RespondError(c, err)
	}
	if err := h.registry.Create(c.Context(), t); err != nil {
		return RespondError(c, err)
	}
	return Created(c, t)
}

// Get retrieves a tracker by ID.
func (h *TrackerHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return BadRequest(c, "invalid tracker id")
	}
	t, err := h.registry.Get(c.Context(), id)
	if err != nil {
		return RespondError(c, err)
	}
	if t == nil {
		return NotFound(c, "tracker not found")
	}
	return Success(c, t)
}

// List returns every tracker owned by the caller.
func (h *TrackerHandler) List(c *fiber.Ctx) error {
	userID := getUserID(c)
	trackers, err := h.registry.List(c.Context(), userID)
	if err != nil {
		return RespondError(c, err)
	}
	return Success(c, trackers)
}

// Update replaces a tracker's fields, triggering the reconciliation rules
// in tracker.Registry.Update.
func (h *TrackerHandler) Update(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return BadRequest(c, "invalid tracker id")
	}

	var req trackerRequest
	if err := c.BodyParser(&req); err != nil {
		return BadRequest(c, "invalid request body")
	}

	userID := getUserID(c)
	t, err := req.toDomain(userID)
	if err != nil {
		return BadRequest(c, err.Error())
	}
	t.ID = id

	if err := h.validator.Validate(c.Context(), t); err != nil {
		return RespondError(c, err)
	}
	if err := h.registry.Update(c.Context(), t); err != nil {
		return RespondError(c, err)
	}
	return Success(c, t)
}

// Delete removes a tracker along with its job and revision history.
func (h *TrackerHandler) Delete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return BadRequest(c, "invalid tracker id")
	}
	if err := h.registry.Delete(c.Context(), id); err != nil {
		return RespondError(c, err)
	}
	return NoContent(c)
}

// getUserID reads the caller's identity from the X-User-ID header, a
// header-based tenancy shortcut; a missing or non-numeric header yields 0.
func getUserID(c *fiber.Ctx) int64 {
	id, _ := strconv.ParseInt(c.Get("X-User-ID"), 10, 64)
	return id
}
