package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/secutils-dev/scheduler/internal/model"
	"github.com/secutils-dev/scheduler/internal/revision"
)

// RevisionStore is the slice of revision.Store the handler needs.
type RevisionStore interface {
	Latest(ctx context.Context, trackerID uuid.UUID) (*model.DataRevision, error)
	List(ctx context.Context, trackerID uuid.UUID) ([]model.DataRevision, error)
}

// HistoryHandler exposes a tracker's revision history and the diff
// between any two of its entries, the read side of the Revision Store &
// Diff engine.
type HistoryHandler struct {
	revisions RevisionStore
}

func NewHistoryHandler(revisions RevisionStore) *HistoryHandler {
	return &HistoryHandler{revisions: revisions}
}

// List returns every revision recorded for a tracker, oldest first.
func (h *HistoryHandler) List(c *fiber.Ctx) error {
	trackerID, err := uuid.Parse(c.Params("tracker_id"))
	if err != nil {
		return BadRequest(c, "invalid tracker id")
	}
	revisions, err := h.revisions.List(c.Context(), trackerID)
	if err != nil {
		return RespondError(c, err)
	}
	return Success(c, revisions)
}

// Latest returns the most recent revision, or 404 if none exist yet.
func (h *HistoryHandler) Latest(c *fiber.Ctx) error {
	trackerID, err := uuid.Parse(c.Params("tracker_id"))
	if err != nil {
		return BadRequest(c, "invalid tracker id")
	}
	rev, err := h.revisions.Latest(c.Context(), trackerID)
	if err != nil {
		return RespondError(c, err)
	}
	if rev == nil {
		return NotFound(c, "no revisions recorded yet")
	}
	return Success(c, rev)
}

// Diff computes a unified diff (PageContent) or a set diff (PageResources)
// between the revision just before the latest ("from") and the latest
// itself ("to"). Both payload kinds are computed transiently;
// neither is persisted.
func (h *HistoryHandler) Diff(c *fiber.Ctx) error {
	trackerID, err := uuid.Parse(c.Params("tracker_id"))
	if err != nil {
		return BadRequest(c, "invalid tracker id")
	}

	all, err := h.revisions.List(c.Context(), trackerID)
	if err != nil {
		return RespondError(c, err)
	}
	if len(all) < 2 {
		return BadRequest(c, "at least two revisions are required to diff")
	}

	from, to := all[len(all)-2], all[len(all)-1]

	switch {
	case to.Content != nil && from.Content != nil:
		text, err := revision.ContentDiff(*from.Content, *to.Content)
		if err != nil {
			return InternalError(c, "failed to compute diff")
		}
		return Success(c, fiber.Map{"kind": "page_content", "diff": text})

	case to.Resources != nil && from.Resources != nil:
		scripts := revision.DiffResources(from.Resources.Scripts, to.Resources.Scripts)
		styles := revision.DiffResources(from.Resources.Styles, to.Resources.Styles)
		return Success(c, fiber.Map{"kind": "page_resources", "scripts": scripts, "styles": styles})

	default:
		return InternalError(c, "mismatched revision payload kinds")
	}
}
