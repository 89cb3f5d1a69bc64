package model

import (
	"time"

	"github.com/google/uuid"
)

// DiffStatus tags a Resource relative to the previous revision. It is
// transient: computed on read, never persisted.
type DiffStatus string

const (
	DiffAdded   DiffStatus = "added"
	DiffRemoved DiffStatus = "removed"
	DiffChanged DiffStatus = "changed"
)

// Resource describes one script or style asset captured for a
// PageResources tracker. URL, Digest and Size are independently
// omittable.
type Resource struct {
	URL    string // optional; empty if unknown
	Digest string // optional SHA-1 hex content digest
	Raw    string // optional raw content, when the scraper returns inline bytes instead of a digest
	Size   int64  // optional byte size; 0 if unknown

	// DiffStatus is set only by the diff engine (internal/revision) on read.
	DiffStatus DiffStatus `json:"diff_status,omitempty"`
}

// PageResourcesData is the revision payload for KindPageResources trackers.
type PageResourcesData struct {
	Scripts []Resource
	Styles  []Resource
}

// PageContentData is the revision payload for KindPageContent trackers:
// the raw captured string (HTML, JSON, plain text, ...).
type PageContentData string

// DataRevision is one snapshot of a tracker's output. Exactly one of
// Resources/Content is populated, matching Tracker.Kind.
type DataRevision struct {
	ID        uuid.UUID
	TrackerID uuid.UUID
	Resources *PageResourcesData
	Content   *PageContentData
	CreatedAt time.Time
}
