package model

import (
	"time"

	"github.com/google/uuid"
)

// TrackerKind distinguishes the two supported tracker payload shapes.
type TrackerKind byte

const (
	KindPageResources TrackerKind = iota + 1
	KindPageContent
)

func (k TrackerKind) String() string {
	switch k {
	case KindPageResources:
		return "page_resources"
	case KindPageContent:
		return "page_content"
	default:
		return "unknown"
	}
}

// RetryStrategy configures the backoff applied after a failed fetch or
// notification delivery. The only variant observed in the original
// implementation is exponential, so it is modeled as a single struct
// rather than an open enum.
type RetryStrategy struct {
	InitialInterval time.Duration
	Multiplier      uint32
	MaxInterval     time.Duration
	MaxAttempts     uint32
}

// TrackerJobConfig is the optional scheduling half of TrackerSettings.
type TrackerJobConfig struct {
	Schedule string // 6-field cron expression
	Retry    *RetryStrategy
}

// TrackerSettings holds the tunables that govern how a tracker is fetched,
// how much history it keeps and whether it is scheduled at all.
type TrackerSettings struct {
	Revisions           uint
	Job                 *TrackerJobConfig
	Delay               time.Duration
	Scripts             TrackerScripts
	Headers             map[string]string
	EnableNotifications bool
}

// Schedulable reports whether the tracker should have an attached Job.
func (s TrackerSettings) Schedulable() bool {
	return s.Revisions > 0 && s.Job != nil && s.Job.Schedule != ""
}

// TrackerScripts are optional user JS snippets sent with each fetch request
// to the external scraper service (internal/scraper), which evaluates them.
type TrackerScripts struct {
	ResourceFilterMap string // PageResources only
	ExtractContent    string // PageContent only
}

// Tracker is a user-owned change-detection subscription.
type Tracker struct {
	ID        uuid.UUID
	UserID    int64
	Name      string
	URL       string
	Kind      TrackerKind
	Settings  TrackerSettings
	JobID     *uuid.UUID
	CreatedAt time.Time
}
