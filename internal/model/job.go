// Package model holds the domain entities shared by the scheduler store,
// cron scheduler, tracker registry and fetch worker.
package model

import (
	"time"

	"github.com/google/uuid"
)

// JobKind is the scheduling strategy used to compute a job's next tick.
type JobKind string

const (
	// JobKindCron fires according to a 6-field cron expression.
	JobKindCron JobKind = "cron"
	// JobKindOneShot fires exactly once at NextTick and is never rearmed.
	JobKindOneShot JobKind = "one_shot"
	// JobKindRepeated fires every Schedule milliseconds (decimal text) after
	// LastTick.
	JobKindRepeated JobKind = "repeated"
)

// JobType identifies the system role a Job plays, stored in Job.JobType
// (its own column), not inside JobMetadata.
type JobType string

const (
	// JobTypeTrackerTrigger is a per-tracker recurring job; firing marks the
	// tracker pending for the Fetch Worker.
	JobTypeTrackerTrigger JobType = "tracker_trigger"
	// JobTypeNotificationsSend drains due notifications to the email transport.
	JobTypeNotificationsSend JobType = "notifications_send"
	// JobTypeTrackersSchedule is the system-wide reconciler that binds Jobs to
	// newly-schedulable Trackers.
	JobTypeTrackersSchedule JobType = "trackers_schedule"
)

// RetryState gates re-execution of a job after a failure. NextAt is an
// absolute epoch-seconds deadline; the job may not fire again until it
// has passed, even if Stopped is false.
type RetryState struct {
	Attempts uint32
	NextAt   int64
}

// JobMetadata is the decoded form of Job.Extra. Legacy rows encoded before
// retry support was added decode with Retry == nil.
type JobMetadata struct {
	TrackerKind TrackerKind // only meaningful when JobType == JobTypeTrackerTrigger
	Retry       *RetryState
}

// Job is a persistent unit of scheduled work. NextTick == 0 means the job is
// not currently eligible to fire (e.g. a one-shot job that already ran).
// JobType is stored as its own indexed column (scheduler_jobs.job_type) so
// list_stopped_by_kind can filter without decoding Extra; Extra carries the
// rest of JobMetadata.
type Job struct {
	ID        uuid.UUID
	Kind      JobKind
	JobType   JobType
	Schedule  string // cron expression (Kind==Cron) or interval in millis as decimal text (Kind==Repeated)
	NextTick  int64  // epoch seconds, 0 = none
	LastTick  int64  // epoch seconds, 0 = never ran
	Ran       bool
	Stopped   bool
	Count     uint32
	Extra     []byte
	UpdatedAt time.Time
}

// Due reports whether the job is eligible for the scheduler to examine,
// ignoring the stopped/retry gates (those are checked separately so callers
// can distinguish "not due yet" from "due but gated").
func (j Job) Due(now time.Time) bool {
	return j.NextTick > 0 && j.NextTick <= now.Unix()
}
