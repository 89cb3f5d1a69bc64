// Package triggerjob implements the Trigger Job : a
// per-tracker cron callback whose sole effect is to mark the tracker
// pending for the Fetch Worker. Fetching itself can take tens of seconds
// (external HTTP, JS evaluation); running it inline inside the Scheduler's
// tick would block every other job, so this callback only flips a flag and
// returns. The stopped flag doubles as the Fetch Worker's queue and as an
// at-most-one-in-flight guard: the Scheduler will not re-dispatch a
// Trigger Job whose tracker is already stopped.
package triggerjob

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/secutils-dev/scheduler/internal/cronsched"
	"github.com/secutils-dev/scheduler/internal/model"
)

// JobStore is the narrow slice of jobstore.Store the Trigger Job needs.
type JobStore interface {
	SetStopped(ctx context.Context, id uuid.UUID, stopped bool) error
}

// Callback returns a cronsched.Callback that marks job.ID stopped on fire.
// Register it under model.JobTypeTrackerTrigger.
func Callback(jobs JobStore) cronsched.Callback {
	return func(ctx context.Context, job model.Job) {
		if err := jobs.SetStopped(ctx, job.ID, true); err != nil {
			logrus.WithError(err).WithField("job_id", job.ID).
				Error("triggerjob: failed to mark tracker pending")
		}
	}
}
