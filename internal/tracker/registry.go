package tracker

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/secutils-dev/scheduler/internal/apperrors"
	"github.com/secutils-dev/scheduler/internal/jobstore"
	"github.com/secutils-dev/scheduler/internal/model"
)

// JobStore is the subset of jobstore.Store the Registry needs to keep
// tracker/job invariants in sync, defined consumer-side per the package's
// own convention (see cronsched.Store).
type JobStore interface {
	Upsert(ctx context.Context, job model.Job) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RevisionPruner lets the Registry clear a tracker's history on URL change
// without importing the revision package directly (avoids a dependency
// cycle, since revision persistence never needs to know about trackers).
type RevisionPruner interface {
	DeleteAll(ctx context.Context, trackerID uuid.UUID) error
}

// Registry is the Tracker Registry : the authoritative
// tracker store plus the reconciler that keeps tracker<->job invariants.
type Registry struct {
	store     *Store
	jobs      JobStore
	revisions RevisionPruner
}

func NewRegistry(store *Store, jobs JobStore, revisions RevisionPruner) *Registry {
	return &Registry{store: store, jobs: jobs, revisions: revisions}
}

func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*model.Tracker, error) {
	return r.store.Get(ctx, id)
}

func (r *Registry) List(ctx context.Context, userID int64) ([]model.Tracker, error) {
	return r.store.List(ctx, userID)
}

// Create validates nothing itself (see Validator); it inserts the tracker
// and, if it is schedulable, leaves it for the TrackersSchedule job to
// bind a Trigger Job on its next tick.
func (r *Registry) Create(ctx context.Context, t model.Tracker) error {
	if t.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return apperrors.Wrap(apperrors.KindStorage, "generate tracker id", err)
		}
		t.ID = id
	}
	return r.store.create(ctx, t)
}

// reconcileKind names which row of the reconciliation table applies to
// a given (prev, next) tracker pair.
type reconcileKind int

const (
	actionNoop reconcileKind = iota
	actionRescheduleSameURL
	actionRescheduleNewURL
	actionDisable
	actionInsertUnscheduled
)

// reconcileAction picks the reconciliation table row for a pending update,
// pure and side-effect free so it can be unit tested without a store.
func reconcileAction(prev, next model.Tracker) reconcileKind {
	hadJob := prev.JobID != nil
	nowSchedulable := next.Settings.Schedulable()

	switch {
	case hadJob && nowSchedulable && prev.Settings.Job != nil && next.Settings.Job != nil &&
		prev.Settings.Job.Schedule == next.Settings.Job.Schedule && prev.URL == next.URL:
		return actionNoop
	case hadJob && nowSchedulable && prev.URL != next.URL:
		return actionRescheduleNewURL
	case hadJob && nowSchedulable:
		return actionRescheduleSameURL
	case hadJob && !nowSchedulable:
		return actionDisable
	case !hadJob && nowSchedulable:
		return actionInsertUnscheduled
	default:
		return actionNoop
	}
}

// Update applies the reconciliation rules table: it diffs the previous
// tracker against the incoming one and drives the Job Store and revision
// history to keep the invariants the table describes.
func (r *Registry) Update(ctx context.Context, t model.Tracker) error {
	prev, err := r.store.Get(ctx, t.ID)
	if err != nil {
		return err
	}
	if prev == nil {
		return apperrors.New(apperrors.KindNotFound, "tracker not found")
	}

	switch reconcileAction(*prev, t) {
	case actionNoop:
		// Row 1: had job, schedule and URL unchanged. Keep the existing
		// job_id, just persist the rest of the row.
		t.JobID = prev.JobID

	case actionRescheduleSameURL, actionRescheduleNewURL:
		// Row 2: had job, schedule (and/or URL) changed. Delete the old
		// job, clear history only if the URL itself changed, insert a
		// new Trigger Job, and reattach.
		oldJobID := *prev.JobID
		if err := r.jobs.Delete(ctx, oldJobID); err != nil {
			return err
		}
		if prev.URL != t.URL {
			if err := r.revisions.DeleteAll(ctx, t.ID); err != nil {
				return err
			}
		}
		newJobID, err := r.insertTriggerJob(ctx, t)
		if err != nil {
			return err
		}
		t.JobID = &newJobID

	case actionDisable:
		// Row 3: had job, now disabled (revisions=0 or no schedule).
		// Delete the job, keep history, detach.
		if err := r.jobs.Delete(ctx, *prev.JobID); err != nil {
			return err
		}
		t.JobID = nil

	case actionInsertUnscheduled:
		// Row 4: no job, newly schedulable. Leave job_id nil; the
		// TrackersSchedule job will pick this tracker up via
		// GetUnscheduled and bind a job on its next tick.
		t.JobID = nil
	}

	return r.store.update(ctx, t)
}

// Delete removes a tracker, its job (if any), and its revision history
// atomically is NOT guaranteed here across the three stores individually;
// callers relying on atomicity should wrap this in a transaction at the
// handler layer if the underlying stores share one *gorm.DB.
func (r *Registry) Delete(ctx context.Context, id uuid.UUID) error {
	t, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	if t.JobID != nil {
		if err := r.jobs.Delete(ctx, *t.JobID); err != nil {
			return err
		}
	}
	if err := r.revisions.DeleteAll(ctx, id); err != nil {
		return err
	}
	return r.store.delete(ctx, id)
}

func (r *Registry) insertTriggerJob(ctx context.Context, t model.Tracker) (uuid.UUID, error) {
	jobID, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, apperrors.Wrap(apperrors.KindStorage, "generate job id", err)
	}
	extra, err := jobstore.EncodeMetadata(model.JobMetadata{TrackerKind: t.Kind})
	if err != nil {
		return uuid.Nil, apperrors.Wrap(apperrors.KindStorage, "encode trigger job metadata", err)
	}
	job := model.Job{
		ID:       jobID,
		Kind:     model.JobKindCron,
		JobType:  model.JobTypeTrackerTrigger,
		Schedule: t.Settings.Job.Schedule,
		Extra:    extra,
	}
	if err := r.jobs.Upsert(ctx, job); err != nil {
		return uuid.Nil, err
	}
	if err := r.store.AttachJob(ctx, t.ID, jobID); err != nil {
		return uuid.Nil, err
	}
	return jobID, nil
}

// ReconcileUnscheduled is the body of the system-wide TrackersSchedule
// cron job: bind a Trigger Job to every tracker that is schedulable but
// not yet wired to one.
func (r *Registry) ReconcileUnscheduled(ctx context.Context) error {
	pending, err := r.store.GetUnscheduled(ctx)
	if err != nil {
		return err
	}
	for _, t := range pending {
		if _, err := r.insertTriggerJob(ctx, t); err != nil {
			logrus.WithError(err).WithField("tracker_id", t.ID).
				Error("tracker: failed to bind trigger job")
			continue
		}
	}
	return nil
}
