// Package fetchworker is the Fetch Worker : it drains
// trackers pending on their Trigger Job, calls the external scraper, writes
// a new revision when the content changed, schedules notifications, and
// manages the per-tracker retry state on failure.
package fetchworker

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/secutils-dev/scheduler/internal/apperrors"
	"github.com/secutils-dev/scheduler/internal/model"
	"github.com/secutils-dev/scheduler/internal/retry"
	"github.com/secutils-dev/scheduler/internal/revision"
)

// Default cadence and limits, overridable via Config: its own cron
// cadence, faster than any tracker's schedule, e.g. every minute.
const (
	DefaultInterval    = time.Minute
	DefaultConcurrency = 8
	DefaultBatchSize   = 200
	// DefaultDeadline bounds one fetch: max JS execution time (30s default)
	// plus a network budget for the external scraper round trip.
	DefaultDeadline = 45 * time.Second
)

// JobStore is the subset of jobstore.Store the Fetch Worker needs.
type JobStore interface {
	ListStoppedByKind(ctx context.Context, limit int, kinds []model.JobType) ([]model.Job, error)
	GetMeta(ctx context.Context, id uuid.UUID) (*model.JobMetadata, error)
	SetMeta(ctx context.Context, id uuid.UUID, meta model.JobMetadata) error
	SetStopped(ctx context.Context, id uuid.UUID, stopped bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// TrackerStore is the subset of tracker.Store the Fetch Worker needs to
// resolve a pending trigger job back to its tracker.
type TrackerStore interface {
	GetByJobID(ctx context.Context, jobID uuid.UUID) (*model.Tracker, error)
	DetachJob(ctx context.Context, trackerID uuid.UUID) error
}

// RevisionStore is the subset of revision.Store the Fetch Worker needs.
type RevisionStore interface {
	Latest(ctx context.Context, trackerID uuid.UUID) (*model.DataRevision, error)
	Append(ctx context.Context, userID int64, rev model.DataRevision, keep uint) error
}

// Notifier is the subset of notify.Scheduler the Fetch Worker needs.
type Notifier interface {
	Schedule(ctx context.Context, destination string, content model.NotificationContent, scheduledAt time.Time) (uuid.UUID, error)
}

// Fetcher calls the external scraper service . Both methods
// return the scraper's own capture timestamp alongside the payload.
type Fetcher interface {
	FetchResources(ctx context.Context, t model.Tracker) (*model.PageResourcesData, int64, error)
	FetchContent(ctx context.Context, t model.Tracker) (*model.PageContentData, int64, error)
}

// Config tunes the worker's cadence, concurrency and per-fetch deadline.
// Zero values are replaced with the package defaults.
type Config struct {
	Interval    time.Duration
	Concurrency int
	BatchSize   int
	Deadline    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Deadline <= 0 {
		c.Deadline = DefaultDeadline
	}
	return c
}

// Worker drains pending trackers on its own cadence, independent of the
// Cron Scheduler's per-job ticks.
type Worker struct {
	jobs      JobStore
	trackers  TrackerStore
	revisions RevisionStore
	notifier  Notifier
	fetcher   Fetcher
	cfg       Config

	now   func() time.Time
	newID func() (uuid.UUID, error)

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	running bool
	runMu   sync.Mutex
}

// New builds a Worker. cfg zero values fall back to package defaults.
func New(jobs JobStore, trackers TrackerStore, revisions RevisionStore, notifier Notifier, fetcher Fetcher, cfg Config) *Worker {
	return &Worker{
		jobs:      jobs,
		trackers:  trackers,
		revisions: revisions,
		notifier:  notifier,
		fetcher:   fetcher,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		newID:     uuid.NewV7,
	}
}

// Start begins the worker's drain loop on its own goroutine, running
// immediately and then every cfg.Interval, until ctx is cancelled or Stop
// is called.
func (w *Worker) Start(ctx context.Context) {
	w.runMu.Lock()
	defer w.runMu.Unlock()
	if w.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true

	w.wg.Add(1)
	go w.loop(runCtx)
}

// Stop cancels the loop and waits for the in-flight drain pass to finish.
func (w *Worker) Stop() {
	w.runMu.Lock()
	if !w.running {
		w.runMu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	w.runMu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Run(ctx)
		}
	}
}

// Run performs one drain pass over every tracker currently pending on its
// Trigger Job, up to cfg.Concurrency in flight at a time. Exported so
// callers (and tests) can drive it without waiting on the ticker.
func (w *Worker) Run(ctx context.Context) {
	pending, err := w.jobs.ListStoppedByKind(ctx, w.cfg.BatchSize, []model.JobType{model.JobTypeTrackerTrigger})
	if err != nil {
		logrus.WithError(err).Error("fetchworker: failed to list pending trackers")
		return
	}

	sem := make(chan struct{}, w.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, job := range pending {
		job := job
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			w.processOne(ctx, job)
		}()
	}
	wg.Wait()
}

// processOne handles a single pending tracker: gates on retry, resolves the
// tracker, fetches, and dispatches to the resources/content pipeline.
func (w *Worker) processOne(ctx context.Context, job model.Job) {
	log := logrus.WithField("job_id", job.ID)

	meta, err := w.jobs.GetMeta(ctx, job.ID)
	if err != nil {
		log.WithError(err).Error("fetchworker: failed to load job metadata")
		return
	}
	now := w.now()
	if meta != nil && meta.Retry != nil && meta.Retry.NextAt > now.Unix() {
		return // retry gate not yet passed
	}

	t, err := w.trackers.GetByJobID(ctx, job.ID)
	if err != nil {
		log.WithError(err).Error("fetchworker: failed to resolve tracker")
		return
	}
	if t == nil {
		log.Warn("fetchworker: pending job has no tracker, skipping")
		return
	}
	log = log.WithField("tracker_id", t.ID)

	if !t.Settings.Schedulable() {
		// Revisions disabled or schedule cleared since the job fired:
		// detach, then remove the stale job.
		if err := w.trackers.DetachJob(ctx, t.ID); err != nil {
			log.WithError(err).Error("fetchworker: failed to detach stale job")
		}
		if err := w.jobs.Delete(ctx, job.ID); err != nil {
			log.WithError(err).Error("fetchworker: failed to delete stale job")
		}
		return
	}

	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.Deadline)
	defer cancel()

	if meta == nil {
		meta = &model.JobMetadata{}
	}
	meta.TrackerKind = t.Kind

	switch t.Kind {
	case model.KindPageResources:
		w.processResources(fetchCtx, *t, job.ID, *meta, log)
	case model.KindPageContent:
		w.processContent(fetchCtx, *t, job.ID, *meta, log)
	default:
		log.WithField("kind", t.Kind).Error("fetchworker: unknown tracker kind")
	}
}

func (w *Worker) processContent(ctx context.Context, t model.Tracker, jobID uuid.UUID, meta model.JobMetadata, log *logrus.Entry) {
	content, timestamp, err := w.fetcher.FetchContent(ctx, t)
	if err != nil {
		w.handleFailure(ctx, t, jobID, meta, err, model.TemplateTrackerContentChanges, log)
		return
	}

	latest, err := w.revisions.Latest(ctx, t.ID)
	if err != nil {
		log.WithError(err).Error("fetchworker: failed to read latest revision")
		return
	}
	var latestContent *model.PageContentData
	if latest != nil {
		latestContent = latest.Content
	}

	changed := revision.ContentChanged(latestContent, *content)
	if changed {
		id, err := w.newID()
		if err != nil {
			log.WithError(err).Error("fetchworker: failed to generate revision id")
			return
		}
		rev := model.DataRevision{
			ID:        id,
			TrackerID: t.ID,
			Content:   content,
			CreatedAt: revisionTime(timestamp, w.now),
		}
		if err := w.revisions.Append(ctx, t.UserID, rev, t.Settings.Revisions); err != nil {
			log.WithError(err).Error("fetchworker: failed to append revision")
			return
		}
	}

	w.resume(ctx, jobID, log)

	if t.Settings.EnableNotifications && changed {
		body := string(*content)
		w.notify(ctx, t, model.NotificationContent{
			Template:              model.TemplateTrackerContentChanges,
			TrackerContentChanges: &model.TrackerContentChangesContent{TrackerName: t.Name, Body: &body},
		}, log)
	}
}

func (w *Worker) processResources(ctx context.Context, t model.Tracker, jobID uuid.UUID, meta model.JobMetadata, log *logrus.Entry) {
	fetched, timestamp, err := w.fetcher.FetchResources(ctx, t)
	if err != nil {
		w.handleFailure(ctx, t, jobID, meta, err, model.TemplateTrackerResourceChanges, log)
		return
	}

	latest, err := w.revisions.Latest(ctx, t.ID)
	if err != nil {
		log.WithError(err).Error("fetchworker: failed to read latest revision")
		return
	}
	var prevScripts, prevStyles []model.Resource
	if latest != nil && latest.Resources != nil {
		prevScripts = latest.Resources.Scripts
		prevStyles = latest.Resources.Styles
	}

	scriptsDiff := revision.DiffResources(prevScripts, fetched.Scripts)
	stylesDiff := revision.DiffResources(prevStyles, fetched.Styles)
	changed := countChanges(scriptsDiff) > 0 || countChanges(stylesDiff) > 0

	if changed {
		id, err := w.newID()
		if err != nil {
			log.WithError(err).Error("fetchworker: failed to generate revision id")
			return
		}
		rev := model.DataRevision{
			ID:        id,
			TrackerID: t.ID,
			Resources: fetched,
			CreatedAt: revisionTime(timestamp, w.now),
		}
		if err := w.revisions.Append(ctx, t.UserID, rev, t.Settings.Revisions); err != nil {
			log.WithError(err).Error("fetchworker: failed to append revision")
			return
		}
	}

	w.resume(ctx, jobID, log)

	if t.Settings.EnableNotifications && changed {
		count := countChanges(scriptsDiff) + countChanges(stylesDiff)
		w.notify(ctx, t, model.NotificationContent{
			Template:               model.TemplateTrackerResourceChanges,
			TrackerResourceChanges: &model.TrackerResourceChangesContent{TrackerName: t.Name, Count: &count},
		}, log)
	}
}

// handleFailure always enqueues an error notification (the failure path
// has no enable_notifications gate, unlike the success path), then either
// re-arms the retry state or, once the strategy's MaxAttempts is used up,
// clears retry and resumes the tracker so its Trigger Job can fire again.
func (w *Worker) handleFailure(ctx context.Context, t model.Tracker, jobID uuid.UUID, meta model.JobMetadata, fetchErr error, template model.NotificationTemplate, log *logrus.Entry) {
	log.WithError(fetchErr).Warn("fetchworker: fetch failed")

	message := apperrors.UserMessage(fetchErr)
	w.notify(ctx, t, errorContent(template, t.Name, message), log)

	strategy := retry.DefaultStrategy
	if t.Settings.Job != nil && t.Settings.Job.Retry != nil {
		strategy = *t.Settings.Job.Retry
	}

	state := retry.Next(strategy, meta.Retry, w.now())
	if retry.Exhausted(strategy, state.Attempts) {
		w.clearRetryAndResume(ctx, jobID, t.Kind, log)
		return
	}

	if err := w.jobs.SetMeta(ctx, jobID, model.JobMetadata{TrackerKind: t.Kind, Retry: &state}); err != nil {
		log.WithError(err).Error("fetchworker: failed to persist retry state")
	}
}

func (w *Worker) clearRetryAndResume(ctx context.Context, jobID uuid.UUID, kind model.TrackerKind, log *logrus.Entry) {
	if err := w.jobs.SetMeta(ctx, jobID, model.JobMetadata{TrackerKind: kind}); err != nil {
		log.WithError(err).Error("fetchworker: failed to clear retry state")
	}
	w.resume(ctx, jobID, log)
}

// resume clears the trigger job's stopped flag, letting the Cron Scheduler
// dispatch it again on its next due tick. SetStopped(false) also clears any
// retry state left in Extra (jobstore.Store's own contract), so a
// successful fetch always leaves the job retry-free.
func (w *Worker) resume(ctx context.Context, jobID uuid.UUID, log *logrus.Entry) {
	if err := w.jobs.SetStopped(ctx, jobID, false); err != nil {
		log.WithError(err).Error("fetchworker: failed to resume trigger job")
	}
}

func (w *Worker) notify(ctx context.Context, t model.Tracker, content model.NotificationContent, log *logrus.Entry) {
	destination := strconv.FormatInt(t.UserID, 10)
	if _, err := w.notifier.Schedule(ctx, destination, content, w.now()); err != nil {
		log.WithError(err).Error("fetchworker: failed to schedule notification")
	}
}

func errorContent(template model.NotificationTemplate, trackerName, message string) model.NotificationContent {
	switch template {
	case model.TemplateTrackerResourceChanges:
		return model.NotificationContent{
			Template:               template,
			TrackerResourceChanges: &model.TrackerResourceChangesContent{TrackerName: trackerName, Err: &message},
		}
	default:
		return model.NotificationContent{
			Template:              model.TemplateTrackerContentChanges,
			TrackerContentChanges: &model.TrackerContentChangesContent{TrackerName: trackerName, Err: &message},
		}
	}
}

// countChanges counts resources whose DiffStatus is non-empty, i.e. every
// Added/Removed/Changed entry.
func countChanges(resources []model.Resource) int {
	n := 0
	for _, r := range resources {
		if r.DiffStatus != "" {
			n++
		}
	}
	return n
}

// revisionTime prefers the scraper's own capture timestamp (epoch seconds);
// a non-positive value (absent from a stub or test double) falls back to
// the worker's clock.
func revisionTime(timestamp int64, now func() time.Time) time.Time {
	if timestamp > 0 {
		return time.Unix(timestamp, 0)
	}
	return now()
}
