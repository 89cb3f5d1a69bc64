package fetchworker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secutils-dev/scheduler/internal/model"
)

type fakeJobs struct {
	mu      sync.Mutex
	pending []model.Job
	meta    map[uuid.UUID]model.JobMetadata
	stopped map[uuid.UUID]bool
	deleted map[uuid.UUID]bool
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{meta: map[uuid.UUID]model.JobMetadata{}, stopped: map[uuid.UUID]bool{}, deleted: map[uuid.UUID]bool{}}
}

func (f *fakeJobs) ListStoppedByKind(_ context.Context, _ int, _ []model.JobType) ([]model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Job(nil), f.pending...), nil
}

func (f *fakeJobs) GetMeta(_ context.Context, id uuid.UUID) (*model.JobMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.meta[id]
	if !ok {
		return &model.JobMetadata{}, nil
	}
	return &m, nil
}

func (f *fakeJobs) SetMeta(_ context.Context, id uuid.UUID, meta model.JobMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meta[id] = meta
	return nil
}

func (f *fakeJobs) SetStopped(_ context.Context, id uuid.UUID, stopped bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped[id] = stopped
	return nil
}

func (f *fakeJobs) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[id] = true
	return nil
}

type fakeTrackers struct {
	byJob    map[uuid.UUID]model.Tracker
	detached map[uuid.UUID]bool
}

func newFakeTrackers() *fakeTrackers {
	return &fakeTrackers{byJob: map[uuid.UUID]model.Tracker{}, detached: map[uuid.UUID]bool{}}
}

func (f *fakeTrackers) GetByJobID(_ context.Context, jobID uuid.UUID) (*model.Tracker, error) {
	t, ok := f.byJob[jobID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeTrackers) DetachJob(_ context.Context, trackerID uuid.UUID) error {
	f.detached[trackerID] = true
	return nil
}

type fakeRevisions struct {
	mu      sync.Mutex
	latest  map[uuid.UUID]model.DataRevision
	history map[uuid.UUID][]model.DataRevision
}

func newFakeRevisions() *fakeRevisions {
	return &fakeRevisions{latest: map[uuid.UUID]model.DataRevision{}, history: map[uuid.UUID][]model.DataRevision{}}
}

func (f *fakeRevisions) Latest(_ context.Context, trackerID uuid.UUID) (*model.DataRevision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.latest[trackerID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (f *fakeRevisions) Append(_ context.Context, _ int64, rev model.DataRevision, _ uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest[rev.TrackerID] = rev
	f.history[rev.TrackerID] = append(f.history[rev.TrackerID], rev)
	return nil
}

type notification struct {
	destination string
	content     model.NotificationContent
}

type fakeNotifier struct {
	mu       sync.Mutex
	schedule []notification
}

func (f *fakeNotifier) Schedule(_ context.Context, destination string, content model.NotificationContent, _ time.Time) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedule = append(f.schedule, notification{destination: destination, content: content})
	return uuid.New(), nil
}

type fakeFetcher struct {
	content      *model.PageContentData
	contentTS    int64
	contentErr   error
	resources    *model.PageResourcesData
	resourcesTS  int64
	resourcesErr error
}

func (f *fakeFetcher) FetchContent(_ context.Context, _ model.Tracker) (*model.PageContentData, int64, error) {
	return f.content, f.contentTS, f.contentErr
}

func (f *fakeFetcher) FetchResources(_ context.Context, _ model.Tracker) (*model.PageResourcesData, int64, error) {
	return f.resources, f.resourcesTS, f.resourcesErr
}

func contentTracker(id uuid.UUID, jobID uuid.UUID, notifications bool) model.Tracker {
	return model.Tracker{
		ID:     id,
		UserID: 7,
		Name:   "tracker-a",
		URL:    "https://example.com",
		Kind:   model.KindPageContent,
		Settings: model.TrackerSettings{
			Revisions:           3,
			Job:                 &model.TrackerJobConfig{Schedule: "0 * * * * * *"},
			EnableNotifications: notifications,
		},
		JobID: &jobID,
	}
}

func content(s string) *model.PageContentData {
	c := model.PageContentData(s)
	return &c
}

func TestRun_ScheduleFetchPersist(t *testing.T) {
	jobID := uuid.New()
	trackerID := uuid.New()

	jobs := newFakeJobs()
	jobs.pending = []model.Job{{ID: jobID, JobType: model.JobTypeTrackerTrigger}}

	trackers := newFakeTrackers()
	trackers.byJob[jobID] = contentTracker(trackerID, jobID, false)

	revisions := newFakeRevisions()
	notifier := &fakeNotifier{}
	fetcher := &fakeFetcher{content: content("hello"), contentTS: 946720800}

	w := New(jobs, trackers, revisions, notifier, fetcher, Config{})
	w.Run(context.Background())

	rev, err := revisions.Latest(context.Background(), trackerID)
	require.NoError(t, err)
	require.NotNil(t, rev)
	assert.Equal(t, "hello", string(*rev.Content))
	assert.Equal(t, int64(946720800), rev.CreatedAt.Unix())

	assert.False(t, jobs.stopped[jobID])
	assert.Empty(t, notifier.schedule)
}

func TestRun_ChangeDetectionNotifies(t *testing.T) {
	jobID := uuid.New()
	trackerID := uuid.New()

	jobs := newFakeJobs()
	jobs.pending = []model.Job{{ID: jobID, JobType: model.JobTypeTrackerTrigger}}

	trackers := newFakeTrackers()
	trackers.byJob[jobID] = contentTracker(trackerID, jobID, true)

	revisions := newFakeRevisions()
	revisions.latest[trackerID] = model.DataRevision{
		ID: uuid.New(), TrackerID: trackerID, Content: content("some-content"),
		CreatedAt: time.Unix(946720700, 0),
	}

	notifier := &fakeNotifier{}
	fetcher := &fakeFetcher{content: content("other-content"), contentTS: 946720800}

	w := New(jobs, trackers, revisions, notifier, fetcher, Config{})
	w.Run(context.Background())

	assert.Len(t, revisions.history[trackerID], 2)
	latest, err := revisions.Latest(context.Background(), trackerID)
	require.NoError(t, err)
	assert.Equal(t, "other-content", string(*latest.Content))

	require.Len(t, notifier.schedule, 1)
	n := notifier.schedule[0].content
	assert.Equal(t, model.TemplateTrackerContentChanges, n.Template)
	assert.Equal(t, "other-content", *n.TrackerContentChanges.Body)
	assert.False(t, jobs.stopped[jobID])
}

func TestRun_ScraperErrorEnqueuesErrorNotification(t *testing.T) {
	jobID := uuid.New()
	trackerID := uuid.New()

	jobs := newFakeJobs()
	jobs.pending = []model.Job{{ID: jobID, JobType: model.JobTypeTrackerTrigger}}

	trackers := newFakeTrackers()
	trackers.byJob[jobID] = contentTracker(trackerID, jobID, true)

	revisions := newFakeRevisions()
	notifier := &fakeNotifier{}
	fetcher := &fakeFetcher{contentErr: errors.New("client_validation: some client-error")}

	w := New(jobs, trackers, revisions, notifier, fetcher, Config{})
	w.Run(context.Background())

	assert.Empty(t, revisions.history[trackerID])
	require.Len(t, notifier.schedule, 1)
	n := notifier.schedule[0].content
	assert.Equal(t, model.TemplateTrackerContentChanges, n.Template)
	require.NotNil(t, n.TrackerContentChanges.Err)

	meta := jobs.meta[jobID]
	require.NotNil(t, meta.Retry)
	assert.Equal(t, uint32(1), meta.Retry.Attempts)
	_, resumed := jobs.stopped[jobID]
	assert.False(t, resumed, "tracker stays pending until retry resolves")
}

func TestRun_RetryExhaustionClearsAndResumes(t *testing.T) {
	jobID := uuid.New()
	trackerID := uuid.New()

	jobs := newFakeJobs()
	trackers := newFakeTrackers()
	tracker := contentTracker(trackerID, jobID, true)
	tracker.Settings.Job.Retry = &model.RetryStrategy{InitialInterval: time.Millisecond, Multiplier: 2, MaxInterval: 2 * time.Minute, MaxAttempts: 2}
	trackers.byJob[jobID] = tracker

	revisions := newFakeRevisions()
	notifier := &fakeNotifier{}
	fetcher := &fakeFetcher{contentErr: errors.New("boom")}

	w := New(jobs, trackers, revisions, notifier, fetcher, Config{})

	jobs.pending = []model.Job{{ID: jobID, JobType: model.JobTypeTrackerTrigger}}
	w.Run(context.Background())
	require.Len(t, notifier.schedule, 1)
	assert.Equal(t, uint32(1), jobs.meta[jobID].Retry.Attempts)
	assert.False(t, jobs.stopped[jobID])

	// Second consecutive failure exhausts MaxAttempts=2.
	jobs.pending = []model.Job{{ID: jobID, JobType: model.JobTypeTrackerTrigger}}
	w.Run(context.Background())

	require.Len(t, notifier.schedule, 2)
	assert.Nil(t, jobs.meta[jobID].Retry)
	stopped, recorded := jobs.stopped[jobID]
	assert.True(t, recorded, "SetStopped(false) recorded once retry budget is exhausted")
	assert.False(t, stopped)
}

func TestRun_DisabledTrackerRemovesJob(t *testing.T) {
	jobID := uuid.New()
	trackerID := uuid.New()

	jobs := newFakeJobs()
	jobs.pending = []model.Job{{ID: jobID, JobType: model.JobTypeTrackerTrigger}}

	trackers := newFakeTrackers()
	tracker := contentTracker(trackerID, jobID, false)
	tracker.Settings.Revisions = 0
	trackers.byJob[jobID] = tracker

	revisions := newFakeRevisions()
	notifier := &fakeNotifier{}
	fetcher := &fakeFetcher{}

	w := New(jobs, trackers, revisions, notifier, fetcher, Config{})
	w.Run(context.Background())

	assert.True(t, jobs.deleted[jobID])
	assert.True(t, trackers.detached[trackerID])
	assert.Empty(t, notifier.schedule)
}

func TestRun_ResourcesChangeCountsAndNotifies(t *testing.T) {
	jobID := uuid.New()
	trackerID := uuid.New()

	jobs := newFakeJobs()
	jobs.pending = []model.Job{{ID: jobID, JobType: model.JobTypeTrackerTrigger}}

	trackers := newFakeTrackers()
	tr := contentTracker(trackerID, jobID, true)
	tr.Kind = model.KindPageResources
	trackers.byJob[jobID] = tr

	revisions := newFakeRevisions()
	revisions.latest[trackerID] = model.DataRevision{
		ID: uuid.New(), TrackerID: trackerID,
		Resources: &model.PageResourcesData{Scripts: []model.Resource{{URL: "a.js", Digest: "1"}}},
		CreatedAt: time.Unix(1, 0),
	}

	notifier := &fakeNotifier{}
	fetcher := &fakeFetcher{resources: &model.PageResourcesData{
		Scripts: []model.Resource{{URL: "a.js", Digest: "2"}, {URL: "b.js", Digest: "1"}},
	}, resourcesTS: 100}

	w := New(jobs, trackers, revisions, notifier, fetcher, Config{})
	w.Run(context.Background())

	require.Len(t, notifier.schedule, 1)
	n := notifier.schedule[0].content
	require.Equal(t, model.TemplateTrackerResourceChanges, n.Template)
	require.NotNil(t, n.TrackerResourceChanges.Count)
	assert.Equal(t, 2, *n.TrackerResourceChanges.Count) // a.js changed, b.js added
}
