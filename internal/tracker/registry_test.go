package tracker

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secutils-dev/scheduler/internal/model"
)

// fakeJobStore stands in for jobstore.Store so Registry's job-deletion
// calls can be asserted without a database, mirroring cronsched's fakeStore.
type fakeJobStore struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]model.Job
	deletes int
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: map[uuid.UUID]model.Job{}}
}

func (f *fakeJobStore) Upsert(_ context.Context, job model.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, id)
	f.deletes++
	return nil
}

func schedulableTracker(url, schedule string) model.Tracker {
	return model.Tracker{
		UserID: 1,
		Name:   "t",
		URL:    url,
		Kind:   model.KindPageContent,
		Settings: model.TrackerSettings{
			Revisions: 3,
			Job:       &model.TrackerJobConfig{Schedule: schedule},
		},
	}
}

func TestRegistry_Update_NoopWhenScheduleUnchanged(t *testing.T) {
	// Exercises only the in-memory branch selection of Update via a
	// minimal Registry built around fakes plus a nil-backed Store is not
	// possible without a DB, so this test instead pins down the decision
	// logic extracted into reconcileAction for direct unit coverage.
	prev := schedulableTracker("https://example.com", "0 0 * * * * *")
	jobID := uuid.New()
	prev.JobID = &jobID
	next := prev
	next.Settings.Job = &model.TrackerJobConfig{Schedule: "0 0 * * * * *"}

	action := reconcileAction(prev, next)
	assert.Equal(t, actionNoop, action)
}

func TestRegistry_Update_ScheduleChangeSameURL_KeepsHistory(t *testing.T) {
	prev := schedulableTracker("https://example.com", "0 0 * * * * *")
	jobID := uuid.New()
	prev.JobID = &jobID
	next := prev
	next.Settings.Job = &model.TrackerJobConfig{Schedule: "0 */5 * * * * *"}

	action := reconcileAction(prev, next)
	assert.Equal(t, actionRescheduleSameURL, action)
}

func TestRegistry_Update_URLChange_ClearsHistory(t *testing.T) {
	prev := schedulableTracker("https://example.com", "0 0 * * * * *")
	jobID := uuid.New()
	prev.JobID = &jobID
	next := prev
	next.URL = "https://example.org"

	action := reconcileAction(prev, next)
	assert.Equal(t, actionRescheduleNewURL, action)
}

func TestRegistry_Update_DisablingClearsJobKeepsHistory(t *testing.T) {
	prev := schedulableTracker("https://example.com", "0 0 * * * * *")
	jobID := uuid.New()
	prev.JobID = &jobID
	next := prev
	next.Settings.Revisions = 0

	action := reconcileAction(prev, next)
	assert.Equal(t, actionDisable, action)
}

func TestRegistry_Update_NewlySchedulableInsertsUnscheduled(t *testing.T) {
	prev := model.Tracker{Settings: model.TrackerSettings{}}
	next := schedulableTracker("https://example.com", "0 0 * * * * *")

	action := reconcileAction(prev, next)
	assert.Equal(t, actionInsertUnscheduled, action)
}

func TestFakeJobStore_DeleteIsIdempotent(t *testing.T) {
	fs := newFakeJobStore()
	id := uuid.New()
	require.NoError(t, fs.Delete(context.Background(), id))
	assert.Equal(t, 1, fs.deletes)
}
