package cronsched

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secutils-dev/scheduler/internal/model"
)

// fakeStore is an in-memory Store used to unit test the scheduler loop
// without a database, the same inline-fake style used elsewhere in this
// package's tests rather than standing up a real backend.
type fakeStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]model.Job
	meta map[uuid.UUID]model.JobMetadata
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[uuid.UUID]model.Job{}, meta: map[uuid.UUID]model.JobMetadata{}}
}

func (f *fakeStore) put(j model.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.ID] = j
}

func (f *fakeStore) ListDue(_ context.Context, now time.Time) ([]model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []model.Job
	for _, j := range f.jobs {
		if j.Due(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].ID.String() < due[k].ID.String() })
	return due, nil
}

func (f *fakeStore) SetTicks(_ context.Context, id uuid.UUID, next, last int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[id]
	j.NextTick, j.LastTick, j.Ran = next, last, true
	f.jobs[id] = j
	return nil
}

func (f *fakeStore) GetMeta(_ context.Context, id uuid.UUID) (*model.JobMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.meta[id]
	if !ok {
		return &model.JobMetadata{}, nil
	}
	return &m, nil
}

func (f *fakeStore) TimeUntilNext(_ context.Context, since time.Time) (*time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var min *time.Duration
	for _, j := range f.jobs {
		if j.NextTick > since.Unix() {
			d := time.Duration(j.NextTick-since.Unix()) * time.Second
			if min == nil || d < *min {
				min = &d
			}
		}
	}
	return min, nil
}

func TestSchedulerTick_FiresDueJob(t *testing.T) {
	store := newFakeStore()
	now := time.Unix(1700000000, 0)
	job := model.Job{ID: uuid.New(), Kind: model.JobKindOneShot, JobType: model.JobTypeTrackerTrigger, NextTick: now.Unix()}
	store.put(job)

	sched := New(store)
	sched.now = func() time.Time { return now }

	var fired int
	var mu sync.Mutex
	done := make(chan struct{})
	sched.Register(model.JobTypeTrackerTrigger, func(_ context.Context, j model.Job) {
		mu.Lock()
		fired++
		mu.Unlock()
		close(done)
	})

	sched.tick(context.Background())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback was not dispatched")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, fired)

	updated := store.jobs[job.ID]
	assert.True(t, updated.Ran)
	assert.Equal(t, int64(0), updated.NextTick, "one-shot jobs do not rearm")
}

func TestSchedulerTick_SkipsStoppedJob(t *testing.T) {
	store := newFakeStore()
	now := time.Unix(1700000000, 0)
	job := model.Job{ID: uuid.New(), Kind: model.JobKindCron, JobType: model.JobTypeTrackerTrigger, NextTick: now.Unix(), Stopped: true}
	store.put(job)

	sched := New(store)
	sched.now = func() time.Time { return now }

	fired := false
	sched.Register(model.JobTypeTrackerTrigger, func(_ context.Context, _ model.Job) { fired = true })
	sched.tick(context.Background())

	time.Sleep(20 * time.Millisecond)
	assert.False(t, fired)
	assert.False(t, store.jobs[job.ID].Ran, "stopped job must not advance ticks")
}

func TestSchedulerTick_SkipsRetryGate(t *testing.T) {
	store := newFakeStore()
	now := time.Unix(1700000000, 0)
	id := uuid.New()
	job := model.Job{ID: id, Kind: model.JobKindCron, JobType: model.JobTypeTrackerTrigger, NextTick: now.Unix()}
	store.put(job)
	store.meta[id] = model.JobMetadata{Retry: &model.RetryState{Attempts: 1, NextAt: now.Unix() + 60}}

	sched := New(store)
	sched.now = func() time.Time { return now }

	fired := false
	sched.Register(model.JobTypeTrackerTrigger, func(_ context.Context, _ model.Job) { fired = true })
	sched.tick(context.Background())

	time.Sleep(20 * time.Millisecond)
	assert.False(t, fired)
}

func TestSchedulerTick_RepeatedJobRearmsByInterval(t *testing.T) {
	store := newFakeStore()
	now := time.Unix(1700000000, 0)
	id := uuid.New()
	job := model.Job{ID: id, Kind: model.JobKindRepeated, JobType: model.JobTypeNotificationsSend, Schedule: "30000", NextTick: now.Unix()}
	store.put(job)

	sched := New(store)
	sched.now = func() time.Time { return now }
	done := make(chan struct{})
	sched.Register(model.JobTypeNotificationsSend, func(_ context.Context, _ model.Job) { close(done) })
	sched.tick(context.Background())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback was not dispatched")
	}

	updated := store.jobs[id]
	require.Equal(t, now.Unix()+30, updated.NextTick)
}

func TestSchedulerTick_PanicInCallbackDoesNotCrashLoop(t *testing.T) {
	store := newFakeStore()
	now := time.Unix(1700000000, 0)
	job := model.Job{ID: uuid.New(), Kind: model.JobKindOneShot, JobType: model.JobTypeTrackerTrigger, NextTick: now.Unix()}
	store.put(job)

	sched := New(store)
	sched.now = func() time.Time { return now }
	done := make(chan struct{})
	sched.Register(model.JobTypeTrackerTrigger, func(_ context.Context, _ model.Job) {
		defer close(done)
		panic("boom")
	})

	assert.NotPanics(t, func() {
		sched.tick(context.Background())
		<-done
		time.Sleep(10 * time.Millisecond)
	})
}
