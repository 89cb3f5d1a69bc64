package notify

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

type fakeStore struct {
	mu        sync.Mutex
	enqueued  map[uuid.UUID]model.Notification
	attempts  map[uuid.UUID]uint32
	delivered map[uuid.UUID]bool
	failed    map[uuid.UUID]bool
	nextAt    map[uuid.UUID]time.Time
	due       []model.Notification
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		enqueued:  map[uuid.UUID]model.Notification{},
		attempts:  map[uuid.UUID]uint32{},
		delivered: map[uuid.UUID]bool{},
		failed:    map[uuid.UUID]bool{},
		nextAt:    map[uuid.UUID]time.Time{},
	}
}

func (f *fakeStore) Enqueue(_ context.Context, n model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued[n.ID] = n
	return nil
}

func (f *fakeStore) ExistsPendingWithKey(_ context.Context, dedupKey string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.enqueued {
		if !f.delivered[n.ID] && !f.failed[n.ID] && n.DedupKey() == dedupKey {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListDue(_ context.Context, _ time.Time, _ int) ([]model.Notification, error) {
	return f.due, nil
}

func (f *fakeStore) MarkDelivered(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered[id] = true
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = true
	return nil
}

func (f *fakeStore) Attempts(_ context.Context, id uuid.UUID) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[id], nil
}

func (f *fakeStore) Reschedule(_ context.Context, id uuid.UUID, attempts uint32, nextAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[id] = attempts
	f.nextAt[id] = nextAt
	return nil
}

type fakeTransport struct {
	fail func(model.Notification) error
}

func (t *fakeTransport) Send(_ context.Context, n model.Notification) error {
	if t.fail != nil {
		return t.fail(n)
	}
	return nil
}

func testContent(trackerName string) model.NotificationContent {
	return model.NotificationContent{
		Template:               model.TemplateTrackerContentChanges,
		TrackerContentChanges: &model.TrackerContentChangesContent{TrackerName: trackerName},
	}
}

func TestSchedule_SuppressesDuplicatePending(t *testing.T) {
	store := newFakeStore()
	sched := New(store, &fakeTransport{})

	id1, err := sched.Schedule(context.Background(), "user@example.com", testContent("tracker-a"), time.Now())
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id1)

	id2, err := sched.Schedule(context.Background(), "user@example.com", testContent("tracker-a"), time.Now())
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, id2, "duplicate dedup key should be suppressed")
}

func TestDrain_MarksDeliveredOnSuccess(t *testing.T) {
	store := newFakeStore()
	id := uuid.New()
	store.due = []model.Notification{{ID: id, Destination: "a@b.com", Content: testContent("t")}}

	sched := New(store, &fakeTransport{})
	sched.Drain(context.Background())

	assert.True(t, store.delivered[id])
}

func TestDrain_ReschedulesOnTransportFailure(t *testing.T) {
	store := newFakeStore()
	id := uuid.New()
	store.due = []model.Notification{{ID: id, Destination: "a@b.com", Content: testContent("t")}}

	sched := New(store, &fakeTransport{fail: func(model.Notification) error { return errors.New("smtp down") }})
	sched.Drain(context.Background())

	assert.False(t, store.failed[id])
	assert.Equal(t, uint32(1), store.attempts[id])
}

func TestDrain_MarksFailedAfterMaxAttempts(t *testing.T) {
	store := newFakeStore()
	id := uuid.New()
	store.due = []model.Notification{{ID: id, Destination: "a@b.com", Content: testContent("t")}}
	store.attempts[id] = 10 // already past any reasonable strategy's MaxAttempts

	sched := New(store, &fakeTransport{fail: func(model.Notification) error { return errors.New("smtp down") }})
	sched.Drain(context.Background())

	assert.True(t, store.failed[id])
}
