package triggerjob

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/secutils-dev/scheduler/internal/model"
)

type fakeJobStore struct {
	stoppedCalls map[uuid.UUID]bool
}

func (f *fakeJobStore) SetStopped(_ context.Context, id uuid.UUID, stopped bool) error {
	if f.stoppedCalls == nil {
		f.stoppedCalls = map[uuid.UUID]bool{}
	}
	f.stoppedCalls[id] = stopped
	return nil
}

func TestCallback_MarksJobStopped(t *testing.T) {
	jobs := &fakeJobStore{}
	cb := Callback(jobs)

	id := uuid.New()
	cb(context.Background(), model.Job{ID: id, JobType: model.JobTypeTrackerTrigger})

	assert.True(t, jobs.stoppedCalls[id])
}
