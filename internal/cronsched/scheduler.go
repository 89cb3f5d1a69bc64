// Package cronsched is the Cron Scheduler : a cooperative
// task loop that fires due jobs, respecting the stopped/retry gates, and
// dispatches each one to its registered callback on its own goroutine.
package cronsched

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/secutils-dev/scheduler/internal/cronspec"
	"github.com/secutils-dev/scheduler/internal/model"
)

// MaxWait bounds the scheduler's sleep between ticks so externally
// inserted jobs become visible promptly.
const MaxWait = time.Second

// Store is the subset of the Job Store the scheduler needs. Defined here
// (consumer side) so tests can substitute an in-memory fake instead of a
// real database.
type Store interface {
	ListDue(ctx context.Context, now time.Time) ([]model.Job, error)
	SetTicks(ctx context.Context, id uuid.UUID, next, last int64) error
	GetMeta(ctx context.Context, id uuid.UUID) (*model.JobMetadata, error)
	TimeUntilNext(ctx context.Context, since time.Time) (*time.Duration, error)
}

// Callback is invoked when a job fires. It receives the job as it looked
// at dispatch time (after ticks were advanced).
type Callback func(ctx context.Context, job model.Job)

// Scheduler drives time-based job execution within a single process.
type Scheduler struct {
	store Store
	now   func() time.Time

	mu        sync.RWMutex
	callbacks map[model.JobType]Callback

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	running bool
	runMu   sync.Mutex
}

// New builds a Scheduler over the given Store. now defaults to time.Now.
func New(store Store) *Scheduler {
	return &Scheduler{
		store:     store,
		now:       time.Now,
		callbacks: make(map[model.JobType]Callback),
	}
}

// Register assigns the callback invoked when a job of the given JobType
// fires. Must be called before Start.
func (s *Scheduler) Register(jobType model.JobType, cb Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks[jobType] = cb
}

// Start begins the scheduler loop; it returns immediately, running the
// loop on its own goroutine until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.loop(runCtx)
}

// Running reports whether the loop is currently active.
func (s *Scheduler) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.running
}

// Stop cancels the loop and waits for the current iteration to finish.
func (s *Scheduler) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.runMu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		s.tick(ctx)

		wait, err := s.store.TimeUntilNext(ctx, s.now())
		sleep := MaxWait
		if err == nil && wait != nil && *wait < sleep {
			sleep = *wait
		}
		if sleep <= 0 {
			sleep = time.Millisecond
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

// tick examines due jobs once, dispatching any that pass the stopped/retry
// gates. Unexported; tests in this package call it for single-step control.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		logrus.WithError(err).Error("cronsched: failed to list due jobs")
		return
	}

	for _, job := range due {
		s.dispatchIfEligible(ctx, job, now)
	}
}

func (s *Scheduler) dispatchIfEligible(ctx context.Context, job model.Job, now time.Time) {
	log := logrus.WithField("job_id", job.ID)

	if job.Stopped {
		return
	}

	meta, err := s.store.GetMeta(ctx, job.ID)
	if err != nil {
		log.WithError(err).Error("cronsched: failed to load job metadata")
		return
	}
	if meta != nil && meta.Retry != nil && meta.Retry.NextAt > now.Unix() {
		return
	}

	next, err := s.nextTick(job, now)
	if err != nil {
		log.WithError(err).Error("cronsched: failed to compute next tick")
		return
	}

	if err := s.store.SetTicks(ctx, job.ID, next, now.Unix()); err != nil {
		log.WithError(err).Error("cronsched: failed to advance ticks")
		return
	}
	job.NextTick, job.LastTick, job.Ran = next, now.Unix(), true

	s.mu.RLock()
	cb, ok := s.callbacks[job.JobType]
	s.mu.RUnlock()
	if !ok {
		log.WithField("job_type", job.JobType).Warn("cronsched: no callback registered")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("cronsched: job callback panicked")
			}
		}()
		cb(ctx, job)
	}()
}

// nextTick computes the next firing time for job, strictly greater than
// now. One-shot jobs never rearm (next tick 0).
func (s *Scheduler) nextTick(job model.Job, now time.Time) (int64, error) {
	switch job.Kind {
	case model.JobKindOneShot:
		return 0, nil
	case model.JobKindRepeated:
		millis, err := parseIntervalMillis(job.Schedule)
		if err != nil {
			return 0, err
		}
		// now becomes job.LastTick: dispatchIfEligible calls SetTicks with
		// last=now right after this returns, so now+interval and
		// last_tick+interval agree.
		return now.Add(time.Duration(millis) * time.Millisecond).Unix(), nil
	default:
		next, err := cronspec.Next(job.Schedule, now)
		if err != nil {
			return 0, err
		}
		return next.Unix(), nil
	}
}
