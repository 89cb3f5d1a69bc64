// Package notify is the Notification Scheduler : a thin
// schedule(destination, content, scheduled_at) contract plus the
// Notifications-Send cron job body that drains due notifications to an
// external Email Transport, retrying transport failures with the same
// backoff mechanism the Fetch Worker uses.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/secutils-dev/scheduler/internal/apperrors"
	"github.com/secutils-dev/scheduler/internal/model"
	"github.com/secutils-dev/scheduler/internal/retry"
)

// Store is the slice of notifystore.Store the Scheduler depends on,
// defined consumer-side per the package's established convention.
type Store interface {
	Enqueue(ctx context.Context, n model.Notification) error
	ExistsPendingWithKey(ctx context.Context, dedupKey string) (bool, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.Notification, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	Attempts(ctx context.Context, id uuid.UUID) (uint32, error)
	Reschedule(ctx context.Context, id uuid.UUID, attempts uint32, nextAt time.Time) error
}

// Transport delivers one notification to its destination. Implementations
// live outside this package as an external email transport; SMTP wiring
// in particular is out of scope here.
type Transport interface {
	Send(ctx context.Context, n model.Notification) error
}

// DrainBatchSize bounds how many due notifications one Notifications-Send
// tick processes, keeping each tick's worst-case latency bounded.
const DrainBatchSize = 100

// Scheduler enqueues and drains pending notifications over a Store and
// a Transport.
type Scheduler struct {
	store     Store
	transport Transport
	strategy  model.RetryStrategy
	now       func() time.Time
}

func New(store Store, transport Transport) *Scheduler {
	return &Scheduler{store: store, transport: transport, strategy: retry.DefaultStrategy, now: time.Now}
}

// Schedule enqueues a notification for delivery no earlier than
// scheduledAt, suppressing it if an equivalent one is already pending
// under the same deterministic dedup key.
func (s *Scheduler) Schedule(ctx context.Context, destination string, content model.NotificationContent, scheduledAt time.Time) (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, apperrors.Wrap(apperrors.KindStorage, "generate notification id", err)
	}
	n := model.Notification{ID: id, Destination: destination, Content: content, ScheduledAt: scheduledAt}

	dup, err := s.store.ExistsPendingWithKey(ctx, n.DedupKey())
	if err != nil {
		return uuid.Nil, err
	}
	if dup {
		return uuid.Nil, nil
	}

	if err := s.store.Enqueue(ctx, n); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Drain is the body of the Notifications-Send cron job: it hands every due
// notification to the Transport, delivering at most DrainBatchSize per
// call, and retries transport failures with exponential backoff.
func (s *Scheduler) Drain(ctx context.Context) {
	due, err := s.store.ListDue(ctx, s.now(), DrainBatchSize)
	if err != nil {
		logrus.WithError(err).Error("notify: failed to list due notifications")
		return
	}

	for _, n := range due {
		log := logrus.WithField("notification_id", n.ID)
		if err := s.transport.Send(ctx, n); err != nil {
			log.WithError(err).Warn("notify: transport delivery failed")
			s.handleFailure(ctx, n.ID, log)
			continue
		}
		if err := s.store.MarkDelivered(ctx, n.ID); err != nil {
			log.WithError(err).Error("notify: failed to mark notification delivered")
		}
	}
}

// handleFailure applies the same exponential backoff mechanism the Fetch
// Worker uses (internal/retry), re-arming the notification for a later
// attempt until the strategy's MaxAttempts is exhausted.
func (s *Scheduler) handleFailure(ctx context.Context, id uuid.UUID, log *logrus.Entry) {
	attempts, err := s.store.Attempts(ctx, id)
	if err != nil {
		log.WithError(err).Error("notify: failed to read notification attempt count")
		return
	}

	state := retry.Next(s.strategy, &model.RetryState{Attempts: attempts}, s.now())
	if retry.Exhausted(s.strategy, state.Attempts) {
		if err := s.store.MarkFailed(ctx, id); err != nil {
			log.WithError(err).Error("notify: failed to mark notification failed")
		}
		return
	}

	if err := s.store.Reschedule(ctx, id, state.Attempts, time.Unix(state.NextAt, 0)); err != nil {
		log.WithError(err).Error("notify: failed to reschedule notification")
	}
}
