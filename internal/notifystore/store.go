// Package notifystore persists Notifications and their per-state delivery
// markers in the scheduler_notification_states side table.
package notifystore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/secutils-dev/scheduler/internal/apperrors"
	"github.com/secutils-dev/scheduler/internal/model"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&notificationRow{}, &notificationStateRow{})
}

// Enqueue persists a notification and marks it pending. It does not check
// for duplicates itself; callers use ExistsPendingWithKey first (as
// notify.Scheduler.Schedule does).
func (s *Store) Enqueue(ctx context.Context, n model.Notification) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := fromDomain(n)
		if err != nil {
			return apperrors.Wrap(apperrors.KindStorage, "encode notification", err)
		}
		if err := tx.Create(&row).Error; err != nil {
			return apperrors.Wrap(apperrors.KindStorage, "enqueue notification", err)
		}
		state := notificationStateRow{ID: n.ID, State: string(StatePending)}
		if err := tx.Create(&state).Error; err != nil {
			return apperrors.Wrap(apperrors.KindStorage, "set notification state", err)
		}
		return nil
	})
}

// ListDue returns pending notifications with scheduled_at <= now, whose
// retry gate (next_at) has also passed, ordered by scheduled_at ascending.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]model.Notification, error) {
	var ids []uuid.UUID
	err := s.db.WithContext(ctx).Model(&notificationStateRow{}).
		Where("state = ? AND next_at <= ?", StatePending, now.Unix()).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "list pending notification ids", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []notificationRow
	err = s.db.WithContext(ctx).
		Where("id IN ? AND scheduled_at <= ?", ids, now.Unix()).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "list due notifications", err)
	}

	out := make([]model.Notification, 0, len(rows))
	for _, row := range rows {
		n, err := row.toDomain()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindStorage, "decode notification", err)
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkDelivered transitions a notification out of the pending state.
func (s *Store) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	return s.setState(ctx, id, StateDelivered)
}

// MarkFailed transitions a notification to the failed state terminally,
// once its retry budget is exhausted.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID) error {
	return s.setState(ctx, id, StateFailed)
}

// Attempts returns how many delivery attempts a pending notification has
// already accumulated, used to compute the next backoff.
func (s *Store) Attempts(ctx context.Context, id uuid.UUID) (uint32, error) {
	var row notificationStateRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, apperrors.Wrap(apperrors.KindStorage, "get notification attempts", err)
	}
	return row.Attempts, nil
}

// Reschedule keeps a notification pending but gates its next delivery
// attempt behind nextAt, recording the attempt count — the same
// attempts/next_at shape the Job Store uses for retry (internal/retry).
func (s *Store) Reschedule(ctx context.Context, id uuid.UUID, attempts uint32, nextAt time.Time) error {
	err := s.db.WithContext(ctx).Model(&notificationStateRow{}).
		Where("id = ?", id).
		Updates(map[string]any{"attempts": attempts, "next_at": nextAt.Unix()}).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "reschedule notification", err)
	}
	return nil
}

func (s *Store) setState(ctx context.Context, id uuid.UUID, state State) error {
	err := s.db.WithContext(ctx).Model(&notificationStateRow{}).
		Where("id = ?", id).
		Update("state", string(state)).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "set notification state", err)
	}
	return nil
}

// ExistsPendingWithKey reports whether a pending notification with the
// given dedup key is already queued, for enqueue-time suppression. It
// scans pending notifications since content is opaque to SQL; callers
// should keep the pending set small (it is, by construction: one row per
// unresolved fetch).
func (s *Store) ExistsPendingWithKey(ctx context.Context, dedupKey string) (bool, error) {
	pending, err := s.ListDue(ctx, farFuture, 10000)
	if err != nil {
		return false, err
	}
	for _, n := range pending {
		if n.DedupKey() == dedupKey {
			return true, nil
		}
	}
	return false, nil
}

var farFuture = time.Unix(1<<62, 0)

// Get retrieves a single notification by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	var row notificationRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "get notification", err)
	}
	n, err := row.toDomain()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "decode notification", err)
	}
	return &n, nil
}
