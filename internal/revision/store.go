// Package revision is the Revision Store & Diff engine :
// content-addressed, insert-only history per tracker with capacity
// enforcement, plus transient diffing computed on read.
package revision

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/secutils-dev/scheduler/internal/apperrors"
	"github.com/secutils-dev/scheduler/internal/model"
	"gorm.io/gorm"
)

// Store is a gorm-backed implementation of the Revision Store.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&historyRow{})
}

// Latest returns the most recent revision for a tracker, or nil if none
// exist yet.
func (s *Store) Latest(ctx context.Context, trackerID uuid.UUID) (*model.DataRevision, error) {
	var row historyRow
	err := s.db.WithContext(ctx).
		Where("tracker_id = ?", trackerID).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "get latest revision", err)
	}
	rev, err := row.toDomain()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "decode revision", err)
	}
	return &rev, nil
}

// List returns every revision for a tracker, oldest first.
func (s *Store) List(ctx context.Context, trackerID uuid.UUID) ([]model.DataRevision, error) {
	var rows []historyRow
	err := s.db.WithContext(ctx).
		Where("tracker_id = ?", trackerID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "list revisions", err)
	}
	out := make([]model.DataRevision, len(rows))
	for i, r := range rows {
		rev, err := r.toDomain()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindStorage, "decode revision", err)
		}
		out[i] = rev
	}
	return out, nil
}

// Append inserts a new revision and enforces capacity by dropping the
// oldest rows beyond keep at write time.
func (s *Store) Append(ctx context.Context, userID int64, rev model.DataRevision, keep uint) error {
	row, err := fromDomain(userID, rev)
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "encode revision", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&row).Error; err != nil {
			return apperrors.Wrap(apperrors.KindStorage, "insert revision", err)
		}
		if keep == 0 {
			return nil
		}
		var ids []uuid.UUID
		err := tx.Model(&historyRow{}).
			Where("tracker_id = ?", rev.TrackerID).
			Order("created_at DESC").
			Offset(int(keep)).
			Pluck("id", &ids).Error
		if err != nil {
			return apperrors.Wrap(apperrors.KindStorage, "find excess revisions", err)
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Delete(&historyRow{}, "id IN ?", ids).Error; err != nil {
			return apperrors.Wrap(apperrors.KindStorage, "prune old revisions", err)
		}
		return nil
	})
}

// DeleteAll removes every revision for a tracker, satisfying the
// "deleting T removes all R_i atomically" invariant and also used to
// clear history on a tracker URL change.
func (s *Store) DeleteAll(ctx context.Context, trackerID uuid.UUID) error {
	err := s.db.WithContext(ctx).Delete(&historyRow{}, "tracker_id = ?", trackerID).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "delete tracker history", err)
	}
	return nil
}
