// Package jobstore is the durable Job Store: transactional key/value
// persistence over Jobs, built on gorm.
package jobstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/secutils-dev/scheduler/internal/apperrors"
	"github.com/secutils-dev/scheduler/internal/model"
	"gorm.io/gorm"
)

// Store is a gorm-backed implementation of the Job Store contract.
type Store struct {
	db *gorm.DB
}

// New builds a Store over an already-connected *gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates/updates the scheduler_jobs table.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&jobRow{})
}

// Upsert creates or replaces a job by id. Concurrent updates are
// last-writer-wins by LastUpdated. A Cron/Repeated job created with no
// NextTick is armed from its schedule relative to now, so it becomes
// eligible for ListDue right away instead of sitting dormant forever (the
// scheduler's own SetTicks only rearms jobs that are already due).
func (s *Store) Upsert(ctx context.Context, job model.Job) error {
	if job.NextTick == 0 && job.Kind != model.JobKindOneShot {
		next, err := nextTickFromSchedule(job.Kind, job.Schedule, time.Now())
		if err != nil {
			return apperrors.Wrap(apperrors.KindClientValidation, "compute initial next tick", err)
		}
		job.NextTick = next
	}
	row := fromDomain(job)
	err := s.db.WithContext(ctx).Save(&row).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "upsert job", err)
	}
	return nil
}

// Get retrieves a job by id. A nil, nil result means the job does not exist.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	var row jobRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "get job", err)
	}
	job := row.toDomain()
	return &job, nil
}

// Delete removes a job by id. Deleting a non-existent job is a no-op.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Delete(&jobRow{}, "id = ?", id).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "delete job", err)
	}
	return nil
}

// ListDue returns all jobs with 0 < next_tick <= now, regardless of
// Stopped; the scheduler applies the stopped/retry gates itself.
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]model.Job, error) {
	var rows []jobRow
	err := s.db.WithContext(ctx).
		Where("next_tick > 0 AND next_tick <= ?", now.Unix()).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "list due jobs", err)
	}
	return toDomainSlice(rows), nil
}

// SetTicks updates next_tick (0 when absent) and last_tick.
func (s *Store) SetTicks(ctx context.Context, id uuid.UUID, next, last int64) error {
	err := s.db.WithContext(ctx).Model(&jobRow{}).Where("id = ?", id).Updates(map[string]any{
		"next_tick":    next,
		"last_tick":    last,
		"ran":          true,
		"count":        gorm.Expr("count + 1"),
		"last_updated": time.Now().Unix(),
	}).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "set job ticks", err)
	}
	return nil
}

// SetStopped transitions a job's stopped flag. true -> false also clears
// any retry state embedded in Extra.
func (s *Store) SetStopped(ctx context.Context, id uuid.UUID, stopped bool) error {
	updates := map[string]any{
		"stopped":      stopped,
		"last_updated": time.Now().Unix(),
	}
	if !stopped {
		row, err := s.getRow(ctx, id)
		if err != nil {
			return err
		}
		if row == nil {
			return apperrors.New(apperrors.KindNotFound, "job not found")
		}
		meta, err := DecodeMetadata(row.Extra)
		if err != nil {
			return apperrors.Wrap(apperrors.KindStorage, "decode job metadata", err)
		}
		if meta.Retry != nil {
			meta.Retry = nil
			extra, err := EncodeMetadata(meta)
			if err != nil {
				return apperrors.Wrap(apperrors.KindStorage, "encode job metadata", err)
			}
			updates["extra"] = extra
		}
	}
	err := s.db.WithContext(ctx).Model(&jobRow{}).Where("id = ?", id).Updates(updates).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "set job stopped", err)
	}
	return nil
}

// GetMeta decodes the JobMetadata stored in Extra.
func (s *Store) GetMeta(ctx context.Context, id uuid.UUID) (*model.JobMetadata, error) {
	row, err := s.getRow(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	meta, err := DecodeMetadata(row.Extra)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "decode job metadata", err)
	}
	return &meta, nil
}

// SetMeta replaces the JobMetadata stored in Extra.
func (s *Store) SetMeta(ctx context.Context, id uuid.UUID, meta model.JobMetadata) error {
	extra, err := EncodeMetadata(meta)
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "encode job metadata", err)
	}
	err = s.db.WithContext(ctx).Model(&jobRow{}).Where("id = ?", id).Updates(map[string]any{
		"extra":        extra,
		"last_updated": time.Now().Unix(),
	}).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "set job metadata", err)
	}
	return nil
}

// TimeUntilNext returns the minimum next_tick-since across jobs whose
// next_tick is still in the future, or nil if there is none.
func (s *Store) TimeUntilNext(ctx context.Context, since time.Time) (*time.Duration, error) {
	var row struct{ NextTick int64 }
	err := s.db.WithContext(ctx).Model(&jobRow{}).
		Select("MIN(next_tick) AS next_tick").
		Where("next_tick > ?", since.Unix()).
		Scan(&row).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "time until next job", err)
	}
	if row.NextTick == 0 {
		return nil, nil
	}
	d := time.Duration(row.NextTick-since.Unix()) * time.Second
	return &d, nil
}

// PageToken is an opaque cursor for IterPaged.
type PageToken struct {
	lastID uuid.UUID
	valid  bool
}

// IterPaged returns up to pageSize jobs ordered by id, strictly after the
// cursor in token. Pass a zero PageToken to start from the beginning. The
// returned token is passed to the next call; iteration is done when the
// returned slice is shorter than pageSize.
func (s *Store) IterPaged(ctx context.Context, token PageToken, pageSize int) ([]model.Job, PageToken, error) {
	q := s.db.WithContext(ctx).Order("id ASC").Limit(pageSize)
	if token.valid {
		q = q.Where("id > ?", token.lastID)
	}
	var rows []jobRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, token, apperrors.Wrap(apperrors.KindStorage, "iter paged jobs", err)
	}
	next := token
	if len(rows) > 0 {
		next = PageToken{lastID: rows[len(rows)-1].ID, valid: true}
	}
	return toDomainSlice(rows), next, nil
}

// ListStoppedByKind returns stopped jobs matching one of the given
// JobTypes, used by the Fetch Worker to find trackers needing processing.
func (s *Store) ListStoppedByKind(ctx context.Context, limit int, kinds []model.JobType) ([]model.Job, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	var rows []jobRow
	err := s.db.WithContext(ctx).
		Where("stopped = ?", true).
		Where("job_type IN ?", kinds).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "list stopped jobs by kind", err)
	}
	return toDomainSlice(rows), nil
}

func (s *Store) getRow(ctx context.Context, id uuid.UUID) (*jobRow, error) {
	var row jobRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "get job row", err)
	}
	return &row, nil
}

func toDomainSlice(rows []jobRow) []model.Job {
	jobs := make([]model.Job, len(rows))
	for i, r := range rows {
		jobs[i] = r.toDomain()
	}
	return jobs
}
