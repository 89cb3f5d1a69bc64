package tracker

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/secutils-dev/scheduler/internal/apperrors"
	"github.com/secutils-dev/scheduler/internal/model"
	"gorm.io/gorm"
)

// Store is gorm-backed persistence over Tracker rows, matching the CRUD
// surface the Tracker Registry needs.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&trackerRow{})
}

func (s *Store) create(ctx context.Context, t model.Tracker) error {
	row, err := fromDomain(t)
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "encode tracker", err)
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return apperrors.Wrap(apperrors.KindConflict, "tracker name already exists for this user and kind", err)
		}
		return apperrors.Wrap(apperrors.KindStorage, "create tracker", err)
	}
	return nil
}

func (s *Store) update(ctx context.Context, t model.Tracker) error {
	row, err := fromDomain(t)
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "encode tracker", err)
	}
	res := s.db.WithContext(ctx).Save(&row)
	if res.Error != nil {
		if isUniqueViolation(res.Error) {
			return apperrors.Wrap(apperrors.KindConflict, "tracker name already exists for this user and kind", res.Error)
		}
		return apperrors.Wrap(apperrors.KindStorage, "update tracker", res.Error)
	}
	return nil
}

func (s *Store) delete(ctx context.Context, id uuid.UUID) error {
	if err := s.db.WithContext(ctx).Delete(&trackerRow{}, "id = ?", id).Error; err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "delete tracker", err)
	}
	return nil
}

// Get retrieves a tracker by id. Returns nil, nil if it does not exist.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*model.Tracker, error) {
	var row trackerRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "get tracker", err)
	}
	t, err := row.toDomain()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "decode tracker", err)
	}
	return &t, nil
}

// GetByJobID finds the tracker that weakly references jobID, the reverse
// direction of the Tracker->Job pointer the Fetch Worker needs to resolve a
// pending trigger job back to its tracker. Returns nil, nil if none does.
func (s *Store) GetByJobID(ctx context.Context, jobID uuid.UUID) (*model.Tracker, error) {
	var row trackerRow
	err := s.db.WithContext(ctx).First(&row, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "get tracker by job id", err)
	}
	t, err := row.toDomain()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "decode tracker", err)
	}
	return &t, nil
}

// List returns all trackers owned by userID.
func (s *Store) List(ctx context.Context, userID int64) ([]model.Tracker, error) {
	var rows []trackerRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "list trackers", err)
	}
	return toDomainSlice(rows)
}

// GetUnscheduled returns trackers where Settings.Schedulable() is true but
// JobID is nil: insertion targets for the TrackersSchedule reconciler job.
func (s *Store) GetUnscheduled(ctx context.Context) ([]model.Tracker, error) {
	var rows []trackerRow
	err := s.db.WithContext(ctx).Where("job_id IS NULL AND job_config IS NOT NULL").Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindStorage, "list unscheduled trackers", err)
	}
	trackers, err := toDomainSlice(rows)
	if err != nil {
		return nil, err
	}
	out := trackers[:0]
	for _, t := range trackers {
		if t.Settings.Schedulable() {
			out = append(out, t)
		}
	}
	return out, nil
}

// AttachJob writes job_id onto a tracker, used by the TrackersSchedule job
// once it has inserted the corresponding Job row.
func (s *Store) AttachJob(ctx context.Context, trackerID, jobID uuid.UUID) error {
	err := s.db.WithContext(ctx).Model(&trackerRow{}).Where("id = ?", trackerID).
		Update("job_id", jobID).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "attach job to tracker", err)
	}
	return nil
}

// DetachJob clears job_id, the weak back-reference half of the deletion
// order: detach from tracker, then delete job.
func (s *Store) DetachJob(ctx context.Context, trackerID uuid.UUID) error {
	err := s.db.WithContext(ctx).Model(&trackerRow{}).Where("id = ?", trackerID).
		Update("job_id", nil).Error
	if err != nil {
		return apperrors.Wrap(apperrors.KindStorage, "detach job from tracker", err)
	}
	return nil
}

func toDomainSlice(rows []trackerRow) ([]model.Tracker, error) {
	out := make([]model.Tracker, len(rows))
	for i, r := range rows {
		t, err := r.toDomain()
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindStorage, "decode tracker", err)
		}
		out[i] = t
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	// gorm+pgx surfaces unique violations as *pgconn.PgError with code
	// 23505; avoid importing the pgx package here for such a narrow check.
	return errors.Is(err, gorm.ErrDuplicatedKey) || containsUniqueHint(err)
}

func containsUniqueHint(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return len(msg) > 0 && (contains(msg, "23505") || contains(msg, "duplicate key") || contains(msg, "UNIQUE constraint"))
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	n, m := len(s), len(substr)
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}
