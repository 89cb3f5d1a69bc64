package jobstore

import (
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/secutils-dev/scheduler/internal/model"
)

// jobRow is the gorm mapping for the scheduler_jobs table.
// It is kept distinct from model.Job so the domain type stays free of ORM
// tags and storage-only columns (repeating/repeated_every split out of
// Kind/Schedule for indexability).
type jobRow struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	LastUpdated   int64     `gorm:"column:last_updated;index"`
	NextTick      int64     `gorm:"column:next_tick;index"`
	LastTick      int64     `gorm:"column:last_tick"`
	JobType       string    `gorm:"column:job_type;index"`
	Count         uint32    `gorm:"column:count"`
	Ran           bool      `gorm:"column:ran"`
	Stopped       bool      `gorm:"column:stopped;index"`
	Schedule      string    `gorm:"column:schedule"`
	Repeating     bool      `gorm:"column:repeating"`
	RepeatedEvery int64     `gorm:"column:repeated_every"`
	Extra         []byte    `gorm:"column:extra"`
}

func (jobRow) TableName() string { return "scheduler_jobs" }

func fromDomain(j model.Job) jobRow {
	row := jobRow{
		ID:          j.ID,
		LastUpdated: time.Now().Unix(),
		NextTick:    j.NextTick,
		LastTick:    j.LastTick,
		JobType:     string(j.JobType),
		Count:       j.Count,
		Ran:         j.Ran,
		Stopped:     j.Stopped,
		Extra:       j.Extra,
	}
	switch j.Kind {
	case model.JobKindRepeated:
		row.Repeating = true
		row.RepeatedEvery = parseIntervalMillis(j.Schedule)
	default:
		row.Schedule = j.Schedule
	}
	return row
}

func (r jobRow) toDomain() model.Job {
	kind := model.JobKindCron
	schedule := r.Schedule
	switch {
	case r.Repeating:
		kind = model.JobKindRepeated
		schedule = formatIntervalMillis(r.RepeatedEvery)
	case r.Schedule == "":
		kind = model.JobKindOneShot
	}
	return model.Job{
		ID:        r.ID,
		Kind:      kind,
		JobType:   model.JobType(r.JobType),
		Schedule:  schedule,
		NextTick:  r.NextTick,
		LastTick:  r.LastTick,
		Ran:       r.Ran,
		Stopped:   r.Stopped,
		Count:     r.Count,
		Extra:     r.Extra,
		UpdatedAt: time.Unix(r.LastUpdated, 0),
	}
}

func parseIntervalMillis(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func formatIntervalMillis(n int64) string {
	return strconv.FormatInt(n, 10)
}
