package tracker

import (
	"time"

	"github.com/google/uuid"
	"github.com/secutils-dev/scheduler/internal/encoding"
	"github.com/secutils-dev/scheduler/internal/model"
)

// trackerRow mirrors the `trackers` table : UNIQUE(user_id,
// kind, name), a weak (non-FK) reference to its Job, and an opaque
// job_config/data pair of encoded columns.
type trackerRow struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID    int64      `gorm:"column:user_id;uniqueIndex:uq_tracker_user_kind_name"`
	Kind      byte       `gorm:"column:kind;uniqueIndex:uq_tracker_user_kind_name"`
	Name      string     `gorm:"column:name;uniqueIndex:uq_tracker_user_kind_name"`
	URL       string     `gorm:"column:url"`
	JobID     *uuid.UUID `gorm:"column:job_id;type:uuid"`
	JobConfig []byte     `gorm:"column:job_config"`
	Data      []byte     `gorm:"column:data"`
	CreatedAt int64      `gorm:"column:created_at"`
}

func (trackerRow) TableName() string { return "trackers" }

// settingsPayload is the encoded shape of (JobConfig || Data). Splitting
// Job and the rest of TrackerSettings across two columns, as the schema
// does, keeps "does this tracker have a job config" queryable without a
// full decode.
type settingsPayload struct {
	Revisions           uint
	Delay               time.Duration
	Scripts             model.TrackerScripts
	Headers             map[string]string
	EnableNotifications bool
}

type jobConfigPayload struct {
	Schedule string
	Retry    *model.RetryStrategy
}

func fromDomain(t model.Tracker) (trackerRow, error) {
	data, err := encoding.Encode(settingsPayload{
		Revisions:           t.Settings.Revisions,
		Delay:               t.Settings.Delay,
		Scripts:             t.Settings.Scripts,
		Headers:             t.Settings.Headers,
		EnableNotifications: t.Settings.EnableNotifications,
	})
	if err != nil {
		return trackerRow{}, err
	}

	var jobConfig []byte
	if t.Settings.Job != nil {
		jobConfig, err = encoding.Encode(jobConfigPayload{
			Schedule: t.Settings.Job.Schedule,
			Retry:    t.Settings.Job.Retry,
		})
		if err != nil {
			return trackerRow{}, err
		}
	}

	return trackerRow{
		ID:        t.ID,
		UserID:    t.UserID,
		Kind:      byte(t.Kind),
		Name:      t.Name,
		URL:       t.URL,
		JobID:     t.JobID,
		JobConfig: jobConfig,
		Data:      data,
		CreatedAt: t.CreatedAt.Unix(),
	}, nil
}

func (r trackerRow) toDomain() (model.Tracker, error) {
	var data settingsPayload
	if err := encoding.Decode(r.Data, &data); err != nil {
		return model.Tracker{}, err
	}

	var jobCfg *model.TrackerJobConfig
	if len(r.JobConfig) > 0 {
		var jc jobConfigPayload
		if err := encoding.Decode(r.JobConfig, &jc); err != nil {
			return model.Tracker{}, err
		}
		jobCfg = &model.TrackerJobConfig{Schedule: jc.Schedule, Retry: jc.Retry}
	}

	return model.Tracker{
		ID:     r.ID,
		UserID: r.UserID,
		Name:   r.Name,
		URL:    r.URL,
		Kind:   model.TrackerKind(r.Kind),
		Settings: model.TrackerSettings{
			Revisions:           data.Revisions,
			Job:                 jobCfg,
			Delay:               data.Delay,
			Scripts:             data.Scripts,
			Headers:             data.Headers,
			EnableNotifications: data.EnableNotifications,
		},
		JobID:     r.JobID,
		CreatedAt: time.Unix(r.CreatedAt, 0),
	}, nil
}
