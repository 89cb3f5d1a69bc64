package notifystore

import (
	"time"

	"github.com/google/uuid"
	"github.com/secutils-dev/scheduler/internal/encoding"
	"github.com/secutils-dev/scheduler/internal/model"
)

// notificationRow mirrors the `notifications` table.
type notificationRow struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Destination string    `gorm:"column:destination"`
	Content     []byte    `gorm:"column:content"`
	ScheduledAt int64     `gorm:"column:scheduled_at;index"`
}

func (notificationRow) TableName() string { return "notifications" }

// State tracks delivery progress for a notification across the
// `scheduler_notification_states` side table, a per-job-state channel
// model rather than a single status column.
type State string

const (
	StatePending   State = "pending"
	StateDelivered State = "delivered"
	StateFailed    State = "failed"
)

type notificationStateRow struct {
	ID       uuid.UUID `gorm:"column:id;primaryKey"`
	State    string    `gorm:"column:state;primaryKey"`
	Attempts uint32    `gorm:"column:attempts"`
	NextAt   int64     `gorm:"column:next_at"`
}

func (notificationStateRow) TableName() string { return "scheduler_notification_states" }

func fromDomain(n model.Notification) (notificationRow, error) {
	content, err := encoding.Encode(n.Content)
	if err != nil {
		return notificationRow{}, err
	}
	return notificationRow{
		ID:          n.ID,
		Destination: n.Destination,
		Content:     content,
		ScheduledAt: n.ScheduledAt.Unix(),
	}, nil
}

func (r notificationRow) toDomain() (model.Notification, error) {
	var content model.NotificationContent
	if err := encoding.Decode(r.Content, &content); err != nil {
		return model.Notification{}, err
	}
	return model.Notification{
		ID:          r.ID,
		Destination: r.Destination,
		Content:     content,
		ScheduledAt: time.Unix(r.ScheduledAt, 0),
	}, nil
}
