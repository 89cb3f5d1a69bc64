package revision

import (
	"time"

	"github.com/google/uuid"
	"github.com/secutils-dev/scheduler/internal/encoding"
	"github.com/secutils-dev/scheduler/internal/model"
)

// historyRow mirrors the `tracker_history` table.
type historyRow struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    int64     `gorm:"column:user_id;index"`
	TrackerID uuid.UUID `gorm:"column:tracker_id;type:uuid;index"`
	Data      []byte    `gorm:"column:data"`
	CreatedAt int64     `gorm:"column:created_at;index"`
}

func (historyRow) TableName() string { return "tracker_history" }

// dataPayload is the encoded shape of historyRow.Data: exactly one of the
// two fields is populated, matching Tracker.Kind.
type dataPayload struct {
	Resources *model.PageResourcesData
	Content   *model.PageContentData
}

func fromDomain(userID int64, rev model.DataRevision) (historyRow, error) {
	data, err := encoding.Encode(dataPayload{Resources: rev.Resources, Content: rev.Content})
	if err != nil {
		return historyRow{}, err
	}
	return historyRow{
		ID:        rev.ID,
		UserID:    userID,
		TrackerID: rev.TrackerID,
		Data:      data,
		CreatedAt: rev.CreatedAt.Unix(),
	}, nil
}

func (r historyRow) toDomain() (model.DataRevision, error) {
	var data dataPayload
	if err := encoding.Decode(r.Data, &data); err != nil {
		return model.DataRevision{}, err
	}
	return model.DataRevision{
		ID:        r.ID,
		TrackerID: r.TrackerID,
		Resources: data.Resources,
		Content:   data.Content,
		CreatedAt: time.Unix(r.CreatedAt, 0),
	}, nil
}
