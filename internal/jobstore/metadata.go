package jobstore

import (
	"bytes"
	"encoding/gob"

	"github.com/secutils-dev/scheduler/internal/encoding"
	"github.com/secutils-dev/scheduler/internal/model"
)

// metadataV1 is the legacy shape that predates retry-state support. It is
// only ever decoded, never written.
type metadataV1 struct {
	TrackerKind model.TrackerKind
}

type metadataV2 struct {
	TrackerKind model.TrackerKind
	Retry       *model.RetryState
}

// EncodeMetadata serializes a JobMetadata using the current schema version.
func EncodeMetadata(meta model.JobMetadata) ([]byte, error) {
	return encoding.Encode(metadataV2{TrackerKind: meta.TrackerKind, Retry: meta.Retry})
}

// DecodeMetadata decodes Job.Extra, tolerating the shorter legacy form
// (version 1, no Retry field) by defaulting Retry to nil.
func DecodeMetadata(payload []byte) (model.JobMetadata, error) {
	if len(payload) == 0 {
		return model.JobMetadata{}, nil
	}
	version, body := payload[0], payload[1:]
	if version == encoding.Version1 {
		var v1 metadataV1
		if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&v1); err != nil {
			return model.JobMetadata{}, err
		}
		return model.JobMetadata{TrackerKind: v1.TrackerKind, Retry: nil}, nil
	}
	var v2 metadataV2
	if err := encoding.Decode(payload, &v2); err != nil {
		return model.JobMetadata{}, err
	}
	return model.JobMetadata{TrackerKind: v2.TrackerKind, Retry: v2.Retry}, nil
}
