// Package encoding implements the versioned, self-describing binary codec
// used for every opaque column in the storage schema (extra, data,
// job_config, content). Every encoded payload starts with a single version
// byte so future schema changes can be decoded without breaking old rows.
package encoding

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Version 1 predates retry-state support in JobMetadata; decoders must
// tolerate it and default the missing field to its zero value.
const (
	Version1 byte = 1
	Version2 byte = 2

	// CurrentVersion is written by Encode.
	CurrentVersion = Version2
)

// Encode gob-encodes v and prepends CurrentVersion.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(CurrentVersion)
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encoding: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode reads the version byte and gob-decodes the remainder into v.
// An empty payload is treated as a no-op (v keeps its zero value), which
// covers columns that were never written.
func Decode(payload []byte, v any) error {
	if len(payload) == 0 {
		return nil
	}
	version, body := payload[0], payload[1:]
	if version != Version1 && version != Version2 {
		return fmt.Errorf("encoding: unsupported schema version %d", version)
	}
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(v); err != nil {
		return fmt.Errorf("encoding: decode: %w", err)
	}
	return nil
}
