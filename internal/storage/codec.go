package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"batsoc/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Stamp sets the current schema and codec versions on a record.
func Stamp(v *model.VersionedRecord) {
	v.SchemaVersion = CurrentSchemaVersion
	v.CodecVersion = CurrentCodecVersion
}

// EncodeModel serializes a model record. A record without version
// information is stamped with the current versions.
func EncodeModel(m model.ModelRecord) ([]byte, error) {
	if m.ID == "" {
		return nil, fmt.Errorf("model id is required")
	}
	if m.VersionedRecord == (model.VersionedRecord{}) {
		Stamp(&m.VersionedRecord)
	}
	return json.Marshal(m)
}

func DecodeModel(data []byte) (model.ModelRecord, error) {
	var record model.ModelRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.ModelRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.ModelRecord{}, err
	}
	return record, nil
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if r.VersionedRecord == (model.VersionedRecord{}) {
		Stamp(&r.VersionedRecord)
	}
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var record model.RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return record, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
