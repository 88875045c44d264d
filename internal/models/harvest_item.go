package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// HarvestItemStatus tracks one file through the harvest pipeline.
type HarvestItemStatus string

const (
	HarvestItemStatusNew              HarvestItemStatus = "new"
	HarvestItemStatusMetadataGathered HarvestItemStatus = "metadata_gathered"
	HarvestItemStatusCompleted        HarvestItemStatus = "completed"
	HarvestItemStatusFailed           HarvestItemStatus = "failed"
	HarvestItemStatusErrored          HarvestItemStatus = "errored"
)

// Terminal reports whether no further processing will happen without an
// explicit retry.
func (s HarvestItemStatus) Terminal() bool {
	switch s {
	case HarvestItemStatusCompleted, HarvestItemStatusFailed, HarvestItemStatusErrored:
		return true
	}
	return false
}

// HarvestItem is one file under harvest.
type HarvestItem struct {
	ID               int64             `db:"id" json:"id"`
	HarvestID        int64             `db:"harvest_id" json:"harvest_id"`
	Path             string            `db:"path" json:"path"`
	Status           HarvestItemStatus `db:"status" json:"status"`
	Info             HarvestItemInfo   `db:"info" json:"info"`
	AudioRecordingID *int64            `db:"audio_recording_id" json:"audio_recording_id,omitempty"`
	UploaderID       *int64            `db:"uploader_id" json:"uploader_id,omitempty"`
	Fingerprint      *string           `db:"fingerprint" json:"fingerprint,omitempty"`
	Deleted          bool              `db:"deleted" json:"deleted"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// ValidationStatus says whether a problem stops the harvest of an item.
type ValidationStatus string

const (
	ValidationFixable    ValidationStatus = "fixable"
	ValidationNotFixable ValidationStatus = "not_fixable"
)

// ValidationResult is one problem found with an item.
type ValidationResult struct {
	Code    string           `json:"code"`
	Status  ValidationStatus `json:"status"`
	Message string           `json:"message"`
}

// Fix records a correction the pipeline applied on its own.
type Fix struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// HarvestItemInfo is persisted as JSONB in harvest_items.info.
type HarvestItemInfo struct {
	Error       *string            `json:"error"`
	Fixes       []Fix              `json:"fixes"`
	FileInfo    *FileInfo          `json:"file_info,omitempty"`
	Validations []ValidationResult `json:"validations"`
}

// Valid reports whether no validation is not_fixable.
func (i HarvestItemInfo) Valid() bool {
	for _, v := range i.Validations {
		if v.Status == ValidationNotFixable {
			return false
		}
	}
	return true
}

// Value marshals info to JSON for persistence.
func (i HarvestItemInfo) Value() (driver.Value, error) {
	if i.Fixes == nil {
		i.Fixes = []Fix{}
	}
	if i.Validations == nil {
		i.Validations = []ValidationResult{}
	}
	data, err := json.Marshal(i)
	if err != nil {
		return nil, fmt.Errorf("marshal harvest item info: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the info struct.
func (i *HarvestItemInfo) Scan(value interface{}) error {
	*i = HarvestItemInfo{}
	return scanJSON(value, i, "HarvestItemInfo")
}

// FileInfo is the metadata gathered for an uploaded file.
type FileInfo struct {
	FileName         string         `json:"file_name"`
	Extension        string         `json:"extension"`
	DataLengthBytes  int64          `json:"data_length_bytes"`
	ModifiedTime     time.Time      `json:"modified_time"`
	FileHash         string         `json:"file_hash,omitempty"`
	MediaType        string         `json:"media_type,omitempty"`
	DurationSeconds  float64        `json:"duration_seconds,omitempty"`
	SampleRateHertz  int            `json:"sample_rate_hertz,omitempty"`
	Channels         int            `json:"channels,omitempty"`
	BitRateBPS       int            `json:"bit_rate_bps,omitempty"`
	BitDepth         int            `json:"bit_depth,omitempty"`
	RecordedDate     *time.Time     `json:"recorded_date,omitempty"`
	DateStamp        string         `json:"date_stamp,omitempty"`
	UTCOffset        *string        `json:"utc_offset,omitempty"`
	SiteID           *int64         `json:"site_id,omitempty"`
	UploaderID       *int64         `json:"uploader_id,omitempty"`
	ProjectID        *int64         `json:"project_id,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	OriginalFileName string         `json:"original_file_name"`
}
