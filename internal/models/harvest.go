package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"
)

// HarvestStatus captures the lifecycle of an upload session.
type HarvestStatus string

const (
	HarvestStatusNewHarvest     HarvestStatus = "new_harvest"
	HarvestStatusUploading      HarvestStatus = "uploading"
	HarvestStatusScanning       HarvestStatus = "scanning"
	HarvestStatusMetadataReview HarvestStatus = "metadata_review"
	HarvestStatusProcessing     HarvestStatus = "processing"
	HarvestStatusComplete       HarvestStatus = "complete"
)

// Harvest is one upload session. It owns its items and mappings.
type Harvest struct {
	ID         int64           `db:"id" json:"id"`
	ProjectID  int64           `db:"project_id" json:"project_id"`
	CreatorID  int64           `db:"creator_id" json:"creator_id"`
	Status     HarvestStatus   `db:"status" json:"status"`
	UploadPath string          `db:"upload_path" json:"upload_path"`
	Mappings   HarvestMappings `db:"mappings" json:"mappings"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// HarvestMapping attaches a site and utc offset to a directory of uploads.
type HarvestMapping struct {
	Path      string  `json:"path" yaml:"path"`
	SiteID    *int64  `json:"site_id,omitempty" yaml:"site_id,omitempty" validate:"omitempty,gt=0"`
	UTCOffset *string `json:"utc_offset,omitempty" yaml:"utc_offset,omitempty" validate:"omitempty,utc_offset"`
	Recursive bool    `json:"recursive" yaml:"recursive"`
}

// NormalizedPath returns the mapping path without leading or trailing
// slashes; the harvest root is the empty string.
func (m HarvestMapping) NormalizedPath() string {
	p := strings.Trim(path.Clean("/"+strings.ReplaceAll(m.Path, "\\", "/")), "/")
	if p == "." {
		return ""
	}
	return p
}

// HarvestMappings is persisted as a JSONB array.
type HarvestMappings []HarvestMapping

// Value marshals mappings to JSON for persistence.
func (m HarvestMappings) Value() (driver.Value, error) {
	if m == nil {
		m = HarvestMappings{}
	}
	data, err := json.Marshal([]HarvestMapping(m))
	if err != nil {
		return nil, fmt.Errorf("marshal harvest mappings: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the mapping list.
func (m *HarvestMappings) Scan(value interface{}) error {
	var out []HarvestMapping
	if err := scanJSON(value, &out, "HarvestMappings"); err != nil {
		return err
	}
	*m = out
	return nil
}

// scanJSON decodes a JSON column into dest. NULL and empty payloads leave
// dest at its zero value.
func scanJSON(value interface{}, dest interface{}, name string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, name)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return nil
}
