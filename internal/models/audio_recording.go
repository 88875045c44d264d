package models

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// AudioRecordingStatus tracks whether a recording's file is usable.
type AudioRecordingStatus string

const (
	AudioRecordingStatusNew       AudioRecordingStatus = "new"
	AudioRecordingStatusUploading AudioRecordingStatus = "uploading"
	AudioRecordingStatusToCheck   AudioRecordingStatus = "to_check"
	AudioRecordingStatusReady     AudioRecordingStatus = "ready"
	AudioRecordingStatusCorrupt   AudioRecordingStatus = "corrupt"
	AudioRecordingStatusAborted   AudioRecordingStatus = "aborted"
)

// AudioRecording is a harvested recording.
type AudioRecording struct {
	ID                int64                `db:"id" json:"id"`
	UUID              string               `db:"uuid" json:"uuid"`
	SiteID            int64                `db:"site_id" json:"site_id"`
	UploaderID        int64                `db:"uploader_id" json:"uploader_id"`
	CreatorID         int64                `db:"creator_id" json:"creator_id"`
	RecordedDate      time.Time            `db:"recorded_date" json:"recorded_date"`
	RecordedUTCOffset *string              `db:"recorded_utc_offset" json:"recorded_utc_offset,omitempty"`
	DurationSeconds   float64              `db:"duration_seconds" json:"duration_seconds"`
	SampleRateHertz   int                  `db:"sample_rate_hertz" json:"sample_rate_hertz"`
	Channels          int                  `db:"channels" json:"channels"`
	BitRateBPS        int                  `db:"bit_rate_bps" json:"bit_rate_bps"`
	MediaType         string               `db:"media_type" json:"media_type"`
	DataLengthBytes   int64                `db:"data_length_bytes" json:"data_length_bytes"`
	FileHash          string               `db:"file_hash" json:"file_hash"`
	Status            AudioRecordingStatus `db:"status" json:"status"`
	OriginalFileName  string               `db:"original_file_name" json:"original_file_name"`
	Notes             *string              `db:"notes" json:"notes,omitempty"`
	CreatedAt         time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time            `db:"updated_at" json:"updated_at"`
}

// RecordedEndDate is when the recording stops.
func (r AudioRecording) RecordedEndDate() time.Time {
	return r.RecordedDate.Add(time.Duration(r.DurationSeconds * float64(time.Second)))
}

// CanonicalFileName is the name the file is stored under:
// <uuid>_<yyMMdd-HHmm>.<ext>, with the date in UTC.
func (r AudioRecording) CanonicalFileName() string {
	return CanonicalFileName(r.UUID, r.RecordedDate, r.MediaType, r.OriginalFileName)
}

// StoragePath places the canonical file name under a two character prefix
// directory taken from the uuid.
func (r AudioRecording) StoragePath() string {
	name := r.CanonicalFileName()
	if len(r.UUID) < 2 {
		return name
	}
	return path.Join(strings.ToLower(r.UUID[:2]), name)
}

// CanonicalFileName builds <uuid>_<yyMMdd-HHmm>.<ext>. The extension comes
// from the media type, falling back to the original file's extension.
func CanonicalFileName(uuid string, recorded time.Time, mediaType, original string) string {
	ext := ExtensionForMediaType(mediaType)
	if ext == "" {
		ext = strings.TrimPrefix(strings.ToLower(path.Ext(original)), ".")
	}
	return fmt.Sprintf("%s_%s.%s", strings.ToLower(uuid), recorded.UTC().Format("060102-1504"), ext)
}

var mediaTypes = map[string]string{
	"wav":  "audio/wav",
	"flac": "audio/x-flac",
	"mp3":  "audio/mp3",
	"ogg":  "audio/ogg",
	"oga":  "audio/ogg",
	"webm": "audio/webm",
	"wma":  "audio/x-ms-wma",
	"wv":   "audio/x-wv",
	"aac":  "audio/aac",
	"m4a":  "audio/mp4",
	"opus": "audio/opus",
}

// MediaTypeForExtension maps a file extension (without the dot) to the
// media type recordings are stored with.
func MediaTypeForExtension(ext string) (string, bool) {
	mt, ok := mediaTypes[strings.TrimPrefix(strings.ToLower(ext), ".")]
	return mt, ok
}

// ExtensionForMediaType is the inverse of MediaTypeForExtension.
func ExtensionForMediaType(mediaType string) string {
	switch strings.ToLower(mediaType) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/x-flac", "audio/flac":
		return "flac"
	case "audio/mp3", "audio/mpeg":
		return "mp3"
	case "audio/ogg":
		return "ogg"
	case "audio/webm":
		return "webm"
	case "audio/x-ms-wma":
		return "wma"
	case "audio/x-wv":
		return "wv"
	case "audio/aac":
		return "aac"
	case "audio/mp4":
		return "m4a"
	case "audio/opus":
		return "opus"
	}
	return ""
}

// Site is a physical recording location.
type Site struct {
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	TzinfoTz   *string   `db:"tzinfo_tz" json:"tzinfo_tz,omitempty"`
	Latitude   *float64  `db:"latitude" json:"latitude,omitempty"`
	Longitude  *float64  `db:"longitude" json:"longitude,omitempty"`
	CreatorID  int64     `db:"creator_id" json:"creator_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
	ProjectIDs []int64   `db:"-" json:"project_ids,omitempty"`
}

// User is the minimal account view the harvester needs.
type User struct {
	ID       int64  `db:"id" json:"id"`
	UserName string `db:"user_name" json:"user_name"`
	Email    string `db:"email" json:"email"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalCount int64 `json:"total_count"`
	MaxPage    int   `json:"max_page,omitempty"`
}
