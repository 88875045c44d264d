package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/acoustic-workbench-api/internal/harvest"
	"github.com/noah-isme/acoustic-workbench-api/internal/models"
	"github.com/noah-isme/acoustic-workbench-api/pkg/database"
)

const audioRecordingColumns = `id, uuid, site_id, uploader_id, creator_id, recorded_date, recorded_utc_offset, duration_seconds,
sample_rate_hertz, channels, bit_rate_bps, media_type, data_length_bytes, file_hash, status, original_file_name, notes, created_at, updated_at`

// AudioRecordingRepository provides database access for audio recordings.
type AudioRecordingRepository struct {
	db *sqlx.DB
}

// NewAudioRecordingRepository creates a new AudioRecordingRepository.
func NewAudioRecordingRepository(db *sqlx.DB) *AudioRecordingRepository {
	return &AudioRecordingRepository{db: db}
}

// GetRecording returns a recording by id.
func (r *AudioRecordingRepository) GetRecording(ctx context.Context, id int64) (*models.AudioRecording, error) {
	const query = `SELECT ` + audioRecordingColumns + ` FROM audio_recordings WHERE id = $1`
	var rec models.AudioRecording
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get audio recording: %w", err)
	}
	return &rec, nil
}

// FindByHash lists recordings with the given content hash.
func (r *AudioRecordingRepository) FindByHash(ctx context.Context, fileHash string) ([]models.AudioRecording, error) {
	const query = `SELECT ` + audioRecordingColumns + ` FROM audio_recordings WHERE file_hash = $1 ORDER BY id`
	var recs []models.AudioRecording
	if err := r.db.SelectContext(ctx, &recs, query, fileHash); err != nil {
		return nil, fmt.Errorf("find audio recordings by hash: %w", err)
	}
	return recs, nil
}

// FindOverlapping lists recordings at siteID whose span intersects [start, end).
func (r *AudioRecordingRepository) FindOverlapping(ctx context.Context, siteID int64, start, end time.Time) ([]models.AudioRecording, error) {
	const query = `SELECT ` + audioRecordingColumns + ` FROM audio_recordings
WHERE site_id = $1 AND recorded_date < $3 AND recorded_date + duration_seconds * INTERVAL '1 second' > $2
ORDER BY recorded_date`
	var recs []models.AudioRecording
	if err := r.db.SelectContext(ctx, &recs, query, siteID, start, end); err != nil {
		return nil, fmt.Errorf("find overlapping audio recordings: %w", err)
	}
	return recs, nil
}

// CreateHarvested inserts rec, shortens overlapped recordings and saves the
// completed item in a single transaction.
func (r *AudioRecordingRepository) CreateHarvested(ctx context.Context, rec *models.AudioRecording, adjustments []harvest.DurationAdjustment, item *models.HarvestItem) error {
	const insert = `INSERT INTO audio_recordings (uuid, site_id, uploader_id, creator_id, recorded_date, recorded_utc_offset, duration_seconds,
sample_rate_hertz, channels, bit_rate_bps, media_type, data_length_bytes, file_hash, status, original_file_name, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18) RETURNING id`
	const adjust = `UPDATE audio_recordings SET duration_seconds = $2, updated_at = $3 WHERE id = $1`

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var id int64
		if err := tx.QueryRowxContext(ctx, insert,
			rec.UUID, rec.SiteID, rec.UploaderID, rec.CreatorID, rec.RecordedDate, rec.RecordedUTCOffset, rec.DurationSeconds,
			rec.SampleRateHertz, rec.Channels, rec.BitRateBPS, rec.MediaType, rec.DataLengthBytes, rec.FileHash, rec.Status,
			rec.OriginalFileName, rec.Notes, rec.CreatedAt, rec.UpdatedAt,
		).Scan(&id); err != nil {
			return fmt.Errorf("insert audio recording: %w", err)
		}

		now := time.Now().UTC()
		for _, adj := range adjustments {
			res, err := tx.ExecContext(ctx, adjust, adj.RecordingID, adj.DurationSeconds, now)
			if err != nil {
				return fmt.Errorf("adjust audio recording %d: %w", adj.RecordingID, err)
			}
			if err := requireRow(res); err != nil {
				return fmt.Errorf("adjust audio recording %d: %w", adj.RecordingID, err)
			}
		}

		item.AudioRecordingID = &id
		if err := updateItem(ctx, tx, item); err != nil {
			item.AudioRecordingID = nil
			return err
		}
		rec.ID = id
		return nil
	})
}
