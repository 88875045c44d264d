package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/acoustic-workbench-api/internal/harvest"
	"github.com/noah-isme/acoustic-workbench-api/internal/models"
)

func newRecording() *models.AudioRecording {
	now := time.Now().UTC()
	return &models.AudioRecording{
		UUID:             "abcdef00-1111-2222-3333-444455556666",
		SiteID:           7,
		UploaderID:       9,
		CreatorID:        9,
		RecordedDate:     time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		DurationSeconds:  12,
		SampleRateHertz:  22050,
		Channels:         1,
		BitRateBPS:       352800,
		MediaType:        "audio/wav",
		DataLengthBytes:  529244,
		FileHash:         "SHA256::abc",
		Status:           models.AudioRecordingStatusReady,
		OriginalFileName: "a.wav",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestCreateHarvestedCommits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAudioRecordingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO audio_recordings").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(100)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE audio_recordings SET duration_seconds = $2")).
		WithArgs(int64(50), 5.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE harvest_items SET status").
		WithArgs(int64(4), models.HarvestItemStatusCompleted, sqlmock.AnyArg(), int64(100), nil, nil, false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := newRecording()
	item := &models.HarvestItem{ID: 4, Status: models.HarvestItemStatusCompleted}
	err := repo.CreateHarvested(context.Background(), rec, []harvest.DurationAdjustment{{RecordingID: 50, DurationSeconds: 5, OverlapSeconds: 5}}, item)
	require.NoError(t, err)
	assert.Equal(t, int64(100), rec.ID)
	assert.Equal(t, int64(100), *item.AudioRecordingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateHarvestedRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAudioRecordingRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO audio_recordings").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(100)))
	mock.ExpectExec("UPDATE harvest_items SET status").WillReturnError(errors.New("deadlock"))
	mock.ExpectRollback()

	rec := newRecording()
	item := &models.HarvestItem{ID: 4, Status: models.HarvestItemStatusCompleted}
	err := repo.CreateHarvested(context.Background(), rec, nil, item)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock")
	assert.Zero(t, rec.ID)
	assert.Nil(t, item.AudioRecordingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOverlapping(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAudioRecordingRepository(db)

	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(12 * time.Second)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "uuid", "site_id", "uploader_id", "creator_id", "recorded_date", "recorded_utc_offset", "duration_seconds",
		"sample_rate_hertz", "channels", "bit_rate_bps", "media_type", "data_length_bytes", "file_hash", "status", "original_file_name", "notes", "created_at", "updated_at"}).
		AddRow(int64(50), "u", int64(7), int64(9), int64(9), start.Add(-5*time.Second), "+10:00", 10.0, 22050, 1, 352800, "audio/wav", int64(10), "SHA256::x", "ready", "x.wav", nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("recorded_date + duration_seconds * INTERVAL '1 second' > $2")).
		WithArgs(int64(7), start, end).
		WillReturnRows(rows)

	recs, err := repo.FindOverlapping(context.Background(), 7, start, end)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, start.Add(5*time.Second), recs[0].RecordedEndDate())
	assert.NoError(t, mock.ExpectationsWereMet())
}
