package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/acoustic-workbench-api/internal/models"
)

var itemColumns = []string{"id", "harvest_id", "path", "status", "info", "audio_recording_id", "uploader_id", "fingerprint", "deleted", "created_at", "updated_at"}

func TestGetHarvestScansMappings(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewHarvestRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "project_id", "creator_id", "status", "upload_path", "mappings", "created_at", "updated_at"}).
		AddRow(int64(1), int64(3), int64(9), "metadata_review", "harvest_1", []byte(`[{"path":"deck","site_id":7,"utc_offset":"+10:00","recursive":true}]`), now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM harvests WHERE id = $1")).WithArgs(int64(1)).WillReturnRows(rows)

	h, err := repo.GetHarvest(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.HarvestStatusMetadataReview, h.Status)
	require.Len(t, h.Mappings, 1)
	assert.Equal(t, int64(7), *h.Mappings[0].SiteID)
	assert.True(t, h.Mappings[0].Recursive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetItemScansInfo(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewHarvestRepository(db)

	now := time.Now()
	info := []byte(`{"error":null,"fixes":[],"file_info":{"file_name":"a.wav","file_hash":"SHA256::abc","site_id":7},"validations":[{"code":"file_empty","status":"not_fixable","message":"file is empty"}]}`)
	rows := sqlmock.NewRows(itemColumns).AddRow(int64(4), int64(1), "deck/a.wav", "failed", info, nil, int64(9), "f00", false, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM harvest_items WHERE id = $1")).WithArgs(int64(4)).WillReturnRows(rows)

	item, err := repo.GetItem(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, models.HarvestItemStatusFailed, item.Status)
	assert.False(t, item.Info.Valid())
	assert.Equal(t, "SHA256::abc", item.Info.FileInfo.FileHash)
	assert.Nil(t, item.AudioRecordingID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateItem(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewHarvestRepository(db)

	mock.ExpectQuery("INSERT INTO harvest_items").
		WithArgs(int64(1), "a.wav", models.HarvestItemStatusNew, sqlmock.AnyArg(), nil, nil, false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))

	item := &models.HarvestItem{HarvestID: 1, Path: "a.wav", Status: models.HarvestItemStatusNew}
	require.NoError(t, repo.CreateItem(context.Background(), item))
	assert.Equal(t, int64(12), item.ID)
	assert.False(t, item.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateItemMissingRow(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewHarvestRepository(db)

	mock.ExpectExec("UPDATE harvest_items SET status").WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateItem(context.Background(), &models.HarvestItem{ID: 5, Status: models.HarvestItemStatusFailed})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestItemIDsByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewHarvestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM harvest_items WHERE harvest_id = $1 AND status = ANY($2) ORDER BY id")).
		WithArgs(int64(1), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)).AddRow(int64(5)))

	ids, err := repo.ItemIDs(context.Background(), 1, models.HarvestItemStatusNew, models.HarvestItemStatusMetadataGathered)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 5}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusCounts(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewHarvestRepository(db)

	mock.ExpectQuery("GROUP BY status").WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).AddRow("completed", int64(3)).AddRow("failed", int64(1)))

	counts, err := repo.StatusCounts(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, map[models.HarvestItemStatus]int64{models.HarvestItemStatusCompleted: 3, models.HarvestItemStatusFailed: 1}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOverlapsInHarvestQuery(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewHarvestRepository(db)

	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta("(info->'file_info'->>'site_id')::bigint = $3")).
		WithArgs(int64(1), int64(8), int64(7), start, end).
		WillReturnRows(sqlmock.NewRows(itemColumns))

	items, err := repo.OverlapsInHarvest(context.Background(), 1, 8, 7, start, end)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMappings(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewHarvestRepository(db)

	site := int64(7)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE harvests SET mappings = $2")).
		WithArgs(int64(1), []byte(`[{"path":"deck","site_id":7,"recursive":false}]`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateMappings(context.Background(), 1, models.HarvestMappings{{Path: "deck", SiteID: &site}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
