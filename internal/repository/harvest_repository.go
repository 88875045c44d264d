package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/acoustic-workbench-api/internal/models"
)

const (
	harvestColumns     = `id, project_id, creator_id, status, upload_path, mappings, created_at, updated_at`
	harvestItemColumns = `id, harvest_id, path, status, info, audio_recording_id, uploader_id, fingerprint, deleted, created_at, updated_at`
)

// HarvestRepository provides database access for harvests and their items.
type HarvestRepository struct {
	db *sqlx.DB
}

// NewHarvestRepository creates a new HarvestRepository.
func NewHarvestRepository(db *sqlx.DB) *HarvestRepository {
	return &HarvestRepository{db: db}
}

// CreateHarvest inserts a harvest and fills its id and timestamps.
func (r *HarvestRepository) CreateHarvest(ctx context.Context, h *models.Harvest) error {
	const query = `INSERT INTO harvests (project_id, creator_id, status, upload_path, mappings, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING id`
	now := time.Now().UTC()
	if err := r.db.QueryRowxContext(ctx, query, h.ProjectID, h.CreatorID, h.Status, h.UploadPath, h.Mappings, now).Scan(&h.ID); err != nil {
		return fmt.Errorf("create harvest: %w", err)
	}
	h.CreatedAt, h.UpdatedAt = now, now
	return nil
}

// GetHarvest returns a harvest by id.
func (r *HarvestRepository) GetHarvest(ctx context.Context, id int64) (*models.Harvest, error) {
	const query = `SELECT ` + harvestColumns + ` FROM harvests WHERE id = $1`
	var h models.Harvest
	if err := r.db.GetContext(ctx, &h, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get harvest: %w", err)
	}
	return &h, nil
}

// UpdateHarvestStatus moves a harvest to status.
func (r *HarvestRepository) UpdateHarvestStatus(ctx context.Context, id int64, status models.HarvestStatus) error {
	const query = `UPDATE harvests SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update harvest status: %w", err)
	}
	return requireRow(res)
}

// UpdateMappings replaces the mapping list of a harvest.
func (r *HarvestRepository) UpdateMappings(ctx context.Context, id int64, mappings models.HarvestMappings) error {
	const query = `UPDATE harvests SET mappings = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, mappings, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update harvest mappings: %w", err)
	}
	return requireRow(res)
}

// GetItem returns a harvest item by id.
func (r *HarvestRepository) GetItem(ctx context.Context, id int64) (*models.HarvestItem, error) {
	const query = `SELECT ` + harvestItemColumns + ` FROM harvest_items WHERE id = $1`
	var item models.HarvestItem
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get harvest item: %w", err)
	}
	return &item, nil
}

// FindItemByPath returns the item of a harvest at path.
func (r *HarvestRepository) FindItemByPath(ctx context.Context, harvestID int64, path string) (*models.HarvestItem, error) {
	const query = `SELECT ` + harvestItemColumns + ` FROM harvest_items WHERE harvest_id = $1 AND path = $2 LIMIT 1`
	var item models.HarvestItem
	if err := r.db.GetContext(ctx, &item, query, harvestID, path); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find harvest item by path: %w", err)
	}
	return &item, nil
}

// CreateItem inserts a harvest item and fills its id and timestamps.
func (r *HarvestRepository) CreateItem(ctx context.Context, item *models.HarvestItem) error {
	const query = `INSERT INTO harvest_items (harvest_id, path, status, info, uploader_id, fingerprint, deleted, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8) RETURNING id`
	now := time.Now().UTC()
	if err := r.db.QueryRowxContext(ctx, query, item.HarvestID, item.Path, item.Status, item.Info, item.UploaderID, item.Fingerprint, item.Deleted, now).Scan(&item.ID); err != nil {
		return fmt.Errorf("create harvest item: %w", err)
	}
	item.CreatedAt, item.UpdatedAt = now, now
	return nil
}

// UpdateItem saves the mutable state of an item.
func (r *HarvestRepository) UpdateItem(ctx context.Context, item *models.HarvestItem) error {
	return updateItem(ctx, r.db, item)
}

func updateItem(ctx context.Context, exec sqlx.ExecerContext, item *models.HarvestItem) error {
	const query = `UPDATE harvest_items SET status = $2, info = $3, audio_recording_id = $4, uploader_id = $5, fingerprint = $6, deleted = $7, updated_at = $8 WHERE id = $1`
	item.UpdatedAt = time.Now().UTC()
	res, err := exec.ExecContext(ctx, query, item.ID, item.Status, item.Info, item.AudioRecordingID, item.UploaderID, item.Fingerprint, item.Deleted, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update harvest item: %w", err)
	}
	return requireRow(res)
}

// ItemIDs lists the ids of a harvest's items in any of statuses, oldest first.
func (r *HarvestRepository) ItemIDs(ctx context.Context, harvestID int64, statuses ...models.HarvestItemStatus) ([]int64, error) {
	const query = `SELECT id FROM harvest_items WHERE harvest_id = $1 AND status = ANY($2) ORDER BY id`
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, harvestID, pq.Array(values)); err != nil {
		return nil, fmt.Errorf("list harvest item ids: %w", err)
	}
	return ids, nil
}

// StatusCounts tallies a harvest's items by status.
func (r *HarvestRepository) StatusCounts(ctx context.Context, harvestID int64) (map[models.HarvestItemStatus]int64, error) {
	const query = `SELECT status, COUNT(*) AS count FROM harvest_items WHERE harvest_id = $1 GROUP BY status`
	var rows []struct {
		Status models.HarvestItemStatus `db:"status"`
		Count  int64                    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, harvestID); err != nil {
		return nil, fmt.Errorf("count harvest items: %w", err)
	}
	counts := make(map[models.HarvestItemStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// DuplicatesInHarvest lists earlier items of the harvest with the same file hash.
func (r *HarvestRepository) DuplicatesInHarvest(ctx context.Context, harvestID, beforeID int64, fileHash string) ([]models.HarvestItem, error) {
	const query = `SELECT ` + harvestItemColumns + ` FROM harvest_items
WHERE harvest_id = $1 AND id < $2 AND info->'file_info'->>'file_hash' = $3 ORDER BY id`
	var items []models.HarvestItem
	if err := r.db.SelectContext(ctx, &items, query, harvestID, beforeID, fileHash); err != nil {
		return nil, fmt.Errorf("find duplicate harvest items: %w", err)
	}
	return items, nil
}

// OverlapsInHarvest lists earlier items of the harvest at siteID whose
// recording span intersects [start, end).
func (r *HarvestRepository) OverlapsInHarvest(ctx context.Context, harvestID, beforeID, siteID int64, start, end time.Time) ([]models.HarvestItem, error) {
	const query = `SELECT ` + harvestItemColumns + ` FROM harvest_items
WHERE harvest_id = $1 AND id < $2 AND status <> 'failed'
AND (info->'file_info'->>'site_id')::bigint = $3
AND (info->'file_info'->>'recorded_date')::timestamptz < $5
AND (info->'file_info'->>'recorded_date')::timestamptz + (info->'file_info'->>'duration_seconds')::float8 * INTERVAL '1 second' > $4
ORDER BY id`
	var items []models.HarvestItem
	if err := r.db.SelectContext(ctx, &items, query, harvestID, beforeID, siteID, start, end); err != nil {
		return nil, fmt.Errorf("find overlapping harvest items: %w", err)
	}
	return items, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
