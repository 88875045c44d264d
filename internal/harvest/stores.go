package harvest

import (
	"context"
	"time"

	"github.com/noah-isme/acoustic-workbench-api/internal/models"
)

// ItemStore persists harvests and their items. Lookups of missing rows
// return sql.ErrNoRows.
type ItemStore interface {
	GetHarvest(ctx context.Context, id int64) (*models.Harvest, error)
	GetItem(ctx context.Context, id int64) (*models.HarvestItem, error)
	UpdateItem(ctx context.Context, item *models.HarvestItem) error
	// DuplicatesInHarvest lists items of the harvest listed before beforeID
	// sharing fileHash.
	DuplicatesInHarvest(ctx context.Context, harvestID, beforeID int64, fileHash string) ([]models.HarvestItem, error)
	// OverlapsInHarvest lists items of the harvest listed before beforeID,
	// at the same site, whose recording span intersects [start, end).
	OverlapsInHarvest(ctx context.Context, harvestID, beforeID, siteID int64, start, end time.Time) ([]models.HarvestItem, error)
}

// DurationAdjustment shortens an existing recording to remove an overlap.
type DurationAdjustment struct {
	RecordingID     int64
	DurationSeconds float64
	OverlapSeconds  float64
}

// RecordingStore persists audio recordings.
type RecordingStore interface {
	GetRecording(ctx context.Context, id int64) (*models.AudioRecording, error)
	FindByHash(ctx context.Context, fileHash string) ([]models.AudioRecording, error)
	// FindOverlapping lists recordings at siteID whose span intersects [start, end).
	FindOverlapping(ctx context.Context, siteID int64, start, end time.Time) ([]models.AudioRecording, error)
	// CreateHarvested inserts rec, applies adjustments and saves item in one
	// transaction. rec.ID and item.AudioRecordingID are set on success.
	CreateHarvested(ctx context.Context, rec *models.AudioRecording, adjustments []DurationAdjustment, item *models.HarvestItem) error
}

// SiteStore looks up sites together with their project ids.
type SiteStore interface {
	GetSite(ctx context.Context, id int64) (*models.Site, error)
}

// UserStore looks up users.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// FileStore is the original audio store harvested files are copied into.
type FileStore interface {
	Import(src, name string) (string, error)
	Exists(name string) bool
	Delete(name string) error
}

// DeleteScheduler queues removal of an uploaded original after a delay.
type DeleteScheduler interface {
	ScheduleDelete(ctx context.Context, itemID int64, after time.Duration) error
}

// Observer receives pipeline outcomes, typically for metrics.
type Observer interface {
	ObserveItem(status models.HarvestItemStatus)
	ObserveValidation(result models.ValidationResult)
}

type nopObserver struct{}

func (nopObserver) ObserveItem(models.HarvestItemStatus)    {}
func (nopObserver) ObserveValidation(models.ValidationResult) {}
