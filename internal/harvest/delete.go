package harvest

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/noah-isme/acoustic-workbench-api/internal/models"
)

// DeleteOriginal removes an uploaded file once its item has been harvested
// and the copy is confirmed in the original audio store. Items that failed
// are left alone; items still in progress yield ErrNotReady.
func (h *Harvester) DeleteOriginal(ctx context.Context, itemID int64) error {
	item, err := h.items.GetItem(ctx, itemID)
	if err != nil {
		return fmt.Errorf("get harvest item %d: %w", itemID, err)
	}
	if item.Deleted {
		return nil
	}
	log := h.logger.Sugar().With("harvest_item_id", item.ID, "path", item.Path)

	switch item.Status {
	case models.HarvestItemStatusCompleted:
	case models.HarvestItemStatusFailed, models.HarvestItemStatusErrored:
		log.Infow("skipping original deletion", "status", item.Status)
		return nil
	default:
		return ErrNotReady
	}
	if item.AudioRecordingID == nil {
		return fmt.Errorf("harvest item %d is completed without an audio recording", item.ID)
	}

	rec, err := h.recordings.GetRecording(ctx, *item.AudioRecordingID)
	if err != nil {
		return fmt.Errorf("get audio recording %d: %w", *item.AudioRecordingID, err)
	}
	if !h.files.Exists(rec.StoragePath()) {
		return fmt.Errorf("audio recording %d has no stored file; keeping the upload", rec.ID)
	}

	harvest, err := h.items.GetHarvest(ctx, item.HarvestID)
	if err != nil {
		return fmt.Errorf("get harvest %d: %w", item.HarvestID, err)
	}
	if err := os.Remove(h.itemPath(harvest, item)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove original: %w", err)
	}

	item.Deleted = true
	if err := h.save(ctx, item); err != nil {
		return err
	}
	log.Infow("original upload deleted")
	return nil
}
