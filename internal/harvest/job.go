package harvest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/acoustic-workbench-api/internal/models"
)

// CodeOverlapTrimmed is recorded in item fixes when an overlap was removed.
const CodeOverlapTrimmed = "overlap_trimmed"

// ErrNotReady is returned by DeleteOriginal while the item has not been
// harvested yet. The delete job should be retried.
var ErrNotReady = errors.New("harvest item is not completed yet")

// JobKey is the uniqueness key for jobs acting on a harvest item.
func JobKey(itemID int64) string {
	return fmt.Sprintf("harvest_item:%d", itemID)
}

// HarvesterConfig configures a Harvester.
type HarvesterConfig struct {
	UploadDir       string
	SidecarFilename string
	DeleteAfter     time.Duration
}

// Harvester moves one item through the pipeline:
// new -> metadata_gathered -> completed, or failed/errored on the way.
type Harvester struct {
	cfg        HarvesterConfig
	items      ItemStore
	recordings RecordingStore
	reader     FileInfoReader
	checks     *Validator
	validate   *validator.Validate
	files      FileStore
	scheduler  DeleteScheduler
	observer   Observer
	logger     *zap.Logger
	now        func() time.Time
	newUUID    func() string
}

// HarvesterDeps groups the collaborators of a Harvester.
type HarvesterDeps struct {
	Items      ItemStore
	Recordings RecordingStore
	Reader     FileInfoReader
	Validator  *Validator
	Files      FileStore
	Scheduler  DeleteScheduler
	Observer   Observer
	Logger     *zap.Logger
}

// NewHarvester constructs a Harvester.
func NewHarvester(cfg HarvesterConfig, deps HarvesterDeps) *Harvester {
	if cfg.SidecarFilename == "" {
		cfg.SidecarFilename = "harvest.yml"
	}
	h := &Harvester{
		cfg:        cfg,
		items:      deps.Items,
		recordings: deps.Recordings,
		reader:     deps.Reader,
		checks:     deps.Validator,
		validate:   NewStructValidator(),
		files:      deps.Files,
		scheduler:  deps.Scheduler,
		observer:   deps.Observer,
		logger:     deps.Logger,
		now:        time.Now,
		newUUID:    func() string { return uuid.NewString() },
	}
	if h.observer == nil {
		h.observer = nopObserver{}
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// Root is the directory a harvest's uploads live in.
func (h *Harvester) Root(harvest *models.Harvest) string {
	return filepath.Join(h.cfg.UploadDir, filepath.FromSlash(normalizeRel(harvest.UploadPath)))
}

func (h *Harvester) itemPath(harvest *models.Harvest, item *models.HarvestItem) string {
	return filepath.Join(h.Root(harvest), filepath.FromSlash(normalizeRel(item.Path)))
}

// Perform processes the item. Without full it stops once metadata has been
// gathered and validated. Domain failures leave the item failed and return
// a nil error; anything else leaves it errored and is returned. A missing
// item is reported as a DomainError since there is nothing to mark.
func (h *Harvester) Perform(ctx context.Context, itemID int64, full bool) (models.HarvestItemStatus, error) {
	item, err := h.items.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domainError(CodeItemNotFound, fmt.Sprintf("harvest item %d does not exist", itemID), err)
		}
		return "", fmt.Errorf("get harvest item %d: %w", itemID, err)
	}
	log := h.logger.Sugar().With("harvest_item_id", item.ID, "harvest_id", item.HarvestID, "path", item.Path)

	if item.Status == models.HarvestItemStatusCompleted {
		log.Infow("harvest item already completed")
		return item.Status, nil
	}

	err = h.process(ctx, item, full)
	switch {
	case err == nil:
	case IsDomainError(err):
		log.Warnw("harvest item failed", "error", err)
		item.Status = models.HarvestItemStatusFailed
	default:
		log.Errorw("harvest item errored", "error", err)
		item.Status = models.HarvestItemStatusErrored
	}
	if err != nil {
		msg := err.Error()
		item.Info.Error = &msg
		if saveErr := h.items.UpdateItem(ctx, item); saveErr != nil {
			log.Errorw("failed to save harvest item state", "error", saveErr)
			if IsDomainError(err) {
				err = saveErr
			}
		}
		if IsDomainError(err) {
			err = nil
		}
	}

	if item.Status.Terminal() {
		h.observer.ObserveItem(item.Status)
	}
	return item.Status, err
}

func (h *Harvester) process(ctx context.Context, item *models.HarvestItem, full bool) error {
	harvest, err := h.items.GetHarvest(ctx, item.HarvestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domainError(CodeHarvestNotFound, fmt.Sprintf("harvest %d does not exist", item.HarvestID), err)
		}
		return fmt.Errorf("get harvest %d: %w", item.HarvestID, err)
	}

	item.Info.Error = nil
	item.Info.Fixes = nil
	item.Info.Validations = nil

	subject := &Subject{Item: item, Harvest: harvest, AbsPath: h.itemPath(harvest, item)}
	results, err := h.checks.Simple(ctx, subject)
	h.record(item, results)
	if err != nil {
		return err
	}
	if !item.Info.Valid() {
		item.Status = models.HarvestItemStatusFailed
		return h.save(ctx, item)
	}

	info, err := h.extract(ctx, harvest, item, subject.AbsPath)
	if err != nil {
		return err
	}
	item.Info.FileInfo = info
	item.UploaderID = info.UploaderID
	subject.Info = info

	results, err = h.checks.Metadata(ctx, subject)
	h.record(item, results)
	if err != nil {
		return err
	}
	item.Status = models.HarvestItemStatusMetadataGathered
	if err := h.save(ctx, item); err != nil {
		return err
	}
	if !full {
		return nil
	}
	if !item.Info.Valid() {
		item.Status = models.HarvestItemStatusFailed
		return h.save(ctx, item)
	}

	rec, err := h.harvestFile(ctx, harvest, item, subject.AbsPath)
	if err != nil {
		return err
	}

	if h.scheduler != nil {
		if err := h.scheduler.ScheduleDelete(ctx, item.ID, h.cfg.DeleteAfter); err != nil {
			h.logger.Sugar().Warnw("failed to schedule original deletion", "harvest_item_id", item.ID, "error", err)
		}
	}
	h.logger.Sugar().Infow("harvest item completed", "harvest_item_id", item.ID, "audio_recording_id", rec.ID, "uuid", rec.UUID)
	return nil
}

func (h *Harvester) record(item *models.HarvestItem, results []models.ValidationResult) {
	item.Info.Validations = append(item.Info.Validations, results...)
	for _, r := range results {
		h.observer.ObserveValidation(r)
	}
}

func (h *Harvester) save(ctx context.Context, item *models.HarvestItem) error {
	if err := h.items.UpdateItem(ctx, item); err != nil {
		return fmt.Errorf("save harvest item %d: %w", item.ID, err)
	}
	return nil
}

func (h *Harvester) extract(ctx context.Context, harvest *models.Harvest, item *models.HarvestItem, abs string) (*models.FileInfo, error) {
	dirCfg, err := ResolveDirectoryConfig(h.validate, h.Root(harvest), item.Path, h.cfg.SidecarFilename)
	if err != nil {
		return nil, err
	}
	hints := ResolveHints(dirCfg, MatchMapping(harvest.Mappings, item.Path))

	basic, err := h.reader.Basic(abs)
	if err != nil {
		return nil, err
	}
	advanced, err := h.reader.Advanced(abs, hints.UTCOffset)
	if err != nil {
		return nil, err
	}
	audio, err := h.reader.AudioInfo(ctx, abs)
	if err != nil {
		return nil, err
	}

	info := FileInfoFrom(basic, advanced, audio)
	hints.Apply(info)
	if info.UploaderID == nil {
		creator := harvest.CreatorID
		info.UploaderID = &creator
	}
	if info.ProjectID == nil {
		project := harvest.ProjectID
		info.ProjectID = &project
	}
	return info, nil
}

// harvestFile copies the upload into the original audio store, then saves
// the recording and the completed item together. The upload itself is only
// removed later by DeleteOriginal.
func (h *Harvester) harvestFile(ctx context.Context, harvest *models.Harvest, item *models.HarvestItem, abs string) (*models.AudioRecording, error) {
	fi := item.Info.FileInfo
	now := h.now().UTC()
	rec := &models.AudioRecording{
		UUID:              h.newUUID(),
		SiteID:            *fi.SiteID,
		UploaderID:        *fi.UploaderID,
		CreatorID:         harvest.CreatorID,
		RecordedDate:      fi.RecordedDate.UTC(),
		RecordedUTCOffset: fi.UTCOffset,
		DurationSeconds:   fi.DurationSeconds,
		SampleRateHertz:   fi.SampleRateHertz,
		Channels:          fi.Channels,
		BitRateBPS:        fi.BitRateBPS,
		MediaType:         fi.MediaType,
		DataLengthBytes:   fi.DataLengthBytes,
		FileHash:          fi.FileHash,
		Status:            models.AudioRecordingStatusReady,
		OriginalFileName:  fi.OriginalFileName,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	adjustments, err := h.fixOverlaps(ctx, item, rec)
	if err != nil {
		return nil, err
	}

	name := rec.StoragePath()
	if _, err := h.files.Import(abs, name); err != nil {
		return nil, fmt.Errorf("copy %s into original audio store: %w", item.Path, err)
	}

	previous := item.Status
	item.Status = models.HarvestItemStatusCompleted
	if err := h.recordings.CreateHarvested(ctx, rec, adjustments, item); err != nil {
		item.Status = previous
		if delErr := h.files.Delete(name); delErr != nil {
			h.logger.Sugar().Errorw("failed to remove copied file after save error", "name", name, "error", delErr)
		}
		return nil, fmt.Errorf("save audio recording: %w", err)
	}
	return rec, nil
}

// fixOverlaps trims whichever recording starts first so the pair no longer
// overlaps. Existing recordings are shortened through adjustments; the new
// recording is shortened in place.
func (h *Harvester) fixOverlaps(ctx context.Context, item *models.HarvestItem, rec *models.AudioRecording) ([]DurationAdjustment, error) {
	existing, err := h.recordings.FindOverlapping(ctx, rec.SiteID, rec.RecordedDate, rec.RecordedEndDate())
	if err != nil {
		return nil, fmt.Errorf("find overlapping recordings: %w", err)
	}
	if len(existing) > h.checks.cfg.MaxOverlaps {
		return nil, domainError(CodeNotHarvestable, fmt.Sprintf("file overlaps %d existing recordings", len(existing)), nil)
	}

	var adjustments []DurationAdjustment
	end := rec.RecordedEndDate()
	for _, other := range existing {
		amount := overlapSeconds(rec.RecordedDate, end, other.RecordedDate, other.RecordedEndDate())
		if amount == 0 {
			continue
		}
		if amount > h.checks.cfg.MaxOverlapSeconds || other.RecordedDate.Equal(rec.RecordedDate) {
			return nil, domainError(CodeNotHarvestable, fmt.Sprintf("overlap with audio recording %d cannot be fixed", other.ID), nil)
		}

		fix := models.Fix{
			Code:    CodeOverlapTrimmed,
			Details: map[string]any{"audio_recording_id": other.ID, "overlap_seconds": amount},
		}
		if other.RecordedDate.Before(rec.RecordedDate) {
			duration := rec.RecordedDate.Sub(other.RecordedDate).Seconds()
			adjustments = append(adjustments, DurationAdjustment{RecordingID: other.ID, DurationSeconds: duration, OverlapSeconds: amount})
			fix.Message = fmt.Sprintf("shortened audio recording %d to %.3fs", other.ID, duration)
			fix.Details["duration_seconds"] = duration
		} else {
			duration := other.RecordedDate.Sub(rec.RecordedDate).Seconds()
			if duration < rec.DurationSeconds {
				rec.DurationSeconds = duration
			}
			fix.Message = fmt.Sprintf("shortened this recording to %.3fs to end before audio recording %d", rec.DurationSeconds, other.ID)
			fix.Details["duration_seconds"] = rec.DurationSeconds
		}
		item.Info.Fixes = append(item.Info.Fixes, fix)
	}
	return adjustments, nil
}
