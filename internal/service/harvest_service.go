package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/acoustic-workbench-api/internal/harvest"
	"github.com/noah-isme/acoustic-workbench-api/internal/models"
	appErrors "github.com/noah-isme/acoustic-workbench-api/pkg/errors"
	"github.com/noah-isme/acoustic-workbench-api/pkg/jobs"
)

type harvestStore interface {
	CreateHarvest(ctx context.Context, h *models.Harvest) error
	GetHarvest(ctx context.Context, id int64) (*models.Harvest, error)
	UpdateHarvestStatus(ctx context.Context, id int64, status models.HarvestStatus) error
	UpdateMappings(ctx context.Context, id int64, mappings models.HarvestMappings) error
	GetItem(ctx context.Context, id int64) (*models.HarvestItem, error)
	FindItemByPath(ctx context.Context, harvestID int64, path string) (*models.HarvestItem, error)
	CreateItem(ctx context.Context, item *models.HarvestItem) error
	UpdateItem(ctx context.Context, item *models.HarvestItem) error
	ItemIDs(ctx context.Context, harvestID int64, statuses ...models.HarvestItemStatus) ([]int64, error)
	StatusCounts(ctx context.Context, harvestID int64) (map[models.HarvestItemStatus]int64, error)
}

type directoryScanner interface {
	Scan(ctx context.Context, root string, mappings []models.HarvestMapping) (*harvest.ScanResult, error)
}

type harvestRoots interface {
	Root(h *models.Harvest) string
}

type itemEnqueuer interface {
	EnqueueItem(itemID int64, full bool) error
}

// CreateHarvestRequest is the payload for starting a harvest.
type CreateHarvestRequest struct {
	ProjectID  int64                   `json:"project_id" validate:"required,gt=0"`
	CreatorID  int64                   `json:"creator_id" validate:"required,gt=0"`
	UploadPath string                  `json:"upload_path" validate:"omitempty,max=255"`
	Mappings   []models.HarvestMapping `json:"mappings" validate:"dive"`
}

// UpdateMappingsRequest replaces the mapping list of a harvest.
type UpdateMappingsRequest struct {
	Mappings []models.HarvestMapping `json:"mappings" validate:"dive"`
}

// ScanReport summarises what a scan did to the harvest's items.
type ScanReport struct {
	HarvestID int64             `json:"harvest_id"`
	Found     int               `json:"found"`
	Created   int               `json:"created"`
	Retried   int               `json:"retried"`
	Unchanged int               `json:"unchanged"`
	Queued    int               `json:"queued"`
	Warnings  []harvest.Warning `json:"warnings"`
}

// HarvestSummary counts items by status.
type HarvestSummary struct {
	HarvestID int64                              `json:"harvest_id"`
	Status    models.HarvestStatus               `json:"status"`
	Counts    map[models.HarvestItemStatus]int64 `json:"counts"`
	Total     int64                              `json:"total"`
}

// HarvestService orchestrates harvests: scanning uploads into items and
// queueing them for the pipeline.
type HarvestService struct {
	store     harvestStore
	scanner   directoryScanner
	roots     harvestRoots
	queue     itemEnqueuer
	cache     *CacheService
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewHarvestService constructs a HarvestService.
func NewHarvestService(store harvestStore, scanner directoryScanner, roots harvestRoots, queue itemEnqueuer, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *HarvestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HarvestService{
		store:     store,
		scanner:   scanner,
		roots:     roots,
		queue:     queue,
		cache:     cache,
		cacheTTL:  cacheTTL,
		validator: harvest.NewStructValidator(),
		logger:    logger,
	}
}

// Create persists a new harvest and prepares its upload directory.
func (s *HarvestService) Create(ctx context.Context, req CreateHarvestRequest) (*models.Harvest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	h := &models.Harvest{
		ProjectID:  req.ProjectID,
		CreatorID:  req.CreatorID,
		Status:     models.HarvestStatusUploading,
		UploadPath: req.UploadPath,
		Mappings:   models.HarvestMappings(req.Mappings),
	}
	if h.UploadPath == "" {
		h.UploadPath = "harvest_" + uuid.NewString()
	}
	if err := s.store.CreateHarvest(ctx, h); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create harvest")
	}
	if err := os.MkdirAll(s.roots.Root(h), 0o755); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create upload directory")
	}
	s.logger.Sugar().Infow("harvest created", "harvest_id", h.ID, "upload_path", h.UploadPath)
	return h, nil
}

// Get loads a harvest.
func (s *HarvestService) Get(ctx context.Context, id int64) (*models.Harvest, error) {
	h, err := s.store.GetHarvest(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("harvest %d not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load harvest")
	}
	return h, nil
}

// Scan walks the harvest's upload directory and turns every audio file into
// an item. Items that already exist are retried unless completed. Each new
// or retried item is queued for metadata extraction.
func (s *HarvestService) Scan(ctx context.Context, harvestID int64) (*ScanReport, error) {
	h, err := s.Get(ctx, harvestID)
	if err != nil {
		return nil, err
	}
	if h.Status == models.HarvestStatusComplete {
		return nil, appErrors.Clone(appErrors.ErrConflict, "harvest is already complete")
	}
	if err := s.store.UpdateHarvestStatus(ctx, h.ID, models.HarvestStatusScanning); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update harvest")
	}

	result, err := s.scanner.Scan(ctx, s.roots.Root(h), h.Mappings)
	if err != nil {
		s.restoreStatus(ctx, h)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan harvest directory")
	}

	report := &ScanReport{HarvestID: h.ID, Found: len(result.Candidates), Warnings: result.Warnings}
	if report.Warnings == nil {
		report.Warnings = []harvest.Warning{}
	}
	for _, candidate := range result.Candidates {
		queue, err := s.upsertItem(ctx, h.ID, candidate, report)
		if err != nil {
			s.restoreStatus(ctx, h)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record harvest item")
		}
		if queue == 0 {
			continue
		}
		if err := s.queue.EnqueueItem(queue, false); err != nil {
			if errors.Is(err, jobs.ErrDuplicate) {
				continue
			}
			s.restoreStatus(ctx, h)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue harvest item")
		}
		report.Queued++
	}

	if err := s.store.UpdateHarvestStatus(ctx, h.ID, models.HarvestStatusMetadataReview); err != nil {
		s.restoreStatus(ctx, h)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update harvest")
	}
	s.invalidate(ctx, h.ID)
	s.logger.Sugar().Infow("harvest scanned", "harvest_id", h.ID, "found", report.Found, "created", report.Created,
		"retried", report.Retried, "queued", report.Queued, "warnings", len(report.Warnings))
	return report, nil
}

// upsertItem records a candidate and returns the id of the item to queue,
// or zero when the item is left alone.
func (s *HarvestService) upsertItem(ctx context.Context, harvestID int64, c harvest.Candidate, report *ScanReport) (int64, error) {
	fingerprint := c.Fingerprint
	item, err := s.store.FindItemByPath(ctx, harvestID, c.Path)
	if errors.Is(err, sql.ErrNoRows) {
		item = &models.HarvestItem{
			HarvestID:   harvestID,
			Path:        c.Path,
			Status:      models.HarvestItemStatusNew,
			Fingerprint: &fingerprint,
			Info:        models.HarvestItemInfo{FileInfo: c.Info},
		}
		if err := s.store.CreateItem(ctx, item); err != nil {
			return 0, err
		}
		report.Created++
		return item.ID, nil
	}
	if err != nil {
		return 0, err
	}

	changed := item.Fingerprint == nil || *item.Fingerprint != fingerprint
	switch {
	case item.Status == models.HarvestItemStatusCompleted:
		report.Unchanged++
		return 0, nil
	case changed, item.Status == models.HarvestItemStatusFailed, item.Status == models.HarvestItemStatusErrored:
		item.Status = models.HarvestItemStatusNew
		item.Fingerprint = &fingerprint
		item.Info = models.HarvestItemInfo{FileInfo: c.Info}
		if err := s.store.UpdateItem(ctx, item); err != nil {
			return 0, err
		}
		report.Retried++
		return item.ID, nil
	default:
		// still pending; queue again in case its job was lost
		report.Unchanged++
		return item.ID, nil
	}
}

// Harvest queues every item that has not been harvested yet for the full
// pipeline and returns how many were queued.
func (s *HarvestService) Harvest(ctx context.Context, harvestID int64) (int, error) {
	h, err := s.Get(ctx, harvestID)
	if err != nil {
		return 0, err
	}
	if h.Status == models.HarvestStatusComplete {
		return 0, appErrors.Clone(appErrors.ErrConflict, "harvest is already complete")
	}
	ids, err := s.store.ItemIDs(ctx, h.ID, models.HarvestItemStatusNew, models.HarvestItemStatusMetadataGathered)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list harvest items")
	}
	if err := s.store.UpdateHarvestStatus(ctx, h.ID, models.HarvestStatusProcessing); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update harvest")
	}

	queued := 0
	for _, id := range ids {
		if err := s.queue.EnqueueItem(id, true); err != nil {
			if errors.Is(err, jobs.ErrDuplicate) {
				s.logger.Sugar().Debugw("harvest item already queued", "harvest_item_id", id)
				continue
			}
			if queued == 0 {
				s.restoreStatus(ctx, h)
			}
			return queued, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue harvest item")
		}
		queued++
	}
	s.invalidate(ctx, h.ID)
	s.logger.Sugar().Infow("harvest queued", "harvest_id", h.ID, "items", len(ids), "queued", queued)
	return queued, nil
}

// RetryItem resets a failed or errored item and queues it again. Items of
// a harvest that is processing go through the full pipeline.
func (s *HarvestService) RetryItem(ctx context.Context, harvestID, itemID int64) (*models.HarvestItem, error) {
	h, err := s.Get(ctx, harvestID)
	if err != nil {
		return nil, err
	}
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("harvest item %d not found", itemID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load harvest item")
	}
	if item.HarvestID != h.ID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("harvest item %d not found", itemID))
	}
	if item.Status == models.HarvestItemStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "harvest item is already completed")
	}

	item.Status = models.HarvestItemStatusNew
	item.Info.Error = nil
	if err := s.store.UpdateItem(ctx, item); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update harvest item")
	}
	if err := s.queue.EnqueueItem(item.ID, h.Status == models.HarvestStatusProcessing); err != nil {
		if errors.Is(err, jobs.ErrDuplicate) {
			return nil, appErrors.Wrap(err, appErrors.ErrDuplicateJob.Code, appErrors.ErrDuplicateJob.Status, "harvest item is already queued")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue harvest item")
	}
	s.invalidate(ctx, h.ID)
	return item, nil
}

// UpdateMappings validates and replaces the mapping list. Items are not
// re-evaluated until they are scanned or retried.
func (s *HarvestService) UpdateMappings(ctx context.Context, harvestID int64, req UpdateMappingsRequest) (*models.Harvest, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	h, err := s.Get(ctx, harvestID)
	if err != nil {
		return nil, err
	}
	mappings := models.HarvestMappings(req.Mappings)
	if mappings == nil {
		mappings = models.HarvestMappings{}
	}
	if err := s.store.UpdateMappings(ctx, h.ID, mappings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update mappings")
	}
	h.Mappings = mappings
	return h, nil
}

// Summary counts items by status. A processing harvest with nothing left to
// do is marked complete. The result is cached briefly since clients poll it.
func (s *HarvestService) Summary(ctx context.Context, harvestID int64) (*HarvestSummary, bool, error) {
	key := summaryCacheKey(harvestID)
	var cached HarvestSummary
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	h, err := s.Get(ctx, harvestID)
	if err != nil {
		return nil, false, err
	}
	counts, err := s.store.StatusCounts(ctx, h.ID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count harvest items")
	}
	summary := &HarvestSummary{HarvestID: h.ID, Status: h.Status, Counts: counts}
	for _, n := range counts {
		summary.Total += n
	}

	pending := counts[models.HarvestItemStatusNew] + counts[models.HarvestItemStatusMetadataGathered]
	if h.Status == models.HarvestStatusProcessing && pending == 0 {
		if err := s.store.UpdateHarvestStatus(ctx, h.ID, models.HarvestStatusComplete); err != nil {
			return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update harvest")
		}
		summary.Status = models.HarvestStatusComplete
	}

	_ = s.cache.Set(ctx, key, summary, s.cacheTTL)
	return summary, false, nil
}

func (s *HarvestService) invalidate(ctx context.Context, harvestID int64) {
	_ = s.cache.Invalidate(ctx, summaryCacheKey(harvestID))
}

// restoreStatus puts the harvest back into the status it had before a step
// that failed part way.
func (s *HarvestService) restoreStatus(ctx context.Context, h *models.Harvest) {
	if err := s.store.UpdateHarvestStatus(context.WithoutCancel(ctx), h.ID, h.Status); err != nil {
		s.logger.Sugar().Errorw("failed to restore harvest status", "harvest_id", h.ID, "status", h.Status, "error", err)
	}
}

func summaryCacheKey(harvestID int64) string {
	return fmt.Sprintf("harvest:summary:%d", harvestID)
}
