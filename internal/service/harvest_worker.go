package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/acoustic-workbench-api/internal/harvest"
	"github.com/noah-isme/acoustic-workbench-api/internal/models"
	"github.com/noah-isme/acoustic-workbench-api/pkg/jobs"
)

const (
	// JobTypeHarvestItem runs an item through the harvest pipeline.
	JobTypeHarvestItem = "harvest_item"
	// JobTypeDeleteOriginal removes an uploaded file after harvesting.
	JobTypeDeleteOriginal = "delete_original"
)

// HarvestJob is the payload of harvest_item jobs.
type HarvestJob struct {
	ItemID int64 `json:"item_id"`
	Full   bool  `json:"full"`
}

type itemProcessor interface {
	Perform(ctx context.Context, itemID int64, full bool) (models.HarvestItemStatus, error)
	DeleteOriginal(ctx context.Context, itemID int64) error
}

type delayedDispatcher interface {
	Enqueue(job jobs.Job) error
	EnqueueAfter(job jobs.Job, delay time.Duration) error
}

// HarvestWorker bridges queue jobs to the harvester. It also schedules the
// deferred deletion of uploaded originals.
type HarvestWorker struct {
	harvester itemProcessor
	items     delayedDispatcher
	deletes   delayedDispatcher
	logger    *zap.Logger
}

// NewHarvestWorker constructs a worker. Attach must be called before jobs
// are handled or enqueued.
func NewHarvestWorker(logger *zap.Logger) *HarvestWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HarvestWorker{logger: logger}
}

// Attach wires the harvester and the queues. The queues are created with
// the worker's handlers, so this happens after construction.
func (w *HarvestWorker) Attach(harvester itemProcessor, items, deletes delayedDispatcher) {
	w.harvester = harvester
	w.items = items
	w.deletes = deletes
}

// EnqueueItem queues an item for the pipeline. A pending job for the same
// item yields jobs.ErrDuplicate.
func (w *HarvestWorker) EnqueueItem(itemID int64, full bool) error {
	if w.items == nil {
		return fmt.Errorf("harvest queue not attached")
	}
	return w.items.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    JobTypeHarvestItem,
		Key:     harvest.JobKey(itemID),
		Payload: HarvestJob{ItemID: itemID, Full: full},
	})
}

// ScheduleDelete implements harvest.DeleteScheduler.
func (w *HarvestWorker) ScheduleDelete(_ context.Context, itemID int64, after time.Duration) error {
	if w.deletes == nil {
		return fmt.Errorf("delete queue not attached")
	}
	return w.deletes.EnqueueAfter(jobs.Job{
		ID:      uuid.NewString(),
		Type:    JobTypeDeleteOriginal,
		Key:     "delete:" + strconv.FormatInt(itemID, 10),
		Payload: itemID,
	}, after)
}

// Handle processes harvest_item jobs. Unexpected errors have already left
// the item errored, so they are not retried.
func (w *HarvestWorker) Handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(HarvestJob)
	if !ok {
		return jobs.Permanent(fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload))
	}
	status, err := w.harvester.Perform(ctx, payload.ItemID, payload.Full)
	if err != nil {
		if harvest.IsDomainError(err) {
			w.logger.Sugar().Warnw("harvest job skipped", "job_id", job.ID, "harvest_item_id", payload.ItemID, "error", err)
			return nil
		}
		return jobs.Permanent(err)
	}
	w.logger.Sugar().Infow("harvest job finished", "job_id", job.ID, "harvest_item_id", payload.ItemID, "status", status, "full", payload.Full)
	return nil
}

// HandleDelete processes delete_original jobs. Items that are not harvested
// yet return a retryable error so the queue tries again later.
func (w *HarvestWorker) HandleDelete(ctx context.Context, job jobs.Job) error {
	itemID, ok := job.Payload.(int64)
	if !ok {
		return jobs.Permanent(fmt.Errorf("job %s: unexpected payload %T", job.ID, job.Payload))
	}
	err := w.harvester.DeleteOriginal(ctx, itemID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, harvest.ErrNotReady):
		w.logger.Sugar().Infow("original not ready for deletion", "harvest_item_id", itemID, "attempt", job.Attempt)
		return err
	default:
		return jobs.Permanent(err)
	}
}

// InlineEnqueuer runs items through the pipeline as soon as they are
// enqueued, in the caller's goroutine.
type InlineEnqueuer struct {
	ctx       context.Context
	harvester itemProcessor
	logger    *zap.Logger
}

// NewInlineEnqueuer constructs an InlineEnqueuer bound to ctx.
func NewInlineEnqueuer(ctx context.Context, harvester itemProcessor, logger *zap.Logger) *InlineEnqueuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InlineEnqueuer{ctx: ctx, harvester: harvester, logger: logger}
}

// EnqueueItem processes the item immediately. Failures are already recorded
// on the item, so only a cancelled context is returned.
func (e *InlineEnqueuer) EnqueueItem(itemID int64, full bool) error {
	if err := e.ctx.Err(); err != nil {
		return err
	}
	status, err := e.harvester.Perform(e.ctx, itemID, full)
	if err != nil {
		e.logger.Sugar().Warnw("harvest item not processed", "harvest_item_id", itemID, "error", err)
		return nil
	}
	e.logger.Sugar().Infow("harvest item processed", "harvest_item_id", itemID, "status", status, "full", full)
	return nil
}
