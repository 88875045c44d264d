package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/noah-isme/acoustic-workbench-api/internal/harvest"
	"github.com/noah-isme/acoustic-workbench-api/internal/models"
	"github.com/noah-isme/acoustic-workbench-api/pkg/jobs"
)

type processorStub struct {
	mu        sync.Mutex
	performed []HarvestJob
	status    models.HarvestItemStatus
	err       error
	deleteErr []error
	deletes   int
	done      chan struct{}
}

func (p *processorStub) Perform(ctx context.Context, itemID int64, full bool) (models.HarvestItemStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.performed = append(p.performed, HarvestJob{ItemID: itemID, Full: full})
	if p.done != nil {
		p.done <- struct{}{}
	}
	return p.status, p.err
}

func (p *processorStub) DeleteOriginal(ctx context.Context, itemID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deletes++
	var err error
	if len(p.deleteErr) > 0 {
		err, p.deleteErr = p.deleteErr[0], p.deleteErr[1:]
	}
	if err == nil && p.done != nil {
		p.done <- struct{}{}
	}
	return err
}

type dispatcherStub struct {
	jobs   []jobs.Job
	delays []time.Duration
}

func (d *dispatcherStub) Enqueue(job jobs.Job) error {
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *dispatcherStub) EnqueueAfter(job jobs.Job, delay time.Duration) error {
	d.jobs = append(d.jobs, job)
	d.delays = append(d.delays, delay)
	return nil
}

func TestHarvestWorkerEnqueueUsesItemKey(t *testing.T) {
	items, deletes := &dispatcherStub{}, &dispatcherStub{}
	w := NewHarvestWorker(nil)
	w.Attach(&processorStub{}, items, deletes)

	require.NoError(t, w.EnqueueItem(42, true))
	require.Len(t, items.jobs, 1)
	assert.Equal(t, "harvest_item:42", items.jobs[0].Key)
	assert.Equal(t, JobTypeHarvestItem, items.jobs[0].Type)
	assert.Equal(t, HarvestJob{ItemID: 42, Full: true}, items.jobs[0].Payload)

	require.NoError(t, w.ScheduleDelete(context.Background(), 42, time.Hour))
	require.Len(t, deletes.jobs, 1)
	assert.Equal(t, "delete:42", deletes.jobs[0].Key)
	assert.Equal(t, []time.Duration{time.Hour}, deletes.delays)
}

func TestHarvestWorkerUnattached(t *testing.T) {
	w := NewHarvestWorker(nil)
	assert.Error(t, w.EnqueueItem(1, false))
	assert.Error(t, w.ScheduleDelete(context.Background(), 1, time.Second))
}

func TestHarvestWorkerHandleErrors(t *testing.T) {
	proc := &processorStub{status: models.HarvestItemStatusFailed}
	w := NewHarvestWorker(nil)
	w.Attach(proc, &dispatcherStub{}, &dispatcherStub{})

	assert.NoError(t, w.Handle(context.Background(), jobs.Job{Payload: HarvestJob{ItemID: 1}}))

	proc.err = errors.New("disk full")
	err := w.Handle(context.Background(), jobs.Job{Payload: HarvestJob{ItemID: 1}})
	require.Error(t, err)
	assert.True(t, jobs.IsPermanent(err))

	proc.err = &harvest.DomainError{Code: harvest.CodeItemNotFound, Message: "gone"}
	assert.NoError(t, w.Handle(context.Background(), jobs.Job{Payload: HarvestJob{ItemID: 1}}))

	err = w.Handle(context.Background(), jobs.Job{Payload: "nope"})
	assert.True(t, jobs.IsPermanent(err))
}

func TestHarvestWorkerHandleDeleteRetriesWhenNotReady(t *testing.T) {
	proc := &processorStub{deleteErr: []error{harvest.ErrNotReady, errors.New("permission denied")}}
	w := NewHarvestWorker(nil)
	w.Attach(proc, &dispatcherStub{}, &dispatcherStub{})

	err := w.HandleDelete(context.Background(), jobs.Job{Payload: int64(5)})
	require.Error(t, err)
	assert.False(t, jobs.IsPermanent(err))

	err = w.HandleDelete(context.Background(), jobs.Job{Payload: int64(5)})
	assert.True(t, jobs.IsPermanent(err))

	assert.NoError(t, w.HandleDelete(context.Background(), jobs.Job{Payload: int64(5)}))
	assert.Equal(t, 3, proc.deletes)
}

func TestHarvestWorkerRunsOnQueues(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	proc := &processorStub{status: models.HarvestItemStatusCompleted, done: make(chan struct{}, 4)}
	w := NewHarvestWorker(nil)
	items := jobs.NewQueue("harvest", w.Handle, jobs.QueueConfig{Workers: 2})
	deletes := jobs.NewQueue("harvest_delete", w.HandleDelete, jobs.QueueConfig{RetryDelay: 10 * time.Millisecond})
	w.Attach(proc, items, deletes)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	items.Start(ctx)
	deletes.Start(ctx)

	proc.deleteErr = []error{harvest.ErrNotReady}
	require.NoError(t, w.EnqueueItem(7, true))
	require.NoError(t, w.ScheduleDelete(ctx, 7, 5*time.Millisecond))

	for i := 0; i < 2; i++ {
		select {
		case <-proc.done:
		case <-time.After(2 * time.Second):
			t.Fatal("jobs did not run")
		}
	}

	items.Stop()
	deletes.Stop()

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Equal(t, []HarvestJob{{ItemID: 7, Full: true}}, proc.performed)
	assert.Equal(t, 2, proc.deletes)
}

func TestInlineEnqueuerRunsImmediately(t *testing.T) {
	proc := &processorStub{status: models.HarvestItemStatusMetadataGathered, err: errors.New("disk full")}
	ctx, cancel := context.WithCancel(context.Background())
	inline := NewInlineEnqueuer(ctx, proc, nil)

	assert.NoError(t, inline.EnqueueItem(3, false))
	assert.Equal(t, []HarvestJob{{ItemID: 3}}, proc.performed)

	cancel()
	assert.ErrorIs(t, inline.EnqueueItem(4, false), context.Canceled)
	assert.Len(t, proc.performed, 1)
}
