package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestQueueProcessesJobs(t *testing.T) {
	var wg sync.WaitGroup
	var processed int32
	wg.Add(3)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&processed, 1)
		wg.Done()
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "job"}))
	}
	wg.Wait()
	assert.Equal(t, int32(3), atomic.LoadInt32(&processed))
}

func TestQueueRejectsUnstarted(t *testing.T) {
	q := NewQueue("idle", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "x"}))
}

func TestQueueUniquenessKey(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	done := make(chan struct{}, 2)
	q := NewQueue("unique", func(ctx context.Context, job Job) error {
		started <- struct{}{}
		<-release
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Key: "harvest_item:1"}))
	<-started
	err := q.Enqueue(Job{ID: "2", Key: "harvest_item:1"})
	assert.ErrorIs(t, err, ErrDuplicate)
	close(release)
	<-done

	require.Eventually(t, func() bool {
		return q.Enqueue(Job{ID: "3", Key: "harvest_item:1"}) == nil
	}, time.Second, 5*time.Millisecond)
	<-done
}

func TestQueueRetriesThenGivesUp(t *testing.T) {
	var attempts int32
	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("boom")
	}, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "r", Key: "k"}))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&attempts) == 3 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return q.Enqueue(Job{ID: "again", Key: "k"}) == nil
	}, time.Second, time.Millisecond)
}

func TestQueuePermanentErrorSkipsRetry(t *testing.T) {
	var attempts int32
	q := NewQueue("permanent", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return Permanent(errors.New("bug"))
	}, QueueConfig{Workers: 1, MaxRetries: 5, RetryDelay: time.Millisecond})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "p"}))
	require.Eventually(t, func() bool { return atomic.LoadInt32(&attempts) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	q.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestQueueEnqueueAfter(t *testing.T) {
	ran := make(chan time.Time, 1)
	q := NewQueue("delayed", func(ctx context.Context, job Job) error {
		ran <- time.Now()
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	start := time.Now()
	require.NoError(t, q.EnqueueAfter(Job{ID: "d", Key: "delete:1"}, 30*time.Millisecond))
	assert.ErrorIs(t, q.EnqueueAfter(Job{ID: "d2", Key: "delete:1"}, time.Millisecond), ErrDuplicate)

	select {
	case at := <-ran:
		assert.GreaterOrEqual(t, at.Sub(start), 30*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("delayed job never ran")
	}
}

func TestQueueStopCancelsDelayedJobs(t *testing.T) {
	q := NewQueue("cancel", func(ctx context.Context, job Job) error { return nil }, QueueConfig{})
	q.Start(context.Background())
	require.NoError(t, q.EnqueueAfter(Job{ID: "later"}, time.Hour))
	q.Stop()
}

func TestQueueStopReleasesBufferedKeys(t *testing.T) {
	locker := NewMemoryLocker()
	started := make(chan struct{}, 4)
	q := NewQueue("buffered", func(ctx context.Context, job Job) error {
		started <- struct{}{}
		<-ctx.Done()
		return Permanent(ctx.Err())
	}, QueueConfig{Workers: 1, BufferSize: 4, Locker: locker, LockTTL: time.Hour})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "1", Key: "harvest_item:1"}))
	<-started
	require.NoError(t, q.Enqueue(Job{ID: "2", Key: "harvest_item:2"}))
	require.NoError(t, q.Enqueue(Job{ID: "3", Key: "harvest_item:3"}))
	q.Stop()

	for _, key := range []string{"harvest_item:1", "harvest_item:2", "harvest_item:3"} {
		ok, err := locker.Acquire(context.Background(), "buffered:"+key, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok, key)
	}
}

func TestMemoryLockerExpiry(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, err := l.Acquire(context.Background(), "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = l.Acquire(context.Background(), "a", time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = l.Acquire(context.Background(), "a", time.Minute)
	assert.True(t, ok)

	require.NoError(t, l.Release(context.Background(), "a"))
	ok, _ = l.Acquire(context.Background(), "a", time.Minute)
	assert.True(t, ok)
}
