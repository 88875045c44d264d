package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/acoustic-workbench-api/pkg/errors"
)

type cachedSummary struct {
	HarvestID int64            `json:"harvest_id"`
	Counts    map[string]int64 `json:"counts"`
}

func TestMemoryCacheRepositoryRoundTrip(t *testing.T) {
	repo := NewMemoryCacheRepository(time.Minute, time.Minute)
	ctx := context.Background()

	var got cachedSummary
	assert.ErrorIs(t, repo.Get(ctx, "harvest:summary:1", &got), appErrors.ErrCacheMiss)

	in := &cachedSummary{HarvestID: 1, Counts: map[string]int64{"new": 2}}
	require.NoError(t, repo.Set(ctx, "harvest:summary:1", in, 0))
	in.Counts["new"] = 99

	require.NoError(t, repo.Get(ctx, "harvest:summary:1", &got))
	assert.Equal(t, int64(2), got.Counts["new"])

	require.NoError(t, repo.Delete(ctx, "harvest:summary:1", "missing"))
	assert.ErrorIs(t, repo.Get(ctx, "harvest:summary:1", &got), appErrors.ErrCacheMiss)
}

func TestMemoryCacheRepositoryExpires(t *testing.T) {
	repo := NewMemoryCacheRepository(time.Minute, time.Minute)
	ctx := context.Background()
	require.NoError(t, repo.Set(ctx, "k", cachedSummary{HarvestID: 3}, time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	var got cachedSummary
	assert.ErrorIs(t, repo.Get(ctx, "k", &got), appErrors.ErrCacheMiss)
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "", nil)
	ctx := context.Background()

	var got cachedSummary
	assert.ErrorIs(t, repo.Get(ctx, "k", &got), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "k", got, time.Minute))
	assert.NoError(t, repo.Delete(ctx, "k"))
	assert.Equal(t, DefaultCachePrefix, repo.prefix)
}
