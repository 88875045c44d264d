package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/acoustic-workbench-api/internal/models"
	appErrors "github.com/noah-isme/acoustic-workbench-api/pkg/errors"
)

func TestMetricsServiceHarvestOutcomes(t *testing.T) {
	m := NewMetricsService()
	m.ObserveItem(models.HarvestItemStatusCompleted)
	m.ObserveItem(models.HarvestItemStatusCompleted)
	m.ObserveItem(models.HarvestItemStatusFailed)
	m.ObserveValidation(models.ValidationResult{Code: "too_short", Status: models.ValidationNotFixable})
	m.ObserveQueueDepth("harvest", 3)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.harvestItems.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.harvestValidation.WithLabelValues("too_short", "not_fixable")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.queueDepth.WithLabelValues("harvest")))

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.HarvestedItems)
	assert.Equal(t, uint64(1), snap.FailedItems)
	assert.Zero(t, snap.ErroredItems)
}

func TestMetricsServiceHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/:resource", 200, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/api/v1/:resource",status="200"} 1`)

	var nilMetrics *MetricsService
	rec = httptest.NewRecorder()
	nilMetrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	nilMetrics.ObserveItem(models.HarvestItemStatusFailed)
}

type failingCacheRepo struct{ err error }

func (r failingCacheRepo) Get(ctx context.Context, key string, dest interface{}) error { return r.err }
func (r failingCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return r.err
}
func (r failingCacheRepo) Delete(ctx context.Context, keys ...string) error { return r.err }

func TestCacheServiceRecordsMisses(t *testing.T) {
	m := NewMetricsService()
	cache := NewCacheService(failingCacheRepo{err: appErrors.ErrCacheMiss}, m, 0, nil)

	var dest HarvestSummary
	hit, err := cache.Get(context.Background(), "harvest:summary:1", &dest)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, uint64(1), m.Snapshot().CacheMisses)

	broken := NewCacheService(failingCacheRepo{err: errors.New("redis down")}, m, 0, nil)
	_, err = broken.Get(context.Background(), "k", &dest)
	assert.Error(t, err)

	disabled := NewCacheService(nil, m, 0, nil)
	assert.NoError(t, disabled.Set(context.Background(), "k", dest, 0))
	assert.False(t, disabled.Enabled())
}
