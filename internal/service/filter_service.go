package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/acoustic-workbench-api/internal/filter"
	appErrors "github.com/noah-isme/acoustic-workbench-api/pkg/errors"
	"github.com/noah-isme/acoustic-workbench-api/pkg/logger"
)

type filterRunner interface {
	Count(ctx context.Context, q *filter.Query) (int64, error)
	Rows(ctx context.Context, q *filter.Query) ([]map[string]any, error)
}

// FilterResult is one page of filtered rows plus the effective request.
type FilterResult struct {
	Data []*filter.Hash `json:"data"`
	Meta filter.Meta    `json:"meta"`
}

// FilterService runs filter requests against the registered resources.
type FilterService struct {
	builder *filter.Builder
	runner  filterRunner
	metrics *MetricsService
	logger  *zap.Logger
}

// NewFilterService constructs a FilterService.
func NewFilterService(builder *filter.Builder, runner filterRunner, metrics *MetricsService, logger *zap.Logger) *FilterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilterService{builder: builder, runner: runner, metrics: metrics, logger: logger}
}

// Resources lists the resource names that accept filter requests.
func (s *FilterService) Resources() []string {
	return s.builder.Registry().Resources()
}

// Filter parses body and query into a filter request for resource and runs
// it. Scopes restrict the result further and are not visible to clients.
func (s *FilterService) Filter(ctx context.Context, resource string, body []byte, query url.Values, scopes ...filter.Expr) (*FilterResult, error) {
	if _, ok := s.builder.Registry().Resource(resource); !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("unknown resource %s", resource))
	}

	req, err := filter.ParseRequest(body, query)
	if err != nil {
		s.observeError(resource, err)
		return nil, err
	}
	q, err := s.builder.Build(resource, req, scopes...)
	if err != nil {
		s.observeError(resource, err)
		return nil, err
	}

	start := time.Now()
	total, err := s.runner.Count(ctx, q)
	s.metrics.ObserveDBQuery(resource+"_count", time.Since(start))
	if err != nil {
		logger.FromContext(ctx, s.logger).Sugar().Errorw("filter count failed", "resource", resource, "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count "+resource)
	}
	q.SetTotal(total)

	start = time.Now()
	rows, err := s.runner.Rows(ctx, q)
	s.metrics.ObserveDBQuery(resource+"_rows", time.Since(start))
	if err != nil {
		logger.FromContext(ctx, s.logger).Sugar().Errorw("filter query failed", "resource", resource, "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list "+resource)
	}

	return &FilterResult{Data: q.Render(rows), Meta: q.Meta}, nil
}

func (s *FilterService) observeError(resource string, err error) {
	code := appErrors.ErrInternal.Code
	var argErr *filter.ArgumentError
	if errors.As(err, &argErr) {
		code = appErrors.ErrFilterArgument.Code
	}
	s.metrics.ObserveFilterError(resource, code)
	s.logger.Sugar().Debugw("filter request rejected", "resource", resource, "error", err)
}
