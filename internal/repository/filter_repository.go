package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/acoustic-workbench-api/internal/filter"
)

// FilterRepository executes queries assembled by the filter builder.
type FilterRepository struct {
	db *sqlx.DB
}

// NewFilterRepository creates a new FilterRepository.
func NewFilterRepository(db *sqlx.DB) *FilterRepository {
	return &FilterRepository{db: db}
}

// Count returns the number of rows matching the query, ignoring paging.
func (r *FilterRepository) Count(ctx context.Context, q *filter.Query) (int64, error) {
	query, args := q.CountSQL()
	var total int64
	if err := r.db.GetContext(ctx, &total, query, args...); err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Settings.Resource, err)
	}
	return total, nil
}

// Rows returns the current page as column maps.
func (r *FilterRepository) Rows(ctx context.Context, q *filter.Query) ([]map[string]any, error) {
	query, args := q.SQL()
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.Settings.Resource, err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.Settings.Resource, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", q.Settings.Resource, err)
	}
	return out, nil
}
