package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/acoustic-workbench-api/internal/catalog"
	"github.com/noah-isme/acoustic-workbench-api/internal/filter"
)

func TestFilterRepositoryRunsQuery(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewFilterRepository(db)

	registry, err := catalog.NewRegistry(16)
	require.NoError(t, err)
	req, err := filter.ParseRequest([]byte(`{"filter":{"name":{"contains":"bow"}},"projection":{"include":["id","name"]},"paging":{"items":2}}`), nil)
	require.NoError(t, err)
	q, err := filter.NewBuilder(registry, filter.Limits{}).Build(catalog.Sites, req)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) AS "count" FROM "sites" WHERE "sites"."name" ILIKE $1`)).
		WithArgs("%bow%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM "sites" WHERE "sites"."name" ILIKE $1`)).
		WithArgs("%bow%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), []byte("Bowra")).AddRow(int64(2), "Bowral"))

	total, err := repo.Count(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	rows, err := repo.Rows(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rendered := q.Render(rows)
	name, _ := rendered[0].Get("name")
	assert.Equal(t, "Bowra", name)
	assert.NoError(t, mock.ExpectationsWereMet())
}
