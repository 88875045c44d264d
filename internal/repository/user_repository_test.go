package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

func TestGetUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	rows := sqlmock.NewRows([]string{"id", "user_name", "email"}).AddRow(int64(9), "harvester", "h@example.com")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_name, email FROM users WHERE id = $1 LIMIT 1")).
		WithArgs(int64(9)).
		WillReturnRows(rows)

	user, err := repo.GetUser(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, "harvester", user.UserName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("FROM users").WithArgs(int64(1)).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetUser(context.Background(), 1)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
