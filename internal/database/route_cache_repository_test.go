package database

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouteCacheGet(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRouteCacheRepository(db)

	t.Run("Hit", func(t *testing.T) {
		mock.ExpectQuery(`SELECT routes FROM route_cache WHERE path_id = \?`).
			WithArgs("NDLS-BCT").
			WillReturnRows(sqlmock.NewRows([]string{"routes"}).AddRow(`[{"type":"direct"}]`))

		data, found, err := repo.Get(context.Background(), "NDLS-BCT")
		require.NoError(t, err)
		assert.True(t, found)
		assert.JSONEq(t, `[{"type":"direct"}]`, string(data))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Miss", func(t *testing.T) {
		mock.ExpectQuery(`SELECT routes FROM route_cache`).
			WithArgs("BCT-NDLS").
			WillReturnError(sql.ErrNoRows)

		data, found, err := repo.Get(context.Background(), "BCT-NDLS")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, data)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing table is a miss", func(t *testing.T) {
		mock.ExpectQuery(`SELECT routes FROM route_cache`).
			WillReturnError(&pq.Error{Code: "42P01", Message: `relation "route_cache" does not exist`})

		_, found, err := repo.Get(context.Background(), "NDLS-HWH")
		require.NoError(t, err)
		assert.False(t, found)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Failure", func(t *testing.T) {
		mock.ExpectQuery(`SELECT routes FROM route_cache`).
			WillReturnError(fmt.Errorf("connection reset by peer"))

		_, found, err := repo.Get(context.Background(), "NDLS-HWH")
		assert.Error(t, err)
		assert.False(t, found)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRouteCachePut(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRouteCacheRepository(db)

	mock.ExpectExec(`INSERT INTO route_cache .* ON CONFLICT \(path_id\) DO UPDATE`).
		WithArgs("NDLS-BCT", `[]`, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Put(context.Background(), "NDLS-BCT", []byte(`[]`))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRouteCacheEnsureTable(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRouteCacheRepository(db)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS route_cache`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureTable(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRouteCacheCountAndClear(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewRouteCacheRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM route_cache`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2450))
	mock.ExpectExec(`DELETE FROM route_cache`).
		WillReturnResult(sqlmock.NewResult(0, 2450))

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2450, count)

	removed, err := repo.Clear(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2450, removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}
