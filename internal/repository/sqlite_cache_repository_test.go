package repository

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/maclab-sync/pkg/database"
	appErrors "github.com/noah-isme/maclab-sync/pkg/errors"
)

func newSQLiteCacheRepoMock(t *testing.T) (*SQLiteCacheRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	repo := NewSQLiteCacheRepository(sqlx.NewDb(db, "sqlmock"))
	repo.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return repo, mock, func() { db.Close() }
}

type cachedValue struct {
	Name string `json:"name"`
}

func TestSQLiteCacheRepositorySetUpserts(t *testing.T) {
	repo, mock, cleanup := newSQLiteCacheRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kv_cache (key, value, updated_at) VALUES (?, ?, ?)")).
		WithArgs("current_occupant", `{"name":"Networks"}`, int64(1700000000000)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Set(context.Background(), "current_occupant", cachedValue{Name: "Networks"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteCacheRepositoryGet(t *testing.T) {
	repo, mock, cleanup := newSQLiteCacheRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"value", "updated_at"}).AddRow(`{"name":"Networks"}`, int64(1700000000000))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT value, updated_at FROM kv_cache WHERE key = ?")).
		WithArgs("current_occupant").
		WillReturnRows(rows)

	var got cachedValue
	require.NoError(t, repo.Get(context.Background(), "current_occupant", &got))
	assert.Equal(t, "Networks", got.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteCacheRepositoryGetMiss(t *testing.T) {
	repo, mock, cleanup := newSQLiteCacheRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value, updated_at FROM kv_cache WHERE key = ?")).
		WithArgs("current_occupant").
		WillReturnRows(sqlmock.NewRows([]string{"value", "updated_at"}))

	var got cachedValue
	err := repo.Get(context.Background(), "current_occupant", &got)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteCacheRepositoryDelete(t *testing.T) {
	repo, mock, cleanup := newSQLiteCacheRepoMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM kv_cache WHERE key = ?")).
		WithArgs("current_occupant").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), "current_occupant"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepositoryWithoutClientMisses(t *testing.T) {
	repo := NewCacheRepository(nil, "lab", nil)
	var got cachedValue
	assert.ErrorIs(t, repo.Get(context.Background(), "current_occupant", &got), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "current_occupant", got))
	assert.NoError(t, repo.Delete(context.Background(), "current_occupant"))
	assert.Equal(t, "lab:current_occupant", repo.key("current_occupant"))
}

func TestSQLiteCacheRepositoryRoundTripOnDisk(t *testing.T) {
	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "lab-sync.db"))
	require.NoError(t, err)
	defer db.Close()
	repo := NewSQLiteCacheRepository(db)
	ctx := context.Background()

	var got cachedValue
	assert.ErrorIs(t, repo.Get(ctx, "current_occupant", &got), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "current_occupant", cachedValue{Name: "Networks"}))
	require.NoError(t, repo.Set(ctx, "current_occupant", cachedValue{Name: "Databases"}))
	require.NoError(t, repo.Get(ctx, "current_occupant", &got))
	assert.Equal(t, "Databases", got.Name)

	require.NoError(t, repo.Delete(ctx, "current_occupant"))
	require.NoError(t, repo.Delete(ctx, "current_occupant"))
	assert.ErrorIs(t, repo.Get(ctx, "current_occupant", &got), appErrors.ErrCacheMiss)
}
