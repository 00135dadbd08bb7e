package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"feedsync/internal/domain"
	"feedsync/internal/storage"
	"feedsync/internal/storage/sqlite"
	"feedsync/internal/storage/storagetest"
)

func TestSQLiteStorage(t *testing.T) {
	suite.Run(t, &storagetest.Suite{
		Factory: func(t *testing.T) storage.Storage {
			store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
			require.NoError(t, err)
			return store
		},
		EnforceWriteLock: true,
	})
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	store, err := sqlite.Open(path)
	require.NoError(t, err)

	interval := 25 * time.Minute
	feed := &domain.Feed{
		SourceName:     "test",
		FeedURL:        "uri://test",
		Title:          "survives reopen",
		UpdateInterval: &interval,
		Items: []domain.Item{
			{GUID: "g1", Title: "item"},
		},
	}
	store.AcquireWriteLock()
	require.NoError(t, store.PutFeed(ctx, feed))
	store.ReleaseWriteLock()
	require.NoError(t, store.Close())

	store, err = sqlite.Open(path)
	require.NoError(t, err)
	defer store.Close()

	stored, err := store.GetFeedByID(ctx, feed.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, "survives reopen", stored.Title)
	require.NotNil(t, stored.UpdateInterval)
	require.Equal(t, interval, *stored.UpdateInterval)
	require.Len(t, stored.Items, 1)
	require.Equal(t, "g1", stored.Items[0].GUID)
}

// Timestamps live in the database as offset-qualified text and
// intervals as plain seconds, so the file stays inspectable with any
// sqlite client.
func TestSQLiteStoredRepresentation(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	store, err := sqlite.Open(path)
	require.NoError(t, err)
	defer store.Close()

	interval := 12*time.Minute + 37*time.Second
	lastRefreshed := time.Date(2018, 10, 6, 16, 17, 18, 192021000, time.UTC)

	feed := &domain.Feed{
		SourceName:     "test",
		FeedURL:        "uri://test",
		UpdateInterval: &interval,
		LastRefreshed:  &lastRefreshed,
	}
	store.AcquireWriteLock()
	require.NoError(t, store.PutFeed(ctx, feed))
	store.ReleaseWriteLock()

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	var (
		rawInterval  float64
		rawRefreshed string
	)
	row := db.QueryRow("SELECT update_interval, last_refreshed FROM feeds WHERE id = ?", feed.ID)
	require.NoError(t, row.Scan(&rawInterval, &rawRefreshed))

	require.Equal(t, 757.0, rawInterval)
	require.Equal(t, "2018-10-06 16:17:18.192021+00:00", rawRefreshed)
}

func TestSQLiteParsesLegacyTimestamps(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	store, err := sqlite.Open(path)
	require.NoError(t, err)
	defer store.Close()

	store.AcquireWriteLock()
	require.NoError(t, store.PutFeed(ctx, &domain.Feed{SourceName: "test", FeedURL: "uri://test"}))
	store.ReleaseWriteLock()

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	// Rows written without fractional seconds or offset must still load.
	_, err = db.Exec("UPDATE feeds SET last_refreshed = '2020-01-02 03:04:05' WHERE id = 1")
	require.NoError(t, err)

	stored, err := store.GetFeedByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.LastRefreshed)
	require.Equal(t, time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC), *stored.LastRefreshed)
}
