package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-ytqueue/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPutGet(t *testing.T) {
	db := openTestDB(t)
	entry := models.HistoryEntry{
		CompletedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		VideoID:     "dQw4w9WgXcQ",
		Title:       "Never Gonna Give You Up",
		Author:      "Rick Astley",
		Kind:        models.KindVideo,
		Quality:     "720p",
		Container:   "mp4",
		OutputPath:  "/tmp/out/Never Gonna Give You Up.mp4",
	}

	require.NoError(t, db.Put(entry))
	assert.True(t, db.Has(entry.VideoID))

	got, err := db.Get(entry.VideoID)
	require.NoError(t, err)
	assert.Equal(t, entry.Title, got.Title)
	assert.True(t, entry.CompletedAt.Equal(got.CompletedAt))
	assert.Equal(t, entry.OutputPath, got.OutputPath)
}

func TestGetMissing(t *testing.T) {
	db := openTestDB(t)
	_, err := db.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, db.Has("nope"))
	assert.ErrorIs(t, db.Delete("nope"), ErrNotFound)
}

func TestPutRequiresVideoID(t *testing.T) {
	db := openTestDB(t)
	assert.ErrorIs(t, db.Put(models.HistoryEntry{Title: "x"}), models.ErrInvalidInput)
}

func TestListNewestFirst(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.Put(models.HistoryEntry{VideoID: id, CompletedAt: base.Add(time.Duration(i) * time.Hour)}))
	}
	// Re-downloading replaces the earlier entry.
	require.NoError(t, db.Put(models.HistoryEntry{VideoID: "a", CompletedAt: base.Add(5 * time.Hour)}))

	entries, err := db.List()
	require.NoError(t, err)
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.VideoID)
	}
	assert.Equal(t, []string{"a", "c", "b"}, ids)
}

func TestDelete(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Put(models.HistoryEntry{VideoID: "a"}))
	require.NoError(t, db.Delete("a"))
	assert.False(t, db.Has("a"))
}

func TestClosed(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	assert.ErrorIs(t, db.Put(models.HistoryEntry{VideoID: "a"}), ErrClosed)
	_, err = db.Get("a")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenEmptyPath(t *testing.T) {
	_, err := Open("")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}
