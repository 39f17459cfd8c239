package index

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-ytqueue/internal/models"
)

func TestOpenOrCreateIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "history.bleve")

	idx, err := OpenOrCreateIndex(path)
	require.NoError(t, err)
	require.NoError(t, IndexEntry(idx, models.HistoryEntry{VideoID: "a1", Title: "Lofi beats to study to", Author: "Chill Channel"}))
	require.NoError(t, idx.Close())

	// Reopening keeps the documents.
	idx, err = OpenOrCreateIndex(path)
	require.NoError(t, err)
	defer idx.Close()

	count, err := idx.DocCount()
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestSearch(t *testing.T) {
	idx, err := OpenOrCreateIndex(filepath.Join(t.TempDir(), "history.bleve"))
	require.NoError(t, err)
	defer idx.Close()

	now := time.Now()
	entries := []models.HistoryEntry{
		{VideoID: "a1", Title: "Lofi beats to study to", Author: "Chill Channel", Kind: models.KindAudio, CompletedAt: now},
		{VideoID: "b2", Title: "Go concurrency patterns", Author: "Gopher Talks", Kind: models.KindVideo, CompletedAt: now},
		{VideoID: "c3", Title: "More lofi for coding", Author: "Gopher Talks", Kind: models.KindAudio, CompletedAt: now},
	}
	for _, e := range entries {
		require.NoError(t, IndexEntry(idx, e))
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"lofi", []string{"a1", "c3"}},
		{"author:gopher", []string{"b2", "c3"}},
		{"concurrency", []string{"b2"}},
		{"nothingmatches", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			hits, err := Search(idx, tt.query, 0)
			require.NoError(t, err)
			ids := make([]string, 0, len(hits))
			for _, h := range hits {
				ids = append(ids, h.VideoID)
			}
			assert.ElementsMatch(t, tt.want, ids)
		})
	}

	hits, err := Search(idx, "concurrency", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Go concurrency patterns", hits[0].Title)
	assert.Equal(t, "Gopher Talks", hits[0].Author)
}

func TestSearchEmptyQuery(t *testing.T) {
	idx, err := OpenOrCreateIndex(filepath.Join(t.TempDir(), "history.bleve"))
	require.NoError(t, err)
	defer idx.Close()

	_, err = Search(idx, "  ", 0)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestDeleteEntry(t *testing.T) {
	idx, err := OpenOrCreateIndex(filepath.Join(t.TempDir(), "history.bleve"))
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, IndexEntry(idx, models.HistoryEntry{VideoID: "a1", Title: "unique words here"}))
	require.NoError(t, DeleteEntry(idx, "a1"))

	hits, err := Search(idx, "unique", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
