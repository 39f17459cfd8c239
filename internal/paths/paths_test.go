package paths

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-ytqueue/internal/models"
)

func TestGeneratePath_BasicSubstitution(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		data     map[string]string
		expected string
		wantErr  bool
	}{
		{
			name:     "single placeholder",
			pattern:  "{author}",
			data:     map[string]string{"author": "Some Channel"},
			expected: "some_channel",
		},
		{
			name:     "multiple placeholders",
			pattern:  "{kind}/{author}/{quality}",
			data:     map[string]string{"kind": "video", "author": "My Channel", "quality": "720p"},
			expected: "video/my_channel/720p",
		},
		{
			name:     "missing value falls back",
			pattern:  "{author}/{videoId}",
			data:     map[string]string{"videoId": "abc123"},
			expected: "empty_author/abc123",
		},
		{
			name:    "unknown tag",
			pattern: "{title}",
			data:    map[string]string{"title": "x"},
			wantErr: true,
		},
		{
			name:    "traversal",
			pattern: "../{author}",
			data:    map[string]string{"author": "x"},
			wantErr: true,
		},
		{
			name:     "no placeholders",
			pattern:  "static/folder",
			expected: "static/folder",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GeneratePath(tt.pattern, tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestGeneratePath_SlashesInValuesAreDropped(t *testing.T) {
	got, err := GeneratePath("{author}", map[string]string{"author": "AC/DC"})
	require.NoError(t, err)
	assert.False(t, strings.Contains(got, "/"), "slug must not introduce directories: %s", got)
}

func TestOutputTemplate(t *testing.T) {
	params := models.DownloadParameters{Kind: models.KindVideo, Quality: "720p", Container: "mp4", OutputDirectory: "/downloads"}
	record := models.VideoRecord{ID: "abc123", Title: "Clip", Author: "Channel One"}

	t.Run("plain", func(t *testing.T) {
		got, err := OutputTemplate(record, params, "", false)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/downloads", "%(title)s.%(ext)s"), got)
	})

	t.Run("with id suffix", func(t *testing.T) {
		got, err := OutputTemplate(record, params, "", true)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/downloads", "%(title)s [abc123].%(ext)s"), got)
	})

	t.Run("with sub pattern", func(t *testing.T) {
		got, err := OutputTemplate(record, params, "{author}", false)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/downloads", "channel_one", "%(title)s.%(ext)s"), got)
	})

	t.Run("percent in directory is escaped", func(t *testing.T) {
		p := params
		p.OutputDirectory = "/downloads/100%"
		got, err := OutputTemplate(record, p, "", false)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/downloads/100%%", "%(title)s.%(ext)s"), got)
	})

	t.Run("bad sub pattern", func(t *testing.T) {
		_, err := OutputTemplate(record, params, "{nope}", false)
		assert.Error(t, err)
	})
}

func TestCollidingIDs(t *testing.T) {
	records := []models.VideoRecord{
		{ID: "a", Title: "Intro"},
		{ID: "b", Title: "intro"},
		{ID: "c", Title: "Outro"},
		{ID: "d", Title: "Intro!"},
	}

	got := CollidingIDs(records)
	assert.Equal(t, map[string]bool{"a": true, "b": true, "d": true}, got)

	assert.Empty(t, CollidingIDs([]models.VideoRecord{{ID: "x", Title: "Only"}}))
}
