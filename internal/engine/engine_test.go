package engine

import (
	"testing"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-ytqueue/internal/models"
)

func TestParseInfo(t *testing.T) {
	t.Run("single video", func(t *testing.T) {
		info, err := ParseInfo([]byte(`{"id":"abc","title":"Clip","uploader":"Chan","duration":65.4,"thumbnail":"https://x/y.jpg"}`))
		require.NoError(t, err)
		assert.False(t, info.IsPlaylist())
		assert.Equal(t, "abc", info.ID)
		assert.Equal(t, "Clip", info.Title)
		assert.Equal(t, "Chan", info.Uploader)
		assert.InDelta(t, 65.4, info.Duration, 0.001)
	})

	t.Run("playlist with null entry", func(t *testing.T) {
		info, err := ParseInfo([]byte(`{"id":"PL1","entries":[{"id":"a","title":"A"},null,{"id":"b"}]}`))
		require.NoError(t, err)
		require.True(t, info.IsPlaylist())
		require.Len(t, info.Entries, 3)
		assert.Equal(t, "a", info.Entries[0].ID)
		assert.Nil(t, info.Entries[1])
		assert.Equal(t, "b", info.Entries[2].ID)
	})

	t.Run("empty playlist is still a playlist", func(t *testing.T) {
		info, err := ParseInfo([]byte(`{"id":"PL2","entries":[]}`))
		require.NoError(t, err)
		assert.True(t, info.IsPlaylist())
		assert.Empty(t, info.Entries)
	})

	t.Run("null duration", func(t *testing.T) {
		info, err := ParseInfo([]byte(`{"id":"abc","duration":null}`))
		require.NoError(t, err)
		assert.Zero(t, info.Duration)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := ParseInfo([]byte(`not json`))
		assert.Error(t, err)
	})
}

func TestPlaylistID(t *testing.T) {
	tests := map[string]string{
		"https://www.youtube.com/playlist?list=PL123":        "PL123",
		"https://www.youtube.com/watch?v=abc&list=PL456&i=2": "PL456",
		"https://www.youtube.com/watch?v=abc":                "",
		"::not a url":                                        "",
	}
	for input, expected := range tests {
		assert.Equal(t, expected, PlaylistID(input), "PlaylistID(%q)", input)
	}
}

func TestDefaultHeaders(t *testing.T) {
	h := DefaultHeaders("")
	assert.Equal(t, DefaultUserAgent, h["User-Agent"])
	assert.Equal(t, "en-us,en;q=0.5", h["Accept-Language"])
	assert.Equal(t, "navigate", h["Sec-Fetch-Mode"])
	assert.Contains(t, h["Accept"], "text/html")

	assert.Equal(t, "custom/1.0", DefaultHeaders("custom/1.0")["User-Agent"])
}

func TestTickFromUpdate(t *testing.T) {
	update := ytdlp.ProgressUpdate{
		Status:          ytdlp.ProgressStatusDownloading,
		Filename:        "/tmp/clip.mp4",
		DownloadedBytes: 2048,
		TotalBytes:      4096,
	}

	tick := tickFromUpdate(update)
	assert.Equal(t, StatusDownloading, tick.Status)
	assert.Equal(t, "/tmp/clip.mp4", tick.Filename)
	assert.Equal(t, int64(2048), tick.DownloadedBytes)
	assert.Equal(t, int64(4096), tick.TotalBytes)
	assert.Zero(t, tick.SpeedBytesPerSec, "no start time means no speed")

	update.Started = time.Now().Add(-2 * time.Second)
	tick = tickFromUpdate(update)
	assert.Greater(t, tick.SpeedBytesPerSec, 0.0)
}

func TestLastErrorLine(t *testing.T) {
	stderr := "WARNING: something\nERROR: [youtube] abc: Video unavailable\n"
	assert.Equal(t, "ERROR: [youtube] abc: Video unavailable", lastErrorLine(stderr))
	assert.Equal(t, "", lastErrorLine("WARNING: only warnings"))
	assert.Equal(t, "", lastErrorLine(""))
}

func TestNewYTDLPDefaults(t *testing.T) {
	y := NewYTDLP(models.EngineConfig{})
	assert.Equal(t, DefaultUserAgent, y.userAgent)
	assert.Equal(t, DefaultFetchExtractorArgs, y.extractorArgs)
	assert.Zero(t, y.fetchTimeout)
}

func TestNewYTDLPTimeout(t *testing.T) {
	y := NewYTDLP(models.EngineConfig{FetchTimeoutSec: 30, UserAgent: "ua", BinaryPath: "/usr/local/bin/yt-dlp"})
	assert.Equal(t, 30*time.Second, y.fetchTimeout)
	assert.Equal(t, "ua", y.userAgent)
	assert.Equal(t, "/usr/local/bin/yt-dlp", y.binaryPath)
}
