package cmd

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-ytqueue/internal/downloader"
	"go-ytqueue/internal/engine"
	"go-ytqueue/internal/engine/enginetest"
	"go-ytqueue/internal/fetcher"
	"go-ytqueue/internal/models"
)

const (
	videoURL    = "https://youtu.be/a"
	playlistURL = "https://www.youtube.com/playlist?list=PL1"
)

func testConfig(mode string) models.Config {
	return models.Config{
		Download: models.DownloadConfig{Mode: mode},
		Display:  models.DisplayConfig{Style: "plain", RefreshPerSecond: 50},
	}
}

func newTestShell(t *testing.T, mode string) (*shell, *enginetest.Fake, *bytes.Buffer) {
	t.Helper()
	fake := enginetest.New()
	fake.Infos[videoURL] = &engine.Info{ID: "a", Title: "Alpha", Uploader: "Ann", Duration: 65}
	fake.Infos[playlistURL] = &engine.Info{ID: "PL1", Title: "List", Entries: []*engine.Info{
		{ID: "b", Title: "Beta"},
		{ID: "c", Title: "Gamma"},
	}}

	params := models.DownloadParameters{Kind: models.KindVideo, Quality: models.QualityHighest, Container: "mp4", OutputDirectory: t.TempDir()}
	var buf bytes.Buffer
	sh := newShell(testConfig(mode), params, fake, fetcher.New(fake, nil), nil, &buf)
	return sh, fake, &buf
}

func mustExec(t *testing.T, sh *shell, line string) {
	t.Helper()
	quit, err := sh.exec(context.Background(), line)
	require.NoError(t, err, line)
	require.False(t, quit)
}

func queuedIDs(sh *shell) []string {
	var ids []string
	for _, r := range sh.store.Records() {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestShellQueueEditing(t *testing.T) {
	sh, _, buf := newTestShell(t, models.ModeBulk)

	mustExec(t, sh, "add "+videoURL+" "+playlistURL)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, queuedIDs(sh))
	assert.Contains(t, buf.String(), "Added 2 videos from playlist.")

	// Adding again is a no-op.
	mustExec(t, sh, "add "+videoURL)
	assert.Len(t, queuedIDs(sh), 3)

	mustExec(t, sh, "select a c")
	assert.ElementsMatch(t, []string{"a", "c"}, sh.store.Selected())
	mustExec(t, sh, "delete")
	assert.Equal(t, []string{"b"}, queuedIDs(sh))
	assert.Empty(t, sh.store.Selected())
	assert.Equal(t, models.ModeBulk, sh.getMode())

	mustExec(t, sh, "remove 1")
	assert.Empty(t, queuedIDs(sh))
	assert.Equal(t, models.ModeSingle, sh.getMode(), "emptying the queue resets the mode")
}

func TestShellAddReportsFetchErrors(t *testing.T) {
	sh, _, buf := newTestShell(t, models.ModeBulk)
	mustExec(t, sh, "add https://example.com/nothing")
	assert.Contains(t, buf.String(), "Unsupported URL")
	assert.Empty(t, queuedIDs(sh))
}

func TestShellBulkStartPurgesOnSuccess(t *testing.T) {
	sh, fake, buf := newTestShell(t, models.ModeBulk)
	mustExec(t, sh, "add "+videoURL+" "+playlistURL)

	mustExec(t, sh, "start")
	sh.watchers.Wait()

	assert.Len(t, fake.Downloads(), 3)
	assert.Empty(t, queuedIDs(sh))
	assert.Equal(t, models.ModeSingle, sh.getMode())
	assert.Contains(t, buf.String(), "All 3 downloads completed successfully!")
}

func TestShellSingleStartsFirstOnly(t *testing.T) {
	sh, fake, buf := newTestShell(t, models.ModeBulk)
	mustExec(t, sh, "add "+playlistURL)
	mustExec(t, sh, "mode single")

	mustExec(t, sh, "start")
	sh.watchers.Wait()

	downloads := fake.Downloads()
	require.Len(t, downloads, 1)
	assert.Equal(t, downloader.VideoURL("b"), downloads[0].URL)
	assert.Equal(t, []string{"b", "c"}, queuedIDs(sh), "single mode keeps the queue")
	assert.Contains(t, buf.String(), "All 1 downloads completed successfully!")
}

func TestShellStopMarksBatchPartial(t *testing.T) {
	sh, fake, buf := newTestShell(t, models.ModeBulk)
	fake.Scripts[downloader.VideoURL("a")] = enginetest.Script{
		Ticks: []engine.Tick{{Status: engine.StatusDownloading, DownloadedBytes: 10, TotalBytes: 100}},
		Hold:  true,
	}
	mustExec(t, sh, "add "+videoURL)
	mustExec(t, sh, "start")

	_, err := sh.exec(context.Background(), "start")
	assert.Error(t, err, "only one batch at a time")

	mustExec(t, sh, "stop a")
	sh.watchers.Wait()

	assert.Equal(t, []string{"a"}, queuedIDs(sh))
	assert.Contains(t, buf.String(), "Downloads completed with some errors")
}

func TestShellFailedDownloadKeepsQueue(t *testing.T) {
	sh, fake, buf := newTestShell(t, models.ModeBulk)
	fake.Scripts[downloader.VideoURL("c")] = enginetest.Script{Err: errors.New("ERROR: video unavailable")}
	mustExec(t, sh, "add "+playlistURL)

	mustExec(t, sh, "start")
	sh.watchers.Wait()

	assert.Equal(t, []string{"b", "c"}, queuedIDs(sh))
	out := buf.String()
	assert.Contains(t, out, "[done] Beta")
	assert.Contains(t, out, "[fail] Gamma")
}

func TestShellSettings(t *testing.T) {
	sh, _, _ := newTestShell(t, models.ModeBulk)

	mustExec(t, sh, "set kind audio")
	p := sh.getParams()
	assert.Equal(t, models.KindAudio, p.Kind)
	assert.Equal(t, models.AudioBitrates[0], p.Quality)
	assert.Equal(t, models.AudioContainers[0], p.Container)

	mustExec(t, sh, "set format flac")
	assert.Equal(t, "flac", sh.getParams().Container)

	_, err := sh.exec(context.Background(), "set quality 8k")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	assert.Equal(t, models.AudioBitrates[0], sh.getParams().Quality, "invalid settings are not applied")
}

func TestShellErrors(t *testing.T) {
	sh, _, _ := newTestShell(t, models.ModeBulk)

	tests := []struct {
		line string
		want error
	}{
		{"frobnicate", models.ErrInvalidInput},
		{"mode parallel", models.ErrInvalidInput},
		{"add", models.ErrInvalidInput},
		{"stop", models.ErrInvalidInput},
		{"cancel", nil},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, err := sh.exec(context.Background(), tt.line)
			require.Error(t, err)
			if tt.want != nil {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}

	_, err := sh.exec(context.Background(), "start")
	assert.EqualError(t, err, "queue is empty")
}

func TestShellRun(t *testing.T) {
	sh, _, buf := newTestShell(t, models.ModeBulk)
	in := strings.NewReader("help\nadd " + videoURL + "\nlist\nquit\n")

	require.NoError(t, sh.run(context.Background(), in))

	out := buf.String()
	assert.Contains(t, out, "Commands:")
	assert.Contains(t, out, "Added: Alpha (1:05)")
	assert.Contains(t, out, "1 queued, mode bulk")
}
