package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStateConstants(t *testing.T) {
	// Verify status constants have expected values
	if TaskPending != "Pending" {
		t.Errorf("TaskPending = %q, want %q", TaskPending, "Pending")
	}
	if TaskCompleted != "Completed" {
		t.Errorf("TaskCompleted = %q, want %q", TaskCompleted, "Completed")
	}
	if TaskCancelled.String() != "Cancelled" {
		t.Errorf("TaskCancelled.String() = %q, want %q", TaskCancelled.String(), "Cancelled")
	}
}

func TestTaskState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    TaskState
		expected bool
	}{
		{TaskPending, false},
		{TaskRunning, false},
		{TaskCompleted, true},
		{TaskFailed, true},
		{TaskCancelled, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.state.IsTerminal(), "IsTerminal(%s)", tt.state)
		assert.Equal(t, tt.state == TaskRunning, tt.state.IsActive(), "IsActive(%s)", tt.state)
	}
}

func TestDownloadParameters_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  DownloadParameters
		wantErr bool
	}{
		{
			name:   "video highest mp4",
			params: DownloadParameters{Kind: KindVideo, Quality: "highest", Container: "mp4", OutputDirectory: "/tmp/out"},
		},
		{
			name:   "video 144p mkv",
			params: DownloadParameters{Kind: KindVideo, Quality: "144p", Container: "mkv", OutputDirectory: "/tmp/out"},
		},
		{
			name:   "audio with kbps label",
			params: DownloadParameters{Kind: KindAudio, Quality: "320 kbps", Container: "mp3", OutputDirectory: "/tmp/out"},
		},
		{
			name:   "audio bare bitrate",
			params: DownloadParameters{Kind: KindAudio, Quality: "96", Container: "flac", OutputDirectory: "/tmp/out"},
		},
		{
			name:    "unknown kind",
			params:  DownloadParameters{Kind: "image", Quality: "highest", Container: "mp4", OutputDirectory: "/tmp/out"},
			wantErr: true,
		},
		{
			name:    "video quality not on the ladder",
			params:  DownloadParameters{Kind: KindVideo, Quality: "2160p", Container: "mp4", OutputDirectory: "/tmp/out"},
			wantErr: true,
		},
		{
			name:    "audio container used for video",
			params:  DownloadParameters{Kind: KindVideo, Quality: "720p", Container: "mp3", OutputDirectory: "/tmp/out"},
			wantErr: true,
		},
		{
			name:    "audio bitrate not on the ladder",
			params:  DownloadParameters{Kind: KindAudio, Quality: "64 kbps", Container: "mp3", OutputDirectory: "/tmp/out"},
			wantErr: true,
		},
		{
			name:    "relative output directory",
			params:  DownloadParameters{Kind: KindVideo, Quality: "720p", Container: "mp4", OutputDirectory: "downloads"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidInput), "error should wrap ErrInvalidInput")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeBitrate(t *testing.T) {
	tests := map[string]string{
		"320 kbps": "320",
		"256kbps":  "256",
		"192k":     "192",
		"128":      "128",
		" 96 KBPS": "96",
		"64 kbps":  "",
		"best":     "",
		"":         "",
	}
	for input, expected := range tests {
		assert.Equal(t, expected, NormalizeBitrate(input), "NormalizeBitrate(%q)", input)
	}
}

func TestAudioBitrateFallback(t *testing.T) {
	p := DownloadParameters{Kind: KindAudio, Quality: "lossless"}
	assert.Equal(t, DefaultAudioBitrate, p.AudioBitrate())

	p.Quality = "256 kbps"
	assert.Equal(t, "256", p.AudioBitrate())
}

func TestVideoRecordDuration(t *testing.T) {
	assert.Equal(t, "0:00", VideoRecord{}.Duration())
	assert.Equal(t, "1:05", VideoRecord{DurationSeconds: 65}.Duration())
	assert.Equal(t, "1:01:01", VideoRecord{DurationSeconds: 3661}.Duration())
}
