package helpers

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"
)

func TestConvertToSlug(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple string",
			input:    "Hello World",
			expected: "hello_world",
		},
		{
			name:     "with colons",
			input:    "Live: Full Concert",
			expected: "live-full_concert",
		},
		{
			name:     "punctuation removed",
			input:    "What's New? (Official Video)",
			expected: "whats_new_official_video",
		},
		{
			name:     "multiple spaces",
			input:    "Hello   World",
			expected: "hello_world",
		},
		{
			name:     "dots preserved",
			input:    "Episode 1.5",
			expected: "episode_1.5",
		},
		{
			name:     "leading/trailing separators removed",
			input:    "__test__",
			expected: "test",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "only special chars",
			input:    "@#$%^&*()",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ConvertToSlug(tt.input))
		})
	}
}

func TestBytesToSize(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		bytes    uint64
	}{
		{name: "zero bytes", bytes: 0, expected: "0B"},
		{name: "one byte", bytes: 1, expected: "1.00B"},
		{name: "kilobytes", bytes: 1024, expected: "1.00KB"},
		{name: "fractional megabytes", bytes: 1536 * 1024, expected: "1.50MB"},
		{name: "gigabytes", bytes: 1024 * 1024 * 1024, expected: "1.00GB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BytesToSize(tt.bytes))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		expected string
		seconds  int
	}{
		{seconds: 0, expected: "0:00"},
		{seconds: -5, expected: "0:00"},
		{seconds: 7, expected: "0:07"},
		{seconds: 65, expected: "1:05"},
		{seconds: 600, expected: "10:00"},
		{seconds: 3600, expected: "1:00:00"},
		{seconds: 3661, expected: "1:01:01"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatDuration(tt.seconds), "FormatDuration(%d)", tt.seconds)
	}
}

func TestFormatSpeed(t *testing.T) {
	tests := []struct {
		expected string
		speed    float64
	}{
		{speed: 0, expected: "0 B/s"},
		{speed: -1, expected: "0 B/s"},
		{speed: 500, expected: "500 B/s"},
		{speed: 1023, expected: "1023 B/s"},
		{speed: 2048, expected: "2.0 KB/s"},
		{speed: 1536, expected: "1.5 KB/s"},
		{speed: 5 * 1024 * 1024, expected: "5.00 MB/s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatSpeed(tt.speed), "FormatSpeed(%v)", tt.speed)
	}
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		expected string
		seconds  int
	}{
		{seconds: 0, expected: "Unknown"},
		{seconds: -3, expected: "Unknown"},
		{seconds: 45, expected: "45s"},
		{seconds: 125, expected: "2m 5s"},
		{seconds: 3725, expected: "1h 2m 5s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatETA(tt.seconds), "FormatETA(%d)", tt.seconds)
	}
}

func TestStringSliceContains(t *testing.T) {
	assert.True(t, StringSliceContains([]string{"MP4", "mkv"}, "mp4"))
	assert.False(t, StringSliceContains([]string{"mp4", "mkv"}, "avi"))
	assert.False(t, StringSliceContains(nil, "mp4"))
}

func TestCheckAndMakeDir(t *testing.T) {
	tempDir := t.TempDir()

	nested := filepath.Join(tempDir, "nested", "path", "here")
	assert.True(t, CheckAndMakeDir(nested))
	info, err := os.Stat(nested)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Existing directory
	assert.True(t, CheckAndMakeDir(tempDir))

	// A file in the way
	file := filepath.Join(tempDir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.False(t, CheckAndMakeDir(file))
}

func TestHashFileAndCheckHash(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "test_file.txt")
	content := []byte("Hello, World!")
	require.NoError(t, os.WriteFile(testFile, content, 0o644))

	sum := blake3.Sum256(content)
	expected := hex.EncodeToString(sum[:])

	got, err := HashFile(testFile)
	require.NoError(t, err)
	assert.Equal(t, expected, got)

	t.Run("matching hash", func(t *testing.T) {
		assert.True(t, CheckHash(testFile, expected))
	})

	t.Run("no hash provided", func(t *testing.T) {
		assert.False(t, CheckHash(testFile, ""))
	})

	t.Run("mismatching hash", func(t *testing.T) {
		assert.False(t, CheckHash(testFile, "deadbeef"))
	})

	t.Run("nonexistent file", func(t *testing.T) {
		assert.False(t, CheckHash(filepath.Join(tempDir, "missing.txt"), expected))
		_, err := HashFile(filepath.Join(tempDir, "missing.txt"))
		assert.Error(t, err)
	})
}
