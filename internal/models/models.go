package models

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go-ytqueue/internal/helpers"
)

// ErrInvalidInput is returned for caller-supplied values outside the accepted sets
// (empty URLs, unknown kinds or qualities, relative output directories, ...).
var ErrInvalidInput = errors.New("invalid input")

// Download kinds
const (
	KindVideo = "video"
	KindAudio = "audio"
)

// Batch modes. Single mode only differs in presentation and never purges the queue.
const (
	ModeBulk   = "bulk"
	ModeSingle = "single"
)

// QualityHighest selects the best available video+audio merge.
const QualityHighest = "highest"

// DefaultAudioBitrate is used when an audio quality cannot be mapped to the bitrate ladder.
const DefaultAudioBitrate = "192"

// VideoQualities lists accepted video qualities, best first.
var VideoQualities = []string{QualityHighest, "1080p", "720p", "480p", "360p", "240p", "144p"}

// AudioBitrates is the fixed audio bitrate ladder in kbps, best first.
var AudioBitrates = []string{"320", "256", "192", "128", "96"}

// VideoContainers lists accepted video container targets.
var VideoContainers = []string{"mp4", "mkv", "webm", "avi", "mov"}

// AudioContainers lists accepted audio codec/container targets.
var AudioContainers = []string{"mp3", "m4a", "opus", "wav", "flac"}

type (
	// Config holds the application's configuration settings.
	Config struct {
		OutputDir string         `toml:"OutputDir" json:"OutputDir"`
		LogLevel  string         `toml:"LogLevel" json:"LogLevel"`
		LogFormat string         `toml:"LogFormat" json:"LogFormat"`
		Download  DownloadConfig `toml:"Download" json:"Download"`
		Engine    EngineConfig   `toml:"Engine" json:"Engine"`
		History   HistoryConfig  `toml:"History" json:"History"`
		Display   DisplayConfig  `toml:"Display" json:"Display"`
	}

	// DownloadConfig holds the default batch parameters.
	DownloadConfig struct {
		Kind             string `toml:"Kind" json:"Kind"`
		Quality          string `toml:"Quality" json:"Quality"`
		Container        string `toml:"Container" json:"Container"`
		Mode             string `toml:"Mode" json:"Mode"`
		OutputTemplate   string `toml:"OutputTemplate" json:"OutputTemplate"`
		SkipConfirmation bool   `toml:"SkipConfirmation" json:"SkipConfirmation"`
	}

	// EngineConfig holds settings for the yt-dlp binding.
	EngineConfig struct {
		BinaryPath         string `toml:"BinaryPath" json:"BinaryPath"`
		ExtractorArgs      string `toml:"ExtractorArgs" json:"ExtractorArgs"`
		UserAgent          string `toml:"UserAgent" json:"UserAgent"`
		FetchTimeoutSec    int    `toml:"FetchTimeoutSec" json:"FetchTimeoutSec"`
		ProgressIntervalMs int    `toml:"ProgressIntervalMs" json:"ProgressIntervalMs"`
		AutoInstall        bool   `toml:"AutoInstall" json:"AutoInstall"`
		NativePlaylist     bool   `toml:"NativePlaylist" json:"NativePlaylist"`
	}

	// HistoryConfig holds settings for the completed-downloads history.
	HistoryConfig struct {
		DatabasePath string `toml:"DatabasePath" json:"DatabasePath"`
		IndexPath    string `toml:"IndexPath" json:"IndexPath"`
		Enabled      bool   `toml:"Enabled" json:"Enabled"`
		HashFiles    bool   `toml:"HashFiles" json:"HashFiles"`
	}

	// DisplayConfig holds settings for the terminal progress display.
	DisplayConfig struct {
		Style            string `toml:"Style" json:"Style"` // live, bars or plain
		RefreshPerSecond int    `toml:"RefreshPerSecond" json:"RefreshPerSecond"`
		Color            bool   `toml:"Color" json:"Color"`
	}
)

// VideoRecord is the metadata of one fetchable item. It is never mutated after fetching.
type VideoRecord struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	ThumbnailURL    string `json:"thumbnail_url"`
	DurationSeconds int    `json:"duration_seconds"`
}

// Duration renders the record's length, "0:00" when unknown.
func (r VideoRecord) Duration() string {
	return helpers.FormatDuration(r.DurationSeconds)
}

// DownloadParameters are supplied once per batch and shared read-only by its tasks.
type DownloadParameters struct {
	Kind            string `json:"kind"`
	Quality         string `json:"quality"`
	Container       string `json:"container"`
	OutputDirectory string `json:"output_directory"`
}

// Validate checks the parameters against the accepted kind/quality/container sets.
func (p DownloadParameters) Validate() error {
	switch p.Kind {
	case KindVideo:
		if !contains(VideoQualities, p.Quality) {
			return fmt.Errorf("%w: unknown video quality %q", ErrInvalidInput, p.Quality)
		}
		if !contains(VideoContainers, p.Container) {
			return fmt.Errorf("%w: unknown video container %q", ErrInvalidInput, p.Container)
		}
	case KindAudio:
		if !contains(AudioBitrates, NormalizeBitrate(p.Quality)) {
			return fmt.Errorf("%w: unknown audio quality %q", ErrInvalidInput, p.Quality)
		}
		if !contains(AudioContainers, p.Container) {
			return fmt.Errorf("%w: unknown audio container %q", ErrInvalidInput, p.Container)
		}
	default:
		return fmt.Errorf("%w: unknown download kind %q", ErrInvalidInput, p.Kind)
	}
	if p.OutputDirectory == "" || !filepath.IsAbs(p.OutputDirectory) {
		return fmt.Errorf("%w: output directory must be an absolute path, got %q", ErrInvalidInput, p.OutputDirectory)
	}
	return nil
}

// NormalizeBitrate maps "320 kbps", "320k" or "320" to "320". Unknown values map to "".
func NormalizeBitrate(quality string) string {
	q := strings.ToLower(strings.TrimSpace(quality))
	q = strings.TrimSuffix(q, "kbps")
	q = strings.TrimSuffix(q, "k")
	q = strings.TrimSpace(q)
	if _, err := strconv.Atoi(q); err != nil {
		return ""
	}
	if !contains(AudioBitrates, q) {
		return ""
	}
	return q
}

// AudioBitrate returns the bitrate for the audio quality, falling back to DefaultAudioBitrate.
func (p DownloadParameters) AudioBitrate() string {
	if b := NormalizeBitrate(p.Quality); b != "" {
		return b
	}
	return DefaultAudioBitrate
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

// TaskState is the lifecycle state of a download task.
type TaskState string

const (
	TaskPending   TaskState = "Pending"
	TaskRunning   TaskState = "Running"
	TaskCompleted TaskState = "Completed"
	TaskFailed    TaskState = "Failed"
	TaskCancelled TaskState = "Cancelled"
)

// String returns the string representation of TaskState
func (s TaskState) String() string {
	return string(s)
}

// IsTerminal reports whether no further events follow this state.
func (s TaskState) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// IsActive reports whether the task is currently executing.
func (s TaskState) IsActive() bool {
	return s == TaskRunning
}

// ProgressEvent is emitted by a task for every engine tick with status "downloading".
type ProgressEvent struct {
	TaskID           string  `json:"task_id"`
	VideoID          string  `json:"video_id"`
	SpeedLabel       string  `json:"speed"`
	ETALabel         string  `json:"eta"`
	Percent          float64 `json:"percent"`
	SpeedBytesPerSec float64 `json:"speed_bytes_per_sec"`
	ETASeconds       int     `json:"eta_seconds"`
	DownloadedBytes  int64   `json:"downloaded_bytes"`
	TotalBytes       int64   `json:"total_bytes"`
}

// TerminalEvent is the final notification of a task; exactly one per task.
type TerminalEvent struct {
	Err        error     `json:"-"`
	FinishedAt time.Time `json:"finished_at"`
	TaskID     string    `json:"task_id"`
	VideoID    string    `json:"video_id"`
	Message    string    `json:"message"`
	OutputPath string    `json:"output_path,omitempty"`
	State      TaskState `json:"state"`
	Success    bool      `json:"success"`
}

// TaskEvent carries either a progress event or the terminal event of one task.
type TaskEvent struct {
	Progress *ProgressEvent
	Terminal *TerminalEvent
}

// TaskSnapshot is the latest known state of one task in a batch.
type TaskSnapshot struct {
	TaskID     string    `json:"task_id"`
	VideoID    string    `json:"video_id"`
	Title      string    `json:"title"`
	SpeedLabel string    `json:"speed"`
	ETALabel   string    `json:"eta"`
	Message    string    `json:"message,omitempty"`
	State      TaskState `json:"state"`
	Percent    float64   `json:"percent"`
}

// BatchStatus is the aggregate state of a batch plus the per-task numbers it was built from.
type BatchStatus struct {
	Tasks       []TaskSnapshot `json:"tasks"`
	AvgProgress float64        `json:"avg_progress"`
	ActiveCount int            `json:"active_count"`
	TotalCount  int            `json:"total_count"`
	Completed   int            `json:"completed"`
}

// BatchOutcome is the reconciled result of a finished batch.
type BatchOutcome string

const (
	OutcomeAllSuccess     BatchOutcome = "all-success"
	OutcomePartialFailure BatchOutcome = "partial-failure"
	OutcomeCancelled      BatchOutcome = "cancelled"
)

// BatchResult is published once every task of a batch is terminal.
type BatchResult struct {
	Outcome   BatchOutcome    `json:"outcome"`
	Succeeded []TerminalEvent `json:"succeeded"`
	Failed    []TerminalEvent `json:"failed"`
	Purged    []string        `json:"purged,omitempty"`
	Total     int             `json:"total"`
}

// BatchEventType identifies the payload of a BatchEvent.
type BatchEventType string

const (
	EventProgress  BatchEventType = "progress"
	EventTerminal  BatchEventType = "terminal"
	EventAggregate BatchEventType = "aggregate"
	EventBatchDone BatchEventType = "done"
)

// BatchEvent is what the orchestrator republishes to the presentation layer.
type BatchEvent struct {
	Progress  *ProgressEvent
	Terminal  *TerminalEvent
	Aggregate *BatchStatus
	Result    *BatchResult
	Type      BatchEventType
}

// HistoryEntry is a completed download recorded in the history store.
type HistoryEntry struct {
	CompletedAt time.Time `json:"completed_at"`
	VideoID     string    `json:"video_id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Kind        string    `json:"kind"`
	Quality     string    `json:"quality"`
	Container   string    `json:"container"`
	OutputPath  string    `json:"output_path,omitempty"`
	BLAKE3      string    `json:"blake3,omitempty"`
}
