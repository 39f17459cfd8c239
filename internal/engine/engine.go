// Package engine binds the external extraction/download tool behind a small interface
// so the rest of the module can be driven by fakes in tests.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultUserAgent is sent with every request unless overridden by configuration.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Extractor arguments for metadata fetches and downloads respectively.
const (
	DefaultFetchExtractorArgs    = "youtube:player_client=android,web"
	DefaultDownloadExtractorArgs = "youtube:player_client=android,web;player_skip=webpage,configs"
)

// DefaultTickInterval is how often the engine reports progress.
const DefaultTickInterval = 500 * time.Millisecond

// Tick statuses reported by the engine.
const (
	StatusDownloading    = "downloading"
	StatusFinished       = "finished"
	StatusPostProcessing = "post_processing"
	StatusError          = "error"
)

// Post-processor keys.
const (
	PPExtractAudio   = "FFmpegExtractAudio"
	PPVideoConvertor = "FFmpegVideoConvertor"
)

// Info is the subset of the engine's extraction result this module reads.
// A non-nil Entries marks a playlist; null entries decode as nil pointers.
type Info struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Uploader  string  `json:"uploader"`
	Thumbnail string  `json:"thumbnail"`
	Entries   []*Info `json:"entries"`
	Duration  float64 `json:"duration"`
}

// IsPlaylist reports whether the extraction result carried an entries array.
func (i *Info) IsPlaylist() bool {
	return i.Entries != nil
}

// ParseInfo decodes the engine's single-JSON dump.
func ParseInfo(data []byte) (*Info, error) {
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decoding extraction result: %w", err)
	}
	return &info, nil
}

// PostProcessor describes one post-download step.
type PostProcessor struct {
	Key       string // PPExtractAudio or PPVideoConvertor
	Codec     string // audio codec for PPExtractAudio
	Quality   string // audio bitrate in kbps for PPExtractAudio
	Container string // target container for PPVideoConvertor
}

// Options is the declarative description of a single download.
type Options struct {
	Headers           map[string]string
	URL               string
	FormatSelector    string
	OutputTemplate    string
	MergeOutputFormat string
	ExtractorArgs     string
	PostProcessors    []PostProcessor
	TickInterval      time.Duration
}

// Tick is one progress report from the engine.
type Tick struct {
	Status             string
	Filename           string
	DownloadedBytes    int64
	TotalBytes         int64
	TotalBytesEstimate int64
	SpeedBytesPerSec   float64
	ETASeconds         int
}

// ProgressFunc receives every tick. Returning an error aborts the download with that error.
type ProgressFunc func(Tick) error

// Engine is the external extraction/download tool.
type Engine interface {
	Extract(ctx context.Context, url string) (*Info, error)
	Download(ctx context.Context, opts Options, progress ProgressFunc) error
}

// DefaultHeaders returns the browser-like headers used for downloads.
func DefaultHeaders(userAgent string) map[string]string {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-us,en;q=0.5",
		"Sec-Fetch-Mode":  "navigate",
	}
}
