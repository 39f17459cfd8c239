package downloader

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go-ytqueue/internal/engine"
	"go-ytqueue/internal/models"
	"go-ytqueue/internal/paths"
)

// WatchURLPrefix turns a video id into a fetchable URL.
const WatchURLPrefix = "https://www.youtube.com/watch?v="

// TaskOptions carries engine settings that are the same for every task of a batch.
type TaskOptions struct {
	// OutputTemplate overrides the default "<dir>/%(title)s.%(ext)s" template.
	OutputTemplate string
	ExtractorArgs  string
	UserAgent      string
	TickInterval   time.Duration
}

// VideoURL returns the watch URL for a video id.
func VideoURL(videoID string) string {
	return WatchURLPrefix + videoID
}

// FormatSelector maps the batch parameters to the engine's stream selector.
func FormatSelector(params models.DownloadParameters) string {
	if params.Kind == models.KindAudio {
		return "bestaudio/best"
	}
	switch params.Quality {
	case models.QualityHighest, "":
		return "bestvideo+bestaudio/best"
	case "144p":
		// The engine resolves a literal 144p height filter poorly; the lowest stream is what 144p means here.
		return "worst"
	default:
		height := strings.TrimSuffix(params.Quality, "p")
		return fmt.Sprintf("bestvideo[height<=%s]+bestaudio/best[height<=%s]", height, height)
	}
}

// BuildOptions assembles the declarative engine options for one record.
func BuildOptions(record models.VideoRecord, params models.DownloadParameters, opts TaskOptions) engine.Options {
	out := engine.Options{
		URL:            VideoURL(record.ID),
		FormatSelector: FormatSelector(params),
		OutputTemplate: opts.OutputTemplate,
		Headers:        engine.DefaultHeaders(opts.UserAgent),
		ExtractorArgs:  opts.ExtractorArgs,
		TickInterval:   opts.TickInterval,
	}
	if out.OutputTemplate == "" {
		out.OutputTemplate = filepath.Join(params.OutputDirectory, paths.DefaultFileTemplate)
	}
	if out.ExtractorArgs == "" {
		out.ExtractorArgs = engine.DefaultDownloadExtractorArgs
	}

	if params.Kind == models.KindAudio {
		out.PostProcessors = []engine.PostProcessor{{
			Key:     engine.PPExtractAudio,
			Codec:   params.Container,
			Quality: params.AudioBitrate(),
		}}
		return out
	}

	out.MergeOutputFormat = params.Container
	if params.Container != "mp4" {
		out.PostProcessors = []engine.PostProcessor{{
			Key:       engine.PPVideoConvertor,
			Container: params.Container,
		}}
	}
	return out
}

// finalPath predicts the file name after post-processing changed the container.
func finalPath(filename, container string) string {
	if filename == "" || container == "" {
		return filename
	}
	ext := filepath.Ext(filename)
	if strings.EqualFold(strings.TrimPrefix(ext, "."), container) {
		return filename
	}
	return strings.TrimSuffix(filename, ext) + "." + container
}
