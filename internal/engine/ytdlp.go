package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
	log "github.com/sirupsen/logrus"

	"go-ytqueue/internal/models"
)

// YTDLP drives the yt-dlp executable through go-ytdlp.
type YTDLP struct {
	binaryPath    string
	userAgent     string
	extractorArgs string
	fetchTimeout  time.Duration
}

// NewYTDLP creates the binding from the engine configuration.
func NewYTDLP(cfg models.EngineConfig) *YTDLP {
	y := &YTDLP{
		binaryPath:    cfg.BinaryPath,
		userAgent:     cfg.UserAgent,
		extractorArgs: DefaultFetchExtractorArgs,
	}
	if y.userAgent == "" {
		y.userAgent = DefaultUserAgent
	}
	if cfg.FetchTimeoutSec > 0 {
		y.fetchTimeout = time.Duration(cfg.FetchTimeoutSec) * time.Second
	}
	return y
}

// EnsureInstalled downloads a yt-dlp build into the user cache when no usable binary is found.
func EnsureInstalled(ctx context.Context) error {
	log.Debug("[Engine] Resolving yt-dlp executable")
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("installing yt-dlp: %w", err)
	}
	return nil
}

func (y *YTDLP) command() *ytdlp.Command {
	cmd := ytdlp.New().NoWarnings()
	if y.binaryPath != "" {
		cmd.SetExecutable(y.binaryPath)
	}
	return cmd
}

// Extract runs a metadata-only extraction. Playlists are listed flat.
func (y *YTDLP) Extract(ctx context.Context, url string) (*Info, error) {
	if y.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.fetchTimeout)
		defer cancel()
	}

	cmd := y.command().
		DumpSingleJSON().
		FlatPlaylist().
		ExtractorArgs(y.extractorArgs).
		AddHeaders("User-Agent:" + y.userAgent)

	log.Debugf("[Engine] Extracting %s", url)
	res, err := cmd.Run(ctx, url)
	if err != nil {
		return nil, runError(res, err)
	}
	return ParseInfo([]byte(res.Stdout))
}

// Download runs one download. The progress callback is invoked from the engine's reader
// goroutine; an error returned from it cancels the run and is returned as is.
func (y *YTDLP) Download(ctx context.Context, opts Options, progress ProgressFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		abortMu  sync.Mutex
		abortErr error
	)

	interval := opts.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	cmd := applyOptions(y.command(), opts)
	cmd.ProgressFunc(interval, func(update ytdlp.ProgressUpdate) {
		if progress == nil {
			return
		}
		abortMu.Lock()
		defer abortMu.Unlock()
		if abortErr != nil {
			return
		}
		if err := progress(tickFromUpdate(update)); err != nil {
			abortErr = err
			cancel()
		}
	})

	res, err := cmd.Run(ctx, opts.URL)

	abortMu.Lock()
	aborted := abortErr
	abortMu.Unlock()
	if aborted != nil {
		return aborted
	}
	if err != nil {
		return runError(res, err)
	}

	if progress != nil && res != nil {
		if infos, infoErr := res.GetExtractedInfo(); infoErr == nil && len(infos) > 0 && infos[0].Filename != nil {
			return progress(Tick{Status: StatusFinished, Filename: *infos[0].Filename})
		}
	}
	return nil
}

func applyOptions(cmd *ytdlp.Command, opts Options) *ytdlp.Command {
	if opts.FormatSelector != "" {
		cmd.Format(opts.FormatSelector)
	}
	if opts.OutputTemplate != "" {
		cmd.Output(opts.OutputTemplate)
	}
	if opts.MergeOutputFormat != "" {
		cmd.MergeOutputFormat(opts.MergeOutputFormat)
	}
	if opts.ExtractorArgs != "" {
		cmd.ExtractorArgs(opts.ExtractorArgs)
	}

	keys := make([]string, 0, len(opts.Headers))
	for k := range opts.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.AddHeaders(k + ":" + opts.Headers[k])
	}

	for _, pp := range opts.PostProcessors {
		switch pp.Key {
		case PPExtractAudio:
			cmd.ExtractAudio().AudioFormat(pp.Codec)
			if pp.Quality != "" {
				cmd.AudioQuality(pp.Quality + "K")
			}
		case PPVideoConvertor:
			cmd.RecodeVideo(pp.Container)
		default:
			log.Warnf("[Engine] Ignoring unknown post-processor %q", pp.Key)
		}
	}
	return cmd
}

func tickFromUpdate(update ytdlp.ProgressUpdate) Tick {
	t := Tick{
		Status:          string(update.Status),
		Filename:        update.Filename,
		DownloadedBytes: int64(update.DownloadedBytes),
		TotalBytes:      int64(update.TotalBytes),
	}
	if !update.Started.IsZero() {
		if elapsed := time.Since(update.Started).Seconds(); elapsed > 0 {
			t.SpeedBytesPerSec = float64(update.DownloadedBytes) / elapsed
		}
	}
	if eta := update.ETA(); eta > 0 {
		t.ETASeconds = int(eta.Seconds())
	}
	return t
}

// runError prefers the engine's own ERROR line over the exit status text.
func runError(res *ytdlp.Result, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if res != nil {
		if msg := lastErrorLine(res.Stderr); msg != "" {
			return errors.New(msg)
		}
	}
	return err
}

func lastErrorLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "ERROR:") {
			return line
		}
	}
	return ""
}
