package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-ytqueue/internal/downloader"
	"go-ytqueue/internal/engine"
	"go-ytqueue/internal/fetcher"
	"go-ytqueue/internal/helpers"
	"go-ytqueue/internal/history"
	"go-ytqueue/internal/models"
	"go-ytqueue/internal/orchestrator"
)

// --- Package Level Variables for Download Flags ---
var (
	kindFlag           string
	qualityFlag        string
	containerFlag      string
	modeFlag           string
	outputTemplateFlag string
	yesFlag            bool // Corresponds to SkipConfirmation
	historyFlag        bool
	hashFlag           bool
	displayFlag        string
	noColorFlag        bool
	nativePlaylistFlag bool
)

// addDownloadFlags registers the flags shared by the commands that start downloads.
func addDownloadFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&kindFlag, "kind", "", "Download kind: video or audio")
	cmd.Flags().StringVarP(&qualityFlag, "quality", "q", "", "Video height (highest, 1080p ... 144p) or audio bitrate (320 ... 96)")
	cmd.Flags().StringVarP(&containerFlag, "format", "f", "", "Container or codec (mp4, mkv, webm, mov, avi, mp3, m4a, opus, wav, flac)")
	cmd.Flags().StringVar(&modeFlag, "mode", "", "bulk downloads everything at once, single one item at a time")
	cmd.Flags().StringVar(&outputTemplateFlag, "output-template", "", "Subdirectory pattern, e.g. '{author}/{kind}'")
	cmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Skip the confirmation prompt")
	cmd.Flags().BoolVar(&historyFlag, "history", true, "Record completed downloads in the history")
	cmd.Flags().BoolVar(&hashFlag, "hash", false, "Store a BLAKE3 hash of each downloaded file in the history")
	cmd.Flags().StringVar(&displayFlag, "display", "", "Progress display: live, bars or plain")
	cmd.Flags().BoolVar(&noColorFlag, "no-color", false, "Disable coloured output")
	addFetchFlags(cmd)
}

// addFetchFlags registers the flags that affect metadata fetching.
func addFetchFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&nativePlaylistFlag, "native-playlist", false, "List playlists with the built-in client instead of yt-dlp")
}

// newEngine builds the yt-dlp engine, installing the binary first when asked to.
func newEngine(ctx context.Context, cfg models.Config) (*engine.YTDLP, error) {
	if cfg.Engine.AutoInstall {
		if err := engine.EnsureInstalled(ctx); err != nil {
			return nil, err
		}
	}
	return engine.NewYTDLP(cfg.Engine), nil
}

func newFetcher(eng engine.Engine, cfg models.Config) *fetcher.Fetcher {
	if cfg.Engine.NativePlaylist {
		return fetcher.New(eng, engine.NewNativePlaylist(time.Duration(cfg.Engine.FetchTimeoutSec)*time.Second))
	}
	return fetcher.New(eng, nil)
}

func newOrchestrator(eng engine.Engine, store orchestrator.Store, cfg models.Config) *orchestrator.Orchestrator {
	return orchestrator.New(eng, store, orchestrator.Options{
		SubdirPattern: cfg.Download.OutputTemplate,
		Task: downloader.TaskOptions{
			ExtractorArgs: cfg.Engine.ExtractorArgs,
			UserAgent:     cfg.Engine.UserAgent,
			TickInterval:  time.Duration(cfg.Engine.ProgressIntervalMs) * time.Millisecond,
		},
	})
}

// downloadParams returns the batch parameters and makes sure the output directory exists.
func downloadParams(cfg models.Config) (models.DownloadParameters, error) {
	params := models.DownloadParameters{
		Kind:            cfg.Download.Kind,
		Quality:         cfg.Download.Quality,
		Container:       cfg.Download.Container,
		OutputDirectory: cfg.OutputDir,
	}
	if err := params.Validate(); err != nil {
		return params, err
	}
	if !helpers.CheckAndMakeDir(cfg.OutputDir) {
		return params, fmt.Errorf("could not create output directory %s", cfg.OutputDir)
	}
	return params, nil
}

// openHistory opens the history recorder, or returns nil when history is disabled or broken.
func openHistory(cfg models.Config) *history.Recorder {
	if !cfg.History.Enabled {
		return nil
	}
	rec, err := history.Open(cfg.History)
	if err != nil {
		log.WithError(err).Error("[History] Failed to open history. Completed downloads will not be recorded.")
		return nil
	}
	return rec
}

// confirm asks a yes/no question on out and reads the answer from in.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s (y/N): ", question)
	reader := bufio.NewReader(in)
	input, _ := reader.ReadString('\n')
	input = strings.ToLower(strings.TrimSpace(input))
	return input == "y" || input == "yes"
}

// describeParams renders the batch parameters for confirmation prompts.
func describeParams(params models.DownloadParameters, mode string) string {
	quality := params.Quality
	if params.Kind == models.KindAudio {
		quality = params.AudioBitrate() + " kbps"
	}
	return fmt.Sprintf("%s, %s, %s, %s mode -> %s", params.Kind, quality, params.Container, mode, params.OutputDirectory)
}
