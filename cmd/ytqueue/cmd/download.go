package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-ytqueue/internal/engine"
	"go-ytqueue/internal/fetcher"
	"go-ytqueue/internal/history"
	"go-ytqueue/internal/models"
	"go-ytqueue/internal/orchestrator"
	"go-ytqueue/internal/queue"
)

// ErrBatchIncomplete is returned when at least one download of a run did not succeed.
var ErrBatchIncomplete = errors.New("not every download succeeded")

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download URL...",
	Short: "Fetch and download videos or playlists",
	Long: `Fetches metadata for every URL (videos and playlists), queues the results
and downloads them. In bulk mode every queued item downloads at once; in single
mode items download one after another.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	addDownloadFlags(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg := globalConfig
	color.NoColor = color.NoColor || !cfg.Display.Color

	params, err := downloadParams(cfg)
	if err != nil {
		return err
	}

	eng, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}

	rec := openHistory(cfg)
	if rec != nil {
		defer func() {
			if err := rec.Close(); err != nil {
				log.WithError(err).Error("[History] Error closing history")
			}
		}()
	}

	run := &downloadRun{
		cfg:      cfg,
		params:   params,
		fetcher:  newFetcher(eng, cfg),
		engine:   eng,
		recorder: rec,
		in:       cmd.InOrStdin(),
		out:      cmd.OutOrStdout(),
	}
	return run.execute(ctx, args)
}

// downloadRun is one invocation of the download command.
type downloadRun struct {
	cfg      models.Config
	params   models.DownloadParameters
	fetcher  *fetcher.Fetcher
	engine   engine.Engine
	recorder *history.Recorder
	in       io.Reader
	out      io.Writer
}

func (d *downloadRun) execute(ctx context.Context, urls []string) error {
	store := queue.NewStore()
	for _, res := range d.fetcher.FetchAll(ctx, urls) {
		if res.Err != nil {
			fmt.Fprintln(d.out, failureText(res.Err.Error()))
			continue
		}
		added := 0
		for _, r := range res.Records {
			if store.Append(r) {
				added++
			}
		}
		if res.Playlist {
			fmt.Fprintf(d.out, "Added %d videos from playlist %s\n", added, res.URL)
		} else if added > 0 {
			fmt.Fprintf(d.out, "Added: %s\n", res.Records[0].Title)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if store.Len() == 0 {
		return errors.New("nothing to download")
	}

	mode := d.cfg.Download.Mode
	if !d.cfg.Download.SkipConfirmation {
		question := fmt.Sprintf("Download %d items (%s)?", store.Len(), describeParams(d.params, mode))
		if !confirm(d.in, d.out, question) {
			fmt.Fprintln(d.out, "Download cancelled by user.")
			return nil
		}
	}

	orch := newOrchestrator(d.engine, store, d.cfg)
	if mode == models.ModeBulk {
		result, err := d.runBatch(ctx, orch, store.Records(), mode)
		if err != nil {
			return err
		}
		return resultError(result)
	}

	// Single mode: one record per batch, in queue order.
	records := store.Records()
	var failed int
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := d.runBatch(ctx, orch, []models.VideoRecord{record}, mode)
		if err != nil {
			return err
		}
		switch {
		case result == nil:
			failed++
		case result.Outcome == models.OutcomeAllSuccess:
			store.Remove(record.ID)
		case result.Outcome == models.OutcomeCancelled:
			return resultError(result)
		default:
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d failed", ErrBatchIncomplete, failed, len(records))
	}
	return nil
}

func (d *downloadRun) runBatch(ctx context.Context, orch *orchestrator.Orchestrator, records []models.VideoRecord, mode string) (*models.BatchResult, error) {
	batch, err := orch.StartBatch(ctx, records, d.params, mode)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.VideoRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	onTerminal := func(term models.TerminalEvent) {
		if d.recorder == nil {
			return
		}
		if err := d.recorder.Record(term, byID[term.VideoID], d.params); err != nil {
			log.WithError(err).Warnf("[History] Failed to record %s", term.VideoID)
		}
	}

	// Interrupts cancel the batch; its tasks report Cancelled and the watcher still sees the done event.
	go func() {
		select {
		case <-ctx.Done():
			_, _ = batch.Cancel(context.Background())
		case <-batch.Done():
		}
	}()

	r := newRenderer(d.cfg.Display.Style, d.out, mode, batch.Status())
	return watchBatch(batch, r, d.cfg.Display.RefreshPerSecond, onTerminal), nil
}

func resultError(result *models.BatchResult) error {
	if result == nil {
		return ErrBatchIncomplete
	}
	switch result.Outcome {
	case models.OutcomeAllSuccess:
		return nil
	case models.OutcomeCancelled:
		return fmt.Errorf("%w: cancelled with %d of %d completed", ErrBatchIncomplete, len(result.Succeeded), result.Total)
	default:
		return fmt.Errorf("%w: %d of %d failed", ErrBatchIncomplete, len(result.Failed), result.Total)
	}
}
