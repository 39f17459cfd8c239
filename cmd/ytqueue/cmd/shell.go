package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"

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

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive queue: add URLs, select, download and stop items",
	Long: `Starts an interactive session around one download queue. Type 'help' for commands.
Downloads run in the background; the prompt stays usable to stop items or
cancel the batch.`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
	addDownloadFlags(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
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
		defer rec.Close()
	}

	sh := newShell(cfg, params, eng, newFetcher(eng, cfg), rec, cmd.OutOrStdout())
	return sh.run(ctx, cmd.InOrStdin())
}

const shellHelp = `Commands:
  add URL...              fetch videos or playlists into the queue
  list                    show the queue ([x] = selected)
  select N|ID...          select items by position or video id
  unselect N|ID...        unselect items
  clear                   clear the selection
  delete                  remove every selected item
  remove N|ID...          remove items
  mode [bulk|single]      show or set the download mode
  set kind|quality|format VALUE
  start                   download the queue (bulk) or its first item (single)
  status                  show the running batch
  stop N|ID               stop one running download
  cancel                  stop every running download
  help                    show this help
  quit                    leave (cancels running downloads)`

// shell is one interactive session. Batch watchers print from their own goroutines,
// so out is always a lockedWriter.
type shell struct {
	cfg      models.Config
	fetcher  *fetcher.Fetcher
	orch     *orchestrator.Orchestrator
	store    *queue.Store
	recorder *history.Recorder
	out      io.Writer

	mu     sync.Mutex
	mode   string
	params models.DownloadParameters

	watchers sync.WaitGroup
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func newShell(cfg models.Config, params models.DownloadParameters, eng engine.Engine, f *fetcher.Fetcher, rec *history.Recorder, out io.Writer) *shell {
	s := &shell{
		cfg:      cfg,
		fetcher:  f,
		store:    queue.NewStore(),
		recorder: rec,
		out:      &lockedWriter{w: out},
		mode:     cfg.Download.Mode,
		params:   params,
	}
	s.orch = newOrchestrator(eng, s.store, cfg)
	s.store.OnEmpty(func() {
		s.setMode(models.ModeSingle)
		log.Debug("[Shell] Queue emptied, mode reset to single")
	})
	return s
}

func (s *shell) getMode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *shell) setMode(mode string) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
}

func (s *shell) getParams() models.DownloadParameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// run reads commands until quit, EOF or ctx is done, then cancels any running batch.
func (s *shell) run(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(s.out, "ytqueue shell. Type 'help' for commands.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	defer s.shutdown()
	for {
		fmt.Fprint(s.out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := s.exec(ctx, line)
			if err != nil {
				fmt.Fprintln(s.out, failureText("Error: "+err.Error()))
			}
			if quit {
				return nil
			}
		}
	}
}

func (s *shell) shutdown() {
	if s.orch.Active() != nil {
		fmt.Fprintln(s.out, "Cancelling running downloads...")
		if _, err := s.orch.Cancel(context.Background()); err != nil && !errors.Is(err, orchestrator.ErrNoActiveBatch) {
			log.WithError(err).Warn("[Shell] Cancel failed")
		}
	}
	s.watchers.Wait()
}

// exec runs one command line. quit reports whether the session should end.
func (s *shell) exec(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "help", "?":
		fmt.Fprintln(s.out, shellHelp)
	case "quit", "exit", "q":
		return true, nil
	case "add":
		return false, s.add(ctx, args)
	case "list", "ls":
		s.list()
	case "select":
		for _, id := range s.resolve(args) {
			if !s.store.Select(id) {
				fmt.Fprintf(s.out, "Not queued: %s\n", id)
			}
		}
	case "unselect":
		for _, id := range s.resolve(args) {
			s.store.Unselect(id)
		}
	case "clear":
		s.store.ClearSelection()
	case "delete":
		removed := s.store.RemoveSelected()
		fmt.Fprintf(s.out, "Removed %d items.\n", len(removed))
	case "remove", "rm":
		ids := s.resolve(args)
		if len(ids) == 0 {
			return false, fmt.Errorf("%w: remove needs positions or video ids", models.ErrInvalidInput)
		}
		removed := s.store.RemoveIDs(ids)
		fmt.Fprintf(s.out, "Removed %d items.\n", len(removed))
	case "mode":
		return false, s.modeCmd(args)
	case "set":
		return false, s.set(args)
	case "start":
		return false, s.start(ctx)
	case "status":
		s.status()
	case "stop":
		ids := s.resolve(args)
		if len(ids) != 1 {
			return false, fmt.Errorf("%w: stop needs exactly one position or video id", models.ErrInvalidInput)
		}
		return false, s.orch.Stop(ids[0])
	case "cancel":
		_, err := s.orch.Cancel(ctx)
		return false, err
	default:
		return false, fmt.Errorf("%w: unknown command %q (try 'help')", models.ErrInvalidInput, name)
	}
	return false, nil
}

// add fetches every URL concurrently and appends results in completion order.
func (s *shell) add(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return fmt.Errorf("%w: add needs at least one URL", models.ErrInvalidInput)
	}

	fanIn := make(chan fetcher.FetchResult, len(urls))
	var wg sync.WaitGroup
	for _, u := range urls {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			for res := range s.fetcher.FetchAsync(ctx, u) {
				fanIn <- res
			}
		}(u)
	}
	go func() {
		wg.Wait()
		close(fanIn)
	}()

	for res := range fanIn {
		if res.Err != nil {
			fmt.Fprintln(s.out, failureText(res.Err.Error()))
			continue
		}
		added := 0
		for _, r := range res.Records {
			if s.store.Append(r) {
				added++
			}
		}
		switch {
		case res.Playlist:
			fmt.Fprintf(s.out, "Added %d videos from playlist.\n", added)
		case added == 0:
			fmt.Fprintf(s.out, "Already queued: %s\n", res.Records[0].Title)
		default:
			fmt.Fprintf(s.out, "Added: %s (%s)\n", res.Records[0].Title, res.Records[0].Duration())
		}
	}
	return nil
}

func (s *shell) list() {
	records := s.store.Records()
	if len(records) == 0 {
		fmt.Fprintln(s.out, "Queue is empty.")
		return
	}
	tw := tabwriter.NewWriter(s.out, 0, 0, 2, ' ', 0)
	for i, r := range records {
		mark := "[ ]"
		if s.store.IsSelected(r.ID) {
			mark = "[x]"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", i+1, mark, r.ID, truncate(r.Title, 50), r.Author, r.Duration())
	}
	_ = tw.Flush()
	fmt.Fprintf(s.out, "%d queued, mode %s, %s\n", len(records), s.getMode(), describeParams(s.getParams(), s.getMode()))
}

// resolve maps 1-based queue positions to ids; anything else is taken as an id.
func (s *shell) resolve(args []string) []string {
	records := s.store.Records()
	ids := make([]string, 0, len(args))
	for _, a := range args {
		if n, err := strconv.Atoi(a); err == nil && n >= 1 && n <= len(records) {
			ids = append(ids, records[n-1].ID)
			continue
		}
		ids = append(ids, a)
	}
	return ids
}

func (s *shell) modeCmd(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(s.out, "Mode: %s\n", s.getMode())
		return nil
	}
	mode := strings.ToLower(args[0])
	if mode != models.ModeBulk && mode != models.ModeSingle {
		return fmt.Errorf("%w: mode must be bulk or single", models.ErrInvalidInput)
	}
	s.setMode(mode)
	fmt.Fprintf(s.out, "Mode: %s\n", mode)
	return nil
}

func (s *shell) set(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: usage: set kind|quality|format VALUE", models.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.params
	value := strings.ToLower(args[1])
	switch strings.ToLower(args[0]) {
	case "kind":
		next.Kind = value
		// A new kind starts from its best quality and first container.
		switch value {
		case models.KindAudio:
			next.Quality, next.Container = models.AudioBitrates[0], models.AudioContainers[0]
		case models.KindVideo:
			next.Quality, next.Container = models.VideoQualities[0], models.VideoContainers[0]
		}
	case "quality":
		next.Quality = value
	case "format", "container":
		next.Container = value
	default:
		return fmt.Errorf("%w: unknown setting %q", models.ErrInvalidInput, args[0])
	}
	if err := next.Validate(); err != nil {
		return err
	}
	s.params = next
	fmt.Fprintf(s.out, "Now: %s\n", describeParams(next, s.mode))
	return nil
}

// start launches a batch and watches it in the background.
func (s *shell) start(ctx context.Context) error {
	records := s.store.Records()
	if len(records) == 0 {
		return errors.New("queue is empty")
	}
	mode := s.getMode()
	if mode == models.ModeSingle {
		records = records[:1]
	}
	params := s.getParams()

	batch, err := s.orch.StartBatch(ctx, records, params, mode)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Started %d downloads (%s mode).\n", len(records), mode)

	byID := make(map[string]models.VideoRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	onTerminal := func(term models.TerminalEvent) {
		if s.recorder == nil {
			return
		}
		if err := s.recorder.Record(term, byID[term.VideoID], params); err != nil {
			log.WithError(err).Warnf("[History] Failed to record %s", term.VideoID)
		}
	}

	s.watchers.Add(1)
	go func() {
		defer s.watchers.Done()
		watchBatch(batch, &quietRenderer{out: s.out}, s.cfg.Display.RefreshPerSecond, onTerminal)
	}()
	return nil
}

func (s *shell) status() {
	batch := s.orch.Active()
	if batch == nil {
		fmt.Fprintln(s.out, "No downloads running.")
		return
	}
	st := batch.Status()
	fmt.Fprintf(s.out, "%s  %.1f%%\n", orchestrator.StatusLine(st, batch.Mode(), nil), st.AvgProgress)
	for _, t := range st.Tasks {
		fmt.Fprintf(s.out, "  %5.1f%%  %-10s %s  %s\n", t.Percent, t.State, truncate(t.Title, 40), dimText(t.SpeedLabel+" | ETA "+t.ETALabel))
	}
}

// quietRenderer prints only finished tasks and the batch result, so the prompt stays usable.
type quietRenderer struct {
	out io.Writer
}

func (q *quietRenderer) progress(models.BatchStatus, *models.ProgressEvent) {}

func (q *quietRenderer) terminal(ev models.TerminalEvent, status models.BatchStatus) {
	fmt.Fprintln(q.out, terminalLine(ev, status))
}

func (q *quietRenderer) done(result *models.BatchResult) {
	fmt.Fprintln(q.out, outcomeLine(result))
}
