package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/gosuri/uilive"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/time/rate"

	"go-ytqueue/internal/models"
	"go-ytqueue/internal/orchestrator"
)

var (
	successText = color.New(color.FgGreen).SprintFunc()
	failureText = color.New(color.FgRed).SprintFunc()
	cancelText  = color.New(color.FgYellow).SprintFunc()
	dimText     = color.New(color.Faint).SprintFunc()
)

// renderer presents one running batch.
type renderer interface {
	progress(status models.BatchStatus, last *models.ProgressEvent)
	terminal(ev models.TerminalEvent, status models.BatchStatus)
	done(result *models.BatchResult)
}

// newRenderer picks the renderer for a display style.
func newRenderer(style string, out io.Writer, mode string, status models.BatchStatus) renderer {
	switch style {
	case "bars":
		return newBarsRenderer(out, mode, status)
	case "plain":
		return &plainRenderer{out: out, mode: mode}
	default:
		return newLiveRenderer(out, mode)
	}
}

// watchBatch consumes the batch's events until it is done and returns the result.
// Progress is redrawn at most refreshPerSecond times a second; terminal events always are.
func watchBatch(batch *orchestrator.Batch, r renderer, refreshPerSecond int, onTerminal func(models.TerminalEvent)) *models.BatchResult {
	if refreshPerSecond <= 0 {
		refreshPerSecond = 10
	}
	limiter := rate.NewLimiter(rate.Limit(refreshPerSecond), 1)

	var last *models.ProgressEvent
	var result *models.BatchResult
	for ev := range batch.Events() {
		switch ev.Type {
		case models.EventProgress:
			last = ev.Progress
			if limiter.Allow() {
				r.progress(batch.Status(), last)
			}
		case models.EventAggregate:
			if limiter.Allow() {
				r.progress(batch.Status(), last)
			}
		case models.EventTerminal:
			if onTerminal != nil {
				onTerminal(*ev.Terminal)
			}
			r.terminal(*ev.Terminal, batch.Status())
		case models.EventBatchDone:
			result = ev.Result
		}
	}
	r.done(result)
	return result
}

// outcomeLine renders the batch result in the colour of its outcome.
func outcomeLine(result *models.BatchResult) string {
	msg := orchestrator.ResultMessage(result)
	if result == nil {
		return msg
	}
	switch result.Outcome {
	case models.OutcomeAllSuccess:
		return successText(msg)
	case models.OutcomeCancelled:
		return cancelText(msg)
	default:
		return failureText(msg)
	}
}

// terminalLine renders one finished task.
func terminalLine(ev models.TerminalEvent, status models.BatchStatus) string {
	title := ev.VideoID
	for _, t := range status.Tasks {
		if t.VideoID == ev.VideoID {
			title = t.Title
			break
		}
	}
	switch ev.State {
	case models.TaskCompleted:
		return fmt.Sprintf("%s %s: %s", successText("[done]"), title, ev.Message)
	case models.TaskCancelled:
		return fmt.Sprintf("%s %s: %s", cancelText("[stop]"), title, ev.Message)
	default:
		return fmt.Sprintf("%s %s: %s", failureText("[fail]"), title, ev.Message)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// --- plain ---

// plainRenderer writes one line per update; suited to logs and pipes.
type plainRenderer struct {
	out  io.Writer
	mode string
}

func (p *plainRenderer) progress(status models.BatchStatus, last *models.ProgressEvent) {
	fmt.Fprintf(p.out, "%s (%.1f%%)\n", orchestrator.StatusLine(status, p.mode, last), status.AvgProgress)
}

func (p *plainRenderer) terminal(ev models.TerminalEvent, status models.BatchStatus) {
	fmt.Fprintln(p.out, terminalLine(ev, status))
}

func (p *plainRenderer) done(result *models.BatchResult) {
	fmt.Fprintln(p.out, outcomeLine(result))
}

// --- live ---

// liveRenderer redraws a status block in place with uilive.
type liveRenderer struct {
	w    *uilive.Writer
	mode string
}

func newLiveRenderer(out io.Writer, mode string) *liveRenderer {
	w := uilive.New()
	w.Out = out
	return &liveRenderer{w: w, mode: mode}
}

func (l *liveRenderer) progress(status models.BatchStatus, last *models.ProgressEvent) {
	fmt.Fprintf(l.w, "%s  %.1f%%\n", orchestrator.StatusLine(status, l.mode, last), status.AvgProgress)
	for _, t := range status.Tasks {
		if t.State.IsTerminal() {
			continue
		}
		fmt.Fprintf(l.w.Newline(), "  %5.1f%%  %-40s %s\n", t.Percent, truncate(t.Title, 40), dimText(t.SpeedLabel+" | ETA "+t.ETALabel))
	}
	_ = l.w.Flush()
}

func (l *liveRenderer) terminal(ev models.TerminalEvent, status models.BatchStatus) {
	fmt.Fprintln(l.w.Bypass(), terminalLine(ev, status))
	l.progress(status, nil)
}

func (l *liveRenderer) done(result *models.BatchResult) {
	_ = l.w.Flush()
	fmt.Fprintln(l.w.Bypass(), outcomeLine(result))
}

// --- bars ---

// barsRenderer shows one mpb progress bar per task.
type barsRenderer struct {
	p    *mpb.Progress
	out  io.Writer
	mode string

	mu     sync.Mutex
	bars   map[string]*mpb.Bar
	labels map[string]string
}

func newBarsRenderer(out io.Writer, mode string, status models.BatchStatus) *barsRenderer {
	b := &barsRenderer{
		p:      mpb.New(mpb.WithOutput(out), mpb.WithWidth(40)),
		out:    out,
		mode:   mode,
		bars:   make(map[string]*mpb.Bar, len(status.Tasks)),
		labels: make(map[string]string, len(status.Tasks)),
	}
	for _, t := range status.Tasks {
		videoID := t.VideoID
		b.labels[videoID] = "starting"
		b.bars[videoID] = b.p.AddBar(100,
			mpb.PrependDecorators(decor.Name(truncate(t.Title, 30), decor.WC{W: 31})),
			mpb.AppendDecorators(
				decor.Percentage(decor.WC{W: 7}),
				decor.Any(func(decor.Statistics) string { return b.label(videoID) }, decor.WCSyncSpace),
			),
		)
	}
	return b
}

func (b *barsRenderer) label(videoID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.labels[videoID]
}

func (b *barsRenderer) progress(status models.BatchStatus, last *models.ProgressEvent) {
	for _, t := range status.Tasks {
		if t.State.IsTerminal() {
			continue
		}
		b.mu.Lock()
		bar := b.bars[t.VideoID]
		b.labels[t.VideoID] = t.SpeedLabel + " | ETA " + t.ETALabel
		b.mu.Unlock()
		if bar != nil {
			bar.SetCurrent(int64(t.Percent))
		}
	}
}

func (b *barsRenderer) terminal(ev models.TerminalEvent, status models.BatchStatus) {
	b.mu.Lock()
	bar := b.bars[ev.VideoID]
	b.labels[ev.VideoID] = ev.State.String()
	b.mu.Unlock()
	if bar == nil {
		return
	}
	if ev.Success {
		bar.SetCurrent(100)
		return
	}
	bar.Abort(false)
}

func (b *barsRenderer) done(result *models.BatchResult) {
	b.p.Wait()
	fmt.Fprintln(b.out, outcomeLine(result))
	if result == nil {
		return
	}
	for _, f := range result.Failed {
		fmt.Fprintf(b.out, "  %s %s\n", failureText(f.VideoID), f.Message)
	}
}
