package downloader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go-ytqueue/internal/engine"
	"go-ytqueue/internal/helpers"
	"go-ytqueue/internal/models"
)

// Task errors
var (
	ErrDownload  = errors.New("download failed")
	ErrCancelled = errors.New("download cancelled")
)

// Terminal messages
const (
	MsgCompleted = "Download completed successfully!"
	MsgCancelled = "Download cancelled"
)

// eventBuffer is the task's outgoing buffer. One slot is always kept free for the terminal event.
const eventBuffer = 16

// Task downloads one record with the parameters of its batch.
type Task struct {
	engine engine.Engine
	events chan models.TaskEvent
	id     string
	record models.VideoRecord
	params models.DownloadParameters
	opts   TaskOptions

	state   atomic.Value // models.TaskState
	stopped atomic.Bool
	runOnce sync.Once

	// mu guards the events channel against late engine callbacks once the task is finished.
	mu         sync.Mutex
	finished   bool
	outputPath string
}

// New creates a pending task. The record is copied so later queue edits do not affect it.
func New(record models.VideoRecord, params models.DownloadParameters, eng engine.Engine, opts TaskOptions) *Task {
	t := &Task{
		engine: eng,
		events: make(chan models.TaskEvent, eventBuffer),
		id:     uuid.NewString(),
		record: record,
		params: params,
		opts:   opts,
	}
	t.state.Store(models.TaskPending)
	return t
}

// ID returns the task's unique id.
func (t *Task) ID() string { return t.id }

// VideoID returns the id of the record being downloaded.
func (t *Task) VideoID() string { return t.record.ID }

// Record returns the task's private copy of its record.
func (t *Task) Record() models.VideoRecord { return t.record }

// State returns the task's current lifecycle state.
func (t *Task) State() models.TaskState { return t.state.Load().(models.TaskState) }

// Events yields progress events followed by exactly one terminal event, then closes.
func (t *Task) Events() <-chan models.TaskEvent { return t.events }

// Stop asks the task to abort. It takes effect at the next engine progress tick.
func (t *Task) Stop() {
	if t.stopped.CompareAndSwap(false, true) {
		log.Debugf("[Task %s] Stop requested for %s", t.shortID(), t.record.ID)
	}
}

// Stopped reports whether Stop has been called.
func (t *Task) Stopped() bool { return t.stopped.Load() }

// Run executes the download and blocks until the terminal event has been queued.
// Calling Run more than once has no effect.
func (t *Task) Run(ctx context.Context) {
	t.runOnce.Do(func() {
		ev := t.run(ctx)

		t.mu.Lock()
		defer t.mu.Unlock()
		t.finished = true
		t.emitTerminal(ev)
		close(t.events)
	})
}

func (t *Task) run(ctx context.Context) models.TerminalEvent {
	if t.Stopped() || ctx.Err() != nil {
		return t.cancelled()
	}

	t.state.Store(models.TaskRunning)
	opts := BuildOptions(t.record, t.params, t.opts)
	log.WithFields(log.Fields{
		"task":   t.shortID(),
		"video":  t.record.ID,
		"format": opts.FormatSelector,
	}).Debug("[Task] Starting download")

	err := t.engine.Download(ctx, opts, t.onTick)

	switch {
	case err == nil:
		return models.TerminalEvent{
			State:      models.TaskCompleted,
			Success:    true,
			Message:    MsgCompleted,
			OutputPath: finalPath(t.lastOutputPath(), t.params.Container),
		}
	case errors.Is(err, ErrCancelled), t.Stopped(), ctx.Err() != nil:
		return t.cancelled()
	default:
		log.WithError(err).Warnf("[Task %s] Download of %s failed", t.shortID(), t.record.ID)
		return models.TerminalEvent{
			State:   models.TaskFailed,
			Message: fmt.Sprintf("Download failed: %v", err),
			Err:     fmt.Errorf("%w: %w", ErrDownload, err),
		}
	}
}

func (t *Task) cancelled() models.TerminalEvent {
	return models.TerminalEvent{
		State:   models.TaskCancelled,
		Message: MsgCancelled,
		Err:     ErrCancelled,
	}
}

// onTick runs on the engine's callback goroutine.
func (t *Task) onTick(tick engine.Tick) error {
	if t.Stopped() {
		return ErrCancelled
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return nil
	}
	if tick.Filename != "" {
		t.outputPath = tick.Filename
	}
	if tick.Status != engine.StatusDownloading {
		return nil
	}

	ev := ProgressFromTick(tick)
	ev.TaskID = t.id
	ev.VideoID = t.record.ID

	// Lossy: drop the update rather than block the engine when the reader lags.
	if len(t.events) < cap(t.events)-1 {
		t.events <- models.TaskEvent{Progress: &ev}
	}
	return nil
}

func (t *Task) lastOutputPath() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outputPath
}

// emitTerminal must be called with mu held. The reserved buffer slot keeps the send from blocking.
func (t *Task) emitTerminal(ev models.TerminalEvent) {
	ev.TaskID = t.id
	ev.VideoID = t.record.ID
	ev.FinishedAt = time.Now()
	t.state.Store(ev.State)
	log.Debugf("[Task %s] %s: %s", t.shortID(), ev.State, ev.Message)
	t.events <- models.TaskEvent{Terminal: &ev}
}

func (t *Task) shortID() string {
	if len(t.id) > 8 {
		return t.id[:8]
	}
	return t.id
}

// ProgressFromTick converts an engine tick into a progress event with display labels.
func ProgressFromTick(tick engine.Tick) models.ProgressEvent {
	total := tick.TotalBytes
	if total <= 0 {
		total = tick.TotalBytesEstimate
	}

	var percent float64
	if total > 0 {
		percent = float64(tick.DownloadedBytes) / float64(total) * 100
	}
	if percent < 0 {
		percent = 0
	} else if percent > 100 {
		percent = 100
	}

	return models.ProgressEvent{
		Percent:          percent,
		SpeedBytesPerSec: tick.SpeedBytesPerSec,
		SpeedLabel:       helpers.FormatSpeed(tick.SpeedBytesPerSec),
		ETASeconds:       tick.ETASeconds,
		ETALabel:         helpers.FormatETA(tick.ETASeconds),
		DownloadedBytes:  tick.DownloadedBytes,
		TotalBytes:       total,
	}
}
