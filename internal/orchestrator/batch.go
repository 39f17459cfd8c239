package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go-ytqueue/internal/downloader"
	"go-ytqueue/internal/models"
)

// Batch is one set of downloads started together. Its coordinator goroutine is the only
// writer of the batch state; everything else reads snapshots.
type Batch struct {
	ctx    context.Context
	cancel context.CancelFunc
	store  Store
	fanIn  chan models.TaskEvent
	events chan models.BatchEvent
	done   chan struct{}

	id      string
	mode    string
	order   []string          // video ids in start order
	titles  map[string]string // video id -> title
	members map[string]string // video id -> task id
	all     []*downloader.Task

	// Live task handles, released once their terminal event is consumed.
	tasksMu sync.Mutex
	tasks   map[string]*downloader.Task

	cancelled atomic.Bool

	mu       sync.RWMutex
	status   models.BatchStatus
	snapshot map[string]*models.TaskSnapshot
	result   *models.BatchResult
}

// batchState is owned by the coordinator goroutine.
type batchState struct {
	progressByVideo map[string]float64
	terminal        map[string]bool
	succeeded       []models.TerminalEvent
	failed          []models.TerminalEvent
	activeCount     int
	totalCount      int
}

func newBatch(parent context.Context, tasks []*downloader.Task, mode string, store Store, progressBuffer int) *Batch {
	ctx, cancel := context.WithCancel(parent)
	b := &Batch{
		ctx:      ctx,
		cancel:   cancel,
		store:    store,
		fanIn:    make(chan models.TaskEvent, len(tasks)),
		events:   make(chan models.BatchEvent, progressBuffer+len(tasks)+1),
		done:     make(chan struct{}),
		id:       uuid.NewString(),
		mode:     mode,
		order:    make([]string, 0, len(tasks)),
		titles:   make(map[string]string, len(tasks)),
		members:  make(map[string]string, len(tasks)),
		all:      tasks,
		tasks:    make(map[string]*downloader.Task, len(tasks)),
		snapshot: make(map[string]*models.TaskSnapshot, len(tasks)),
	}
	for _, t := range tasks {
		b.order = append(b.order, t.VideoID())
		b.titles[t.VideoID()] = t.Record().Title
		b.members[t.VideoID()] = t.ID()
		b.tasks[t.ID()] = t
		b.snapshot[t.VideoID()] = &models.TaskSnapshot{
			TaskID:     t.ID(),
			VideoID:    t.VideoID(),
			Title:      t.Record().Title,
			State:      models.TaskRunning,
			SpeedLabel: "0 B/s",
			ETALabel:   "Unknown",
		}
	}
	b.status = models.BatchStatus{ActiveCount: len(tasks), TotalCount: len(tasks)}
	return b
}

func (b *Batch) start() {
	state := &batchState{
		progressByVideo: make(map[string]float64, len(b.all)),
		terminal:        make(map[string]bool, len(b.all)),
		activeCount:     len(b.all),
		totalCount:      len(b.all),
	}
	for _, vid := range b.order {
		state.progressByVideo[vid] = 0
	}

	go b.coordinate(state)

	for _, t := range b.all {
		go func(t *downloader.Task) {
			for ev := range t.Events() {
				b.fanIn <- ev
			}
		}(t)
		go t.Run(b.ctx)
	}
	b.all = nil
}

// ID returns the batch's unique id.
func (b *Batch) ID() string { return b.id }

// Mode returns bulk or single.
func (b *Batch) Mode() string { return b.mode }

// Events yields progress and aggregate events (dropped when the reader lags), every terminal
// event, and finally one done event. The channel is closed after the done event.
func (b *Batch) Events() <-chan models.BatchEvent { return b.events }

// Done is closed once the batch result is available.
func (b *Batch) Done() <-chan struct{} { return b.done }

// Finished reports whether every task has reached a terminal state.
func (b *Batch) Finished() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Status returns a snapshot of the aggregate and per-task state.
func (b *Batch) Status() models.BatchStatus {
	b.mu.RLock()
	defer b.mu.RUnlock()
	status := b.status
	status.Tasks = make([]models.TaskSnapshot, 0, len(b.order))
	for _, vid := range b.order {
		status.Tasks = append(status.Tasks, *b.snapshot[vid])
	}
	return status
}

// Result returns the batch result, or nil while tasks are still running.
func (b *Batch) Result() *models.BatchResult {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.result
}

// Wait blocks until the batch finishes or ctx is done.
func (b *Batch) Wait(ctx context.Context) (*models.BatchResult, error) {
	select {
	case <-b.done:
		return b.Result(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop stops the task downloading videoID. Stopping a finished task is a no-op.
func (b *Batch) Stop(videoID string) error {
	taskID, ok := b.members[videoID]
	if !ok {
		return fmt.Errorf("%w: %s is not part of batch %s", models.ErrInvalidInput, videoID, b.id)
	}
	b.tasksMu.Lock()
	t := b.tasks[taskID]
	b.tasksMu.Unlock()
	if t != nil {
		t.Stop()
	}
	return nil
}

// Cancel stops every task and waits until all of them have reported.
func (b *Batch) Cancel(ctx context.Context) (*models.BatchResult, error) {
	if b.cancelled.CompareAndSwap(false, true) {
		log.Infof("[Batch %s] Cancelling", b.id[:8])
	}
	b.tasksMu.Lock()
	for _, t := range b.tasks {
		t.Stop()
	}
	b.tasksMu.Unlock()
	b.cancel()
	return b.Wait(ctx)
}

func (b *Batch) coordinate(state *batchState) {
	defer b.cancel()

	b.publishLossy(state, models.BatchEvent{Type: models.EventAggregate, Aggregate: b.aggregate(state)})

	for state.activeCount > 0 {
		ev := <-b.fanIn
		switch {
		case ev.Progress != nil:
			b.handleProgress(state, ev.Progress)
		case ev.Terminal != nil:
			b.handleTerminal(state, ev.Terminal)
		}
	}

	result := b.reconcile(state)

	b.mu.Lock()
	b.result = result
	b.mu.Unlock()

	b.events <- models.BatchEvent{Type: models.EventBatchDone, Result: result, Aggregate: b.aggregate(state)}
	close(b.events)
	close(b.done)
}

func (b *Batch) handleProgress(state *batchState, p *models.ProgressEvent) {
	if state.terminal[p.VideoID] {
		return
	}
	state.progressByVideo[p.VideoID] = p.Percent

	b.mu.Lock()
	if snap := b.snapshot[p.VideoID]; snap != nil {
		snap.Percent = p.Percent
		snap.SpeedLabel = p.SpeedLabel
		snap.ETALabel = p.ETALabel
	}
	b.status.AvgProgress = averageProgress(state.progressByVideo)
	b.mu.Unlock()

	b.publishLossy(state, models.BatchEvent{Type: models.EventProgress, Progress: p})
	b.publishLossy(state, models.BatchEvent{Type: models.EventAggregate, Aggregate: b.aggregate(state)})
}

func (b *Batch) handleTerminal(state *batchState, term *models.TerminalEvent) {
	if state.terminal[term.VideoID] {
		log.Warnf("[Batch %s] Ignoring duplicate terminal event for %s", b.id[:8], term.VideoID)
		return
	}
	state.terminal[term.VideoID] = true
	state.activeCount--

	if term.Success {
		state.progressByVideo[term.VideoID] = 100
		state.succeeded = append(state.succeeded, *term)
	} else {
		state.failed = append(state.failed, *term)
	}

	b.tasksMu.Lock()
	delete(b.tasks, term.TaskID)
	b.tasksMu.Unlock()

	b.mu.Lock()
	if snap := b.snapshot[term.VideoID]; snap != nil {
		snap.State = term.State
		snap.Message = term.Message
		if term.Success {
			snap.Percent = 100
		}
	}
	b.status.ActiveCount = state.activeCount
	b.status.Completed = state.totalCount - state.activeCount
	b.status.AvgProgress = averageProgress(state.progressByVideo)
	b.mu.Unlock()

	log.WithFields(log.Fields{
		"video":  term.VideoID,
		"state":  term.State,
		"active": state.activeCount,
	}).Debugf("[Batch %s] Task finished", b.id[:8])

	b.events <- models.BatchEvent{Type: models.EventTerminal, Terminal: term}
	b.publishLossy(state, models.BatchEvent{Type: models.EventAggregate, Aggregate: b.aggregate(state)})
}

func (b *Batch) reconcile(state *batchState) *models.BatchResult {
	result := &models.BatchResult{
		Succeeded: state.succeeded,
		Failed:    state.failed,
		Total:     state.totalCount,
	}
	switch {
	case len(state.failed) == 0:
		result.Outcome = models.OutcomeAllSuccess
	case b.cancelled.Load():
		result.Outcome = models.OutcomeCancelled
	default:
		result.Outcome = models.OutcomePartialFailure
	}

	if result.Outcome == models.OutcomeAllSuccess && b.mode == models.ModeBulk && b.store != nil {
		ids := make([]string, 0, len(state.succeeded))
		for _, s := range state.succeeded {
			ids = append(ids, s.VideoID)
		}
		result.Purged = b.store.RemoveIDs(ids)
		log.Debugf("[Batch %s] Purged %d records from the queue", b.id[:8], len(result.Purged))
	}

	log.Infof("[Batch %s] Finished: %s (%d succeeded, %d failed)", b.id[:8], result.Outcome, len(state.succeeded), len(state.failed))
	return result
}

// publishLossy drops the event unless the buffer still has room for every guaranteed
// event that may follow: one terminal per active task plus the done event.
func (b *Batch) publishLossy(state *batchState, ev models.BatchEvent) {
	reserved := state.activeCount + 1
	if len(b.events) < cap(b.events)-reserved {
		b.events <- ev
	}
}

func (b *Batch) aggregate(state *batchState) *models.BatchStatus {
	return &models.BatchStatus{
		AvgProgress: averageProgress(state.progressByVideo),
		ActiveCount: state.activeCount,
		TotalCount:  state.totalCount,
		Completed:   state.totalCount - state.activeCount,
	}
}

// averageProgress is the mean over every task of the batch, finished or not.
func averageProgress(progress map[string]float64) float64 {
	if len(progress) == 0 {
		return 0
	}
	var sum float64
	for _, p := range progress {
		sum += p
	}
	return sum / float64(len(progress))
}
