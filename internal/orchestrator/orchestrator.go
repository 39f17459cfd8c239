package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"go-ytqueue/internal/downloader"
	"go-ytqueue/internal/engine"
	"go-ytqueue/internal/models"
	"go-ytqueue/internal/paths"
)

// Orchestrator errors
var (
	ErrEmptyBatch    = errors.New("no records to download")
	ErrBatchActive   = errors.New("a batch is already running")
	ErrNoActiveBatch = errors.New("no batch is running")
)

// Store is the part of the queue the orchestrator purges after a successful bulk batch.
type Store interface {
	RemoveIDs(ids []string) []string
}

// Options configures every batch started by an orchestrator.
type Options struct {
	// SubdirPattern is an optional directory pattern below the output directory, e.g. "{author}".
	SubdirPattern string
	Task          downloader.TaskOptions
	// ProgressBuffer is the room for lossy progress events on top of the guaranteed ones.
	ProgressBuffer int
}

// DefaultProgressBuffer is used when Options.ProgressBuffer is not positive.
const DefaultProgressBuffer = 64

// Orchestrator starts batches of concurrent downloads, one batch at a time.
type Orchestrator struct {
	engine engine.Engine
	store  Store
	opts   Options

	mu     sync.Mutex
	active *Batch
}

// New creates an orchestrator. store may be nil when no queue needs purging.
func New(eng engine.Engine, store Store, opts Options) *Orchestrator {
	if opts.ProgressBuffer <= 0 {
		opts.ProgressBuffer = DefaultProgressBuffer
	}
	return &Orchestrator{engine: eng, store: store, opts: opts}
}

// StartBatch spawns one task per record, all at once, and returns the running batch.
// Records with a repeated id are downloaded once.
func (o *Orchestrator) StartBatch(ctx context.Context, records []models.VideoRecord, params models.DownloadParameters, mode string) (*Batch, error) {
	if len(records) == 0 {
		return nil, ErrEmptyBatch
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if mode != models.ModeBulk && mode != models.ModeSingle {
		return nil, fmt.Errorf("%w: unknown mode %q", models.ErrInvalidInput, mode)
	}

	records = uniqueRecords(records)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active != nil && !o.active.Finished() {
		return nil, ErrBatchActive
	}

	colliding := paths.CollidingIDs(records)
	tasks := make([]*downloader.Task, 0, len(records))
	for _, record := range records {
		taskOpts := o.opts.Task
		tmpl, err := paths.OutputTemplate(record, params, o.opts.SubdirPattern, colliding[record.ID])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
		}
		taskOpts.OutputTemplate = tmpl
		if colliding[record.ID] {
			log.Debugf("[Orchestrator] Title of %s collides within the batch, adding id suffix", record.ID)
		}
		tasks = append(tasks, downloader.New(record, params, o.engine, taskOpts))
	}

	batch := newBatch(ctx, tasks, mode, o.store, o.opts.ProgressBuffer)
	o.active = batch

	log.Infof("[Orchestrator] Starting %s batch %s with %d downloads", mode, batch.ID()[:8], len(tasks))
	batch.start()
	return batch, nil
}

// Active returns the running batch, or nil when none is running.
func (o *Orchestrator) Active() *Batch {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil || o.active.Finished() {
		return nil
	}
	return o.active
}

// Stop stops one task of the running batch.
func (o *Orchestrator) Stop(videoID string) error {
	b := o.Active()
	if b == nil {
		return ErrNoActiveBatch
	}
	return b.Stop(videoID)
}

// Cancel stops every task of the running batch and waits for its result.
func (o *Orchestrator) Cancel(ctx context.Context) (*models.BatchResult, error) {
	b := o.Active()
	if b == nil {
		return nil, ErrNoActiveBatch
	}
	return b.Cancel(ctx)
}

func uniqueRecords(records []models.VideoRecord) []models.VideoRecord {
	seen := make(map[string]struct{}, len(records))
	out := make([]models.VideoRecord, 0, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			log.Warnf("[Orchestrator] Skipping duplicate record %s in batch", r.ID)
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
