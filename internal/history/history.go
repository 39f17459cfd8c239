// Package history records completed downloads and answers list, search and verify queries.
package history

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"

	"go-ytqueue/internal/database"
	"go-ytqueue/internal/helpers"
	"go-ytqueue/internal/index"
	"go-ytqueue/internal/models"
)

// Verify outcomes
const (
	VerifyOK       = "ok"
	VerifyMissing  = "missing"
	VerifyMismatch = "mismatch"
	VerifyUnhashed = "unhashed" // file exists, no hash was recorded
	VerifyNoPath   = "no-path"
)

// VerifyResult is the check of one recorded file.
type VerifyResult struct {
	Entry  models.HistoryEntry
	Status string
}

// Recorder stores completed downloads in the history database and search index.
// The index is optional; without it Search is unavailable.
type Recorder struct {
	db        *database.DB
	index     bleve.Index
	hashFiles bool
	now       func() time.Time
}

// New wraps an opened database and optional index.
func New(db *database.DB, idx bleve.Index, hashFiles bool) *Recorder {
	return &Recorder{db: db, index: idx, hashFiles: hashFiles, now: time.Now}
}

// Open opens the database and index named by cfg. A broken index disables search only.
func Open(cfg models.HistoryConfig) (*Recorder, error) {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	idx, err := index.OpenOrCreateIndex(cfg.IndexPath)
	if err != nil {
		log.WithError(err).Error("[History] Failed to open or create search index. Search will be disabled.")
		idx = nil
	}
	return New(db, idx, cfg.HashFiles), nil
}

// Close closes the index and the database.
func (r *Recorder) Close() error {
	var errs []error
	if r.index != nil {
		if err := r.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing index: %w", err))
		}
	}
	if err := r.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	return errors.Join(errs...)
}

// Record stores a successful terminal event. Failed and cancelled tasks are ignored.
func (r *Recorder) Record(term models.TerminalEvent, record models.VideoRecord, params models.DownloadParameters) error {
	if !term.Success {
		return nil
	}

	completed := term.FinishedAt
	if completed.IsZero() {
		completed = r.now()
	}
	entry := models.HistoryEntry{
		CompletedAt: completed,
		VideoID:     term.VideoID,
		Title:       record.Title,
		Author:      record.Author,
		Kind:        params.Kind,
		Quality:     params.Quality,
		Container:   params.Container,
		OutputPath:  term.OutputPath,
	}

	if r.hashFiles && entry.OutputPath != "" {
		sum, err := helpers.HashFile(entry.OutputPath)
		if err != nil {
			log.WithError(err).Warnf("[History] Could not hash %s", entry.OutputPath)
		} else {
			entry.BLAKE3 = sum
		}
	}

	if err := r.db.Put(entry); err != nil {
		return err
	}
	if r.index != nil {
		if err := index.IndexEntry(r.index, entry); err != nil {
			log.WithError(err).Warnf("[History] Failed to index %s", entry.VideoID)
		}
	}
	log.Debugf("[History] Recorded %s (%s)", entry.VideoID, entry.Title)
	return nil
}

// List returns every recorded download, most recent first.
func (r *Recorder) List() ([]models.HistoryEntry, error) {
	return r.db.List()
}

// Search returns the recorded downloads matching query, best match first.
func (r *Recorder) Search(query string, limit int) ([]models.HistoryEntry, error) {
	if r.index == nil {
		return nil, errors.New("search index is not available")
	}
	hits, err := index.Search(r.index, query, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]models.HistoryEntry, 0, len(hits))
	for _, hit := range hits {
		entry, err := r.db.Get(hit.VideoID)
		if errors.Is(err, database.ErrNotFound) {
			// Indexed but no longer stored.
			log.Debugf("[History] Dropping stale index document %s", hit.VideoID)
			_ = index.DeleteEntry(r.index, hit.VideoID)
			continue
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Verify checks every recorded output file against its recorded BLAKE3 hash.
func (r *Recorder) Verify() ([]VerifyResult, error) {
	entries, err := r.db.List()
	if err != nil {
		return nil, err
	}

	results := make([]VerifyResult, 0, len(entries))
	for _, entry := range entries {
		results = append(results, VerifyResult{Entry: entry, Status: verifyEntry(entry)})
	}
	return results, nil
}

func verifyEntry(entry models.HistoryEntry) string {
	if entry.OutputPath == "" {
		return VerifyNoPath
	}
	if _, err := os.Stat(entry.OutputPath); err != nil {
		return VerifyMissing
	}
	if entry.BLAKE3 == "" {
		return VerifyUnhashed
	}
	if !helpers.CheckHash(entry.OutputPath, entry.BLAKE3) {
		return VerifyMismatch
	}
	return VerifyOK
}

// Forget removes videoID from the history and the index.
func (r *Recorder) Forget(videoID string) error {
	if err := r.db.Delete(videoID); err != nil {
		return err
	}
	if r.index != nil {
		if err := index.DeleteEntry(r.index, videoID); err != nil {
			log.WithError(err).Warnf("[History] Failed to remove %s from index", videoID)
		}
	}
	return nil
}
