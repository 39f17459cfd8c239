package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus"

	"go-ytqueue/internal/models"
)

// ErrNotFound is returned when a key is not found in the database.
var ErrNotFound = errors.New("key not found")

// ErrClosed is returned by operations on a closed database.
var ErrClosed = errors.New("database is closed")

const (
	historyPrefix = "v_"
	// Largest stored entry; titles and paths are short.
	maxValueSize = 1 << 16
)

// DB wraps the bitcask store holding the download history.
type DB struct {
	db *bitcask.Bitcask
	sync.RWMutex
	closeOnce sync.Once
	closed    bool
	closeErr  error
}

// Open initializes and returns a DB instance, creating the directory when needed.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: database path is empty", models.ErrInvalidInput)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := bitcask.Open(path, bitcask.WithMaxValueSize(maxValueSize), bitcask.WithSync(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open history database at %s: %w", path, err)
	}

	log.Debugf("[History] Database opened at %s", path)
	return &DB{db: db}, nil
}

// Close closes the database. Subsequent calls return the first result.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		d.Lock()
		defer d.Unlock()
		d.closed = true
		d.closeErr = d.db.Close()
	})
	return d.closeErr
}

func historyKey(videoID string) []byte {
	return []byte(historyPrefix + videoID)
}

// Has reports whether a history entry exists for videoID.
func (d *DB) Has(videoID string) bool {
	d.RLock()
	defer d.RUnlock()
	if d.closed {
		return false
	}
	return d.db.Has(historyKey(videoID))
}

// Get returns the history entry of videoID, or ErrNotFound.
func (d *DB) Get(videoID string) (models.HistoryEntry, error) {
	d.RLock()
	defer d.RUnlock()
	if d.closed {
		return models.HistoryEntry{}, ErrClosed
	}

	raw, err := d.db.Get(historyKey(videoID))
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return models.HistoryEntry{}, ErrNotFound
		}
		return models.HistoryEntry{}, fmt.Errorf("reading history entry %s: %w", videoID, err)
	}

	var entry models.HistoryEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return models.HistoryEntry{}, fmt.Errorf("decoding history entry %s: %w", videoID, err)
	}
	return entry, nil
}

// Put stores entry, replacing an earlier download of the same video.
func (d *DB) Put(entry models.HistoryEntry) error {
	if entry.VideoID == "" {
		return fmt.Errorf("%w: history entry without video id", models.ErrInvalidInput)
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding history entry %s: %w", entry.VideoID, err)
	}

	d.Lock()
	defer d.Unlock()
	if d.closed {
		return ErrClosed
	}
	if err := d.db.Put(historyKey(entry.VideoID), raw); err != nil {
		return fmt.Errorf("writing history entry %s: %w", entry.VideoID, err)
	}
	return nil
}

// Delete removes the entry of videoID.
func (d *DB) Delete(videoID string) error {
	d.Lock()
	defer d.Unlock()
	if d.closed {
		return ErrClosed
	}
	key := historyKey(videoID)
	if !d.db.Has(key) {
		return ErrNotFound
	}
	return d.db.Delete(key)
}

// Fold calls fn for every stored entry. Iteration stops at the first error fn returns.
func (d *DB) Fold(fn func(entry models.HistoryEntry) error) error {
	d.RLock()
	defer d.RUnlock()
	if d.closed {
		return ErrClosed
	}

	// Keys are collected first; bitcask holds its own read lock during Fold.
	var keys [][]byte
	err := d.db.Fold(func(key []byte) error {
		if strings.HasPrefix(string(key), historyPrefix) {
			keys = append(keys, append([]byte(nil), key...))
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, key := range keys {
		raw, err := d.db.Get(key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", key, err)
		}
		var entry models.HistoryEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			log.WithError(err).Warnf("[History] Skipping undecodable entry %s", key)
			continue
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

// List returns every entry, most recent first.
func (d *DB) List() ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	err := d.Fold(func(entry models.HistoryEntry) error {
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CompletedAt.Equal(entries[j].CompletedAt) {
			return entries[i].VideoID < entries[j].VideoID
		}
		return entries[i].CompletedAt.After(entries[j].CompletedAt)
	})
	return entries, nil
}
