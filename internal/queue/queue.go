package queue

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"go-ytqueue/internal/models"
)

// Store holds the ordered download queue and the user's selection over it.
// The selection is always a subset of the queued ids. All methods are safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	records  []models.VideoRecord
	index    map[string]int // id -> position in records
	selected map[string]struct{}
	onEmpty  []func()
}

// NewStore returns an empty queue.
func NewStore() *Store {
	return &Store{
		index:    make(map[string]int),
		selected: make(map[string]struct{}),
	}
}

// OnEmpty registers fn to run whenever a removal leaves the queue empty.
// Callbacks run after the store's lock is released.
func (s *Store) OnEmpty(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEmpty = append(s.onEmpty, fn)
}

// Append adds record at the end of the queue. It returns false when the id is already queued.
func (s *Store) Append(record models.VideoRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.index[record.ID]; exists {
		log.Debugf("[Queue] %s already queued, skipping", record.ID)
		return false
	}
	s.index[record.ID] = len(s.records)
	s.records = append(s.records, record)
	return true
}

// Remove deletes the record and its selection in one step.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	removed := s.removeLocked(id)
	notify := s.emptyCallbacksLocked(removed)
	s.mu.Unlock()

	runAll(notify)
	return removed
}

// RemoveIDs deletes every listed record and returns the ids that were actually queued.
func (s *Store) RemoveIDs(ids []string) []string {
	s.mu.Lock()
	var removed []string
	for _, id := range ids {
		if s.removeLocked(id) {
			removed = append(removed, id)
		}
	}
	notify := s.emptyCallbacksLocked(len(removed) > 0)
	s.mu.Unlock()

	runAll(notify)
	return removed
}

// RemoveSelected deletes every selected record and returns their ids in queue order.
func (s *Store) RemoveSelected() []string {
	s.mu.Lock()
	var ids []string
	for _, r := range s.records {
		if _, ok := s.selected[r.ID]; ok {
			ids = append(ids, r.ID)
		}
	}
	for _, id := range ids {
		s.removeLocked(id)
	}
	notify := s.emptyCallbacksLocked(len(ids) > 0)
	s.mu.Unlock()

	runAll(notify)
	return ids
}

// Select marks a queued id. Unknown ids are rejected.
func (s *Store) Select(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; !ok {
		return false
	}
	s.selected[id] = struct{}{}
	return true
}

// Unselect clears the mark on id.
func (s *Store) Unselect(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.selected, id)
}

// ClearSelection unmarks everything.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = make(map[string]struct{})
}

// IsSelected reports whether id is marked.
func (s *Store) IsSelected(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.selected[id]
	return ok
}

// Selected returns the marked ids in queue order.
func (s *Store) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, r := range s.records {
		if _, ok := s.selected[r.ID]; ok {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// Records returns a copy of the queue in order.
func (s *Store) Records() []models.VideoRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.VideoRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (models.VideoRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return models.VideoRecord{}, false
	}
	return s.records[i], true
}

// Len returns the number of queued records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) removeLocked(id string) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	delete(s.index, id)
	delete(s.selected, id)
	for j := i; j < len(s.records); j++ {
		s.index[s.records[j].ID] = j
	}
	return true
}

func (s *Store) emptyCallbacksLocked(changed bool) []func() {
	if !changed || len(s.records) > 0 {
		return nil
	}
	log.Debug("[Queue] Queue is now empty")
	out := make([]func(), len(s.onEmpty))
	copy(out, s.onEmpty)
	return out
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
