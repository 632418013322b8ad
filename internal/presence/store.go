// Package presence tracks the last-known avatar state of every remote
// participant. The store is mutated only by the event router; a record is
// removed only by an explicit leave or a lifecycle teardown, never by age.
package presence

import (
	"sync"
	"time"

	"github.com/feliven/coffeetable/internal/domain"
)

type Store struct {
	mu        sync.RWMutex
	records   map[string]domain.PresenceRecord
	listeners []func(domain.PresenceRecord, bool)
}

func NewStore() *Store {
	return &Store{
		records: make(map[string]domain.PresenceRecord),
	}
}

// OnChange registers an observer fired after every upsert (removed=false)
// and removal (removed=true). Observers run on the mutating goroutine and
// must not block.
func (s *Store) OnChange(fn func(rec domain.PresenceRecord, removed bool)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Upsert applies a head update, or seeds the first-seen default placement
// when head is nil.
func (s *Store) Upsert(p domain.Participant, head *domain.Head) {
	s.mu.Lock()
	rec, ok := s.records[p.ID]
	if !ok {
		rec = domain.PresenceRecord{Participant: p, Head: domain.DefaultHead()}
	}
	if head != nil {
		rec.Head = *head
	}
	rec.Participant = p
	rec.LastSeen = time.Now()
	s.records[p.ID] = rec
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(rec, false)
	}
}

// Remove drops the record for a participant, if any.
func (s *Store) Remove(participantID string) {
	s.mu.Lock()
	rec, ok := s.records[participantID]
	if ok {
		delete(s.records, participantID)
	}
	listeners := s.listeners
	s.mu.Unlock()

	if ok {
		for _, fn := range listeners {
			fn(rec, true)
		}
	}
}

func (s *Store) Get(participantID string) (domain.PresenceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[participantID]
	return rec, ok
}

// Snapshot returns a copy of all current records.
func (s *Store) Snapshot() []domain.PresenceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PresenceRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Clear drops every record; used by the lifecycle teardown path.
func (s *Store) Clear() {
	s.mu.Lock()
	s.records = make(map[string]domain.PresenceRecord)
	s.mu.Unlock()
}
