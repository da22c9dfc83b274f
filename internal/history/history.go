// Package history holds the bounded in-memory message buffer. It is the
// single source of recent-history truth when no durable store is configured,
// and the read fallback when one is.
package history

import (
	"sync"

	"github.com/JesusBorbon/chat-seguro/internal/message"
)

// DefaultCapacity matches the retention bound used by the durable mirror.
const DefaultCapacity = 100

// Store is a fixed-capacity FIFO of message records. Appends evict from the
// head once the capacity is exceeded; insertion order is never reordered.
type Store struct {
	mu       sync.Mutex
	capacity int
	records  []message.Record
}

func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{capacity: capacity}
}

func (s *Store) Capacity() int { return s.capacity }

// Append inserts rec at the tail, evicting the oldest record if the buffer
// is full. Appends are one record at a time, so a single eviction suffices.
func (s *Store) Append(rec message.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	if len(s.records) > s.capacity {
		s.records = s.records[1:]
	}
}

// Snapshot returns the current contents oldest-first as a deep copy. Callers
// never observe later mutation.
func (s *Store) Snapshot() []message.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Get returns a copy of the record with the given id.
func (s *Store) Get(id string) (message.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			return s.records[i].Clone(), true
		}
	}
	return message.Record{}, false
}

// Mutate runs fn against the live record with the given id while holding the
// store's lock. Used by the reaction path so toggles apply in place. Returns
// false if no record matches.
func (s *Store) Mutate(id string, fn func(*message.Record)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			fn(&s.records[i])
			return true
		}
	}
	return false
}
