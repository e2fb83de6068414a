package audit

import (
	"context"
	"maps"
	"sort"
	"sync"
)

// Store persists events. Implementations must be safe for concurrent use.
type Store interface {
	Insert(ctx context.Context, e Event) error
	Get(ctx context.Context, id string) (Event, error)
	List(ctx context.Context, q Query) ([]Event, error)
	// UpdateDetails merges patch into the event's details map. No other field
	// may change.
	UpdateDetails(ctx context.Context, id string, patch map[string]string) error
	Close() error
}

// MemoryStore keeps events in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]Event
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]Event)}
}

func (s *MemoryStore) Insert(_ context.Context, e Event) error {
	if err := validateEvent(e); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; ok {
		return ErrEventExists
	}
	s.events[e.ID] = cloneEvent(e)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	return cloneEvent(e), nil
}

func (s *MemoryStore) List(_ context.Context, q Query) ([]Event, error) {
	s.mu.RLock()
	out := make([]Event, 0, len(s.events))
	for _, e := range s.events {
		if q.match(e) {
			out = append(out, cloneEvent(e))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return page(out, q.Offset, q.Limit), nil
}

func (s *MemoryStore) UpdateDetails(_ context.Context, id string, patch map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return ErrEventNotFound
	}
	if e.Details == nil {
		e.Details = make(map[string]string, len(patch))
	}
	maps.Copy(e.Details, patch)
	s.events[id] = e
	return nil
}

// Mutate rewrites a stored event in place, bypassing every invariant. It exists to
// simulate out-of-band edits of the primary store.
func (s *MemoryStore) Mutate(id string, fn func(*Event)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return false
	}
	fn(&e)
	s.events[id] = e
	return true
}

func (s *MemoryStore) Close() error { return nil }

func page(events []Event, offset, limit int) []Event {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(events) {
		return []Event{}
	}
	events = events[offset:]
	if limit > 0 && limit < len(events) {
		events = events[:limit]
	}
	return events
}
