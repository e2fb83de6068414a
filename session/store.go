package session

import (
	"context"
	"errors"
	"hash/maphash"
	"sort"
	"sync"
	"time"
)

var (
	// ErrRecordNotFound is returned when no record exists for a user.
	ErrRecordNotFound = errors.New("session record not found")
	// ErrRedisUnavailable wraps Redis backend failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrUpdateConflict is returned when an optimistic update keeps losing races.
	ErrUpdateConflict = errors.New("session record update conflict")
)

// UpdateFunc mutates rec in place and reports whether it changed. exists is false
// when no record was stored yet; rec then holds only the UserID. Returning an error
// aborts the update without writing.
type UpdateFunc func(rec *Record, exists bool) (changed bool, err error)

// Store persists records with an atomic per-user read-modify-write.
type Store interface {
	Get(ctx context.Context, userID string) (Record, error)
	// Update runs fn against the current record and stores the result when fn
	// reports a change. It returns the record as stored after the call. fn may
	// run more than once and must not have side effects.
	Update(ctx context.Context, userID string, fn UpdateFunc) (Record, error)
	// ListExpired returns up to limit user ids whose session expired at or before
	// now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
}

const memoryShards = 32

type memoryShard struct {
	mu      sync.Mutex
	records map[string]Record
}

// MemoryStore is a sharded in-process Store.
type MemoryStore struct {
	seed   maphash.Seed
	shards [memoryShards]memoryShard
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{seed: maphash.MakeSeed()}
	for i := range s.shards {
		s.shards[i].records = make(map[string]Record)
	}
	return s
}

func (s *MemoryStore) shard(userID string) *memoryShard {
	return &s.shards[maphash.String(s.seed, userID)%memoryShards]
}

func (s *MemoryStore) Get(_ context.Context, userID string) (Record, error) {
	sh := s.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	rec, ok := sh.records[userID]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Update(_ context.Context, userID string, fn UpdateFunc) (Record, error) {
	sh := s.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, exists := sh.records[userID]
	if !exists {
		rec = Record{UserID: userID}
	}
	next := rec
	changed, err := fn(&next, exists)
	if err != nil {
		return rec, err
	}
	if !changed {
		return rec, nil
	}
	next.UserID = userID
	sh.records[userID] = next
	return next, nil
}

func (s *MemoryStore) ListExpired(_ context.Context, now time.Time, limit int) ([]string, error) {
	type expired struct {
		id string
		at time.Time
	}
	var found []expired
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, rec := range sh.records {
			if rec.CurrentSessionID != "" && !now.Before(rec.SessionExpiresAt) {
				found = append(found, expired{id: id, at: rec.SessionExpiresAt})
			}
		}
		sh.mu.Unlock()
	}
	sort.Slice(found, func(i, j int) bool { return found[i].at.Before(found[j].at) })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	out := make([]string, len(found))
	for i, f := range found {
		out[i] = f.id
	}
	return out, nil
}
