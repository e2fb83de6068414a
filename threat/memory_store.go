package threat

import (
	"context"
	"hash/maphash"
	"sync"
	"time"
)

const storeShards = 32

type storeShard struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// MemoryStore is a sharded in-process Store.
type MemoryStore struct {
	seed   maphash.Seed
	shards [storeShards]storeShard
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{seed: maphash.MakeSeed()}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]Entry)
	}
	return s
}

func (s *MemoryStore) shard(ip string) *storeShard {
	return &s.shards[maphash.String(s.seed, ip)%storeShards]
}

func (s *MemoryStore) Upsert(_ context.Context, e Entry) error {
	sh := s.shard(e.IP)
	sh.mu.Lock()
	sh.entries[e.IP] = e.clone()
	sh.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, ip string) (Entry, error) {
	sh := s.shard(ip)
	sh.mu.RLock()
	e, ok := sh.entries[ip]
	sh.mu.RUnlock()
	if !ok {
		return Entry{}, ErrNotBlocked
	}
	return e.clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, ip string) (bool, error) {
	sh := s.shard(ip)
	sh.mu.Lock()
	_, ok := sh.entries[ip]
	delete(sh.entries, ip)
	sh.mu.Unlock()
	return ok, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Entry, error) {
	var out []Entry
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, e := range sh.entries {
			out = append(out, e.clone())
		}
		sh.mu.RUnlock()
	}
	return out, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for ip, e := range sh.entries {
			if !e.Live(now) {
				delete(sh.entries, ip)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}
