package threat

import (
	"hash/maphash"
	"sort"
	"sync"
	"time"
)

const suspectShards = 16

// Suspect is one entry of the suspicious set.
type Suspect struct {
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	FirstSeen time.Time `json:"firstSeen"`
	LastSeen  time.Time `json:"lastSeen"`
	Hits      int       `json:"hits"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type suspectShard struct {
	mu      sync.Mutex
	entries map[string]Suspect
}

// suspectSet is a volatile, TTL-bounded set of flagged IPs.
type suspectSet struct {
	seed   maphash.Seed
	shards [suspectShards]suspectShard
}

func newSuspectSet() *suspectSet {
	s := &suspectSet{seed: maphash.MakeSeed()}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]Suspect)
	}
	return s
}

func (s *suspectSet) shard(ip string) *suspectShard {
	return &s.shards[maphash.String(s.seed, ip)%suspectShards]
}

func (s *suspectSet) add(ip, reason string, now time.Time, ttl time.Duration) Suspect {
	sh := s.shard(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	cur, ok := sh.entries[ip]
	if !ok || !now.Before(cur.ExpiresAt) {
		cur = Suspect{IP: ip, FirstSeen: now}
	}
	cur.Reason = reason
	cur.LastSeen = now
	cur.Hits++
	cur.ExpiresAt = now.Add(ttl)
	sh.entries[ip] = cur
	return cur
}

func (s *suspectSet) contains(ip string, now time.Time) bool {
	sh := s.shard(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur, ok := sh.entries[ip]
	return ok && now.Before(cur.ExpiresAt)
}

func (s *suspectSet) remove(ip string) bool {
	sh := s.shard(ip)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.entries[ip]
	delete(sh.entries, ip)
	return ok
}

func (s *suspectSet) list(now time.Time) []Suspect {
	var out []Suspect
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for _, e := range sh.entries {
			if now.Before(e.ExpiresAt) {
				out = append(out, e)
			}
		}
		sh.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

func (s *suspectSet) count(now time.Time) int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for _, e := range sh.entries {
			if now.Before(e.ExpiresAt) {
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}

func (s *suspectSet) clear() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.entries)
		sh.entries = make(map[string]Suspect)
		sh.mu.Unlock()
	}
	return n
}

func (s *suspectSet) sweep(now time.Time) int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for ip, e := range sh.entries {
			if !now.Before(e.ExpiresAt) {
				delete(sh.entries, ip)
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}
