// Package window tracks timestamped attempts per (ip, identity) inside sliding
// windows and classifies bursts as brute-force or suspicious.
package window

import (
	"hash/maphash"
	"sync"
	"time"
)

const shardCount = 64

// Config controls window lengths and thresholds.
type Config struct {
	BruteForceWindow    time.Duration
	BruteForceThreshold int
	SuspiciousWindow    time.Duration
	SuspiciousThreshold int
}

// DefaultConfig returns 5 attempts in 15 minutes for brute force and 3 attempts in
// 5 minutes for suspicious activity.
func DefaultConfig() Config {
	return Config{
		BruteForceWindow:    15 * time.Minute,
		BruteForceThreshold: 5,
		SuspiciousWindow:    5 * time.Minute,
		SuspiciousThreshold: 3,
	}
}

// Result classifies the attempt just recorded.
type Result struct {
	BruteForce bool
	Suspicious bool
	// Count is the number of attempts inside the brute-force window.
	Count int
	// RecentCount is the number of attempts inside the suspicious window.
	RecentCount int
}

type shard struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

// Tracker is a sharded attempt log. Keys hash to one of a fixed set of shards so
// unrelated IPs do not contend on a single lock.
type Tracker struct {
	cfg    Config
	now    func() time.Time
	seed   maphash.Seed
	shards [shardCount]shard
}

// New creates a tracker. A nil now uses time.Now.
func New(cfg Config, now func() time.Time) *Tracker {
	def := DefaultConfig()
	if cfg.BruteForceWindow <= 0 {
		cfg.BruteForceWindow = def.BruteForceWindow
	}
	if cfg.BruteForceThreshold <= 0 {
		cfg.BruteForceThreshold = def.BruteForceThreshold
	}
	if cfg.SuspiciousWindow <= 0 {
		cfg.SuspiciousWindow = def.SuspiciousWindow
	}
	if cfg.SuspiciousThreshold <= 0 {
		cfg.SuspiciousThreshold = def.SuspiciousThreshold
	}
	if now == nil {
		now = time.Now
	}

	t := &Tracker{cfg: cfg, now: now, seed: maphash.MakeSeed()}
	for i := range t.shards {
		t.shards[i].attempts = make(map[string][]time.Time)
	}
	return t
}

// Config returns the effective configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}

func key(ip, identity string) string {
	return ip + "\x00" + identity
}

func (t *Tracker) shardFor(k string) *shard {
	return &t.shards[maphash.String(t.seed, k)%shardCount]
}

// RecordAttempt appends the current time to the (ip, identity) window, prunes entries
// older than the brute-force window and classifies the result.
func (t *Tracker) RecordAttempt(ip, identity string) Result {
	now := t.now()
	k := key(ip, identity)
	s := t.shardFor(k)

	s.mu.Lock()
	kept := prune(s.attempts[k], now, t.cfg.BruteForceWindow)
	kept = append(kept, now)
	s.attempts[k] = kept
	s.mu.Unlock()

	return t.classify(kept, now)
}

// Count returns the current classification without recording an attempt.
func (t *Tracker) Count(ip, identity string) Result {
	now := t.now()
	k := key(ip, identity)
	s := t.shardFor(k)

	s.mu.Lock()
	kept := prune(s.attempts[k], now, t.cfg.BruteForceWindow)
	if len(kept) == 0 {
		delete(s.attempts, k)
	} else {
		s.attempts[k] = kept
	}
	res := t.classify(kept, now)
	s.mu.Unlock()

	return res
}

func (t *Tracker) classify(attempts []time.Time, now time.Time) Result {
	res := Result{Count: len(attempts)}
	cutoff := now.Add(-t.cfg.SuspiciousWindow)
	for i := len(attempts) - 1; i >= 0; i-- {
		if !attempts[i].After(cutoff) {
			break
		}
		res.RecentCount++
	}

	switch {
	case res.Count >= t.cfg.BruteForceThreshold:
		res.BruteForce = true
	case res.RecentCount >= t.cfg.SuspiciousThreshold:
		res.Suspicious = true
	}
	return res
}

// prune drops timestamps at or before now-window. The slice is ordered, so the
// retained entries are a suffix.
func prune(attempts []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(attempts) && !attempts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return attempts
	}
	out := make([]time.Time, len(attempts)-i, len(attempts)-i+1)
	copy(out, attempts[i:])
	return out
}

// Reset forgets the attempts for one key.
func (t *Tracker) Reset(ip, identity string) {
	k := key(ip, identity)
	s := t.shardFor(k)
	s.mu.Lock()
	delete(s.attempts, k)
	s.mu.Unlock()
}

// Clear forgets every tracked attempt.
func (t *Tracker) Clear() {
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		s.attempts = make(map[string][]time.Time)
		s.mu.Unlock()
	}
}

// TotalAttempts sums in-window attempts across all keys.
func (t *Tracker) TotalAttempts() int {
	now := t.now()
	total := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for _, attempts := range s.attempts {
			total += len(prune(attempts, now, t.cfg.BruteForceWindow))
		}
		s.mu.Unlock()
	}
	return total
}

// Sweep physically removes keys whose attempts have all aged out and returns how
// many keys were dropped. Reads never depend on it.
func (t *Tracker) Sweep() int {
	now := t.now()
	removed := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for k, attempts := range s.attempts {
			kept := prune(attempts, now, t.cfg.BruteForceWindow)
			if len(kept) == 0 {
				delete(s.attempts, k)
				removed++
				continue
			}
			s.attempts[k] = kept
		}
		s.mu.Unlock()
	}
	return removed
}

// Keys returns the number of tracked keys, including stale ones not yet swept.
func (t *Tracker) Keys() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.attempts)
		s.mu.Unlock()
	}
	return n
}
