package threat

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSentinel/audit"
	"github.com/MrEthical07/goSentinel/detector"
	"github.com/MrEthical07/goSentinel/internal/window"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordedEvent struct {
	actor  string
	name   string
	status audit.Status
	meta   audit.Meta
}

type captureRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *captureRecorder) RecordEvent(_ context.Context, actor string, a audit.Action, s audit.Status, m audit.Meta) (string, error) {
	return r.Record(context.Background(), actor, string(a), s, m)
}

func (r *captureRecorder) Record(_ context.Context, actor, name string, s audit.Status, m audit.Meta) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{actor: actor, name: name, status: s, meta: m})
	return "evt", nil
}

func (r *captureRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.name
	}
	return out
}

func (r *captureRecorder) count(name string) int {
	n := 0
	for _, got := range r.names() {
		if got == name {
			n++
		}
	}
	return n
}

type brokenStore struct {
	*MemoryStore
}

func (brokenStore) Get(context.Context, string) (Entry, error) {
	return Entry{}, ErrBlockStoreUnavailable
}

func newTestCoordinator(store Store) (*Coordinator, *fakeClock, *captureRecorder) {
	clock := newFakeClock()
	rec := &captureRecorder{}
	tracker := window.New(window.DefaultConfig(), clock.Now)
	c := NewCoordinator(DefaultConfig(), store, tracker, rec, WithClock(clock.Now))
	return c, clock, rec
}

func TestBlockUnblockRoundTrip(t *testing.T) {
	c, _, rec := newTestCoordinator(NewMemoryStore())
	ctx := context.Background()

	if c.IsBlocked(ctx, "203.0.113.9") {
		t.Fatal("unexpected block before Block")
	}
	e, err := c.Block(ctx, "203.0.113.9", "manual review", "admin")
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	if !c.IsBlocked(ctx, "203.0.113.9") {
		t.Fatal("expected IP to be blocked")
	}
	if got := e.ExpiresAt.Sub(e.BlockedAt); got != 30*24*time.Hour {
		t.Fatalf("expected 30 day operator block, got %s", got)
	}
	if e.BlockedBy != "admin" {
		t.Fatalf("unexpected blockedBy %q", e.BlockedBy)
	}

	ok, err := c.Unblock(ctx, "203.0.113.9", "false positive", "admin")
	if err != nil || !ok {
		t.Fatalf("Unblock: %v %v", ok, err)
	}
	if c.IsBlocked(ctx, "203.0.113.9") {
		t.Fatal("expected IP to be unblocked")
	}

	ok, err = c.Unblock(ctx, "203.0.113.9", "again", "admin")
	if err != nil || ok {
		t.Fatalf("second Unblock must be a no-op, got %v %v", ok, err)
	}
	if rec.count("ip_blocked") != 1 || rec.count("ip_unblocked") != 1 {
		t.Fatalf("unexpected events %v", rec.names())
	}
}

func TestUnblockLapsedEntryIsNoop(t *testing.T) {
	store := NewMemoryStore()
	c, clock, rec := newTestCoordinator(store)
	ctx := context.Background()

	if _, err := c.BlockWithOptions(ctx, BlockRequest{IP: "198.51.100.3", Reason: "scan", BlockedBy: "admin", Duration: time.Hour}); err != nil {
		t.Fatalf("Block: %v", err)
	}
	clock.Advance(time.Hour + time.Second)

	ok, err := c.Unblock(ctx, "198.51.100.3", "cleanup", "admin")
	if err != nil || ok {
		t.Fatalf("lapsed block must report not blocked, got %v %v", ok, err)
	}
	if rec.count("ip_unblocked") != 0 {
		t.Fatalf("lapsed block must not emit ip_unblocked, got %v", rec.names())
	}
	if _, err := store.Get(ctx, "198.51.100.3"); !errors.Is(err, ErrNotBlocked) {
		t.Fatalf("expected lapsed entry to be removed, got %v", err)
	}
}

func TestBlockValidation(t *testing.T) {
	c, _, rec := newTestCoordinator(NewMemoryStore())
	ctx := context.Background()

	if _, err := c.Block(ctx, "not-an-ip", "x", "admin"); !errors.Is(err, ErrInvalidIP) {
		t.Fatalf("expected ErrInvalidIP, got %v", err)
	}
	if _, err := c.Block(ctx, "10.0.0.1", "  ", "admin"); !errors.Is(err, ErrMissingReason) {
		t.Fatalf("expected ErrMissingReason, got %v", err)
	}
	if _, err := c.Unblock(ctx, "", "x", "admin"); !errors.Is(err, ErrInvalidIP) {
		t.Fatalf("expected ErrInvalidIP, got %v", err)
	}
	if len(rec.names()) != 0 {
		t.Fatalf("validation failures must not emit events, got %v", rec.names())
	}
}

func TestBlockExpiresLazily(t *testing.T) {
	c, clock, _ := newTestCoordinator(NewMemoryStore())
	ctx := context.Background()

	if _, err := c.BlockWithOptions(ctx, BlockRequest{IP: "10.1.1.1", Reason: "test", Duration: time.Minute}); err != nil {
		t.Fatalf("BlockWithOptions: %v", err)
	}
	clock.Advance(59 * time.Second)
	if !c.IsBlocked(ctx, "10.1.1.1") {
		t.Fatal("expected block to be live before expiry")
	}
	clock.Advance(time.Second)
	if c.IsBlocked(ctx, "10.1.1.1") {
		t.Fatal("expected block to lapse at expiresAt without a sweep")
	}
	if list, _ := c.ListBlocked(ctx); len(list) != 0 {
		t.Fatalf("expired entries must not be listed, got %+v", list)
	}

	res, err := c.Sweep(ctx)
	if err != nil || res.Blocks != 1 {
		t.Fatalf("expected sweep to remove one block, got %+v %v", res, err)
	}
}

func TestReblockRefreshesExpiry(t *testing.T) {
	c, clock, rec := newTestCoordinator(NewMemoryStore())
	ctx := context.Background()

	first, _ := c.BlockWithOptions(ctx, BlockRequest{IP: "10.2.2.2", Reason: "a", Duration: time.Hour})
	clock.Advance(30 * time.Minute)
	second, _ := c.BlockWithOptions(ctx, BlockRequest{IP: "10.2.2.2", Reason: "b", Duration: time.Hour})

	if !second.BlockedAt.Equal(first.BlockedAt) {
		t.Fatalf("re-block must keep BlockedAt, got %s vs %s", second.BlockedAt, first.BlockedAt)
	}
	if !second.ExpiresAt.After(first.ExpiresAt) {
		t.Fatal("re-block must push ExpiresAt forward")
	}
	if list, _ := c.ListBlocked(ctx); len(list) != 1 || list[0].Reason != "b" {
		t.Fatalf("expected one live entry with the latest reason, got %+v", list)
	}
	if rec.count("ip_blocked") != 2 {
		t.Fatalf("every block emits an event, got %v", rec.names())
	}
}

func TestHandleDetectionFollowsPolicy(t *testing.T) {
	c, _, rec := newTestCoordinator(NewMemoryStore())
	ctx := context.Background()

	out, err := c.HandleDetection(ctx, "198.51.100.4", detector.CategorySQLInjection, audit.Meta{})
	if err != nil {
		t.Fatalf("HandleDetection: %v", err)
	}
	if !out.Blocked || out.Action != ActionBlock || out.Entry.Reason != "sql_injection_attempt" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if got := out.Entry.ExpiresAt.Sub(out.Entry.BlockedAt); got != time.Hour {
		t.Fatalf("expected automatic block of 1h, got %s", got)
	}

	out, err = c.HandleDetection(ctx, "198.51.100.5", detector.CategoryXSS, audit.Meta{})
	if err != nil {
		t.Fatalf("HandleDetection: %v", err)
	}
	if out.Blocked || out.Action != ActionFlag {
		t.Fatalf("xss must only flag by default, got %+v", out)
	}
	if c.IsBlocked(ctx, "198.51.100.5") || !c.IsSuspicious("198.51.100.5") {
		t.Fatal("xss source must be suspicious and not blocked")
	}

	policy := c.Policy()
	policy[string(detector.CategoryXSS)] = ActionBlock
	c.SetPolicy(policy)
	if out, _ := c.HandleDetection(ctx, "198.51.100.5", detector.CategoryXSS, audit.Meta{}); !out.Blocked {
		t.Fatalf("expected block after policy change, got %+v", out)
	}

	if rec.count("sql_injection_attempt") != 1 || rec.count("xss_attempt") != 2 {
		t.Fatalf("unexpected events %v", rec.names())
	}

	if _, err := c.HandleDetection(ctx, "198.51.100.6", detector.CategoryNone, audit.Meta{}); err == nil {
		t.Fatal("expected error for empty category")
	}
}

func TestRecordAttemptEscalation(t *testing.T) {
	c, clock, rec := newTestCoordinator(NewMemoryStore())
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		res, out, err := c.RecordAttempt(ctx, "10.0.0.5", "alice", audit.Meta{})
		if err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
		if res.BruteForce {
			t.Fatalf("attempt %d must not be brute force", i)
		}
		if i >= 3 && (!res.Suspicious || out.Action != ActionFlag) {
			t.Fatalf("attempt %d should be suspicious, got %+v %+v", i, res, out)
		}
		clock.Advance(time.Minute)
	}
	if c.IsBlocked(ctx, "10.0.0.5") {
		t.Fatal("suspicious attempts must not block")
	}

	res, out, err := c.RecordAttempt(ctx, "10.0.0.5", "alice", audit.Meta{})
	if err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}
	if !res.BruteForce || !out.Blocked || out.Entry.Reason != "brute_force_attack" {
		t.Fatalf("fifth attempt must block for brute force, got %+v %+v", res, out)
	}
	if !c.IsBlocked(ctx, "10.0.0.5") {
		t.Fatal("expected brute-force source to be blocked")
	}
	if rec.count("brute_force_detected") != 1 || rec.count("suspicious_activity") != 2 {
		t.Fatalf("unexpected events %v", rec.names())
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.BlockedCount != 1 || stats.SuspiciousCount != 1 || stats.TotalAttempts != 5 || stats.ActiveThreats != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	c.ClearAttempts()
	if n := c.ClearSuspicious(); n != 1 {
		t.Fatalf("expected one suspect cleared, got %d", n)
	}
	if stats, _ := c.Stats(ctx); stats.TotalAttempts != 0 || stats.SuspiciousCount != 0 {
		t.Fatalf("expected cleared stats, got %+v", stats)
	}
}

func TestIsBlockedFailsOpenOnStoreError(t *testing.T) {
	c, _, _ := newTestCoordinator(brokenStore{NewMemoryStore()})
	if c.IsBlocked(context.Background(), "10.9.9.9") {
		t.Fatal("store failure must fail open")
	}
	if c.StoreFailures() != 1 {
		t.Fatalf("expected one counted store failure, got %d", c.StoreFailures())
	}
}

func TestSuspiciousEntriesExpire(t *testing.T) {
	c, clock, _ := newTestCoordinator(NewMemoryStore())
	if _, err := c.Flag("::1", "scan"); err != nil {
		t.Fatalf("Flag: %v", err)
	}
	if !c.IsSuspicious("127.0.0.1") {
		t.Fatal("loopback forms must normalize to the same key")
	}
	clock.Advance(24 * time.Hour)
	if c.IsSuspicious("127.0.0.1") || len(c.ListSuspicious()) != 0 {
		t.Fatal("suspect must lapse after its TTL")
	}
	res, _ := c.Sweep(context.Background())
	if res.Suspects != 1 {
		t.Fatalf("expected one suspect swept, got %+v", res)
	}
}

func TestBlockingConcurrentDistinctIPs(t *testing.T) {
	c, _, _ := newTestCoordinator(NewMemoryStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ip := "10.10.0." + strconv.Itoa(i)
			if _, err := c.Block(ctx, ip, "load", ""); err != nil {
				t.Errorf("Block(%s): %v", ip, err)
			}
			c.IsBlocked(ctx, ip)
		}(i)
	}
	wg.Wait()

	list, err := c.ListBlocked(ctx)
	if err != nil || len(list) != 64 {
		t.Fatalf("expected 64 blocks, got %d %v", len(list), err)
	}
}
