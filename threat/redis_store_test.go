package threat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSentinel/internal/window"
)

func newRedisStore(t *testing.T, now func() time.Time) (*RedisStore, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStore(rdb, "st", now), mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestRedisStoreCRUD(t *testing.T) {
	clock := newFakeClock()
	store, mr, done := newRedisStore(t, clock.Now)
	defer done()
	ctx := context.Background()

	if _, err := store.Get(ctx, "10.0.0.1"); !errors.Is(err, ErrNotBlocked) {
		t.Fatalf("expected ErrNotBlocked, got %v", err)
	}

	now := clock.Now()
	e := Entry{
		IP:        "10.0.0.1",
		Reason:    "sql_injection_attempt",
		BlockedAt: now,
		ExpiresAt: now.Add(time.Hour),
		BlockedBy: SystemActor,
		Metadata:  map[string]string{"trigger": "sql_injection"},
	}
	if err := store.Upsert(ctx, e); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := store.Get(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Reason != e.Reason || !got.ExpiresAt.Equal(e.ExpiresAt) || got.Metadata["trigger"] != "sql_injection" {
		t.Fatalf("entry did not round-trip: %+v", got)
	}
	if ttl := mr.TTL("st:block:10.0.0.1"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}

	list, err := store.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %+v %v", list, err)
	}

	existed, err := store.Delete(ctx, "10.0.0.1")
	if err != nil || !existed {
		t.Fatalf("Delete: %v %v", existed, err)
	}
	existed, err = store.Delete(ctx, "10.0.0.1")
	if err != nil || existed {
		t.Fatalf("second Delete must report false, got %v %v", existed, err)
	}
}

func TestRedisStoreDeleteExpired(t *testing.T) {
	clock := newFakeClock()
	store, mr, done := newRedisStore(t, clock.Now)
	defer done()
	ctx := context.Background()
	now := clock.Now()

	for ip, d := range map[string]time.Duration{
		"10.0.1.1": time.Minute,
		"10.0.1.2": 2 * time.Minute,
		"10.0.1.3": time.Hour,
	} {
		if err := store.Upsert(ctx, Entry{IP: ip, Reason: "r", BlockedAt: now, ExpiresAt: now.Add(d)}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	n, err := store.DeleteExpired(ctx, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 expired entries, got %d", n)
	}
	if mr.Exists("st:block:10.0.1.1") || mr.Exists("st:block:10.0.1.2") {
		t.Fatal("expired keys must be deleted")
	}
	list, _ := store.List(ctx)
	if len(list) != 1 || list[0].IP != "10.0.1.3" {
		t.Fatalf("unexpected remaining entries %+v", list)
	}
}

func TestRedisStoreUpsertPastExpiryDeletes(t *testing.T) {
	clock := newFakeClock()
	store, _, done := newRedisStore(t, clock.Now)
	defer done()
	ctx := context.Background()
	now := clock.Now()

	_ = store.Upsert(ctx, Entry{IP: "10.0.2.1", Reason: "r", BlockedAt: now, ExpiresAt: now.Add(time.Hour)})
	if err := store.Upsert(ctx, Entry{IP: "10.0.2.1", Reason: "r", BlockedAt: now, ExpiresAt: now.Add(-time.Second)}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := store.Get(ctx, "10.0.2.1"); !errors.Is(err, ErrNotBlocked) {
		t.Fatalf("expected entry to be removed, got %v", err)
	}
}

func TestCoordinatorOverRedisLazyExpiry(t *testing.T) {
	clock := newFakeClock()
	store, _, done := newRedisStore(t, clock.Now)
	defer done()
	ctx := context.Background()

	rec := &captureRecorder{}
	c := NewCoordinator(DefaultConfig(), store, window.New(window.DefaultConfig(), clock.Now), rec, WithClock(clock.Now))

	if _, err := c.BlockWithOptions(ctx, BlockRequest{IP: "192.0.2.10", Reason: "manual", Duration: 10 * time.Minute}); err != nil {
		t.Fatalf("BlockWithOptions: %v", err)
	}
	if !c.IsBlocked(ctx, "192.0.2.10") {
		t.Fatal("expected redis-backed block to be live")
	}

	// miniredis time is frozen, so the key is still physically present here.
	clock.Advance(10 * time.Minute)
	if c.IsBlocked(ctx, "192.0.2.10") {
		t.Fatal("expected lazy expiry to hide the stale entry")
	}
	res, err := c.Sweep(ctx)
	if err != nil || res.Blocks != 1 {
		t.Fatalf("expected sweep to delete one block, got %+v %v", res, err)
	}
}
