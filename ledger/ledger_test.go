package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

type ledgerFactory struct {
	name string
	open func(t *testing.T, now func() time.Time) (Ledger, func())
}

func ledgerFactories() []ledgerFactory {
	return []ledgerFactory{
		{
			name: "memory",
			open: func(t *testing.T, now func() time.Time) (Ledger, func()) {
				l := NewMemory(WithClock(now))
				return l, func() { _ = l.Close() }
			},
		},
		{
			name: "leveldb",
			open: func(t *testing.T, now func() time.Time) (Ledger, func()) {
				t.Helper()
				l, err := OpenLevelDB(filepath.Join(t.TempDir(), "ledger"), WithClock(now))
				if err != nil {
					t.Fatalf("OpenLevelDB failed: %v", err)
				}
				return l, func() { _ = l.Close() }
			},
		},
	}
}

func fixedClock() func() time.Time {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Millisecond)
	}
}

func sampleAnchor(id string) Anchor {
	return Anchor{
		LogID:           id,
		LogType:         "ip_blocked",
		DetailsSnapshot: `{"sourceIP":"10.0.0.5"}`,
		Hash:            "hash-" + id,
		Timestamp:       time.Date(2026, 3, 1, 8, 59, 0, 0, time.UTC),
		Detector:        "test",
	}
}

func TestLedgerAppendGetAndChain(t *testing.T) {
	for _, f := range ledgerFactories() {
		t.Run(f.name, func(t *testing.T) {
			l, done := f.open(t, fixedClock())
			defer done()
			ctx := context.Background()

			first, err := l.Append(ctx, sampleAnchor("e1"))
			if err != nil {
				t.Fatalf("Append e1 failed: %v", err)
			}
			second, err := l.Append(ctx, sampleAnchor("e2"))
			if err != nil {
				t.Fatalf("Append e2 failed: %v", err)
			}
			if first.Sequence != 1 || second.Sequence != 2 {
				t.Fatalf("unexpected sequences %d, %d", first.Sequence, second.Sequence)
			}
			if first.PrevHash != GenesisHash || second.PrevHash != first.ChainHash {
				t.Fatal("expected anchors to be chained")
			}
			if first.BlockTimestamp.IsZero() {
				t.Fatal("expected block timestamp to be set")
			}

			got, err := l.Get(ctx, "e2")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got.Hash != "hash-e2" || got.ChainHash != second.ChainHash || !got.Timestamp.Equal(second.Timestamp) {
				t.Fatalf("unexpected anchor round-trip: %+v", got)
			}

			if _, err := l.Get(ctx, "missing"); !errors.Is(err, ErrAnchorNotFound) {
				t.Fatalf("expected ErrAnchorNotFound, got %v", err)
			}

			report, err := l.VerifyChain(ctx)
			if err != nil {
				t.Fatalf("VerifyChain failed: %v", err)
			}
			if !report.Valid || report.Checked != 2 {
				t.Fatalf("expected valid chain of 2, got %+v", report)
			}
		})
	}
}

func TestLedgerRejectsDuplicatesAndInvalid(t *testing.T) {
	for _, f := range ledgerFactories() {
		t.Run(f.name, func(t *testing.T) {
			l, done := f.open(t, fixedClock())
			defer done()
			ctx := context.Background()

			if _, err := l.Append(ctx, sampleAnchor("e1")); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
			if _, err := l.Append(ctx, sampleAnchor("e1")); !errors.Is(err, ErrAnchorExists) {
				t.Fatalf("expected ErrAnchorExists, got %v", err)
			}
			if _, err := l.Append(ctx, Anchor{LogID: "x"}); !errors.Is(err, ErrInvalidAnchor) {
				t.Fatalf("expected ErrInvalidAnchor, got %v", err)
			}
		})
	}
}

func TestLedgerListAndStats(t *testing.T) {
	for _, f := range ledgerFactories() {
		t.Run(f.name, func(t *testing.T) {
			l, done := f.open(t, fixedClock())
			defer done()
			ctx := context.Background()

			for _, id := range []string{"a", "b", "c"} {
				if _, err := l.Append(ctx, sampleAnchor(id)); err != nil {
					t.Fatalf("Append %s failed: %v", id, err)
				}
			}
			page, err := l.List(ctx, 1, 1)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(page) != 1 || page[0].LogID != "b" {
				t.Fatalf("unexpected page %+v", page)
			}
			all, err := l.List(ctx, 0, 0)
			if err != nil || len(all) != 3 {
				t.Fatalf("expected 3 anchors, got %d (%v)", len(all), err)
			}

			stats, err := l.Stats(ctx)
			if err != nil {
				t.Fatalf("Stats failed: %v", err)
			}
			if stats.Anchors != 3 || stats.ByType["ip_blocked"] != 3 || stats.HeadHash != all[2].ChainHash {
				t.Fatalf("unexpected stats %+v", stats)
			}
		})
	}
}

func TestMemoryVerifyChainDetectsEdit(t *testing.T) {
	l := NewMemory(WithClock(fixedClock()))
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := l.Append(ctx, sampleAnchor(id)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	l.anchors[1].Hash = "rewritten"

	report, err := l.VerifyChain(ctx)
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if report.Valid || report.BrokenAt != 2 {
		t.Fatalf("expected break at sequence 2, got %+v", report)
	}
}

func TestLevelDBReopenPreservesHeadAndDetectsEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger")
	ctx := context.Background()

	l, err := OpenLevelDB(path, WithClock(fixedClock()))
	if err != nil {
		t.Fatalf("OpenLevelDB failed: %v", err)
	}
	for _, id := range []string{"a", "b"} {
		if _, err := l.Append(ctx, sampleAnchor(id)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	l, err = OpenLevelDB(path, WithClock(fixedClock()))
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer l.Close()

	third, err := l.Append(ctx, sampleAnchor("c"))
	if err != nil {
		t.Fatalf("Append after reopen failed: %v", err)
	}
	if third.Sequence != 3 {
		t.Fatalf("expected sequence 3 after reopen, got %d", third.Sequence)
	}

	edited, err := l.Get(ctx, "b")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	edited.Hash = "rewritten"
	raw, err := json.Marshal(edited)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err := l.db.Put(seqKey(2), raw, nil); err != nil {
		t.Fatalf("direct put failed: %v", err)
	}

	report, err := l.VerifyChain(ctx)
	if err != nil {
		t.Fatalf("VerifyChain failed: %v", err)
	}
	if report.Valid || report.BrokenAt != 2 {
		t.Fatalf("expected break at sequence 2, got %+v", report)
	}
}

func TestClosedLedger(t *testing.T) {
	l, err := OpenMemLevelDB()
	if err != nil {
		t.Fatalf("OpenMemLevelDB failed: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := l.Append(context.Background(), sampleAnchor("a")); !errors.Is(err, ErrLedgerClosed) {
		t.Fatalf("expected ErrLedgerClosed, got %v", err)
	}
}
