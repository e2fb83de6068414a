package audit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSentinel/ledger"
)

type failingLedger struct {
	*ledger.Memory
}

func (failingLedger) Append(context.Context, ledger.Anchor) (ledger.Anchor, error) {
	return ledger.Anchor{}, ledger.ErrLedgerUnavailable
}

type brokenStore struct {
	*MemoryStore
}

func (brokenStore) Insert(context.Context, Event) error {
	return fmt.Errorf("%w: disk full", ErrAuditStoreUnavailable)
}

func stepClock(start time.Time) func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return start.Add(time.Duration(n.Add(1)) * time.Millisecond)
	}
}

func newTestPipeline(t *testing.T, store Store, l ledger.Ledger) (*Pipeline, func()) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BufferSize = 64
	p, err := NewPipeline(cfg, store, l, WithClock(stepClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))))
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p, p.Close
}

func flush(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestSeverityDerivation(t *testing.T) {
	cases := []struct {
		action Action
		status Status
		want   Severity
	}{
		{ActionLogin, StatusSuccess, SeverityLow},
		{ActionLogin, StatusFailure, SeverityMedium},
		{ActionSecurityEvent, StatusDetected, SeverityHigh},
		{ActionSecurityEvent, StatusSuccess, SeverityMedium},
		{ActionSQLInjection, StatusDetected, SeverityCritical},
		{ActionIPBlocked, StatusSuccess, SeverityHigh},
		{ActionIPUnblocked, StatusSuccess, SeverityLow},
		{ActionAccountLocked, StatusSuccess, SeverityMedium},
	}
	for _, tc := range cases {
		if got := SeverityOf(tc.action, tc.status); got != tc.want {
			t.Fatalf("SeverityOf(%s,%s)=%s want %s", tc.action, tc.status, got, tc.want)
		}
	}
}

func TestCanonicalHashCoversOnlyCoreFields(t *testing.T) {
	e := Event{
		ID:        "e1",
		Action:    ActionLogin,
		Status:    StatusFailure,
		SourceIP:  "10.0.0.5",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC),
		Details:   map[string]string{"username": "alice"},
	}
	base := CanonicalHash(e)
	if len(base) != 64 {
		t.Fatalf("expected hex sha256, got %q", base)
	}

	withDetails := e
	withDetails.Details = map[string]string{"username": "mallory", DetailTriageStatus: "resolved"}
	withDetails.ActorID = "someone-else"
	withDetails.UserAgent = "curl"
	if CanonicalHash(withDetails) != base {
		t.Fatal("details, actor and user agent must not affect the hash")
	}

	local := e
	local.Timestamp = e.Timestamp.In(time.FixedZone("X", 3*3600))
	if CanonicalHash(local) != base {
		t.Fatal("hash must not depend on timestamp location")
	}

	for name, mutate := range map[string]func(*Event){
		"source ip": func(e *Event) { e.SourceIP = "10.0.0.6" },
		"action":    func(e *Event) { e.Action = ActionLogout },
		"status":    func(e *Event) { e.Status = StatusSuccess },
		"timestamp": func(e *Event) { e.Timestamp = e.Timestamp.Add(time.Nanosecond) },
	} {
		changed := e
		mutate(&changed)
		if CanonicalHash(changed) == base {
			t.Fatalf("changing %s must change the hash", name)
		}
	}
}

func TestActionFor(t *testing.T) {
	if a, ok := ActionFor("sql_injection_attempt"); !ok || a != ActionSQLInjection {
		t.Fatalf("unexpected mapping %s %v", a, ok)
	}
	if a, ok := ActionFor("brute_force_attack"); !ok || a != ActionBruteForceDetected {
		t.Fatalf("unexpected mapping %s %v", a, ok)
	}
	if a, ok := ActionFor("ldap_injection_attempt"); ok || a != ActionSecurityEvent {
		t.Fatalf("unexpected mapping %s %v", a, ok)
	}
}

func TestRecordAndVerifyRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	p, done := newTestPipeline(t, store, ledger.NewMemory())
	defer done()
	ctx := context.Background()

	id, err := p.RecordEvent(ctx, "alice", ActionLogin, StatusFailure, Meta{
		SourceIP: "10.0.0.5",
		Details:  map[string]string{"username": "alice"},
	})
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	flush(t, p)

	v, err := p.VerifyIntegrity(ctx, id)
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if v.Status != Verified || v.PrimaryHash != v.LedgerHash {
		t.Fatalf("expected VERIFIED, got %+v", v)
	}

	if err := p.UpdateTriage(ctx, id, TriageResolved, "ops"); err != nil {
		t.Fatalf("UpdateTriage: %v", err)
	}
	got, _ := p.Get(ctx, id)
	if got.Details[DetailTriageStatus] != "resolved" || got.Details["username"] != "alice" {
		t.Fatalf("unexpected details %+v", got.Details)
	}
	if v, _ := p.VerifyIntegrity(ctx, id); v.Status != Verified {
		t.Fatalf("triage must not break verification, got %s", v.Status)
	}

	store.Mutate(id, func(e *Event) { e.Status = StatusSuccess })
	v, err = p.VerifyIntegrity(ctx, id)
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if v.Status != Tampered || v.PrimaryHash == v.LedgerHash {
		t.Fatalf("expected TAMPERED, got %+v", v)
	}
}

func TestVerifyMissingEventAndMissingAnchor(t *testing.T) {
	p, done := newTestPipeline(t, NewMemoryStore(), failingLedger{ledger.NewMemory()})
	defer done()
	ctx := context.Background()

	v, err := p.VerifyIntegrity(ctx, "nope")
	if err != nil || v.Status != NotFound {
		t.Fatalf("expected NOT_FOUND, got %+v %v", v, err)
	}

	id, err := p.RecordEvent(ctx, "", ActionIPBlocked, StatusSuccess, Meta{SourceIP: "1.2.3.4"})
	if err != nil {
		t.Fatalf("ledger failure must not fail RecordEvent: %v", err)
	}
	flush(t, p)
	if p.AnchorStats().Failed != 1 {
		t.Fatalf("expected one failed anchor, got %+v", p.AnchorStats())
	}
	v, err = p.VerifyIntegrity(ctx, id)
	if err != nil || v.Status != NotInLedger {
		t.Fatalf("expected NOT_IN_LEDGER, got %+v %v", v, err)
	}
}

func TestAnchoringDisabledReportsNotInLedger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Anchoring = false
	p, err := NewPipeline(cfg, NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	defer p.Close()

	id, err := p.RecordEvent(context.Background(), "", ActionLogout, StatusSuccess, Meta{SourceIP: "1.1.1.1"})
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if v, _ := p.VerifyIntegrity(context.Background(), id); v.Status != NotInLedger {
		t.Fatalf("expected NOT_IN_LEDGER, got %s", v.Status)
	}
}

func TestPrimaryStoreFailurePropagates(t *testing.T) {
	l := ledger.NewMemory()
	p, done := newTestPipeline(t, brokenStore{NewMemoryStore()}, l)
	defer done()

	_, err := p.RecordEvent(context.Background(), "alice", ActionLogin, StatusSuccess, Meta{SourceIP: "1.1.1.1"})
	if !errors.Is(err, ErrAuditStoreUnavailable) {
		t.Fatalf("expected store error, got %v", err)
	}
	flush(t, p)
	if st, _ := l.Stats(context.Background()); st.Anchors != 0 {
		t.Fatalf("nothing must be anchored when the primary write fails, got %d", st.Anchors)
	}
}

func TestRecordValidationAndClose(t *testing.T) {
	p, done := newTestPipeline(t, NewMemoryStore(), ledger.NewMemory())
	ctx := context.Background()

	if _, err := p.RecordEvent(ctx, "", Action("bogus"), StatusSuccess, Meta{}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if _, err := p.RecordEvent(ctx, "", ActionLogin, Status("maybe"), Meta{}); !errors.Is(err, ErrInvalidEvent) {
		t.Fatalf("expected ErrInvalidEvent, got %v", err)
	}
	if err := p.UpdateTriage(ctx, "x", TriageStatus("ignored"), "ops"); !errors.Is(err, ErrInvalidTriage) {
		t.Fatalf("expected ErrInvalidTriage, got %v", err)
	}
	if err := p.UpdateTriage(ctx, "x", TriageEscalated, "ops"); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}

	id, err := p.Record(ctx, "", "ldap_injection_attempt", StatusDetected, Meta{SourceIP: "9.9.9.9"})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	e, _ := p.Get(ctx, id)
	if e.Action != ActionSecurityEvent || e.Details[DetailEventType] != "ldap_injection_attempt" {
		t.Fatalf("unexpected folded event %+v", e)
	}

	done()
	done()
	if _, err := p.RecordEvent(ctx, "", ActionLogin, StatusSuccess, Meta{}); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
}

func TestVerifyRecentSummary(t *testing.T) {
	store := NewMemoryStore()
	p, done := newTestPipeline(t, store, ledger.NewMemory())
	defer done()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := p.RecordEvent(ctx, "", ActionSuspiciousActivity, StatusDetected, Meta{SourceIP: fmt.Sprintf("10.0.0.%d", i)})
		if err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
		ids = append(ids, id)
	}
	flush(t, p)
	store.Mutate(ids[2], func(e *Event) { e.SourceIP = "127.0.0.1" })

	sum, err := p.VerifyRecent(ctx, 10)
	if err != nil {
		t.Fatalf("VerifyRecent: %v", err)
	}
	if sum.Checked != 4 || sum.Verified != 3 || sum.Tampered != 1 || sum.TamperedIDs[0] != ids[2] {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestMemoryStoreListFiltersAndOrders(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, a := range []Action{ActionLogin, ActionLogout, ActionLogin, ActionIPBlocked} {
		err := s.Insert(ctx, Event{
			ID:        fmt.Sprintf("e%d", i),
			ActorID:   "alice",
			Action:    a,
			Status:    StatusSuccess,
			SourceIP:  "10.0.0.1",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := s.Insert(ctx, Event{ID: "e0", Action: ActionLogin, Status: StatusSuccess, Timestamp: base}); !errors.Is(err, ErrEventExists) {
		t.Fatalf("expected ErrEventExists, got %v", err)
	}

	logins, _ := s.List(ctx, Query{Action: ActionLogin})
	if len(logins) != 2 || logins[0].ID != "e2" || logins[1].ID != "e0" {
		t.Fatalf("unexpected login listing %+v", logins)
	}
	paged, _ := s.List(ctx, Query{Offset: 1, Limit: 2})
	if len(paged) != 2 || paged[0].ID != "e2" || paged[1].ID != "e1" {
		t.Fatalf("unexpected page %+v", paged)
	}
	windowed, _ := s.List(ctx, Query{Since: base.Add(time.Minute), Until: base.Add(3 * time.Minute)})
	if len(windowed) != 2 {
		t.Fatalf("expected 2 events in window, got %d", len(windowed))
	}
}

func TestSQLiteStoreRoundTripAndTamper(t *testing.T) {
	ctx := context.Background()
	store, err := OpenSQLite(ctx, SQLiteConfig{DSN: "file:" + filepath.Join(t.TempDir(), "audit.db")})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer store.Close()

	p, done := newTestPipeline(t, store, ledger.NewMemory())
	defer done()

	id, err := p.RecordEvent(ctx, "", ActionSQLInjection, StatusDetected, Meta{
		SourceIP:  "203.0.113.7",
		UserAgent: "sqlmap/1.7",
		Details:   map[string]string{"path": "/api/login"},
	})
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	flush(t, p)

	e, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.SourceIP != "203.0.113.7" || e.UserAgent != "sqlmap/1.7" || e.Details["path"] != "/api/login" {
		t.Fatalf("event did not round-trip: %+v", e)
	}
	if v, _ := p.VerifyIntegrity(ctx, id); v.Status != Verified {
		t.Fatalf("expected VERIFIED after sqlite round trip, got %+v", v)
	}

	if err := p.UpdateTriage(ctx, id, TriageInvestigating, "ops"); err != nil {
		t.Fatalf("UpdateTriage: %v", err)
	}
	if v, _ := p.VerifyIntegrity(ctx, id); v.Status != Verified {
		t.Fatalf("triage must not break verification, got %s", v.Status)
	}

	if _, err := store.DB().ExecContext(ctx, `UPDATE security_events SET source_ip = '127.0.0.1' WHERE id = ?`, id); err != nil {
		t.Fatalf("tamper update: %v", err)
	}
	if v, _ := p.VerifyIntegrity(ctx, id); v.Status != Tampered {
		t.Fatalf("expected TAMPERED, got %+v", v)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
	if err := store.Insert(ctx, e); !errors.Is(err, ErrEventExists) {
		t.Fatalf("expected ErrEventExists, got %v", err)
	}

	listed, err := store.List(ctx, Query{Action: ActionSQLInjection, Limit: 5})
	if err != nil || len(listed) != 1 || listed[0].ID != id {
		t.Fatalf("unexpected listing %+v %v", listed, err)
	}
}
