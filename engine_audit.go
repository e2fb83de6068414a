package goSentinel

import (
	"context"

	"github.com/MrEthical07/goSentinel/audit"
	"github.com/MrEthical07/goSentinel/ledger"
)

// meteredRecorder counts pipeline writes for the engine metrics. Every component
// records through it so the counters cover events the engine did not originate.
type meteredRecorder struct {
	next    audit.Recorder
	metrics *Metrics
}

func (r meteredRecorder) RecordEvent(ctx context.Context, actorID string, action audit.Action, status audit.Status, meta audit.Meta) (string, error) {
	id, err := r.next.RecordEvent(ctx, actorID, action, status, meta)
	r.count(err)
	return id, err
}

func (r meteredRecorder) Record(ctx context.Context, actorID, name string, status audit.Status, meta audit.Meta) (string, error) {
	id, err := r.next.Record(ctx, actorID, name, status, meta)
	r.count(err)
	return id, err
}

func (r meteredRecorder) count(err error) {
	if err != nil {
		r.metrics.Inc(MetricEventRecordFailed)
		return
	}
	r.metrics.Inc(MetricEventRecorded)
}

// RecordEvent appends an event to the audit trail and schedules its anchor. Request
// context attached with WithClient fills empty meta fields.
func (e *Engine) RecordEvent(ctx context.Context, actorID string, action audit.Action, status audit.Status, meta audit.Meta) (string, error) {
	return e.recorder.RecordEvent(ctx, actorID, action, status, metaFromContext(ctx, meta))
}

// Record appends an event by name, folding names outside the action set into
// security_event.
func (e *Engine) Record(ctx context.Context, actorID, name string, status audit.Status, meta audit.Meta) (string, error) {
	return e.recorder.Record(ctx, actorID, name, status, metaFromContext(ctx, meta))
}

// GetEvent returns one recorded event.
func (e *Engine) GetEvent(ctx context.Context, id string) (audit.Event, error) {
	return e.audit.Get(ctx, id)
}

// ListEvents returns events matching q, newest first.
func (e *Engine) ListEvents(ctx context.Context, q audit.Query) ([]audit.Event, error) {
	return e.audit.List(ctx, q)
}

// TriageEvent sets the review state of an event. The anchored hash does not cover
// triage details, so triage never makes a record look tampered.
func (e *Engine) TriageEvent(ctx context.Context, id string, status audit.TriageStatus, by string) error {
	return e.audit.UpdateTriage(ctx, id, status, by)
}

// VerifyIntegrity compares a stored event with its ledger anchor.
func (e *Engine) VerifyIntegrity(ctx context.Context, id string) (audit.Verification, error) {
	v, err := e.audit.VerifyIntegrity(ctx, id)
	if err != nil {
		return v, err
	}
	switch v.Status {
	case audit.Verified:
		e.metrics.Inc(MetricVerifyVerified)
	case audit.Tampered:
		e.metrics.Inc(MetricVerifyTampered)
	case audit.NotInLedger:
		e.metrics.Inc(MetricVerifyNotInLedger)
	}
	return v, nil
}

// VerifyRecent verifies the newest limit events.
func (e *Engine) VerifyRecent(ctx context.Context, limit int) (audit.VerifySummary, error) {
	sum, err := e.audit.VerifyRecent(ctx, limit)
	e.metrics.Add(MetricVerifyVerified, uint64(sum.Verified))
	e.metrics.Add(MetricVerifyTampered, uint64(sum.Tampered))
	e.metrics.Add(MetricVerifyNotInLedger, uint64(sum.NotInLedger))
	return sum, err
}

// FlushAnchors waits until every queued anchor has been attempted or ctx ends.
func (e *Engine) FlushAnchors(ctx context.Context) error {
	return e.audit.Flush(ctx)
}

// LedgerStats summarizes the anchor ledger.
func (e *Engine) LedgerStats(ctx context.Context) (ledger.Stats, error) {
	if e.ledger == nil {
		return ledger.Stats{}, ErrLedgerUnavailable
	}
	return e.ledger.Stats(ctx)
}

// VerifyLedger walks the anchor chain and reports the first broken link.
func (e *Engine) VerifyLedger(ctx context.Context) (ledger.ChainReport, error) {
	if e.ledger == nil {
		return ledger.ChainReport{}, ErrLedgerUnavailable
	}
	return e.ledger.VerifyChain(ctx)
}

// LedgerAnchors returns anchors in append order.
func (e *Engine) LedgerAnchors(ctx context.Context, offset, limit int) ([]ledger.Anchor, error) {
	if e.ledger == nil {
		return nil, ErrLedgerUnavailable
	}
	return e.ledger.List(ctx, offset, limit)
}

// LookupAnchor returns the anchor recorded for an event.
func (e *Engine) LookupAnchor(ctx context.Context, eventID string) (ledger.Anchor, error) {
	if e.ledger == nil {
		return ledger.Anchor{}, ErrLedgerUnavailable
	}
	return e.ledger.Get(ctx, eventID)
}
