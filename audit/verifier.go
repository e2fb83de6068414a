package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goSentinel/ledger"
)

// VerifyStatus is the outcome of comparing a primary record with its anchor.
type VerifyStatus string

const (
	Verified    VerifyStatus = "VERIFIED"
	Tampered    VerifyStatus = "TAMPERED"
	NotInLedger VerifyStatus = "NOT_IN_LEDGER"
	NotFound    VerifyStatus = "NOT_FOUND"
)

// Verification is the result of VerifyIntegrity.
type Verification struct {
	EventID     string       `json:"eventId"`
	Status      VerifyStatus `json:"status"`
	PrimaryHash string       `json:"primaryHash,omitempty"`
	LedgerHash  string       `json:"ledgerHash,omitempty"`
	AnchoredAt  time.Time    `json:"anchoredAt,omitempty"`
	Sequence    uint64       `json:"sequence,omitempty"`
}

// VerifySummary aggregates a batch verification.
type VerifySummary struct {
	Checked     int      `json:"checked"`
	Verified    int      `json:"verified"`
	Tampered    int      `json:"tampered"`
	NotInLedger int      `json:"notInLedger"`
	TamperedIDs []string `json:"tamperedIds,omitempty"`
}

// VerifyIntegrity recomputes the canonical hash of a stored event and compares it
// with the anchored hash. Store or ledger outages are returned as errors rather
// than reported as a status.
func (p *Pipeline) VerifyIntegrity(ctx context.Context, id string) (Verification, error) {
	v := Verification{EventID: id}

	e, err := p.store.Get(ctx, id)
	if errors.Is(err, ErrEventNotFound) {
		v.Status = NotFound
		return v, nil
	}
	if err != nil {
		return v, err
	}
	v.PrimaryHash = CanonicalHash(e)

	if p.ledger == nil {
		v.Status = NotInLedger
		return v, nil
	}
	a, err := p.ledger.Get(ctx, id)
	if errors.Is(err, ledger.ErrAnchorNotFound) {
		v.Status = NotInLedger
		return v, nil
	}
	if err != nil {
		return v, fmt.Errorf("%w: %v", ledger.ErrLedgerUnavailable, err)
	}

	v.LedgerHash = a.Hash
	v.AnchoredAt = a.BlockTimestamp
	v.Sequence = a.Sequence
	if v.PrimaryHash == a.Hash {
		v.Status = Verified
	} else {
		v.Status = Tampered
		p.logger.Warn("audit record hash mismatch",
			zap.String("event_id", id),
			zap.String("primary_hash", v.PrimaryHash),
			zap.String("ledger_hash", a.Hash),
		)
	}
	return v, nil
}

// VerifyRecent verifies the newest limit events.
func (p *Pipeline) VerifyRecent(ctx context.Context, limit int) (VerifySummary, error) {
	if limit <= 0 {
		limit = 100
	}
	events, err := p.store.List(ctx, Query{Limit: limit})
	if err != nil {
		return VerifySummary{}, err
	}

	var sum VerifySummary
	for _, e := range events {
		v, err := p.VerifyIntegrity(ctx, e.ID)
		if err != nil {
			return sum, err
		}
		sum.Checked++
		switch v.Status {
		case Verified:
			sum.Verified++
		case Tampered:
			sum.Tampered++
			sum.TamperedIDs = append(sum.TamperedIDs, e.ID)
		case NotInLedger:
			sum.NotInLedger++
		}
	}
	return sum, nil
}
