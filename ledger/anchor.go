package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrAnchorNotFound is returned when no anchor exists for a logId.
	ErrAnchorNotFound = errors.New("anchor not found")
	// ErrAnchorExists is returned when appending a logId that is already anchored.
	ErrAnchorExists = errors.New("anchor already exists")
	// ErrInvalidAnchor is returned when an anchor misses its logId or hash.
	ErrInvalidAnchor = errors.New("invalid anchor")
	// ErrLedgerUnavailable wraps backend failures.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	// ErrLedgerClosed is returned after Close.
	ErrLedgerClosed = errors.New("ledger closed")
)

// GenesisHash is the predecessor hash of the first anchor.
var GenesisHash = strings.Repeat("0", 64)

// Anchor is one append-only ledger record.
type Anchor struct {
	LogID           string    `json:"logId"`
	LogType         string    `json:"logType"`
	DetailsSnapshot string    `json:"detailsSnapshot"`
	Hash            string    `json:"hash"`
	Timestamp       time.Time `json:"timestamp"`
	Detector        string    `json:"detector"`

	// Set by the ledger on append.
	BlockTimestamp time.Time `json:"blockTimestamp"`
	Sequence       uint64    `json:"sequence"`
	PrevHash       string    `json:"prevHash"`
	ChainHash      string    `json:"chainHash"`
}

// Stats summarizes ledger contents.
type Stats struct {
	Anchors    uint64            `json:"anchors"`
	HeadHash   string            `json:"headHash"`
	LastAppend time.Time         `json:"lastAppend"`
	ByType     map[string]uint64 `json:"byType"`
}

// ChainReport is the outcome of VerifyChain.
type ChainReport struct {
	Checked  uint64 `json:"checked"`
	Valid    bool   `json:"valid"`
	BrokenAt uint64 `json:"brokenAt,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Ledger is implemented by append-only anchor stores.
type Ledger interface {
	Append(ctx context.Context, a Anchor) (Anchor, error)
	Get(ctx context.Context, logID string) (Anchor, error)
	// List returns anchors in append order.
	List(ctx context.Context, offset, limit int) ([]Anchor, error)
	Stats(ctx context.Context) (Stats, error)
	VerifyChain(ctx context.Context) (ChainReport, error)
	Close() error
}

// Option customizes a ledger implementation.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the block timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func validate(a Anchor) error {
	if strings.TrimSpace(a.LogID) == "" || strings.TrimSpace(a.Hash) == "" {
		return ErrInvalidAnchor
	}
	return nil
}

// seal fills the ledger-owned fields of a.
func seal(a Anchor, seq uint64, prev string, now time.Time) Anchor {
	a.Sequence = seq
	a.PrevHash = prev
	a.BlockTimestamp = now.UTC()
	a.Timestamp = a.Timestamp.UTC()
	a.ChainHash = ChainHash(a)
	return a
}

// ChainHash computes the chain hash of a sealed anchor.
func ChainHash(a Anchor) string {
	h := sha256.New()
	h.Write([]byte(a.PrevHash))
	h.Write([]byte{'|'})
	h.Write([]byte(a.Hash))
	h.Write([]byte{'|'})
	h.Write([]byte(a.LogID))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatUint(a.Sequence, 10)))
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(a.BlockTimestamp.UnixNano(), 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// chainVerifier checks anchors one at a time in sequence order.
type chainVerifier struct {
	report ChainReport
	prev   string
	next   uint64
}

func newChainVerifier() *chainVerifier {
	return &chainVerifier{report: ChainReport{Valid: true}, prev: GenesisHash, next: 1}
}

func (v *chainVerifier) check(a Anchor) bool {
	if !v.report.Valid {
		return false
	}
	v.report.Checked++
	switch {
	case a.Sequence != v.next:
		v.fail(v.next, "sequence gap")
	case a.PrevHash != v.prev:
		v.fail(a.Sequence, "previous hash mismatch")
	case ChainHash(a) != a.ChainHash:
		v.fail(a.Sequence, "chain hash mismatch")
	default:
		v.prev = a.ChainHash
		v.next++
		return true
	}
	return false
}

func (v *chainVerifier) fail(seq uint64, reason string) {
	v.report.Valid = false
	v.report.BrokenAt = seq
	v.report.Reason = reason
}
