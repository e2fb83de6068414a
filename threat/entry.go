package threat

import (
	"context"
	"errors"
	"maps"
	"net"
	"strings"
	"time"

	"github.com/MrEthical07/goSentinel/detector"
)

var (
	// ErrInvalidIP is returned for addresses that do not parse.
	ErrInvalidIP = errors.New("invalid ip address")
	// ErrMissingReason is returned when a block or unblock omits its reason.
	ErrMissingReason = errors.New("reason is required")
	// ErrNotBlocked is returned by stores when no entry exists for an IP.
	ErrNotBlocked = errors.New("ip not blocked")
	// ErrBlockStoreUnavailable wraps store backend failures.
	ErrBlockStoreUnavailable = errors.New("block store unavailable")
	// ErrInvalidPolicy is returned for unknown triggers or actions.
	ErrInvalidPolicy = errors.New("invalid threat policy")
)

// SystemActor is recorded as BlockedBy for automatic blocks.
const SystemActor = "system"

// Entry is one persisted block.
type Entry struct {
	IP        string            `json:"ip"`
	Reason    string            `json:"reason"`
	BlockedAt time.Time         `json:"blockedAt"`
	ExpiresAt time.Time         `json:"expiresAt"`
	BlockedBy string            `json:"blockedBy"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Live reports whether the entry still blocks at now.
func (e Entry) Live(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

func (e Entry) clone() Entry {
	e.Metadata = maps.Clone(e.Metadata)
	return e
}

// Store persists block entries keyed by IP. Get returns ErrNotBlocked for unknown
// IPs; expired entries may still be returned until DeleteExpired removes them.
type Store interface {
	Upsert(ctx context.Context, e Entry) error
	Get(ctx context.Context, ip string) (Entry, error)
	// Delete reports whether an entry existed.
	Delete(ctx context.Context, ip string) (bool, error)
	List(ctx context.Context) ([]Entry, error)
	// DeleteExpired removes entries with ExpiresAt at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// ParseIP normalizes and validates an address.
func ParseIP(raw string) (string, error) {
	ip := detector.NormalizeIP(raw)
	if ip == "" || net.ParseIP(ip) == nil {
		return "", ErrInvalidIP
	}
	return strings.ToLower(ip), nil
}
