package goSentinel

import (
	"context"

	"github.com/MrEthical07/goSentinel/threat"
)

// IsBlocked reports whether ip is currently blocked. Expired entries never block.
func (e *Engine) IsBlocked(ctx context.Context, ip string) bool {
	return e.threats.IsBlocked(ctx, ip)
}

// Block blocks ip for the operator block duration and records ip_blocked. Blocking
// a blocked IP refreshes its expiry.
func (e *Engine) Block(ctx context.Context, ip, reason, blockedBy string) (threat.Entry, error) {
	return e.BlockWithOptions(ctx, threat.BlockRequest{IP: ip, Reason: reason, BlockedBy: blockedBy})
}

// BlockWithOptions blocks with an explicit duration and metadata.
func (e *Engine) BlockWithOptions(ctx context.Context, req threat.BlockRequest) (threat.Entry, error) {
	entry, err := e.threats.BlockWithOptions(ctx, req)
	if entry.IP != "" {
		e.metrics.Inc(MetricManualBlock)
	}
	return entry, err
}

// Unblock removes a live block and records ip_unblocked. It reports false, without
// an event, when ip was not blocked.
func (e *Engine) Unblock(ctx context.Context, ip, reason, unblockedBy string) (bool, error) {
	removed, err := e.threats.Unblock(ctx, ip, reason, unblockedBy)
	if removed {
		e.metrics.Inc(MetricUnblock)
	}
	return removed, err
}

// LookupBlock returns the live block entry for ip.
func (e *Engine) LookupBlock(ctx context.Context, ip string) (threat.Entry, bool, error) {
	return e.threats.Lookup(ctx, ip)
}

// ListBlocked returns live blocks, newest first.
func (e *Engine) ListBlocked(ctx context.Context) ([]threat.Entry, error) {
	return e.threats.ListBlocked(ctx)
}

// ThreatStats returns blocked, suspicious and attempt counts.
func (e *Engine) ThreatStats(ctx context.Context) (threat.Stats, error) {
	return e.threats.Stats(ctx)
}

// FlagIP adds ip to the suspicious set without blocking it.
func (e *Engine) FlagIP(ip, reason string) (threat.Suspect, error) {
	s, err := e.threats.Flag(ip, reason)
	if err == nil {
		e.metrics.Inc(MetricSuspiciousFlagged)
	}
	return s, err
}

// IsSuspicious reports whether ip is in the suspicious set.
func (e *Engine) IsSuspicious(ip string) bool {
	return e.threats.IsSuspicious(ip)
}

// ListSuspicious returns the live suspicious set.
func (e *Engine) ListSuspicious() []threat.Suspect {
	return e.threats.ListSuspicious()
}

// UnflagIP removes ip from the suspicious set.
func (e *Engine) UnflagIP(ip string) bool {
	return e.threats.Unflag(ip)
}

// ClearSuspicious empties the suspicious set and returns how many were removed.
func (e *Engine) ClearSuspicious() int {
	return e.threats.ClearSuspicious()
}

// ClearAttempts forgets every tracked attempt window.
func (e *Engine) ClearAttempts() {
	e.threats.ClearAttempts()
}

// Policy returns a copy of the active trigger policy.
func (e *Engine) Policy() threat.Policy {
	return e.threats.Policy()
}

// SetPolicy validates and installs p. In-flight checks finish under the previous
// policy.
func (e *Engine) SetPolicy(p threat.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.threats.SetPolicy(p)
	return nil
}

// ReloadPolicy parses a YAML trigger mapping layered over the defaults and
// installs it.
func (e *Engine) ReloadPolicy(data []byte) (threat.Policy, error) {
	p, err := threat.ParsePolicy(data)
	if err != nil {
		return nil, err
	}
	e.threats.SetPolicy(p)
	return p.Clone(), nil
}
