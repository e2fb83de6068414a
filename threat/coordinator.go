package threat

import (
	"context"
	"errors"
	"maps"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goSentinel/audit"
	"github.com/MrEthical07/goSentinel/detector"
	"github.com/MrEthical07/goSentinel/internal/window"
)

// Config controls block lifetimes.
type Config struct {
	// BlockDuration applies to operator blocks.
	BlockDuration time.Duration `yaml:"block_duration"`
	// AutoBlockDuration applies to blocks issued by policy.
	AutoBlockDuration time.Duration `yaml:"auto_block_duration"`
	// SuspiciousTTL bounds how long a flagged IP stays in the suspicious set.
	SuspiciousTTL time.Duration `yaml:"suspicious_ttl"`
}

// DefaultConfig returns 30-day operator blocks, 1-hour automatic blocks and a
// 24-hour suspicious TTL.
func DefaultConfig() Config {
	return Config{
		BlockDuration:     30 * 24 * time.Hour,
		AutoBlockDuration: time.Hour,
		SuspiciousTTL:     24 * time.Hour,
	}
}

// BlockRequest describes one block. Zero Duration uses Config.BlockDuration.
type BlockRequest struct {
	IP        string
	Reason    string
	BlockedBy string
	Duration  time.Duration
	Metadata  map[string]string
}

// Stats summarizes threat state.
type Stats struct {
	BlockedCount    int `json:"blockedCount"`
	SuspiciousCount int `json:"suspiciousCount"`
	TotalAttempts   int `json:"totalAttempts"`
	ActiveThreats   int `json:"activeThreats"`
}

// Outcome is the policy decision applied for one trigger.
type Outcome struct {
	Trigger string
	Action  Action
	Blocked bool
	Entry   Entry
	EventID string
}

// SweepResult counts records removed by Sweep.
type SweepResult struct {
	Blocks      int
	Suspects    int
	AttemptKeys int
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the coordinator logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithPolicy replaces DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.SetPolicy(p)
		}
	}
}

// Coordinator applies threat policy over a block store, the suspicious set and an
// attempt tracker.
type Coordinator struct {
	cfg        Config
	store      Store
	tracker    *window.Tracker
	recorder   audit.Recorder
	suspects   *suspectSet
	policy     atomic.Pointer[Policy]
	logger     *zap.Logger
	now        func() time.Time
	storeFails atomic.Uint64
}

// NewCoordinator wires a Coordinator. A nil recorder discards events; a nil tracker
// gets a default one.
func NewCoordinator(cfg Config, store Store, tracker *window.Tracker, recorder audit.Recorder, opts ...Option) *Coordinator {
	def := DefaultConfig()
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = def.BlockDuration
	}
	if cfg.AutoBlockDuration <= 0 {
		cfg.AutoBlockDuration = def.AutoBlockDuration
	}
	if cfg.SuspiciousTTL <= 0 {
		cfg.SuspiciousTTL = def.SuspiciousTTL
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if recorder == nil {
		recorder = audit.Discard{}
	}

	c := &Coordinator{
		cfg:      cfg,
		store:    store,
		recorder: recorder,
		suspects: newSuspectSet(),
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	p := DefaultPolicy()
	c.policy.Store(&p)
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if tracker == nil {
		tracker = window.New(window.DefaultConfig(), c.now)
	}
	c.tracker = tracker
	return c
}

// Policy returns a copy of the active policy.
func (c *Coordinator) Policy() Policy {
	return (*c.policy.Load()).Clone()
}

// SetPolicy atomically replaces the active policy.
func (c *Coordinator) SetPolicy(p Policy) {
	cp := p.Clone()
	c.policy.Store(&cp)
}

// StoreFailures counts block-store reads that failed open.
func (c *Coordinator) StoreFailures() uint64 {
	return c.storeFails.Load()
}

// IsBlocked reports whether ip has a live block. Store failures fail open and are
// logged and counted.
func (c *Coordinator) IsBlocked(ctx context.Context, ip string) bool {
	ip, err := ParseIP(ip)
	if err != nil {
		return false
	}
	e, err := c.store.Get(ctx, ip)
	if err != nil {
		if !errors.Is(err, ErrNotBlocked) {
			c.storeFails.Add(1)
			c.logger.Warn("block lookup failed", zap.String("ip", ip), zap.Error(err))
		}
		return false
	}
	return e.Live(c.now())
}

// Lookup returns the live entry for ip, if any.
func (c *Coordinator) Lookup(ctx context.Context, ip string) (Entry, bool, error) {
	ip, err := ParseIP(ip)
	if err != nil {
		return Entry{}, false, err
	}
	e, err := c.store.Get(ctx, ip)
	if errors.Is(err, ErrNotBlocked) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	if !e.Live(c.now()) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Block blocks ip for Config.BlockDuration.
func (c *Coordinator) Block(ctx context.Context, ip, reason, blockedBy string) (Entry, error) {
	return c.BlockWithOptions(ctx, BlockRequest{IP: ip, Reason: reason, BlockedBy: blockedBy})
}

// BlockWithOptions creates or refreshes a block and records an ip_blocked event.
// Re-blocking a live entry keeps its BlockedAt and moves ExpiresAt. The entry is
// persisted even when recording the event fails; that error is still returned.
func (c *Coordinator) BlockWithOptions(ctx context.Context, req BlockRequest) (Entry, error) {
	ip, err := ParseIP(req.IP)
	if err != nil {
		return Entry{}, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return Entry{}, ErrMissingReason
	}
	by := strings.TrimSpace(req.BlockedBy)
	if by == "" {
		by = SystemActor
	}
	d := req.Duration
	if d <= 0 {
		d = c.cfg.BlockDuration
	}

	now := c.now()
	e := Entry{
		IP:        ip,
		Reason:    reason,
		BlockedAt: now.UTC(),
		ExpiresAt: now.Add(d).UTC(),
		BlockedBy: by,
		Metadata:  req.Metadata,
	}
	if prev, err := c.store.Get(ctx, ip); err == nil && prev.Live(now) {
		e.BlockedAt = prev.BlockedAt
	}
	if err := c.store.Upsert(ctx, e); err != nil {
		return Entry{}, err
	}
	c.logger.Info("ip blocked",
		zap.String("ip", ip),
		zap.String("reason", reason),
		zap.String("blocked_by", by),
		zap.Time("expires_at", e.ExpiresAt),
	)

	actor := ""
	if by != SystemActor {
		actor = by
	}
	_, err = c.recorder.RecordEvent(ctx, actor, audit.ActionIPBlocked, audit.StatusSuccess, audit.Meta{
		SourceIP: ip,
		Details: map[string]string{
			"reason":    reason,
			"blockedBy": by,
			"expiresAt": e.ExpiresAt.Format(time.RFC3339),
			"duration":  d.String(),
		},
	})
	return e, err
}

// Unblock removes a block and records an ip_unblocked event. Unblocking an IP that
// is not blocked, including one whose block has lapsed but not been swept, is a
// no-op that reports false and records nothing. A lapsed entry is still removed.
func (c *Coordinator) Unblock(ctx context.Context, ip, reason, unblockedBy string) (bool, error) {
	ip, err := ParseIP(ip)
	if err != nil {
		return false, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return false, ErrMissingReason
	}
	e, err := c.store.Get(ctx, ip)
	if errors.Is(err, ErrNotBlocked) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	existed, err := c.store.Delete(ctx, ip)
	if err != nil || !existed {
		return false, err
	}
	if !e.Live(c.now()) {
		return false, nil
	}

	c.logger.Info("ip unblocked", zap.String("ip", ip), zap.String("reason", reason))
	_, err = c.recorder.RecordEvent(ctx, unblockedBy, audit.ActionIPUnblocked, audit.StatusSuccess, audit.Meta{
		SourceIP: ip,
		Details:  map[string]string{"reason": reason, "unblockedBy": unblockedBy},
	})
	return true, err
}

// ListBlocked returns live entries, newest first.
func (c *Coordinator) ListBlocked(ctx context.Context) ([]Entry, error) {
	all, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	now := c.now()
	out := make([]Entry, 0, len(all))
	for _, e := range all {
		if e.Live(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockedAt.Equal(out[j].BlockedAt) {
			return out[i].IP < out[j].IP
		}
		return out[i].BlockedAt.After(out[j].BlockedAt)
	})
	return out, nil
}

// Stats counts live blocks, live suspects and in-window attempts.
func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	blocked, err := c.ListBlocked(ctx)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{
		BlockedCount:    len(blocked),
		SuspiciousCount: c.suspects.count(c.now()),
		TotalAttempts:   c.tracker.TotalAttempts(),
	}
	s.ActiveThreats = s.BlockedCount + s.SuspiciousCount
	return s, nil
}

// Flag adds ip to the suspicious set.
func (c *Coordinator) Flag(ip, reason string) (Suspect, error) {
	ip, err := ParseIP(ip)
	if err != nil {
		return Suspect{}, err
	}
	return c.suspects.add(ip, reason, c.now(), c.cfg.SuspiciousTTL), nil
}

// IsSuspicious reports whether ip is currently flagged.
func (c *Coordinator) IsSuspicious(ip string) bool {
	ip, err := ParseIP(ip)
	if err != nil {
		return false
	}
	return c.suspects.contains(ip, c.now())
}

// ListSuspicious returns live suspects, most recently seen first.
func (c *Coordinator) ListSuspicious() []Suspect {
	return c.suspects.list(c.now())
}

// Unflag removes ip from the suspicious set.
func (c *Coordinator) Unflag(ip string) bool {
	ip, err := ParseIP(ip)
	if err != nil {
		return false
	}
	return c.suspects.remove(ip)
}

// ClearSuspicious empties the suspicious set and returns how many entries it held.
func (c *Coordinator) ClearSuspicious() int {
	return c.suspects.clear()
}

// ClearAttempts forgets every attempt window.
func (c *Coordinator) ClearAttempts() {
	c.tracker.Clear()
}

// ResetAttempts forgets the attempt window for one (ip, identity) pair.
func (c *Coordinator) ResetAttempts(ip, identity string) {
	if ip, err := ParseIP(ip); err == nil {
		c.tracker.Reset(ip, identity)
	}
}

// RecordAttempt logs a failed attempt by identity from ip and applies the
// brute-force or suspicious-login policy when a threshold is crossed.
func (c *Coordinator) RecordAttempt(ctx context.Context, ip, identity string, meta audit.Meta) (window.Result, Outcome, error) {
	ip, err := ParseIP(ip)
	if err != nil {
		return window.Result{}, Outcome{}, err
	}
	res := c.tracker.RecordAttempt(ip, identity)

	var (
		trigger string
		name    string
		reason  string
	)
	switch {
	case res.BruteForce:
		trigger, name, reason = TriggerBruteForce, string(audit.ActionBruteForceDetected), "brute_force_attack"
	case res.Suspicious:
		trigger, name, reason = TriggerSuspicious, string(audit.ActionSuspiciousActivity), "suspicious_login_activity"
	default:
		return res, Outcome{}, nil
	}

	details := map[string]string{
		"target":       identity,
		"attemptCount": strconv.Itoa(res.Count),
		"recentCount":  strconv.Itoa(res.RecentCount),
	}
	for k, v := range meta.Details {
		details[k] = v
	}
	meta.SourceIP = ip
	meta.Details = details

	out, err := c.apply(ctx, ip, trigger, name, reason, meta)
	return res, out, err
}

// HandleDetection records a detector match from ip and applies the category
// policy. The category must not be CategoryNone.
func (c *Coordinator) HandleDetection(ctx context.Context, ip string, cat detector.Category, meta audit.Meta) (Outcome, error) {
	ip, err := ParseIP(ip)
	if err != nil {
		return Outcome{}, err
	}
	if !cat.Valid() {
		return Outcome{}, ErrInvalidPolicy
	}
	meta.SourceIP = ip
	return c.apply(ctx, ip, string(cat), cat.EventName(), cat.EventName(), meta)
}

func (c *Coordinator) apply(ctx context.Context, ip, trigger, eventName, reason string, meta audit.Meta) (Outcome, error) {
	action := (*c.policy.Load()).Decide(trigger)
	out := Outcome{Trigger: trigger, Action: action}

	meta.Details = maps.Clone(meta.Details)
	if meta.Details == nil {
		meta.Details = make(map[string]string, 1)
	}
	meta.Details["policyAction"] = string(action)

	var errs []error
	id, err := c.recorder.Record(ctx, "", eventName, audit.StatusDetected, meta)
	out.EventID = id
	if err != nil {
		errs = append(errs, err)
	}

	switch action {
	case ActionFlag:
		c.suspects.add(ip, reason, c.now(), c.cfg.SuspiciousTTL)
	case ActionBlock:
		c.suspects.add(ip, reason, c.now(), c.cfg.SuspiciousTTL)
		e, err := c.BlockWithOptions(ctx, BlockRequest{
			IP:        ip,
			Reason:    reason,
			BlockedBy: SystemActor,
			Duration:  c.cfg.AutoBlockDuration,
			Metadata:  map[string]string{"trigger": trigger},
		})
		if e.IP != "" {
			out.Blocked = true
			out.Entry = e
		}
		if err != nil {
			errs = append(errs, err)
		}
	}

	c.logger.Debug("threat policy applied",
		zap.String("ip", ip),
		zap.String("trigger", trigger),
		zap.String("action", string(action)),
	)
	return out, errors.Join(errs...)
}

// Sweep physically removes expired blocks, expired suspects and empty attempt
// windows. Reads never depend on it.
func (c *Coordinator) Sweep(ctx context.Context) (SweepResult, error) {
	now := c.now()
	var res SweepResult
	n, err := c.store.DeleteExpired(ctx, now)
	res.Blocks = n
	res.Suspects = c.suspects.sweep(now)
	res.AttemptKeys = c.tracker.Sweep()
	return res, err
}
