package audit

import (
	"context"
	"maps"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/goSentinel/internal/anchor"
	"github.com/MrEthical07/goSentinel/ledger"
)

// Recorder is the write side of the pipeline used by other components.
type Recorder interface {
	RecordEvent(ctx context.Context, actorID string, action Action, status Status, meta Meta) (string, error)
	Record(ctx context.Context, actorID, name string, status Status, meta Meta) (string, error)
}

// Discard is a Recorder that drops every event.
type Discard struct{}

func (Discard) RecordEvent(context.Context, string, Action, Status, Meta) (string, error) {
	return "", nil
}

func (Discard) Record(context.Context, string, string, Status, Meta) (string, error) {
	return "", nil
}

// Config controls anchoring behavior.
type Config struct {
	Anchoring     bool          `yaml:"anchoring"`
	BufferSize    int           `yaml:"buffer_size"`
	DropIfFull    bool          `yaml:"drop_if_full"`
	AppendTimeout time.Duration `yaml:"append_timeout"`
	// Detector is written into every anchor.
	Detector string `yaml:"detector"`
}

// DefaultConfig returns anchoring enabled with a 1024-entry non-blocking queue.
func DefaultConfig() Config {
	return Config{
		Anchoring:     true,
		BufferSize:    1024,
		DropIfFull:    true,
		AppendTimeout: 5 * time.Second,
		Detector:      "goSentinel",
	}
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithIDGenerator overrides event id generation.
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.newID = fn
		}
	}
}

// WithAnchorObserver registers a callback invoked after every anchor attempt.
func WithAnchorObserver(fn func(logID string, err error)) Option {
	return func(p *Pipeline) {
		p.observer = fn
	}
}

// Pipeline records events and anchors them.
type Pipeline struct {
	cfg        Config
	store      Store
	ledger     ledger.Ledger
	dispatcher *anchor.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
	observer   func(string, error)
	recorded   atomic.Uint64
	closed     atomic.Bool
}

// NewPipeline creates a pipeline over store. A nil ledger disables anchoring.
func NewPipeline(cfg Config, store Store, l ledger.Ledger, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrAuditStoreUnavailable
	}
	p := &Pipeline{
		cfg:    cfg,
		store:  store,
		ledger: l,
		logger: zap.NewNop(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if cfg.Detector == "" {
		p.cfg.Detector = DefaultConfig().Detector
	}

	p.dispatcher = anchor.NewDispatcher(anchor.Config{
		Enabled:       cfg.Anchoring,
		BufferSize:    cfg.BufferSize,
		DropIfFull:    cfg.DropIfFull,
		AppendTimeout: cfg.AppendTimeout,
	}, l, p.anchorResult)
	return p, nil
}

func (p *Pipeline) anchorResult(a ledger.Anchor, err error) {
	if err != nil {
		p.logger.Warn("ledger anchor failed",
			zap.String("event_id", a.LogID),
			zap.String("log_type", a.LogType),
			zap.Error(err),
		)
	}
	if p.observer != nil {
		p.observer(a.LogID, err)
	}
}

// RecordEvent persists an event and schedules its anchor. It returns the event id.
// The primary insert is synchronous; anchoring never delays or fails the call.
func (p *Pipeline) RecordEvent(ctx context.Context, actorID string, action Action, status Status, meta Meta) (string, error) {
	if p.closed.Load() {
		return "", ErrPipelineClosed
	}
	if !action.Valid() || !status.Valid() {
		return "", ErrInvalidEvent
	}
	sourceIP := strings.TrimSpace(meta.SourceIP)
	if sourceIP == "" {
		sourceIP = "unknown"
	}

	e := Event{
		ID:        p.newID(),
		ActorID:   actorID,
		Action:    action,
		Status:    status,
		SourceIP:  sourceIP,
		UserAgent: meta.UserAgent,
		Platform:  meta.Platform,
		Details:   maps.Clone(meta.Details),
		Timestamp: p.now().UTC(),
	}
	if err := p.store.Insert(ctx, e); err != nil {
		return "", err
	}
	p.recorded.Add(1)

	if p.dispatcher != nil {
		a := ledger.Anchor{
			LogID:           e.ID,
			LogType:         string(e.Action),
			DetailsSnapshot: snapshot(e),
			Hash:            CanonicalHash(e),
			Timestamp:       e.Timestamp,
			Detector:        p.cfg.Detector,
		}
		if !p.dispatcher.Submit(ctx, a) {
			p.logger.Warn("ledger anchor dropped", zap.String("event_id", e.ID))
		}
	}
	return e.ID, nil
}

// Record is RecordEvent for an event name outside the closed action set; unknown
// names are recorded as security_event with the name under DetailEventType.
func (p *Pipeline) Record(ctx context.Context, actorID, name string, status Status, meta Meta) (string, error) {
	action, ok := ActionFor(name)
	if !ok {
		details := maps.Clone(meta.Details)
		if details == nil {
			details = make(map[string]string, 1)
		}
		details[DetailEventType] = name
		meta.Details = details
	}
	return p.RecordEvent(ctx, actorID, action, status, meta)
}

// Get loads one event.
func (p *Pipeline) Get(ctx context.Context, id string) (Event, error) {
	return p.store.Get(ctx, id)
}

// List queries the primary store.
func (p *Pipeline) List(ctx context.Context, q Query) ([]Event, error) {
	return p.store.List(ctx, q)
}

// UpdateTriage records a triage decision in the event's details. Hash-relevant
// fields are untouched, so verification is unaffected.
func (p *Pipeline) UpdateTriage(ctx context.Context, id string, status TriageStatus, by string) error {
	if !status.Valid() {
		return ErrInvalidTriage
	}
	return p.store.UpdateDetails(ctx, id, map[string]string{
		DetailTriageStatus: string(status),
		DetailTriagedBy:    by,
		DetailTriagedAt:    p.now().UTC().Format(time.RFC3339),
	})
}

// Ledger returns the anchor ledger, or nil when anchoring is disabled.
func (p *Pipeline) Ledger() ledger.Ledger {
	return p.ledger
}

// AnchorStats counts anchoring outcomes since start.
type AnchorStats struct {
	Submitted uint64 `json:"submitted"`
	Anchored  uint64 `json:"anchored"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

// AnchorStats reports dispatcher counters. All zero when anchoring is disabled.
func (p *Pipeline) AnchorStats() AnchorStats {
	s := p.dispatcher.Stats()
	return AnchorStats{
		Submitted: s.Submitted,
		Anchored:  s.Anchored,
		Failed:    s.Failed,
		Dropped:   s.Dropped,
	}
}

// Recorded returns the number of events persisted since start.
func (p *Pipeline) Recorded() uint64 {
	return p.recorded.Load()
}

// Flush waits for queued anchors to be processed.
func (p *Pipeline) Flush(ctx context.Context) error {
	return p.dispatcher.Flush(ctx)
}

// Close stops accepting events and drains queued anchors. The store and ledger are
// owned by the caller.
func (p *Pipeline) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.dispatcher.Close()
}
