package goSentinel

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MrEthical07/goSentinel/audit"
	"github.com/MrEthical07/goSentinel/detector"
	"github.com/MrEthical07/goSentinel/internal/sweep"
	"github.com/MrEthical07/goSentinel/internal/window"
	"github.com/MrEthical07/goSentinel/jwt"
	"github.com/MrEthical07/goSentinel/ledger"
	"github.com/MrEthical07/goSentinel/session"
	"github.com/MrEthical07/goSentinel/threat"
)

const (
	messageBlocked    = "Access denied: IP address is blocked"
	messageMalicious  = "Invalid request: Malicious input detected"
	messageDisclosure = "Invalid request: Information disclosure attempt detected"
	messageSuspicious = "Invalid request: Suspicious activity detected"
	messageCSRF       = "Access denied: CSRF token validation failed"
)

// Engine composes detection, threat response, sessions and the audit trail. It is
// safe for concurrent use once built.
type Engine struct {
	config Config
	logger *zap.Logger
	now    func() time.Time

	detector *detector.Detector
	csrf     *detector.CSRFValidator
	proxies  *detector.TrustedProxies
	tracker  *window.Tracker
	threats  *threat.Coordinator
	tokens   *jwt.Manager
	sessions *session.Manager
	audit    *audit.Pipeline
	recorder audit.Recorder
	ledger   ledger.Ledger
	metrics  *Metrics
	sweeper  *sweep.Runner

	closers   []func() error
	closeOnce sync.Once
	closeErr  error
}

// Config returns a copy of the effective configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// Logger returns the engine logger.
func (e *Engine) Logger() *zap.Logger {
	return e.logger
}

// ClientIP resolves the source address of an HTTP request, honouring forwarding
// headers only from HTTP.TrustedProxies.
func (e *Engine) ClientIP(remoteAddr string, h http.Header) string {
	return detector.ClientIP(remoteAddr, h, e.proxies)
}

// SecurityCheck screens one request: blocked source IP, then signature detection
// over the body, then CSRF origin validation. The first failing stage decides the
// rejection and the remaining stages are skipped. Detections are recorded and the
// threat policy is applied before returning.
func (e *Engine) SecurityCheck(ctx context.Context, req Request) Decision {
	start := time.Now()
	e.metrics.Inc(MetricSecurityCheck)
	defer func() {
		e.metrics.Observe(MetricSecurityCheckLatency, time.Since(start))
	}()

	ip := detector.NormalizeIP(req.SourceIP)
	if ip == "" {
		ip = "0.0.0.0"
	}

	if e.threats.IsBlocked(ctx, ip) {
		e.metrics.Inc(MetricRejectedBlocked)
		return reject(CodeIPBlocked, http.StatusForbidden, messageBlocked)
	}

	if len(req.Body) > 0 {
		res := e.detector.Classify(string(req.Body))
		if res.Matched {
			e.metrics.Inc(MetricRejectedAttack)
			d := reject(res.Category.Code(), http.StatusBadRequest, rejectionMessage(res.Category))
			d.Category = res.Category
			e.applyDetection(ctx, ip, req, res, &d)
			return d
		}
	}

	peer := detector.NormalizeIP(req.PeerIP)
	if peer == "" {
		peer = ip
	}
	if !e.csrf.Allow(req.Method, req.Headers, peer, req.Body) {
		e.metrics.Inc(MetricRejectedCSRF)
		d := reject(CodeCSRF, http.StatusForbidden, messageCSRF)
		d.Category = detector.CategoryCSRF
		e.applyDetection(ctx, ip, req, detector.Result{Matched: true, Category: detector.CategoryCSRF}, &d)
		return d
	}

	e.metrics.Inc(MetricRequestAllowed)
	return allow()
}

func rejectionMessage(c detector.Category) string {
	switch c {
	case detector.CategoryInfoDisclosure:
		return messageDisclosure
	case detector.CategorySuspicious:
		return messageSuspicious
	default:
		return messageMalicious
	}
}

func (e *Engine) applyDetection(ctx context.Context, ip string, req Request, res detector.Result, d *Decision) {
	ua := req.Headers.Get("User-Agent")
	client := detector.DescribeClient(ua, req.Headers.Get(detector.PlatformHeader))
	details := map[string]string{
		"category": string(res.Category),
		"method":   req.Method,
		"path":     req.Path,
	}
	if res.Pattern != "" {
		details["pattern"] = res.Pattern
	}
	meta := audit.Meta{
		SourceIP:  ip,
		UserAgent: ua,
		Platform:  string(client.Platform),
		Details:   details,
	}

	out, err := e.threats.HandleDetection(ctx, ip, res.Category, meta)
	if err != nil {
		e.logger.Warn("detection response incomplete",
			zap.String("ip", ip),
			zap.String("category", string(res.Category)),
			zap.Error(err),
		)
	}
	switch out.Action {
	case threat.ActionBlock:
		if out.Blocked {
			e.metrics.Inc(MetricAutoBlock)
		}
	case threat.ActionFlag:
		e.metrics.Inc(MetricSuspiciousFlagged)
	}
	d.Blocked = out.Blocked
	d.EventID = out.EventID

	e.logger.Info("request rejected",
		zap.String("ip", ip),
		zap.String("code", d.Code),
		zap.String("path", req.Path),
		zap.Bool("blocked", out.Blocked),
	)
}

// Stats summarizes threat state, the audit trail and the ledger.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	ts, err := e.threats.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{
		Threat:             ts,
		EventsRecorded:     e.audit.Recorded(),
		Anchoring:          e.audit.AnchorStats(),
		BlockStoreFailures: e.threats.StoreFailures(),
		TrackedAttemptKeys: e.tracker.Keys(),
	}
	if e.ledger != nil {
		ls, err := e.ledger.Stats(ctx)
		if err != nil {
			return s, err
		}
		s.Ledger = &ls
	}
	return s, nil
}

// MetricsSnapshot returns a copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	e.metrics.set(MetricBlockStoreFailure, e.threats.StoreFailures())
	return e.metrics.Snapshot()
}

// AnchorDropped returns the number of anchors dropped because the anchoring queue
// was full.
func (e *Engine) AnchorDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.AnchorStats().Dropped
}

// Start launches the background sweeps. It returns immediately.
func (e *Engine) Start(ctx context.Context) {
	e.sweeper.Start(ctx)
	e.logger.Info("background sweeps started", zap.Strings("jobs", e.sweeper.Jobs()))
}

// Sweep runs every maintenance job once, synchronously.
func (e *Engine) Sweep(ctx context.Context) {
	e.sweeper.RunOnce(ctx)
}

// Close stops the sweeps, drains pending anchors and closes every resource the
// builder opened. It is safe to call more than once.
func (e *Engine) Close() error {
	if e == nil {
		return nil
	}
	e.closeOnce.Do(func() {
		e.sweeper.Stop()
		e.audit.Close()
		var errs []error
		for i := len(e.closers) - 1; i >= 0; i-- {
			if err := e.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		e.closeErr = errors.Join(errs...)
		_ = e.logger.Sync()
	})
	return e.closeErr
}

func (e *Engine) sweepJobs() []sweep.Job {
	return []sweep.Job{
		{
			Name:     "blocks",
			Interval: e.config.Sweep.BlockInterval,
			Run: func(ctx context.Context) (int, error) {
				res, err := e.threats.Sweep(ctx)
				return res.Blocks + res.Suspects + res.AttemptKeys, err
			},
		},
		{
			Name:     "sessions",
			Interval: e.config.Sweep.SessionInterval,
			Run:      e.CleanupSessions,
		},
		{
			Name:     "windows",
			Interval: e.config.Sweep.WindowInterval,
			Run: func(context.Context) (int, error) {
				return e.tracker.Sweep(), nil
			},
		},
	}
}
