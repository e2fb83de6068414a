package goSentinel

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
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

// Builder assembles an Engine. Configure it during initialization, call Build
// once, then discard it.
type Builder struct {
	config Config
	logger *zap.Logger
	now    func() time.Time
	redis  redis.UniversalClient

	auditStore audit.Store
	ledger     ledger.Ledger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithLogger sets the logger shared by every component.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides time for every component. Tests use it to step through
// windows and expiries.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithRedis supplies the client used by redis-backed stores. Without it the
// builder dials Config.Redis when a store asks for redis. A supplied client is
// owned by the caller and is not closed by Engine.Close.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditStore supplies the primary event store, overriding Config.Audit.Store.
func (b *Builder) WithAuditStore(s audit.Store) *Builder {
	b.auditStore = s
	return b
}

// WithLedger supplies the anchor ledger, overriding Config.Ledger.
func (b *Builder) WithLedger(l ledger.Ledger) *Builder {
	b.ledger = l
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the security check latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, opens the configured backends and wires the
// engine. On error every backend opened so far is closed again.
func (b *Builder) Build() (eng *Engine, err error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config:  cfg,
		logger:  b.logger,
		now:     b.now,
		metrics: NewMetrics(cfg.Metrics),
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	defer func() {
		if err != nil {
			for i := len(e.closers) - 1; i >= 0; i-- {
				_ = e.closers[i]()
			}
		}
	}()

	rdb, err := b.redisClient(e)
	if err != nil {
		return nil, err
	}

	if e.detector, err = newDetector(cfg.Detector); err != nil {
		return nil, err
	}
	e.csrf = detector.NewCSRFValidator(detector.CSRFConfig{
		Enabled:            cfg.CSRF.Enabled,
		AllowedOrigins:     cloneStrings(cfg.CSRF.AllowedOrigins),
		TokenHeader:        cfg.CSRF.TokenHeader,
		TokenField:         cfg.CSRF.TokenField,
		TrustedDirectIPs:   cloneStrings(cfg.CSRF.TrustedDirectIPs),
		ExemptUserAgents:   cloneStrings(cfg.CSRF.ExemptUserAgents),
		AllowTokenlessPOST: cfg.CSRF.AllowTokenlessPOST,
	})
	if e.proxies, err = detector.ParseTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		return nil, err
	}

	if err := b.openAudit(e); err != nil {
		return nil, err
	}

	e.tracker = window.New(window.Config{
		BruteForceWindow:    cfg.Window.BruteForceWindow,
		BruteForceThreshold: cfg.Window.BruteForceThreshold,
		SuspiciousWindow:    cfg.Window.SuspiciousWindow,
		SuspiciousThreshold: cfg.Window.SuspiciousThreshold,
	}, e.now)

	policy, err := threat.Merge(cfg.Threat.Policy)
	if err != nil {
		return nil, err
	}
	var blocks threat.Store
	if cfg.Threat.Store == StoreRedis {
		blocks = threat.NewRedisStore(rdb, cfg.Threat.RedisPrefix, e.now)
	}
	e.threats = threat.NewCoordinator(threat.Config{
		BlockDuration:     cfg.Threat.BlockDuration,
		AutoBlockDuration: cfg.Threat.AutoBlockDuration,
		SuspiciousTTL:     cfg.Threat.SuspiciousTTL,
	}, blocks, e.tracker, e.recorder,
		threat.WithLogger(e.logger.Named("threat")),
		threat.WithClock(e.now),
		threat.WithPolicy(policy),
	)

	e.tokens, err = jwt.NewManager(jwt.Config{
		TTL:           cfg.Session.TTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    signingKey(cfg.JWT),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		RequireIAT:    true,
		KeyID:         cfg.JWT.KeyID,
		Now:           e.now,
	})
	if err != nil {
		return nil, err
	}

	var sessions session.Store
	if cfg.Session.Store == StoreRedis {
		sessions = session.NewRedisStore(rdb, cfg.Session.RedisPrefix)
	}
	e.sessions = session.NewManager(session.Config{
		SessionTTL:        cfg.Session.TTL,
		MaxFailedAttempts: cfg.Session.MaxFailedAttempts,
		LockoutDuration:   cfg.Session.LockoutDuration,
		RefreshThreshold:  cfg.Session.RefreshThreshold,
		CleanupBatch:      cfg.Session.CleanupBatch,
	}, sessions, e.tokens, e.recorder,
		session.WithLogger(e.logger.Named("session")),
		session.WithClock(e.now),
	)

	e.sweeper = sweep.NewRunner(e.logger.Named("sweep"), e.sweepJobs()...)

	b.built = true
	e.logger.Info("engine built",
		zap.String("threat_store", cfg.Threat.Store),
		zap.String("session_store", cfg.Session.Store),
		zap.String("audit_store", cfg.Audit.Store),
		zap.String("ledger", cfg.Ledger.Backend),
		zap.Bool("anchoring", cfg.Audit.Anchoring),
	)
	return e, nil
}

func (b *Builder) redisClient(e *Engine) (redis.UniversalClient, error) {
	cfg := e.config
	if cfg.Threat.Store != StoreRedis && cfg.Session.Store != StoreRedis {
		return nil, nil
	}
	if b.redis != nil {
		return b.redis, nil
	}
	if cfg.Redis.Addr == "" {
		return nil, ErrRedisRequired
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	e.closers = append(e.closers, rdb.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisRequired, err)
	}
	return rdb, nil
}

func (b *Builder) openAudit(e *Engine) error {
	cfg := e.config

	store := b.auditStore
	if store == nil {
		switch cfg.Audit.Store {
		case StoreSQLite:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			s, err := audit.OpenSQLite(ctx, cfg.Audit.SQLite)
			cancel()
			if err != nil {
				return err
			}
			e.closers = append(e.closers, s.Close)
			store = s
		default:
			store = audit.NewMemoryStore()
		}
	}

	l := b.ledger
	if l == nil && cfg.Audit.Anchoring {
		switch cfg.Ledger.Backend {
		case StoreLevelDB:
			ldb, err := ledger.OpenLevelDB(cfg.Ledger.Path, ledger.WithClock(e.now))
			if err != nil {
				return err
			}
			e.closers = append(e.closers, ldb.Close)
			l = ldb
		default:
			l = ledger.NewMemory(ledger.WithClock(e.now))
		}
	}
	e.ledger = l

	p, err := audit.NewPipeline(audit.Config{
		Anchoring:     cfg.Audit.Anchoring,
		BufferSize:    cfg.Audit.BufferSize,
		DropIfFull:    cfg.Audit.DropIfFull,
		AppendTimeout: cfg.Audit.AppendTimeout,
		Detector:      cfg.Audit.Detector,
	}, store, l,
		audit.WithLogger(e.logger.Named("audit")),
		audit.WithClock(e.now),
		audit.WithAnchorObserver(func(_ string, err error) {
			if err != nil {
				e.metrics.Inc(MetricAnchorFailed)
			}
		}),
	)
	if err != nil {
		return err
	}
	e.audit = p
	e.recorder = meteredRecorder{next: p, metrics: e.metrics}
	return nil
}

func newDetector(cfg DetectorConfig) (*detector.Detector, error) {
	opts := []detector.Option{detector.WithSuspiciousScan(cfg.ScanSuspicious)}
	if len(cfg.CredentialFields) > 0 {
		opts = append(opts, detector.WithCredentialFields(cfg.CredentialFields...))
	}
	for name, patterns := range cfg.ExtraSignatures {
		c, ok := detector.ParseCategory(name)
		if !ok {
			return nil, fmt.Errorf("detector: unknown category %q", name)
		}
		opts = append(opts, detector.WithExtraSignatures(c, patterns...))
	}
	return detector.New(opts...)
}

func signingKey(cfg JWTConfig) []byte {
	if len(cfg.PrivateKey) > 0 {
		return cloneBytes(cfg.PrivateKey)
	}
	if jwt.SigningMethod(cfg.SigningMethod) == jwt.MethodHS256 {
		return []byte(cfg.Secret)
	}
	return nil
}
