package goSentinel

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/goSentinel/audit"
	"github.com/MrEthical07/goSentinel/detector"
	"github.com/MrEthical07/goSentinel/internal/window"
	"github.com/MrEthical07/goSentinel/jwt"
	"github.com/MrEthical07/goSentinel/session"
	"github.com/MrEthical07/goSentinel/threat"
)

// Config is the full engine configuration. Every section has a working default
// except JWT, which needs key material.
type Config struct {
	Detector DetectorConfig `yaml:"detector"`
	Window   WindowConfig   `yaml:"window"`
	Threat   ThreatConfig   `yaml:"threat"`
	CSRF     CSRFConfig     `yaml:"csrf"`
	Session  SessionConfig  `yaml:"session"`
	JWT      JWTConfig      `yaml:"jwt"`
	Audit    AuditConfig    `yaml:"audit"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Sweep    SweepConfig    `yaml:"sweep"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Redis    RedisConfig    `yaml:"redis"`
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
}

/*
====================================
DETECTION
====================================
*/

// DetectorConfig tunes the signature detector.
type DetectorConfig struct {
	// ScanSuspicious adds the generic reconnaissance category to every check.
	ScanSuspicious bool `yaml:"scan_suspicious"`
	// CredentialFields replaces the JSON field names whose values alone are scanned
	// for information disclosure.
	CredentialFields []string `yaml:"credential_fields"`
	// ExtraSignatures adds patterns per category name.
	ExtraSignatures map[string][]string `yaml:"extra_signatures"`
}

// WindowConfig tunes the attempt tracker.
type WindowConfig struct {
	BruteForceWindow    time.Duration `yaml:"brute_force_window"`
	BruteForceThreshold int           `yaml:"brute_force_threshold"`
	SuspiciousWindow    time.Duration `yaml:"suspicious_window"`
	SuspiciousThreshold int           `yaml:"suspicious_threshold"`
}

// ThreatConfig tunes blocking and the trigger policy.
type ThreatConfig struct {
	BlockDuration     time.Duration `yaml:"block_duration"`
	AutoBlockDuration time.Duration `yaml:"auto_block_duration"`
	SuspiciousTTL     time.Duration `yaml:"suspicious_ttl"`
	// Policy overrides individual trigger actions on top of the default table.
	Policy map[string]string `yaml:"policy"`
	// Store is "memory" or "redis".
	Store       string `yaml:"store"`
	RedisPrefix string `yaml:"redis_prefix"`
}

// CSRFConfig mirrors detector.CSRFConfig.
type CSRFConfig struct {
	Enabled            bool     `yaml:"enabled"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	TokenHeader        string   `yaml:"token_header"`
	TokenField         string   `yaml:"token_field"`
	TrustedDirectIPs   []string `yaml:"trusted_direct_ips"`
	ExemptUserAgents   []string `yaml:"exempt_user_agents"`
	AllowTokenlessPOST bool     `yaml:"allow_tokenless_post"`
}

/*
====================================
SESSIONS
====================================
*/

// SessionConfig tunes session lifetime and lockout.
type SessionConfig struct {
	TTL               time.Duration `yaml:"ttl"`
	MaxFailedAttempts int           `yaml:"max_failed_attempts"`
	LockoutDuration   time.Duration `yaml:"lockout_duration"`
	RefreshThreshold  time.Duration `yaml:"refresh_threshold"`
	CleanupBatch      int           `yaml:"cleanup_batch"`
	// Store is "memory" or "redis".
	Store       string `yaml:"store"`
	RedisPrefix string `yaml:"redis_prefix"`
}

// JWTConfig holds token signing settings. Key material comes from Secret (hs256),
// from the key files (ed25519) or directly from PrivateKey and PublicKey.
type JWTConfig struct {
	SigningMethod  string        `yaml:"signing_method"`
	Secret         string        `yaml:"secret"`
	PrivateKeyFile string        `yaml:"private_key_file"`
	PublicKeyFile  string        `yaml:"public_key_file"`
	Issuer         string        `yaml:"issuer"`
	Audience       string        `yaml:"audience"`
	Leeway         time.Duration `yaml:"leeway"`
	KeyID          string        `yaml:"key_id"`
	PrivateKey     []byte        `yaml:"-"`
	PublicKey      []byte        `yaml:"-"`
}

/*
====================================
AUDIT AND LEDGER
====================================
*/

// AuditConfig tunes the audit pipeline and its primary store.
type AuditConfig struct {
	Anchoring     bool          `yaml:"anchoring"`
	BufferSize    int           `yaml:"buffer_size"`
	DropIfFull    bool          `yaml:"drop_if_full"`
	AppendTimeout time.Duration `yaml:"append_timeout"`
	Detector      string        `yaml:"detector"`
	// Store is "memory" or "sqlite".
	Store  string             `yaml:"store"`
	SQLite audit.SQLiteConfig `yaml:"sqlite"`
}

// LedgerConfig selects the ledger backend.
type LedgerConfig struct {
	// Backend is "memory" or "leveldb".
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// SweepConfig sets the background maintenance intervals. Zero disables a job.
type SweepConfig struct {
	BlockInterval   time.Duration `yaml:"block_interval"`
	SessionInterval time.Duration `yaml:"session_interval"`
	WindowInterval  time.Duration `yaml:"window_interval"`
}

/*
====================================
OPERATIONS
====================================
*/

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// RedisConfig is used by the builder when no client is supplied and a store asks
// for redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// HTTPConfig is consumed by the middleware and the admin server.
type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	// AdminToken guards the admin API. Empty disables every guarded route.
	AdminToken string `yaml:"admin_token"`
	// TrustedProxies are CIDRs or addresses allowed to set X-Forwarded-For and
	// X-Real-IP. Empty means forwarding headers are ignored.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// LogConfig selects the process logger.
type LogConfig struct {
	Env    string `yaml:"env"`
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Backend names accepted by the Store and Backend fields.
const (
	StoreMemory  = "memory"
	StoreRedis   = "redis"
	StoreSQLite  = "sqlite"
	StoreLevelDB = "leveldb"
)

// DefaultConfig returns the defaults: 15m/5 brute force, 5m/3 suspicious, 30 day
// operator blocks, 1h automatic blocks, 24h sessions, 5 failures and a 15m lockout.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	w := window.DefaultConfig()
	t := threat.DefaultConfig()
	s := session.DefaultConfig()
	a := audit.DefaultConfig()
	c := detector.DefaultCSRFConfig()

	return Config{
		Window: WindowConfig{
			BruteForceWindow:    w.BruteForceWindow,
			BruteForceThreshold: w.BruteForceThreshold,
			SuspiciousWindow:    w.SuspiciousWindow,
			SuspiciousThreshold: w.SuspiciousThreshold,
		},
		Threat: ThreatConfig{
			BlockDuration:     t.BlockDuration,
			AutoBlockDuration: t.AutoBlockDuration,
			SuspiciousTTL:     t.SuspiciousTTL,
			Store:             StoreMemory,
			RedisPrefix:       "sentinel",
		},
		CSRF: CSRFConfig{
			Enabled:            c.Enabled,
			AllowedOrigins:     c.AllowedOrigins,
			TokenHeader:        c.TokenHeader,
			TokenField:         c.TokenField,
			ExemptUserAgents:   c.ExemptUserAgents,
			AllowTokenlessPOST: c.AllowTokenlessPOST,
		},
		Session: SessionConfig{
			TTL:               s.SessionTTL,
			MaxFailedAttempts: s.MaxFailedAttempts,
			LockoutDuration:   s.LockoutDuration,
			RefreshThreshold:  s.RefreshThreshold,
			CleanupBatch:      s.CleanupBatch,
			Store:             StoreMemory,
			RedisPrefix:       "sentinel",
		},
		JWT: JWTConfig{
			SigningMethod: string(jwt.MethodHS256),
			Issuer:        "goSentinel",
		},
		Audit: AuditConfig{
			Anchoring:     a.Anchoring,
			BufferSize:    a.BufferSize,
			DropIfFull:    a.DropIfFull,
			AppendTimeout: a.AppendTimeout,
			Detector:      a.Detector,
			Store:         StoreMemory,
		},
		Ledger: LedgerConfig{
			Backend: StoreMemory,
		},
		Sweep: SweepConfig{
			BlockInterval:   10 * time.Minute,
			SessionInterval: time.Hour,
			WindowInterval:  5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		HTTP: HTTPConfig{
			Addr:         "127.0.0.1:8080",
			MaxBodyBytes: 1 << 20,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Log: LogConfig{
			Env:    "production",
			Level:  "info",
			Format: "json",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Detector.CredentialFields = cloneStrings(cfg.Detector.CredentialFields)
	if cfg.Detector.ExtraSignatures != nil {
		out.Detector.ExtraSignatures = make(map[string][]string, len(cfg.Detector.ExtraSignatures))
		for k, v := range cfg.Detector.ExtraSignatures {
			out.Detector.ExtraSignatures[k] = cloneStrings(v)
		}
	}
	if cfg.Threat.Policy != nil {
		out.Threat.Policy = make(map[string]string, len(cfg.Threat.Policy))
		for k, v := range cfg.Threat.Policy {
			out.Threat.Policy[k] = v
		}
	}
	out.CSRF.AllowedOrigins = cloneStrings(cfg.CSRF.AllowedOrigins)
	out.CSRF.TrustedDirectIPs = cloneStrings(cfg.CSRF.TrustedDirectIPs)
	out.CSRF.ExemptUserAgents = cloneStrings(cfg.CSRF.ExemptUserAgents)
	out.HTTP.AllowedOrigins = cloneStrings(cfg.HTTP.AllowedOrigins)
	out.HTTP.TrustedProxies = cloneStrings(cfg.HTTP.TrustedProxies)
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks cross-field consistency. It does not touch the network or disk.
func (c *Config) Validate() error {
	// Window
	if c.Window.BruteForceWindow <= 0 || c.Window.SuspiciousWindow <= 0 {
		return errors.New("Window durations must be > 0")
	}
	if c.Window.BruteForceThreshold < 1 || c.Window.SuspiciousThreshold < 1 {
		return errors.New("Window thresholds must be >= 1")
	}
	if c.Window.SuspiciousThreshold > c.Window.BruteForceThreshold {
		return errors.New("Window SuspiciousThreshold must not exceed BruteForceThreshold")
	}

	// Threat
	if c.Threat.BlockDuration <= 0 || c.Threat.AutoBlockDuration <= 0 {
		return errors.New("Threat block durations must be > 0")
	}
	if c.Threat.SuspiciousTTL <= 0 {
		return errors.New("Threat SuspiciousTTL must be > 0")
	}
	if err := checkStore("Threat", c.Threat.Store, StoreMemory, StoreRedis); err != nil {
		return err
	}
	if len(c.Threat.Policy) > 0 {
		if _, err := threat.Merge(c.Threat.Policy); err != nil {
			return err
		}
	}

	// Detector
	for name := range c.Detector.ExtraSignatures {
		if _, ok := detector.ParseCategory(name); !ok {
			return fmt.Errorf("Detector ExtraSignatures: unknown category %q", name)
		}
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.MaxFailedAttempts < 1 {
		return errors.New("Session MaxFailedAttempts must be >= 1")
	}
	if c.Session.LockoutDuration <= 0 {
		return errors.New("Session LockoutDuration must be > 0")
	}
	if c.Session.RefreshThreshold < 0 || c.Session.RefreshThreshold >= c.Session.TTL {
		return errors.New("Session RefreshThreshold must be >= 0 and < TTL")
	}
	if err := checkStore("Session", c.Session.Store, StoreMemory, StoreRedis); err != nil {
		return err
	}

	// JWT
	switch c.JWT.SigningMethod {
	case string(jwt.MethodHS256):
		if len(c.JWT.PrivateKey) == 0 && c.JWT.Secret == "" {
			return errors.New("hs256 requires Secret or PrivateKey")
		}
		if len(c.JWT.PrivateKey) == 0 && len(c.JWT.Secret) < 32 {
			return errors.New("hs256 Secret must be at least 32 bytes")
		}
	case string(jwt.MethodEd25519):
		if len(c.JWT.PrivateKey) == 0 && c.JWT.PrivateKeyFile == "" {
			return errors.New("ed25519 requires PrivateKey or PrivateKeyFile")
		}
		if len(c.JWT.PublicKey) == 0 && c.JWT.PublicKeyFile == "" {
			return errors.New("ed25519 requires PublicKey or PublicKeyFile")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Audit and ledger
	if c.Audit.Anchoring && c.Audit.BufferSize < 1 {
		return errors.New("Audit BufferSize must be >= 1 when anchoring is enabled")
	}
	if c.Audit.AppendTimeout < 0 {
		return errors.New("Audit AppendTimeout must be >= 0")
	}
	if err := checkStore("Audit", c.Audit.Store, StoreMemory, StoreSQLite); err != nil {
		return err
	}
	if c.Audit.Store == StoreSQLite && strings.TrimSpace(c.Audit.SQLite.DSN) == "" {
		return errors.New("Audit sqlite store requires a DSN")
	}
	if err := checkStore("Ledger", c.Ledger.Backend, StoreMemory, StoreLevelDB); err != nil {
		return err
	}

	// Sweep
	if c.Sweep.BlockInterval < 0 || c.Sweep.SessionInterval < 0 || c.Sweep.WindowInterval < 0 {
		return errors.New("Sweep intervals must be >= 0")
	}

	// HTTP
	if c.HTTP.MaxBodyBytes < 0 {
		return errors.New("HTTP MaxBodyBytes must be >= 0")
	}
	if _, err := detector.ParseTrustedProxies(c.HTTP.TrustedProxies); err != nil {
		return fmt.Errorf("HTTP TrustedProxies: %v", err)
	}

	return nil
}

func checkStore(section, got string, allowed ...string) error {
	for _, a := range allowed {
		if got == a {
			return nil
		}
	}
	return fmt.Errorf("%s store must be one of %s, got %q", section, strings.Join(allowed, ", "), got)
}
