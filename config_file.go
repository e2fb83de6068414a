package goSentinel

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SENTINEL_"

// LoadConfig builds a Config from defaults, the YAML file at path (optional when
// empty), a .env file in the working directory when present, and SENTINEL_*
// environment variables, in that order. Key files named by the JWT section are
// read last. The result is validated.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeConfig(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := loadKeyFiles(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseConfig decodes YAML over the defaults without consulting the environment.
func ParseConfig(data []byte) (Config, error) {
	cfg := defaultConfig()
	if err := decodeConfig(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeConfig(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// MarshalConfig renders cfg as YAML. Secrets are redacted.
func MarshalConfig(cfg Config) ([]byte, error) {
	cfg = cloneConfig(cfg)
	if cfg.JWT.Secret != "" {
		cfg.JWT.Secret = "<redacted>"
	}
	if cfg.Redis.Password != "" {
		cfg.Redis.Password = "<redacted>"
	}
	if cfg.HTTP.AdminToken != "" {
		cfg.HTTP.AdminToken = "<redacted>"
	}
	return yaml.Marshal(cfg)
}

type envField struct {
	name  string
	apply func(cfg *Config, raw string) error
}

func envString(dst func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, raw string) error {
		*dst(cfg) = raw
		return nil
	}
}

func envList(dst func(*Config) *[]string) func(*Config, string) error {
	return func(cfg *Config, raw string) error {
		var out []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*dst(cfg) = out
		return nil
	}
}

func envInt(dst func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, raw string) error {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		*dst(cfg) = v
		return nil
	}
}

func envBool(dst func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, raw string) error {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		*dst(cfg) = v
		return nil
	}
}

func envDuration(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, raw string) error {
		v, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*dst(cfg) = v
		return nil
	}
}

var envFields = []envField{
	{"REDIS_ADDR", envString(func(c *Config) *string { return &c.Redis.Addr })},
	{"REDIS_PASSWORD", envString(func(c *Config) *string { return &c.Redis.Password })},
	{"REDIS_DB", envInt(func(c *Config) *int { return &c.Redis.DB })},
	{"JWT_SECRET", envString(func(c *Config) *string { return &c.JWT.Secret })},
	{"JWT_SIGNING_METHOD", envString(func(c *Config) *string { return &c.JWT.SigningMethod })},
	{"JWT_PRIVATE_KEY_FILE", envString(func(c *Config) *string { return &c.JWT.PrivateKeyFile })},
	{"JWT_PUBLIC_KEY_FILE", envString(func(c *Config) *string { return &c.JWT.PublicKeyFile })},
	{"JWT_ISSUER", envString(func(c *Config) *string { return &c.JWT.Issuer })},
	{"SESSION_TTL", envDuration(func(c *Config) *time.Duration { return &c.Session.TTL })},
	{"SESSION_STORE", envString(func(c *Config) *string { return &c.Session.Store })},
	{"MAX_FAILED_ATTEMPTS", envInt(func(c *Config) *int { return &c.Session.MaxFailedAttempts })},
	{"LOCKOUT_DURATION", envDuration(func(c *Config) *time.Duration { return &c.Session.LockoutDuration })},
	{"THREAT_STORE", envString(func(c *Config) *string { return &c.Threat.Store })},
	{"BLOCK_DURATION", envDuration(func(c *Config) *time.Duration { return &c.Threat.BlockDuration })},
	{"AUTO_BLOCK_DURATION", envDuration(func(c *Config) *time.Duration { return &c.Threat.AutoBlockDuration })},
	{"AUDIT_STORE", envString(func(c *Config) *string { return &c.Audit.Store })},
	{"AUDIT_SQLITE_DSN", envString(func(c *Config) *string { return &c.Audit.SQLite.DSN })},
	{"AUDIT_ANCHORING", envBool(func(c *Config) *bool { return &c.Audit.Anchoring })},
	{"LEDGER_BACKEND", envString(func(c *Config) *string { return &c.Ledger.Backend })},
	{"LEDGER_PATH", envString(func(c *Config) *string { return &c.Ledger.Path })},
	{"CSRF_ENABLED", envBool(func(c *Config) *bool { return &c.CSRF.Enabled })},
	{"CSRF_ALLOWED_ORIGINS", envList(func(c *Config) *[]string { return &c.CSRF.AllowedOrigins })},
	{"HTTP_ADDR", envString(func(c *Config) *string { return &c.HTTP.Addr })},
	{"HTTP_ALLOWED_ORIGINS", envList(func(c *Config) *[]string { return &c.HTTP.AllowedOrigins })},
	{"HTTP_TRUSTED_PROXIES", envList(func(c *Config) *[]string { return &c.HTTP.TrustedProxies })},
	{"ADMIN_TOKEN", envString(func(c *Config) *string { return &c.HTTP.AdminToken })},
	{"METRICS_ENABLED", envBool(func(c *Config) *bool { return &c.Metrics.Enabled })},
	{"LOG_ENV", envString(func(c *Config) *string { return &c.Log.Env })},
	{"LOG_LEVEL", envString(func(c *Config) *string { return &c.Log.Level })},
	{"LOG_FORMAT", envString(func(c *Config) *string { return &c.Log.Format })},
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, f := range envFields {
		raw, ok := lookup(EnvPrefix + f.name)
		if !ok {
			continue
		}
		if err := f.apply(cfg, strings.TrimSpace(raw)); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, f.name, err)
		}
	}
	return nil
}

func loadKeyFiles(cfg *Config) error {
	if len(cfg.JWT.PrivateKey) == 0 && cfg.JWT.PrivateKeyFile != "" {
		data, err := os.ReadFile(cfg.JWT.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("read jwt private key: %w", err)
		}
		cfg.JWT.PrivateKey = data
	}
	if len(cfg.JWT.PublicKey) == 0 && cfg.JWT.PublicKeyFile != "" {
		data, err := os.ReadFile(cfg.JWT.PublicKeyFile)
		if err != nil {
			return fmt.Errorf("read jwt public key: %w", err)
		}
		cfg.JWT.PublicKey = data
	}
	return nil
}
