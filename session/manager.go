package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/goSentinel/audit"
	"github.com/MrEthical07/goSentinel/jwt"
)

var (
	// ErrInvalidUser is returned for an empty user id.
	ErrInvalidUser = errors.New("invalid user id")
	// ErrAccountLocked is returned when a locked account tries to open a session.
	ErrAccountLocked = errors.New("account locked")
	// ErrNoActiveSession is returned by RefreshToken without a live session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrInvalidToken is returned for tokens that fail verification or do not
	// belong to the user.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrSessionInvalid is returned when a well-formed token names a session that
	// is no longer current.
	ErrSessionInvalid = errors.New("session no longer valid")
)

// Config controls session and lockout lifetimes.
type Config struct {
	// SessionTTL is informational here; token expiry is owned by the jwt manager,
	// which the engine builds with the same value.
	SessionTTL        time.Duration `yaml:"session_ttl"`
	MaxFailedAttempts int           `yaml:"max_failed_attempts"`
	LockoutDuration   time.Duration `yaml:"lockout_duration"`
	RefreshThreshold  time.Duration `yaml:"refresh_threshold"`
	CleanupBatch      int           `yaml:"cleanup_batch"`
}

// DefaultConfig returns 24h sessions, 5 failures before a 15m lockout and a 2h
// refresh threshold.
func DefaultConfig() Config {
	return Config{
		SessionTTL:        24 * time.Hour,
		MaxFailedAttempts: 5,
		LockoutDuration:   15 * time.Minute,
		RefreshThreshold:  2 * time.Hour,
		CleanupBatch:      500,
	}
}

// Identity names the user a session is opened for.
type Identity struct {
	UserID   string
	Username string
	Role     string
}

// Issued is a freshly signed session token.
type Issued struct {
	Token     string    `json:"token"`
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// FailedLogin is the outcome of HandleFailedLogin. LockedNow is true only for the
// call that moved the account into Locked.
type FailedLogin struct {
	ShouldLock        bool      `json:"shouldLock"`
	LockedNow         bool      `json:"lockedNow"`
	AttemptsRemaining int       `json:"attemptsRemaining"`
	LockoutUntil      time.Time `json:"lockoutUntil,omitempty"`
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// Manager implements the session and lockout state machine over a Store.
type Manager struct {
	cfg      Config
	store    Store
	tokens   *jwt.Manager
	recorder audit.Recorder
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewManager wires a Manager. A nil recorder discards events.
func NewManager(cfg Config, store Store, tokens *jwt.Manager, recorder audit.Recorder, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = def.MaxFailedAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = def.LockoutDuration
	}
	if cfg.RefreshThreshold <= 0 {
		cfg.RefreshThreshold = def.RefreshThreshold
	}
	if cfg.CleanupBatch <= 0 {
		cfg.CleanupBatch = def.CleanupBatch
	}
	if store == nil {
		store = NewMemoryStore()
	}
	if recorder == nil {
		recorder = audit.Discard{}
	}
	m := &Manager{
		cfg:      cfg,
		store:    store,
		tokens:   tokens,
		recorder: recorder,
		logger:   zap.NewNop(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

func validUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrInvalidUser
	}
	return nil
}

// CreateSession opens a new session for id, replacing any previous one, and records
// session_created. A locked account is refused with ErrAccountLocked; a lapsed lock
// is cleared first.
func (m *Manager) CreateSession(ctx context.Context, id Identity, meta audit.Meta) (Issued, error) {
	if err := validUser(id.UserID); err != nil {
		return Issued{}, err
	}
	sessionID := m.newID()
	token, expiresAt, err := m.tokens.Create(jwt.Subject{
		UserID:    id.UserID,
		Username:  id.Username,
		Role:      id.Role,
		SessionID: sessionID,
	})
	if err != nil {
		return Issued{}, err
	}

	now := m.now()
	var replaced string
	_, err = m.store.Update(ctx, id.UserID, func(rec *Record, _ bool) (bool, error) {
		if rec.Locked(now) {
			return false, ErrAccountLocked
		}
		if rec.LockLapsed(now) {
			rec.clearLock()
		}
		replaced = ""
		if rec.HasSession(now) {
			replaced = rec.CurrentSessionID
		}
		rec.Username = id.Username
		rec.Role = id.Role
		rec.CurrentSessionID = sessionID
		rec.SessionExpiresAt = expiresAt
		rec.LastTokenRefresh = now
		return true, nil
	})
	if err != nil {
		return Issued{}, err
	}

	details := map[string]string{
		"sessionId": sessionID,
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	}
	if replaced != "" {
		details["replacedSessionId"] = replaced
	}
	_, err = m.recorder.RecordEvent(ctx, id.UserID, audit.ActionSessionCreated, audit.StatusSuccess, withDetails(meta, details))
	if err != nil {
		return Issued{}, err
	}
	return Issued{Token: token, SessionID: sessionID, ExpiresAt: expiresAt}, nil
}

// RefreshToken re-signs a token for the user's current session, keeping the
// session id and extending its expiry. oldToken may be expired but must carry a
// valid signature and name the live session.
func (m *Manager) RefreshToken(ctx context.Context, userID, oldToken string, meta audit.Meta) (Issued, error) {
	if err := validUser(userID); err != nil {
		return Issued{}, err
	}
	claims, err := m.tokens.ParseAllowExpired(oldToken)
	if err != nil || claims.UserID != userID {
		return Issued{}, ErrInvalidToken
	}

	now := m.now()
	var issued Issued
	_, err = m.store.Update(ctx, userID, func(rec *Record, exists bool) (bool, error) {
		if !exists || !rec.SessionActive(claims.SessionID, now) {
			return false, ErrNoActiveSession
		}
		token, expiresAt, err := m.tokens.Create(jwt.Subject{
			UserID:    userID,
			Username:  rec.Username,
			Role:      rec.Role,
			SessionID: rec.CurrentSessionID,
		})
		if err != nil {
			return false, err
		}
		issued = Issued{Token: token, SessionID: rec.CurrentSessionID, ExpiresAt: expiresAt}
		rec.SessionExpiresAt = expiresAt
		rec.LastTokenRefresh = now
		return true, nil
	})
	if err != nil {
		return Issued{}, err
	}

	_, err = m.recorder.RecordEvent(ctx, userID, audit.ActionTokenRefresh, audit.StatusSuccess, withDetails(meta, map[string]string{
		"sessionId": issued.SessionID,
		"expiresAt": issued.ExpiresAt.UTC().Format(time.RFC3339),
	}))
	if err != nil {
		return Issued{}, err
	}
	return issued, nil
}

// ExpireSession clears the user's session when sessionID is empty or matches the
// current one. It is idempotent and records session_expired only when it cleared
// something.
func (m *Manager) ExpireSession(ctx context.Context, userID, sessionID, reason string) (bool, error) {
	return m.expire(ctx, userID, sessionID, reason, false)
}

func (m *Manager) expire(ctx context.Context, userID, sessionID, reason string, onlyIfStale bool) (bool, error) {
	if err := validUser(userID); err != nil {
		return false, err
	}
	now := m.now()
	var cleared string
	_, err := m.store.Update(ctx, userID, func(rec *Record, _ bool) (bool, error) {
		cleared = ""
		if rec.CurrentSessionID == "" {
			return false, nil
		}
		if sessionID != "" && rec.CurrentSessionID != sessionID {
			return false, nil
		}
		if onlyIfStale && now.Before(rec.SessionExpiresAt) {
			return false, nil
		}
		cleared = rec.CurrentSessionID
		rec.clearSession()
		return true, nil
	})
	if err != nil || cleared == "" {
		return false, err
	}

	if reason == "" {
		reason = "logout"
	}
	_, err = m.recorder.RecordEvent(ctx, userID, audit.ActionSessionExpired, audit.StatusSuccess, audit.Meta{
		Details: map[string]string{"sessionId": cleared, "reason": reason},
	})
	return true, err
}

// ValidateSession reports whether sessionID is the user's current unexpired
// session.
func (m *Manager) ValidateSession(ctx context.Context, userID, sessionID string) (bool, error) {
	rec, err := m.store.Get(ctx, userID)
	if errors.Is(err, ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.SessionActive(sessionID, m.now()), nil
}

// ValidateToken verifies token and that it names the user's current session.
// Expired tokens return jwt.ErrTokenExpired; any other verification failure is
// wrapped in ErrInvalidToken.
func (m *Manager) ValidateToken(ctx context.Context, token string) (*jwt.SessionClaims, error) {
	claims, err := m.tokens.Parse(token)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	ok, err := m.ValidateSession(ctx, claims.UserID, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionInvalid
	}
	return claims, nil
}

// NeedsRefresh reports whether token expires within the refresh threshold.
func (m *Manager) NeedsRefresh(token string) (bool, error) {
	claims, err := m.tokens.ParseAllowExpired(token)
	if err != nil {
		return false, ErrInvalidToken
	}
	if claims.ExpiresAt == nil {
		return true, nil
	}
	return claims.ExpiresAt.Time.Sub(m.now()) < m.cfg.RefreshThreshold, nil
}

// HandleFailedLogin counts a failed login and locks the account when the count
// reaches MaxFailedAttempts, recording account_locked. An account that is already
// locked is left untouched.
func (m *Manager) HandleFailedLogin(ctx context.Context, userID string, meta audit.Meta) (FailedLogin, error) {
	if err := validUser(userID); err != nil {
		return FailedLogin{}, err
	}
	now := m.now()
	var (
		out       FailedLogin
		lockedNow bool
		attempts  int
	)
	_, err := m.store.Update(ctx, userID, func(rec *Record, _ bool) (bool, error) {
		lockedNow = false
		if rec.Locked(now) {
			out = FailedLogin{ShouldLock: true, AttemptsRemaining: 0, LockoutUntil: rec.LockoutUntil}
			return false, nil
		}
		if rec.LockLapsed(now) {
			rec.clearLock()
		}
		rec.FailedLoginAttempts++
		rec.LastFailedLogin = now
		attempts = rec.FailedLoginAttempts
		if rec.FailedLoginAttempts >= m.cfg.MaxFailedAttempts {
			rec.IsLocked = true
			rec.LockoutUntil = now.Add(m.cfg.LockoutDuration)
			lockedNow = true
			out = FailedLogin{ShouldLock: true, LockedNow: true, AttemptsRemaining: 0, LockoutUntil: rec.LockoutUntil}
			return true, nil
		}
		out = FailedLogin{AttemptsRemaining: m.cfg.MaxFailedAttempts - rec.FailedLoginAttempts}
		return true, nil
	})
	if err != nil {
		return FailedLogin{}, err
	}

	if lockedNow {
		m.logger.Info("account locked", zap.String("user_id", userID), zap.Time("until", out.LockoutUntil))
		_, err = m.recorder.RecordEvent(ctx, userID, audit.ActionAccountLocked, audit.StatusSuccess, withDetails(meta, map[string]string{
			"failedAttempts": strconv.Itoa(attempts),
			"lockoutUntil":   out.LockoutUntil.UTC().Format(time.RFC3339),
		}))
	}
	return out, err
}

// ResetFailedLogins zeroes the failure counter and clears any lock, as after a
// successful login.
func (m *Manager) ResetFailedLogins(ctx context.Context, userID string) error {
	if err := validUser(userID); err != nil {
		return err
	}
	_, err := m.store.Update(ctx, userID, func(rec *Record, exists bool) (bool, error) {
		if !exists || (rec.FailedLoginAttempts == 0 && !rec.IsLocked) {
			return false, nil
		}
		rec.clearLock()
		return true, nil
	})
	return err
}

// IsAccountLocked reports whether the lock is in force. A lock whose lockoutUntil
// has passed is cleared as a side effect and reported as unlocked.
func (m *Manager) IsAccountLocked(ctx context.Context, userID string) (bool, error) {
	rec, err := m.store.Get(ctx, userID)
	if errors.Is(err, ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	now := m.now()
	if rec.Locked(now) {
		return true, nil
	}
	if !rec.LockLapsed(now) {
		return false, nil
	}

	locked := false
	_, err = m.store.Update(ctx, userID, func(rec *Record, _ bool) (bool, error) {
		if rec.Locked(now) {
			locked = true
			return false, nil
		}
		if !rec.LockLapsed(now) {
			return false, nil
		}
		rec.clearLock()
		return true, nil
	})
	if err != nil {
		return false, err
	}
	if !locked {
		m.logger.Debug("lapsed lock cleared", zap.String("user_id", userID))
	}
	return locked, nil
}

// UnlockAccount clears the lock state unconditionally and records
// account_unlocked.
func (m *Manager) UnlockAccount(ctx context.Context, userID, unlockedBy string) error {
	if err := validUser(userID); err != nil {
		return err
	}
	wasLocked := false
	_, err := m.store.Update(ctx, userID, func(rec *Record, exists bool) (bool, error) {
		wasLocked = rec.IsLocked
		if !exists {
			return false, nil
		}
		rec.clearLock()
		return true, nil
	})
	if err != nil {
		return err
	}
	_, err = m.recorder.RecordEvent(ctx, unlockedBy, audit.ActionAccountUnlocked, audit.StatusSuccess, audit.Meta{
		Details: map[string]string{
			"userId":     userID,
			"unlockedBy": unlockedBy,
			"wasLocked":  strconv.FormatBool(wasLocked),
		},
	})
	return err
}

// Status returns the stored record for userID.
func (m *Manager) Status(ctx context.Context, userID string) (Record, error) {
	if err := validUser(userID); err != nil {
		return Record{}, err
	}
	return m.store.Get(ctx, userID)
}

// CleanupExpired expires every session whose expiry has passed with reason
// "cleanup". Sessions renewed between listing and expiry are left alone.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	ids, err := m.store.ListExpired(ctx, m.now(), m.cfg.CleanupBatch)
	if err != nil {
		return 0, err
	}
	expired := 0
	var errs []error
	for _, id := range ids {
		ok, err := m.expire(ctx, id, "", "cleanup", true)
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			expired++
		}
	}
	if expired > 0 {
		m.logger.Info("expired sessions cleaned up", zap.Int("count", expired))
	}
	return expired, errors.Join(errs...)
}

func withDetails(meta audit.Meta, extra map[string]string) audit.Meta {
	merged := make(map[string]string, len(meta.Details)+len(extra))
	for k, v := range meta.Details {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	meta.Details = merged
	return meta
}
