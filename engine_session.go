package goSentinel

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"github.com/MrEthical07/goSentinel/audit"
	"github.com/MrEthical07/goSentinel/jwt"
	"github.com/MrEthical07/goSentinel/session"
	"github.com/MrEthical07/goSentinel/threat"
)

// RecordLoginFailure feeds a failed login for userID from ip into both the attempt
// tracker and the account lockout counter, and records a failed login event.
//
// A brute-force or suspicious pattern applies the threat policy to ip; reaching the
// failure limit locks the account. An unparseable ip skips attempt tracking but
// still counts against the account.
func (e *Engine) RecordLoginFailure(ctx context.Context, userID, ip string, meta audit.Meta) (LoginFailure, error) {
	if err := validUserID(userID); err != nil {
		return LoginFailure{}, err
	}
	meta = metaFromContext(ctx, meta)
	if meta.SourceIP == "" {
		meta.SourceIP = ip
	}
	e.metrics.Inc(MetricLoginFailure)

	var (
		out  LoginFailure
		errs []error
	)
	res, outcome, err := e.threats.RecordAttempt(ctx, ip, userID, meta)
	switch {
	case errors.Is(err, threat.ErrInvalidIP):
		e.logger.Debug("login failure without usable source ip", zap.String("user_id", userID))
	case err != nil:
		errs = append(errs, err)
	}
	out.AttemptCount = res.Count
	out.BruteForce = res.BruteForce
	out.Suspicious = res.Suspicious
	out.IPBlocked = outcome.Blocked
	if res.BruteForce {
		e.metrics.Inc(MetricBruteForceDetected)
	}
	if outcome.Blocked {
		e.metrics.Inc(MetricAutoBlock)
	} else if outcome.Action == threat.ActionFlag {
		e.metrics.Inc(MetricSuspiciousFlagged)
	}

	fl, err := e.sessions.HandleFailedLogin(ctx, userID, meta)
	if err != nil {
		return out, errors.Join(append(errs, err)...)
	}
	out.ShouldLock = fl.ShouldLock
	out.AttemptsRemaining = fl.AttemptsRemaining
	out.LockoutUntil = fl.LockoutUntil
	if fl.LockedNow {
		e.metrics.Inc(MetricAccountLocked)
	}

	failed := withDetail(meta, "attemptsRemaining", strconv.Itoa(fl.AttemptsRemaining))
	if _, err := e.recorder.RecordEvent(ctx, userID, audit.ActionLogin, audit.StatusFailure, failed); err != nil {
		errs = append(errs, err)
	}
	return out, errors.Join(errs...)
}

// RecordLoginSuccess opens a session for a user whose credentials were accepted
// upstream. A locked account is refused with ErrAccountLocked and a failed login
// event; otherwise the failure counter and the attempt window for ip are reset.
func (e *Engine) RecordLoginSuccess(ctx context.Context, id session.Identity, ip string, meta audit.Meta) (session.Issued, error) {
	if err := validUserID(id.UserID); err != nil {
		return session.Issued{}, err
	}
	meta = metaFromContext(ctx, meta)
	if meta.SourceIP == "" {
		meta.SourceIP = ip
	}

	locked, err := e.sessions.IsAccountLocked(ctx, id.UserID)
	if err != nil {
		return session.Issued{}, err
	}
	if locked {
		e.metrics.Inc(MetricLoginLocked)
		refused := withDetail(meta, "reason", "account_locked")
		if _, err := e.recorder.RecordEvent(ctx, id.UserID, audit.ActionLogin, audit.StatusFailure, refused); err != nil {
			return session.Issued{}, errors.Join(ErrAccountLocked, err)
		}
		return session.Issued{}, ErrAccountLocked
	}

	if err := e.sessions.ResetFailedLogins(ctx, id.UserID); err != nil {
		return session.Issued{}, err
	}
	e.threats.ResetAttempts(ip, id.UserID)

	issued, err := e.CreateSession(ctx, id, meta)
	if err != nil {
		return session.Issued{}, err
	}
	if _, err := e.recorder.RecordEvent(ctx, id.UserID, audit.ActionLogin, audit.StatusSuccess, withDetail(meta, "sessionId", issued.SessionID)); err != nil {
		return issued, err
	}
	e.metrics.Inc(MetricLoginSuccess)
	return issued, nil
}

// CreateSession opens a session, replacing any previous one for the user.
func (e *Engine) CreateSession(ctx context.Context, id session.Identity, meta audit.Meta) (session.Issued, error) {
	issued, err := e.sessions.CreateSession(ctx, id, metaFromContext(ctx, meta))
	if err != nil {
		return session.Issued{}, err
	}
	e.metrics.Inc(MetricSessionCreated)
	return issued, nil
}

// RefreshToken re-signs the token of the user's live session.
func (e *Engine) RefreshToken(ctx context.Context, userID, token string, meta audit.Meta) (session.Issued, error) {
	issued, err := e.sessions.RefreshToken(ctx, userID, token, metaFromContext(ctx, meta))
	if err != nil {
		return session.Issued{}, err
	}
	e.metrics.Inc(MetricSessionRefreshed)
	return issued, nil
}

// ExpireSession ends the user's session when sessionID is empty or current. It
// reports whether a session was cleared.
func (e *Engine) ExpireSession(ctx context.Context, userID, sessionID, reason string) (bool, error) {
	changed, err := e.sessions.ExpireSession(ctx, userID, sessionID, reason)
	if changed {
		e.metrics.Inc(MetricSessionExpired)
	}
	return changed, err
}

// ValidateSession reports whether sessionID is the user's live session.
func (e *Engine) ValidateSession(ctx context.Context, userID, sessionID string) (bool, error) {
	return e.sessions.ValidateSession(ctx, userID, sessionID)
}

// ValidateToken verifies a bearer token and its session.
func (e *Engine) ValidateToken(ctx context.Context, token string) (*jwt.SessionClaims, error) {
	return e.sessions.ValidateToken(ctx, token)
}

// NeedsRefresh reports whether token is within the refresh threshold of expiry.
func (e *Engine) NeedsRefresh(token string) (bool, error) {
	return e.sessions.NeedsRefresh(token)
}

// HandleFailedLogin counts a failed login against the account only.
// RecordLoginFailure is the usual entry point.
func (e *Engine) HandleFailedLogin(ctx context.Context, userID string, meta audit.Meta) (session.FailedLogin, error) {
	fl, err := e.sessions.HandleFailedLogin(ctx, userID, metaFromContext(ctx, meta))
	if fl.LockedNow {
		e.metrics.Inc(MetricAccountLocked)
	}
	return fl, err
}

// ResetFailedLogins clears the failure counter and any lock.
func (e *Engine) ResetFailedLogins(ctx context.Context, userID string) error {
	return e.sessions.ResetFailedLogins(ctx, userID)
}

// IsAccountLocked reports whether the account lock is in force, clearing a lapsed
// lock as a side effect.
func (e *Engine) IsAccountLocked(ctx context.Context, userID string) (bool, error) {
	return e.sessions.IsAccountLocked(ctx, userID)
}

// UnlockAccount clears the lock unconditionally.
func (e *Engine) UnlockAccount(ctx context.Context, userID, unlockedBy string) error {
	if err := e.sessions.UnlockAccount(ctx, userID, unlockedBy); err != nil {
		return err
	}
	e.metrics.Inc(MetricAccountUnlocked)
	return nil
}

// AccountStatus returns the stored session and lockout record.
func (e *Engine) AccountStatus(ctx context.Context, userID string) (session.Record, error) {
	return e.sessions.Status(ctx, userID)
}

// CleanupSessions expires sessions past their expiry with reason "cleanup".
func (e *Engine) CleanupSessions(ctx context.Context) (int, error) {
	n, err := e.sessions.CleanupExpired(ctx)
	e.metrics.Add(MetricSessionCleanup, uint64(n))
	return n, err
}

func validUserID(userID string) error {
	if userID == "" {
		return ErrInvalidUser
	}
	return nil
}

func withDetail(meta audit.Meta, key, value string) audit.Meta {
	details := make(map[string]string, len(meta.Details)+1)
	for k, v := range meta.Details {
		details[k] = v
	}
	details[key] = value
	meta.Details = details
	return meta
}
