package session

import "time"

// Record is the per-user session and lockout state.
type Record struct {
	UserID   string
	Username string
	Role     string

	CurrentSessionID string
	SessionExpiresAt time.Time
	LastTokenRefresh time.Time

	FailedLoginAttempts int
	LastFailedLogin     time.Time
	IsLocked            bool
	LockoutUntil        time.Time
}

// SessionActive reports whether sessionID is the current, unexpired session.
func (r Record) SessionActive(sessionID string, now time.Time) bool {
	return sessionID != "" && r.CurrentSessionID == sessionID && now.Before(r.SessionExpiresAt)
}

// HasSession reports whether any unexpired session is recorded.
func (r Record) HasSession(now time.Time) bool {
	return r.CurrentSessionID != "" && now.Before(r.SessionExpiresAt)
}

// Locked reports whether the lock is still in force at now.
func (r Record) Locked(now time.Time) bool {
	return r.IsLocked && now.Before(r.LockoutUntil)
}

// LockLapsed reports whether the record is marked locked but the lockout is over.
func (r Record) LockLapsed(now time.Time) bool {
	return r.IsLocked && !now.Before(r.LockoutUntil)
}

func (r *Record) clearSession() {
	r.CurrentSessionID = ""
	r.SessionExpiresAt = time.Time{}
}

func (r *Record) clearLock() {
	r.FailedLoginAttempts = 0
	r.IsLocked = false
	r.LockoutUntil = time.Time{}
}
