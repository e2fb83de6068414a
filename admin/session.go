package admin

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrEthical07/goSentinel/audit"
	"github.com/MrEthical07/goSentinel/session"
)

// AccountStatus is the reply of GET /accounts/{userID}.
type AccountStatus struct {
	UserID              string     `json:"userId"`
	Username            string     `json:"username,omitempty"`
	Role                string     `json:"role,omitempty"`
	Locked              bool       `json:"locked"`
	LockoutUntil        *time.Time `json:"lockoutUntil,omitempty"`
	FailedLoginAttempts int        `json:"failedLoginAttempts"`
	LastFailedLogin     *time.Time `json:"lastFailedLogin,omitempty"`
	SessionActive       bool       `json:"sessionActive"`
	SessionID           string     `json:"sessionId,omitempty"`
	SessionExpiresAt    *time.Time `json:"sessionExpiresAt,omitempty"`
}

// ClientInfo carries the end user's request context when a service reports a
// login on their behalf.
type ClientInfo struct {
	IP        string `json:"ip"`
	UserAgent string `json:"userAgent,omitempty"`
	Platform  string `json:"platform,omitempty"`
}

func (c ClientInfo) meta() audit.Meta {
	return audit.Meta{SourceIP: c.IP, UserAgent: c.UserAgent, Platform: c.Platform}
}

// LoginRequest is the body of POST /accounts/{userID}/login and POST /sessions.
type LoginRequest struct {
	ClientInfo
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	UserID   string `json:"userId,omitempty"`
}

// TokenRequest is the body of POST /sessions/refresh and POST /sessions/validate.
type TokenRequest struct {
	ClientInfo
	UserID string `json:"userId,omitempty"`
	Token  string `json:"token"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (h *handler) accountStatus(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	// IsAccountLocked clears a lapsed lock before the record is read.
	locked, err := h.engine.IsAccountLocked(r.Context(), userID)
	if err != nil {
		h.respondWithError(w, err, "Failed to read account")
		return
	}
	rec, err := h.engine.AccountStatus(r.Context(), userID)
	if err != nil {
		h.respondWithError(w, err, "Failed to read account")
		return
	}

	status := AccountStatus{
		UserID:              userID,
		Username:            rec.Username,
		Role:                rec.Role,
		Locked:              locked,
		FailedLoginAttempts: rec.FailedLoginAttempts,
		LastFailedLogin:     optionalTime(rec.LastFailedLogin),
		SessionID:           rec.CurrentSessionID,
		SessionExpiresAt:    optionalTime(rec.SessionExpiresAt),
	}
	if locked {
		status.LockoutUntil = optionalTime(rec.LockoutUntil)
	}
	if rec.CurrentSessionID != "" {
		status.SessionActive, _ = h.engine.ValidateSession(r.Context(), userID, rec.CurrentSessionID)
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(status, ""))
}

func (h *handler) unlockAccount(w http.ResponseWriter, r *http.Request) {
	by := r.URL.Query().Get("by")
	if err := h.engine.UnlockAccount(r.Context(), chi.URLParam(r, "userID"), by); err != nil {
		h.respondWithError(w, err, "Failed to unlock account")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Account unlocked"))
}

func (h *handler) failedLogin(w http.ResponseWriter, r *http.Request) {
	var req ClientInfo
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.engine.RecordLoginFailure(r.Context(), chi.URLParam(r, "userID"), req.IP, req.meta())
	if err != nil {
		h.respondWithError(w, err, "Failed to record login failure")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(out, "Login failure recorded"))
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := session.Identity{UserID: chi.URLParam(r, "userID"), Username: req.Username, Role: req.Role}
	issued, err := h.engine.RecordLoginSuccess(r.Context(), id, req.IP, req.meta())
	if err != nil {
		h.respondWithError(w, err, "Login refused")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(issued, "Session created"))
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := session.Identity{UserID: req.UserID, Username: req.Username, Role: req.Role}
	issued, err := h.engine.CreateSession(r.Context(), id, req.meta())
	if err != nil {
		h.respondWithError(w, err, "Failed to create session")
		return
	}
	h.respondWithJSON(w, http.StatusCreated, successResponse(issued, "Session created"))
}

func (h *handler) refreshSession(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	issued, err := h.engine.RefreshToken(r.Context(), req.UserID, req.Token, req.meta())
	if err != nil {
		h.respondWithError(w, err, "Failed to refresh session")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(issued, "Session refreshed"))
}

func (h *handler) validateSession(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	claims, err := h.engine.ValidateToken(r.Context(), req.Token)
	if err != nil {
		h.respondWithError(w, err, "Invalid session")
		return
	}
	refresh, _ := h.engine.NeedsRefresh(req.Token)
	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]any{
		"userId":       claims.UserID,
		"username":     claims.Username,
		"role":         claims.Role,
		"sessionId":    claims.SessionID,
		"expiresAt":    claims.ExpiresAt.Time,
		"needsRefresh": refresh,
	}, "Session valid"))
}

func (h *handler) expireSession(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reason := q.Get("reason")
	if reason == "" {
		reason = "admin"
	}
	cleared, err := h.engine.ExpireSession(r.Context(), chi.URLParam(r, "userID"), q.Get("sessionId"), reason)
	if err != nil {
		h.respondWithError(w, err, "Failed to expire session")
		return
	}
	if !cleared {
		h.respondWithJSON(w, http.StatusNotFound, errorResponse(nil, "No matching session"))
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Session expired"))
}

func (h *handler) cleanupSessions(w http.ResponseWriter, r *http.Request) {
	n, err := h.engine.CleanupSessions(r.Context())
	if err != nil {
		h.respondWithError(w, err, "Session cleanup failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]int{"expired": n}, "Session cleanup complete"))
}
