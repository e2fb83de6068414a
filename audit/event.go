package audit

import (
	"errors"
	"maps"
	"strings"
	"time"
)

var (
	// ErrInvalidEvent is returned when an event is missing required fields.
	ErrInvalidEvent = errors.New("invalid audit event")
	// ErrEventNotFound is returned when no event exists for an id.
	ErrEventNotFound = errors.New("audit event not found")
	// ErrEventExists is returned when inserting a duplicate event id.
	ErrEventExists = errors.New("audit event already exists")
	// ErrAuditStoreUnavailable wraps primary store backend failures.
	ErrAuditStoreUnavailable = errors.New("audit store unavailable")
	// ErrInvalidTriage is returned for an unknown triage status.
	ErrInvalidTriage = errors.New("invalid triage status")
	// ErrPipelineClosed is returned after Close.
	ErrPipelineClosed = errors.New("audit pipeline closed")
)

// Action is the closed set of recorded event kinds.
type Action string

const (
	ActionLogin              Action = "login"
	ActionLogout             Action = "logout"
	ActionPasswordChange     Action = "password_change"
	ActionProfileUpdate      Action = "profile_update"
	ActionAccessDenied       Action = "access_denied"
	ActionSystemError        Action = "system_error"
	ActionSecurityEvent      Action = "security_event"
	ActionSessionCreated     Action = "session_created"
	ActionSessionExpired     Action = "session_expired"
	ActionTokenRefresh       Action = "token_refresh"
	ActionAccountLocked      Action = "account_locked"
	ActionAccountUnlocked    Action = "account_unlocked"
	ActionUserCreated        Action = "user_created"
	ActionUserDeleted        Action = "user_deleted"
	ActionRoleChanged        Action = "role_changed"
	ActionSettingsChanged    Action = "settings_changed"
	ActionBackupCreated      Action = "backup_created"
	ActionBackupRestored     Action = "backup_restored"
	ActionSuspiciousActivity Action = "suspicious_activity"
	ActionBruteForceDetected Action = "brute_force_detected"
	ActionSQLInjection       Action = "sql_injection_attempt"
	ActionXSS                Action = "xss_attempt"
	ActionCSRF               Action = "csrf_attempt"
	ActionIPBlocked          Action = "ip_blocked"
	ActionIPUnblocked        Action = "ip_unblocked"
)

var actions = map[Action]struct{}{
	ActionLogin: {}, ActionLogout: {}, ActionPasswordChange: {}, ActionProfileUpdate: {},
	ActionAccessDenied: {}, ActionSystemError: {}, ActionSecurityEvent: {},
	ActionSessionCreated: {}, ActionSessionExpired: {}, ActionTokenRefresh: {},
	ActionAccountLocked: {}, ActionAccountUnlocked: {}, ActionUserCreated: {},
	ActionUserDeleted: {}, ActionRoleChanged: {}, ActionSettingsChanged: {},
	ActionBackupCreated: {}, ActionBackupRestored: {}, ActionSuspiciousActivity: {},
	ActionBruteForceDetected: {}, ActionSQLInjection: {}, ActionXSS: {}, ActionCSRF: {},
	ActionIPBlocked: {}, ActionIPUnblocked: {},
}

// Valid reports whether a is part of the closed action set.
func (a Action) Valid() bool {
	_, ok := actions[a]
	return ok
}

// DetailEventType carries the original event name when it was folded into
// ActionSecurityEvent.
const DetailEventType = "eventType"

// ActionFor maps an event name such as "ldap_injection_attempt" onto the closed
// action set. Names outside the set become ActionSecurityEvent and ok is false;
// callers record the name under DetailEventType.
func ActionFor(name string) (action Action, ok bool) {
	switch name {
	case "brute_force_attack":
		return ActionBruteForceDetected, true
	}
	a := Action(strings.TrimSpace(name))
	if a.Valid() {
		return a, true
	}
	return ActionSecurityEvent, false
}

// Status is the outcome of a recorded action.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
	StatusDetected Status = "detected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusFailure, StatusDetected:
		return true
	}
	return false
}

// TriageStatus is the downstream review state kept in an event's details.
type TriageStatus string

const (
	TriageInvestigating TriageStatus = "investigating"
	TriageEscalated     TriageStatus = "escalated"
	TriageResolved      TriageStatus = "resolved"
)

// Valid reports whether t is a known triage status.
func (t TriageStatus) Valid() bool {
	switch t {
	case TriageInvestigating, TriageEscalated, TriageResolved:
		return true
	}
	return false
}

// Detail keys written by UpdateTriage.
const (
	DetailTriageStatus = "triageStatus"
	DetailTriagedBy    = "triagedBy"
	DetailTriagedAt    = "triagedAt"
)

// Event is one immutable security event. ActorID is empty for system-originated
// events.
type Event struct {
	ID        string            `json:"id"`
	ActorID   string            `json:"actorId,omitempty"`
	Action    Action            `json:"action"`
	Status    Status            `json:"status"`
	SourceIP  string            `json:"sourceIP"`
	UserAgent string            `json:"userAgent,omitempty"`
	Platform  string            `json:"platform,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Meta is the request context attached to a recorded event.
type Meta struct {
	SourceIP  string
	UserAgent string
	Platform  string
	Details   map[string]string
}

// Query filters List results. Zero fields match everything. Results are ordered
// newest first.
type Query struct {
	ActorID  string
	Action   Action
	Status   Status
	SourceIP string
	Since    time.Time
	Until    time.Time
	Offset   int
	Limit    int
}

func (q Query) match(e Event) bool {
	if q.ActorID != "" && e.ActorID != q.ActorID {
		return false
	}
	if q.Action != "" && e.Action != q.Action {
		return false
	}
	if q.Status != "" && e.Status != q.Status {
		return false
	}
	if q.SourceIP != "" && e.SourceIP != q.SourceIP {
		return false
	}
	if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && !e.Timestamp.Before(q.Until) {
		return false
	}
	return true
}

func cloneEvent(e Event) Event {
	e.Details = maps.Clone(e.Details)
	return e
}

func validateEvent(e Event) error {
	if e.ID == "" || !e.Action.Valid() || !e.Status.Valid() || e.Timestamp.IsZero() {
		return ErrInvalidEvent
	}
	return nil
}
