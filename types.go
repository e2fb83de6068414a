package goSentinel

import (
	"net/http"
	"time"

	"github.com/MrEthical07/goSentinel/audit"
	"github.com/MrEthical07/goSentinel/detector"
	"github.com/MrEthical07/goSentinel/ledger"
	"github.com/MrEthical07/goSentinel/threat"
)

// Rejection codes reported by SecurityCheck.
const (
	CodeIPBlocked             = "IP_BLOCKED"
	CodeSQLInjection          = "SQL_INJECTION_DETECTED"
	CodeXSS                   = "XSS_DETECTED"
	CodeLDAPInjection         = "LDAP_INJECTION_DETECTED"
	CodeNoSQLInjection        = "NOSQL_INJECTION_DETECTED"
	CodeCommandInjection      = "COMMAND_INJECTION_DETECTED"
	CodePathTraversal         = "PATH_TRAVERSAL_DETECTED"
	CodeSSRF                  = "SSRF_DETECTED"
	CodeXXE                   = "XXE_DETECTED"
	CodeInformationDisclosure = "INFORMATION_DISCLOSURE_DETECTED"
	CodeSuspiciousActivity    = "SUSPICIOUS_ACTIVITY_DETECTED"
	CodeCSRF                  = "CSRF_DETECTED"
)

// Request is the part of an inbound request that SecurityCheck inspects.
type Request struct {
	Method   string
	Path     string
	Body     []byte
	Headers  http.Header
	SourceIP string
	// PeerIP is the transport peer. CSRF direct-call exemptions are decided on it,
	// never on forwarded headers. Empty means SourceIP.
	PeerIP string
}

// Decision is the outcome of SecurityCheck. A rejection is an outcome, not an
// error.
type Decision struct {
	Allowed bool `json:"allowed"`
	// Code is one of the Code* constants when Allowed is false.
	Code string `json:"code,omitempty"`
	// Status is the HTTP status a transport should answer with: 403 for blocked IPs
	// and CSRF, 400 for payload detections.
	Status   int               `json:"status,omitempty"`
	Message  string            `json:"message,omitempty"`
	Category detector.Category `json:"category,omitempty"`
	// Blocked reports whether this request caused the source IP to be blocked.
	Blocked bool   `json:"blocked,omitempty"`
	EventID string `json:"eventId,omitempty"`
}

// Rejected reports whether the request must not proceed.
func (d Decision) Rejected() bool {
	return !d.Allowed
}

func allow() Decision {
	return Decision{Allowed: true}
}

func reject(code string, status int, message string) Decision {
	return Decision{Code: code, Status: status, Message: message}
}

// LoginFailure is the combined outcome of RecordLoginFailure.
type LoginFailure struct {
	ShouldLock        bool      `json:"shouldLock"`
	AttemptsRemaining int       `json:"attemptsRemaining"`
	LockoutUntil      time.Time `json:"lockoutUntil,omitempty"`
	AttemptCount      int       `json:"attemptCount"`
	BruteForce        bool      `json:"bruteForce"`
	Suspicious        bool      `json:"suspicious"`
	IPBlocked         bool      `json:"ipBlocked"`
}

// Stats is an operational summary across components.
type Stats struct {
	Threat             threat.Stats      `json:"threat"`
	EventsRecorded     uint64            `json:"eventsRecorded"`
	Anchoring          audit.AnchorStats `json:"anchoring"`
	Ledger             *ledger.Stats     `json:"ledger,omitempty"`
	BlockStoreFailures uint64            `json:"blockStoreFailures"`
	TrackedAttemptKeys int               `json:"trackedAttemptKeys"`
}
