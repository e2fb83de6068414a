package goSentinel

import (
	"errors"

	"github.com/MrEthical07/goSentinel/audit"
	"github.com/MrEthical07/goSentinel/jwt"
	"github.com/MrEthical07/goSentinel/ledger"
	"github.com/MrEthical07/goSentinel/session"
	"github.com/MrEthical07/goSentinel/threat"
)

var (
	// ErrBuilderUsed is returned when Build is called twice on one Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrRedisRequired is returned when a redis store is configured without a client
	// or address.
	ErrRedisRequired = errors.New("redis client required")
	// ErrEngineClosed is returned by write paths after Close.
	ErrEngineClosed = errors.New("engine closed")
	// ErrInvalidRequest is returned for a malformed admin or engine call.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidIP is returned for addresses that do not parse.
	ErrInvalidIP = threat.ErrInvalidIP
	// ErrMissingReason is returned by Block and Unblock without a reason.
	ErrMissingReason = threat.ErrMissingReason
	// ErrBlockStoreUnavailable wraps block store failures.
	ErrBlockStoreUnavailable = threat.ErrBlockStoreUnavailable

	// ErrAccountLocked is returned when a locked account tries to log in.
	ErrAccountLocked = session.ErrAccountLocked
	// ErrNoActiveSession is returned by RefreshToken without a live session.
	ErrNoActiveSession = session.ErrNoActiveSession
	// ErrInvalidToken is returned for tokens that do not verify.
	ErrInvalidToken = session.ErrInvalidToken
	// ErrSessionInvalid is returned for a valid token whose session was replaced or
	// expired.
	ErrSessionInvalid = session.ErrSessionInvalid
	// ErrTokenExpired is returned for a correctly signed, expired token.
	ErrTokenExpired = jwt.ErrTokenExpired
	// ErrInvalidUser is returned for an empty user id.
	ErrInvalidUser = session.ErrInvalidUser

	// ErrInvalidEvent is returned for unknown actions or statuses.
	ErrInvalidEvent = audit.ErrInvalidEvent
	// ErrEventNotFound is returned for unknown event ids.
	ErrEventNotFound = audit.ErrEventNotFound
	// ErrInvalidTriage is returned for unknown triage statuses.
	ErrInvalidTriage = audit.ErrInvalidTriage
	// ErrLedgerUnavailable wraps ledger failures seen during verification.
	ErrLedgerUnavailable = ledger.ErrLedgerUnavailable
)
