// Package session tracks one active session and the failed-login lockout state per
// user, persisted as a compact binary record.
//
// # Binary encoding
//
// Records are stored in a versioned binary format (v1, v2). Older versions are
// decoded and upgraded on the next write; new versions append fields and never
// reinterpret old ones.
//
// # Architecture boundaries
//
// The Manager owns the state machine: NoSession, Active, Expired for sessions and
// Unlocked, Locked for accounts. Stores only guarantee an atomic read-modify-write
// per user. Lock and session expiry are evaluated at read time against the clock;
// the cleanup sweep only removes what reads would already ignore.
//
// # What this package must NOT do
//
//   - Decide whether a request is an attack.
//   - Track more than one concurrent session per user.
//   - Store token strings or credentials.
package session
