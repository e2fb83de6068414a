// Package audit records security events to a primary store and mirrors a content
// hash of each event into an append-only ledger so later edits to the primary
// store can be detected.
//
// # Architecture boundaries
//
// The primary store is the record of truth. RecordEvent fails when the primary
// insert fails. Anchoring is handed to a background dispatcher and never blocks or
// fails the caller; a missing anchor is observable only through VerifyIntegrity
// returning NOT_IN_LEDGER.
//
// Severity is derived from action and status at both write and verify time. It is
// never stored.
//
// # What this package must NOT do
//
//   - Retry failed anchors.
//   - Mutate identity or hash-relevant fields after insert. Only the details map may
//     be patched, through UpdateTriage.
//   - Decide whether a request is allowed.
package audit
