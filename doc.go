// Package goSentinel is a security telemetry engine: it screens requests for
// injection payloads and forged origins, turns repeated failures into blocks and
// account lockouts, and records every decision in an audit trail whose records are
// anchored in an append-only ledger for tamper detection.
//
// Engine methods are safe to call from multiple goroutines after initialization
// through [Builder.Build].
//
// # Architecture boundaries
//
// goSentinel is the public surface. It exposes [Engine], [Builder], [Config] and
// value types (Decision, LoginFailure, Stats, MetricsSnapshot). Detection lives in
// detector, blocking and the trigger policy in threat, sessions and lockout in
// session, the event trail in audit and anchors in ledger. The engine composes them
// and owns the backends the builder opened.
//
// # What this package must NOT do
//
//   - Verify passwords or store credentials. Callers authenticate and report the
//     outcome through RecordLoginSuccess and RecordLoginFailure.
//   - Let anchoring failures fail or delay a recorded event.
//   - Treat a block store outage as a block. IsBlocked fails open and counts the
//     failure.
//
// # Performance contract
//
// SecurityCheck on an allowed request performs one block store read and one pass
// of the compiled signatures. Recording an event is one primary store insert;
// anchoring runs on a background queue.
package goSentinel
