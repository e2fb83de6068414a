// Package ledger is a single-writer, hash-chained, append-only store of audit
// anchors used to detect later modification of the primary audit log.
//
// # Chain
//
// Every appended [Anchor] is sealed with a sequence number, the chain hash of its
// predecessor and its own chain hash over (prevHash, hash, logId, sequence,
// blockTimestamp). [Ledger.VerifyChain] recomputes the chain from genesis, so editing
// or removing any stored anchor is itself detectable.
//
// # Architecture boundaries
//
// The ledger stores hashes computed by the audit pipeline. It does NOT know how an
// audit event is hashed, and it never reads the primary audit store.
//
// # What this package must NOT do
//
//   - Mutate or delete an anchor once appended.
//   - Accept a second anchor for a logId that is already present.
//   - Import audit or goSentinel (no upward imports).
package ledger
