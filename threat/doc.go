// Package threat owns the blocked-IP and suspicious-IP sets and turns detector and
// attempt-window outcomes into allow, flag or block decisions.
//
// # Architecture boundaries
//
// Blocks are persisted through a Store (memory or Redis) with an absolute expiry.
// An entry whose expiry has passed is never treated as blocking, whether or not a
// sweep has removed it yet. The suspicious set and attempt windows are volatile and
// per-process.
//
// Which trigger leads to which action is a Policy value that can be replaced at
// runtime.
//
// # What this package must NOT do
//
//   - Inspect request payloads. Classification belongs to package detector.
//   - Retry failed store or audit writes.
//   - Treat an expired entry as live.
package threat
