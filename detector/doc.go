// Package detector classifies request payloads against a fixed taxonomy of attack
// signatures and validates request origins for CSRF.
//
// # Classification
//
// [Detector.Classify] evaluates categories in a fixed priority order (SQL injection, XSS,
// LDAP injection, NoSQL injection, command injection, path traversal, SSRF, XXE,
// information disclosure) and reports only the first matching category. Each category
// is an ordered list of signatures; any single signature match is a category match.
//
// # Architecture boundaries
//
// This package is a pure function of its input. It owns the signature table, the CSRF
// origin rules, and client classification helpers. It does NOT decide whether an IP
// is blocked, does not emit audit events, and keeps no state between calls.
//
// # What this package must NOT do
//
//   - Import goSentinel, threat, or audit (no upward imports).
//   - Perform I/O or hold mutable package state after init.
//   - Treat an empty payload as a match.
package detector
