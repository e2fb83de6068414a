// Package middleware adapts goSentinel.Engine to net/http.
//
// # Handlers
//
//   - [SecurityCheck] screens each request for blocked sources, attack payloads
//     and forged origins.
//   - [RequireSession] admits requests with a valid bearer token for the user's
//     current session, optionally restricted to roles.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Every decision is
// made by the Engine; the middleware only reads the request and writes the JSON
// rejection.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly.
//   - Access Redis or any store.
//   - Consume the request body without restoring it for the next handler.
package middleware
