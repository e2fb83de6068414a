// Package admin exposes the engine's operator surface over HTTP.
//
// The router is built on chi with request ids, real client IPs, a zap access
// log, panic recovery, a request timeout and CORS. Replies share one JSON
// envelope: {success, data, error, message}.
//
// # Routes
//
//	GET    /healthz                       liveness, never authenticated
//	GET    /metrics                       Prometheus exposition, never authenticated
//	GET    /stats                         threat, audit and ledger summary
//	GET    /blocked                       live blocks
//	POST   /blocked                       operator block
//	GET    /blocked/{ip}                  one block
//	DELETE /blocked/{ip}?reason=&by=      unblock
//	GET    /suspicious                    flagged IPs
//	DELETE /suspicious                    clear flagged IPs
//	DELETE /suspicious/{ip}               unflag one IP
//	DELETE /attempts                      clear attempt windows
//	GET    /policy                        trigger to action mapping
//	PUT    /policy                        replace the mapping (YAML over defaults)
//	GET    /accounts/{userID}             lockout and session state
//	POST   /accounts/{userID}/unlock      clear a lockout
//	POST   /accounts/{userID}/failed-login
//	POST   /accounts/{userID}/login
//	POST   /sessions                      open a session
//	POST   /sessions/refresh
//	POST   /sessions/validate
//	POST   /sessions/cleanup
//	DELETE /sessions/{userID}?sessionId=&reason=
//	GET    /events                        filtered, newest first
//	POST   /events
//	POST   /events/verify?limit=          verify the newest events
//	GET    /events/{id}
//	PATCH  /events/{id}/triage
//	GET    /events/{id}/verify
//	GET    /ledger/stats
//	GET    /ledger/verify
//	GET    /ledger/anchors?offset=&limit=
//	GET    /ledger/anchors/{id}
//
// Every route other than /healthz and /metrics requires
// "Authorization: Bearer <HTTPConfig.AdminToken>". Without a configured token
// those routes answer 401. CORS is off unless HTTPConfig.AllowedOrigins lists
// origins.
//
// # What this package must NOT do
//
//   - Screen its own traffic with the request detector. Recorded event
//     details legitimately quote attack payloads.
//   - Hold state. Every handler is a thin call into the engine.
//   - Trust forwarding headers. Client addresses come from
//     Engine.ClientIP, which honours HTTPConfig.TrustedProxies only.
package admin
