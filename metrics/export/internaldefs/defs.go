package internaldefs

import (
	goSentinel "github.com/MrEthical07/goSentinel"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   goSentinel.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for exporters.
type HistogramDef struct {
	ID   goSentinel.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter.
var CounterDefs = []CounterDef{
	{ID: goSentinel.MetricSecurityCheck, Name: "sentinel_security_check_total", Help: "Requests screened by SecurityCheck."},
	{ID: goSentinel.MetricRequestAllowed, Name: "sentinel_request_allowed_total", Help: "Requests that passed every check."},
	{ID: goSentinel.MetricRejectedBlocked, Name: "sentinel_rejected_blocked_total", Help: "Requests rejected because the source IP is blocked."},
	{ID: goSentinel.MetricRejectedAttack, Name: "sentinel_rejected_attack_total", Help: "Requests rejected by an attack signature."},
	{ID: goSentinel.MetricRejectedCSRF, Name: "sentinel_rejected_csrf_total", Help: "Requests rejected by origin validation."},
	{ID: goSentinel.MetricAutoBlock, Name: "sentinel_auto_block_total", Help: "Blocks issued by the threat policy."},
	{ID: goSentinel.MetricManualBlock, Name: "sentinel_manual_block_total", Help: "Operator blocks."},
	{ID: goSentinel.MetricUnblock, Name: "sentinel_unblock_total", Help: "Unblocks that removed a live entry."},
	{ID: goSentinel.MetricSuspiciousFlagged, Name: "sentinel_suspicious_flagged_total", Help: "IPs added to the suspicious set."},
	{ID: goSentinel.MetricBruteForceDetected, Name: "sentinel_brute_force_detected_total", Help: "Login attempts classified as brute force."},
	{ID: goSentinel.MetricLoginSuccess, Name: "sentinel_login_success_total", Help: "Successful logins."},
	{ID: goSentinel.MetricLoginFailure, Name: "sentinel_login_failure_total", Help: "Failed logins."},
	{ID: goSentinel.MetricLoginLocked, Name: "sentinel_login_locked_total", Help: "Logins refused because the account is locked."},
	{ID: goSentinel.MetricAccountLocked, Name: "sentinel_account_locked_total", Help: "Account lock transitions."},
	{ID: goSentinel.MetricAccountUnlocked, Name: "sentinel_account_unlocked_total", Help: "Manual account unlocks."},
	{ID: goSentinel.MetricSessionCreated, Name: "sentinel_session_created_total", Help: "Created sessions."},
	{ID: goSentinel.MetricSessionRefreshed, Name: "sentinel_session_refreshed_total", Help: "Refreshed session tokens."},
	{ID: goSentinel.MetricSessionExpired, Name: "sentinel_session_expired_total", Help: "Explicitly expired sessions."},
	{ID: goSentinel.MetricSessionCleanup, Name: "sentinel_session_cleanup_total", Help: "Sessions expired by the cleanup sweep."},
	{ID: goSentinel.MetricEventRecorded, Name: "sentinel_event_recorded_total", Help: "Audit events written to the primary store."},
	{ID: goSentinel.MetricEventRecordFailed, Name: "sentinel_event_record_failed_total", Help: "Audit writes that failed."},
	{ID: goSentinel.MetricAnchorFailed, Name: "sentinel_anchor_failed_total", Help: "Failed ledger appends."},
	{ID: goSentinel.MetricVerifyVerified, Name: "sentinel_verify_verified_total", Help: "Integrity checks that matched the ledger."},
	{ID: goSentinel.MetricVerifyTampered, Name: "sentinel_verify_tampered_total", Help: "Integrity checks that found a hash mismatch."},
	{ID: goSentinel.MetricVerifyNotInLedger, Name: "sentinel_verify_not_in_ledger_total", Help: "Integrity checks without a ledger anchor."},
	{ID: goSentinel.MetricBlockStoreFailure, Name: "sentinel_block_store_failure_total", Help: "Block store errors absorbed by fail-open reads."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSentinel.MetricSecurityCheckLatency, Name: "sentinel_security_check_latency_seconds", Help: "SecurityCheck latency histogram."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The engine keeps
// one more bucket for +Inf.
var HistogramUpperBounds = []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05}

// HistogramBoundSuffix names each bucket, +Inf last, for exporters without native
// histograms.
var HistogramBoundSuffix = []string{
	"0_0005",
	"0_001",
	"0_0025",
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"inf",
}

// AnchorDroppedName is the counter for anchors dropped by a full queue.
const AnchorDroppedName = "sentinel_anchor_dropped_total"

// AnchorDroppedHelp describes AnchorDroppedName.
const AnchorDroppedHelp = "Ledger anchors dropped because the anchoring queue was full."

// NormalizeBuckets pads or truncates raw to the fixed bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
