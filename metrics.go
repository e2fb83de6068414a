package goSentinel

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricSecurityCheck counts every SecurityCheck call.
	MetricSecurityCheck MetricID = iota
	// MetricRequestAllowed counts requests that passed every stage.
	MetricRequestAllowed
	// MetricRejectedBlocked counts requests rejected because the source IP is blocked.
	MetricRejectedBlocked
	// MetricRejectedAttack counts requests rejected by a signature match.
	MetricRejectedAttack
	// MetricRejectedCSRF counts requests rejected by origin validation.
	MetricRejectedCSRF
	// MetricAutoBlock counts blocks issued by the threat policy.
	MetricAutoBlock
	// MetricManualBlock counts operator blocks.
	MetricManualBlock
	// MetricUnblock counts unblocks that removed a live entry.
	MetricUnblock
	// MetricSuspiciousFlagged counts IPs added to the suspicious set.
	MetricSuspiciousFlagged
	// MetricBruteForceDetected counts attempts classified as brute force.
	MetricBruteForceDetected
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess
	// MetricLoginFailure counts failed logins.
	MetricLoginFailure
	// MetricLoginLocked counts logins refused because the account is locked.
	MetricLoginLocked
	// MetricAccountLocked counts lock transitions.
	MetricAccountLocked
	// MetricAccountUnlocked counts manual unlocks.
	MetricAccountUnlocked
	// MetricSessionCreated counts created sessions.
	MetricSessionCreated
	// MetricSessionRefreshed counts refreshed tokens.
	MetricSessionRefreshed
	// MetricSessionExpired counts explicit session expiries.
	MetricSessionExpired
	// MetricSessionCleanup counts sessions expired by the cleanup sweep.
	MetricSessionCleanup
	// MetricEventRecorded counts audit events written to the primary store.
	MetricEventRecorded
	// MetricEventRecordFailed counts audit writes that failed.
	MetricEventRecordFailed
	// MetricAnchorFailed counts failed ledger appends.
	MetricAnchorFailed
	// MetricVerifyVerified counts VERIFIED integrity checks.
	MetricVerifyVerified
	// MetricVerifyTampered counts TAMPERED integrity checks.
	MetricVerifyTampered
	// MetricVerifyNotInLedger counts NOT_IN_LEDGER integrity checks.
	MetricVerifyNotInLedger
	// MetricBlockStoreFailure counts block store errors absorbed by fail-open reads.
	MetricBlockStoreFailure
	// MetricSecurityCheckLatency is the SecurityCheck latency histogram.
	MetricSecurityCheckLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free engine counters. A nil or disabled Metrics ignores
// every write.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates Metrics from cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add adds n to id.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount || n == 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// set overwrites id with a value mirrored from another component.
func (m *Metrics) set(id MetricID, v uint64) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.StoreUint64(&m.counters[id].value, v)
}

// Observe records d in the histogram for id. Only MetricSecurityCheckLatency
// carries a histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id != MetricSecurityCheckLatency {
		return
	}
	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current count for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, the latency histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricSecurityCheckLatency].buckets[i])
		}
		s.Histograms[MetricSecurityCheckLatency] = buckets
	}
	return s
}

// Bucket upper bounds: 0.5, 1, 2.5, 5, 10, 25, 50 ms, +Inf.
func bucketIndex(d time.Duration) int {
	us := d.Microseconds()

	switch {
	case us <= 500:
		return 0
	case us <= 1000:
		return 1
	case us <= 2500:
		return 2
	case us <= 5000:
		return 3
	case us <= 10000:
		return 4
	case us <= 25000:
		return 5
	case us <= 50000:
		return 6
	default:
		return 7
	}
}
