package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	goSentinel "github.com/MrEthical07/goSentinel"
	"github.com/MrEthical07/goSentinel/audit"
	"github.com/MrEthical07/goSentinel/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Instrument names.
const (
	RequestsName        = "sentinel.requests"
	BlockChangesName    = "sentinel.block.changes"
	ThreatSignalsName   = "sentinel.threat.signals"
	LoginsName          = "sentinel.logins"
	AccountChangesName  = "sentinel.account.changes"
	SessionsName        = "sentinel.sessions"
	AuditEventsName     = "sentinel.audit.events"
	AnchorsName         = "sentinel.ledger.anchors"
	VerificationsName   = "sentinel.ledger.verifications"
	StoreFailuresName   = "sentinel.block_store.failures"
	LatencyBucketName   = "sentinel.security_check.latency.bucket"
	LatencyCountName    = "sentinel.security_check.latency.count"
	BlockedIPsName      = "sentinel.blocked_ips"
	SuspiciousIPsName   = "sentinel.suspicious_ips"
	TrackedAttemptsName = "sentinel.attempts.tracked_keys"
)

type metricsSource interface {
	MetricsSnapshot() goSentinel.MetricsSnapshot
	AnchorDropped() uint64
	Stats(ctx context.Context) (goSentinel.Stats, error)
}

// series reads one attribute combination of a family from a snapshot.
type series struct {
	attrs metric.ObserveOption
	read  func(snap goSentinel.MetricsSnapshot) uint64
}

type family struct {
	name       string
	help       string
	series     []series
	instrument metric.Int64ObservableCounter
}

// Exporter publishes engine counters as attribute-grouped OTel instruments.
type Exporter struct {
	source       metricsSource
	registration metric.Registration
	families     []*family

	latencyBuckets metric.Int64ObservableGauge
	latencyCount   metric.Int64ObservableGauge
	latencyAttrs   []metric.ObserveOption

	blocked    metric.Int64ObservableGauge
	suspicious metric.Int64ObservableGauge
	tracked    metric.Int64ObservableGauge
}

func counterOf(id goSentinel.MetricID) func(goSentinel.MetricsSnapshot) uint64 {
	return func(snap goSentinel.MetricsSnapshot) uint64 { return snap.Counters[id] }
}

func keyed(key, value string, id goSentinel.MetricID) series {
	return series{
		attrs: metric.WithAttributes(attribute.String(key, value)),
		read:  counterOf(id),
	}
}

func families(source metricsSource) []*family {
	return []*family{
		{
			name: RequestsName,
			help: "Requests screened by SecurityCheck, by outcome.",
			series: []series{
				keyed("outcome", "allowed", goSentinel.MetricRequestAllowed),
				keyed("outcome", "blocked_ip", goSentinel.MetricRejectedBlocked),
				keyed("outcome", "attack", goSentinel.MetricRejectedAttack),
				keyed("outcome", "csrf", goSentinel.MetricRejectedCSRF),
			},
		},
		{
			name: BlockChangesName,
			help: "Block list changes, by kind.",
			series: []series{
				keyed("kind", "auto", goSentinel.MetricAutoBlock),
				keyed("kind", "manual", goSentinel.MetricManualBlock),
				keyed("kind", "unblock", goSentinel.MetricUnblock),
			},
		},
		{
			name: ThreatSignalsName,
			help: "Attempt classifications that raised a threat signal.",
			series: []series{
				keyed("signal", "suspicious", goSentinel.MetricSuspiciousFlagged),
				keyed("signal", "brute_force", goSentinel.MetricBruteForceDetected),
			},
		},
		{
			name: LoginsName,
			help: "Login attempts, by result.",
			series: []series{
				keyed("result", "success", goSentinel.MetricLoginSuccess),
				keyed("result", "failure", goSentinel.MetricLoginFailure),
				keyed("result", "locked", goSentinel.MetricLoginLocked),
			},
		},
		{
			name: AccountChangesName,
			help: "Account lockout transitions.",
			series: []series{
				keyed("change", "locked", goSentinel.MetricAccountLocked),
				keyed("change", "unlocked", goSentinel.MetricAccountUnlocked),
			},
		},
		{
			name: SessionsName,
			help: "Session lifecycle events.",
			series: []series{
				keyed("event", "created", goSentinel.MetricSessionCreated),
				keyed("event", "refreshed", goSentinel.MetricSessionRefreshed),
				keyed("event", "expired", goSentinel.MetricSessionExpired),
				keyed("event", "cleanup", goSentinel.MetricSessionCleanup),
			},
		},
		{
			name: AuditEventsName,
			help: "Audit trail appends, by result.",
			series: []series{
				keyed("result", "recorded", goSentinel.MetricEventRecorded),
				keyed("result", "failed", goSentinel.MetricEventRecordFailed),
			},
		},
		{
			name: AnchorsName,
			help: "Ledger anchors that did not land.",
			series: []series{
				keyed("result", "failed", goSentinel.MetricAnchorFailed),
				{
					attrs: metric.WithAttributes(attribute.String("result", "dropped")),
					read:  func(goSentinel.MetricsSnapshot) uint64 { return source.AnchorDropped() },
				},
			},
		},
		{
			name: VerificationsName,
			help: "Integrity checks, by status.",
			series: []series{
				keyed("status", string(audit.Verified), goSentinel.MetricVerifyVerified),
				keyed("status", string(audit.Tampered), goSentinel.MetricVerifyTampered),
				keyed("status", string(audit.NotInLedger), goSentinel.MetricVerifyNotInLedger),
			},
		},
		{
			name:   StoreFailuresName,
			help:   "Block store errors that fell back to local state.",
			series: []series{{attrs: metric.WithAttributes(), read: counterOf(goSentinel.MetricBlockStoreFailure)}},
		},
	}
}

// New registers sentinel instruments on meter, read from engine on every
// collection.
func New(meter metric.Meter, engine *goSentinel.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewFromSource(meter, engine)
}

// NewFromSource is New over any value exposing the engine's metric accessors.
func NewFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source, families: families(source)}
	observables := make([]metric.Observable, 0, len(e.families)+5)

	for _, f := range e.families {
		ins, err := meter.Int64ObservableCounter(f.name, metric.WithDescription(f.help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", f.name, err)
		}
		f.instrument = ins
		observables = append(observables, ins)
	}

	var err error
	if e.latencyBuckets, err = meter.Int64ObservableGauge(LatencyBucketName,
		metric.WithDescription("Cumulative SecurityCheck latency samples at or under the le bound in seconds.")); err != nil {
		return nil, fmt.Errorf("create gauge %s: %w", LatencyBucketName, err)
	}
	if e.latencyCount, err = meter.Int64ObservableGauge(LatencyCountName,
		metric.WithDescription("SecurityCheck latency samples.")); err != nil {
		return nil, fmt.Errorf("create gauge %s: %w", LatencyCountName, err)
	}
	if e.blocked, err = meter.Int64ObservableGauge(BlockedIPsName,
		metric.WithDescription("IPs currently blocked.")); err != nil {
		return nil, fmt.Errorf("create gauge %s: %w", BlockedIPsName, err)
	}
	if e.suspicious, err = meter.Int64ObservableGauge(SuspiciousIPsName,
		metric.WithDescription("IPs currently flagged suspicious.")); err != nil {
		return nil, fmt.Errorf("create gauge %s: %w", SuspiciousIPsName, err)
	}
	if e.tracked, err = meter.Int64ObservableGauge(TrackedAttemptsName,
		metric.WithDescription("Attempt keys held by the rate tracker.")); err != nil {
		return nil, fmt.Errorf("create gauge %s: %w", TrackedAttemptsName, err)
	}
	observables = append(observables, e.latencyBuckets, e.latencyCount, e.blocked, e.suspicious, e.tracked)

	e.latencyAttrs = make([]metric.ObserveOption, len(internaldefs.HistogramBoundSuffix))
	for i := range e.latencyAttrs {
		le := "+Inf"
		if i < len(internaldefs.HistogramUpperBounds) {
			le = strconv.FormatFloat(internaldefs.HistogramUpperBounds[i], 'g', -1, 64)
		}
		e.latencyAttrs[i] = metric.WithAttributes(attribute.String("le", le))
	}

	registration, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *Exporter) observe(ctx context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for _, f := range e.families {
		for _, s := range f.series {
			o.ObserveInt64(f.instrument, int64(s.read(snap)), s.attrs)
		}
	}

	cumulative := internaldefs.CumulativeBuckets(
		internaldefs.NormalizeBuckets(snap.Histograms[goSentinel.MetricSecurityCheckLatency]))
	for i, v := range cumulative {
		o.ObserveInt64(e.latencyBuckets, int64(v), e.latencyAttrs[i])
	}
	o.ObserveInt64(e.latencyCount, int64(cumulative[len(cumulative)-1]))

	stats, err := e.source.Stats(ctx)
	if err != nil {
		return fmt.Errorf("read engine stats: %w", err)
	}
	o.ObserveInt64(e.blocked, int64(stats.Threat.BlockedCount))
	o.ObserveInt64(e.suspicious, int64(stats.Threat.SuspiciousCount))
	o.ObserveInt64(e.tracked, int64(stats.TrackedAttemptKeys))
	return nil
}

// Close unregisters the callback. The instruments stay on the meter.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
