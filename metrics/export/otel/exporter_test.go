package otel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	goSentinel "github.com/MrEthical07/goSentinel"
	"github.com/MrEthical07/goSentinel/threat"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goSentinel.MetricsSnapshot
	dropped  uint64
	stats    goSentinel.Stats
	statsErr error
}

func (f *fakeSource) MetricsSnapshot() goSentinel.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goSentinel.MetricsSnapshot{
		Counters:   make(map[goSentinel.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goSentinel.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AnchorDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func (f *fakeSource) Stats(context.Context) (goSentinel.Stats, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.stats, f.statsErr
}

func newMeter(t *testing.T) (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return reader, provider
}

// point returns the value of name's data point carrying key=value, or the only
// point when key is empty.
func point(rm metricdata.ResourceMetrics, name, key, value string) (int64, bool) {
	match := func(set attribute.Set) bool {
		if key == "" {
			return set.Len() == 0
		}
		v, ok := set.Value(attribute.Key(key))
		return ok && v.AsString() == value
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					if match(dp.Attributes) {
						return dp.Value, true
					}
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					if match(dp.Attributes) {
						return dp.Value, true
					}
				}
			}
		}
	}
	return 0, false
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	return rm
}

func TestExporterGroupsSentinelCounters(t *testing.T) {
	reader, provider := newMeter(t)

	src := &fakeSource{
		snapshot: goSentinel.MetricsSnapshot{
			Counters: map[goSentinel.MetricID]uint64{
				goSentinel.MetricRequestAllowed:     40,
				goSentinel.MetricRejectedAttack:     2,
				goSentinel.MetricRejectedCSRF:       1,
				goSentinel.MetricAutoBlock:          3,
				goSentinel.MetricManualBlock:        1,
				goSentinel.MetricBruteForceDetected: 5,
				goSentinel.MetricLoginLocked:        4,
				goSentinel.MetricAccountLocked:      2,
				goSentinel.MetricEventRecorded:      9,
				goSentinel.MetricVerifyTampered:     1,
				goSentinel.MetricBlockStoreFailure:  6,
			},
			Histograms: map[goSentinel.MetricID][]uint64{
				goSentinel.MetricSecurityCheckLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
		stats: goSentinel.Stats{
			Threat:             threat.Stats{BlockedCount: 3, SuspiciousCount: 2},
			TrackedAttemptKeys: 7,
		},
	}

	exp, err := NewFromSource(provider.Meter("sentinel-test"), src)
	if err != nil {
		t.Fatalf("NewFromSource failed: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}()

	rm := collect(t, reader)
	cases := []struct {
		name, key, value string
		want             int64
	}{
		{RequestsName, "outcome", "allowed", 40},
		{RequestsName, "outcome", "attack", 2},
		{RequestsName, "outcome", "csrf", 1},
		{RequestsName, "outcome", "blocked_ip", 0},
		{BlockChangesName, "kind", "auto", 3},
		{BlockChangesName, "kind", "manual", 1},
		{ThreatSignalsName, "signal", "brute_force", 5},
		{LoginsName, "result", "locked", 4},
		{AccountChangesName, "change", "locked", 2},
		{AuditEventsName, "result", "recorded", 9},
		{AnchorsName, "result", "dropped", 1},
		{VerificationsName, "status", "TAMPERED", 1},
		{StoreFailuresName, "", "", 6},
		{LatencyBucketName, "le", "0.0005", 1},
		{LatencyBucketName, "le", "0.05", 7},
		{LatencyBucketName, "le", "+Inf", 8},
		{LatencyCountName, "", "", 8},
		{BlockedIPsName, "", "", 3},
		{SuspiciousIPsName, "", "", 2},
		{TrackedAttemptsName, "", "", 7},
	}
	for _, tc := range cases {
		got, ok := point(rm, tc.name, tc.key, tc.value)
		if !ok || got != tc.want {
			t.Fatalf("%s{%s=%q}: expected %d, got %d (found %v)", tc.name, tc.key, tc.value, tc.want, got, ok)
		}
	}
}

func TestExporterKeepsCountersWhenStatsFail(t *testing.T) {
	reader, provider := newMeter(t)

	src := &fakeSource{
		snapshot: goSentinel.MetricsSnapshot{
			Counters: map[goSentinel.MetricID]uint64{goSentinel.MetricAutoBlock: 2},
		},
		statsErr: errors.New("redis down"),
	}
	exp, err := NewFromSource(provider.Meter("sentinel-test"), src)
	if err != nil {
		t.Fatalf("NewFromSource failed: %v", err)
	}
	defer exp.Close()

	var rm metricdata.ResourceMetrics
	_ = reader.Collect(context.Background(), &rm)
	if v, ok := point(rm, BlockChangesName, "kind", "auto"); !ok || v != 2 {
		t.Fatalf("expected auto blocks 2 despite stats failure, got %d (found %v)", v, ok)
	}
}

func TestExporterRejectsNilSource(t *testing.T) {
	_, provider := newMeter(t)
	meter := provider.Meter("sentinel-test")

	if _, err := NewFromSource(meter, nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := New(meter, nil); !errors.Is(err, ErrNilSource) {
		t.Fatalf("expected ErrNilSource for nil engine, got %v", err)
	}
	if _, err := NewFromSource(nil, &fakeSource{}); !errors.Is(err, ErrNilMeter) {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
}

func TestExporterOverEngine(t *testing.T) {
	reader, provider := newMeter(t)

	cfg := goSentinel.DefaultConfig()
	cfg.JWT.Secret = "0123456789abcdef0123456789abcdef"
	engine, err := goSentinel.New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if _, err := engine.Block(t.Context(), "198.51.100.9", "scanner", "ops"); err != nil {
		t.Fatalf("Block failed: %v", err)
	}

	exp, err := New(provider.Meter("sentinel-test"), engine)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer exp.Close()

	rm := collect(t, reader)
	if v, ok := point(rm, BlockChangesName, "kind", "manual"); !ok || v != 1 {
		t.Fatalf("expected one manual block, got %d (found %v)", v, ok)
	}
	if v, ok := point(rm, BlockedIPsName, "", ""); !ok || v != 1 {
		t.Fatalf("expected one blocked ip, got %d (found %v)", v, ok)
	}
}

func TestExporterConcurrentCollectNoPanic(t *testing.T) {
	reader, provider := newMeter(t)

	src := &fakeSource{
		snapshot: goSentinel.MetricsSnapshot{
			Counters: map[goSentinel.MetricID]uint64{
				goSentinel.MetricRequestAllowed: 1,
			},
		},
	}
	exp, err := NewFromSource(provider.Meter("sentinel-test"), src)
	if err != nil {
		t.Fatalf("NewFromSource failed: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goSentinel.MetricRequestAllowed] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
