package goSentinel

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %d counters", len(snap.Counters))
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricAutoBlock)
	m.Inc(MetricAutoBlock)
	m.Add(MetricAutoBlock, 3)

	if got := m.Value(MetricAutoBlock); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricSecurityCheck)
	m.Observe(MetricSecurityCheckLatency, time.Millisecond)
	if m.Value(MetricSecurityCheck) != 0 || m.Enabled() {
		t.Fatal("nil metrics must be inert")
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricSecurityCheck)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricSecurityCheck); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		300 * time.Microsecond,
		time.Millisecond,
		2 * time.Millisecond,
		5 * time.Millisecond,
		8 * time.Millisecond,
		20 * time.Millisecond,
		50 * time.Millisecond,
		200 * time.Millisecond,
	}
	for _, d := range observations {
		m.Observe(MetricSecurityCheckLatency, d)
	}

	buckets := m.Snapshot().Histograms[MetricSecurityCheckLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsHistogramOnlyForLatency(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricSecurityCheck, time.Millisecond)

	snap := m.Snapshot()
	if len(snap.Histograms) != 1 {
		t.Fatalf("expected only the latency histogram, got %d", len(snap.Histograms))
	}
	for _, v := range snap.Histograms[MetricSecurityCheckLatency] {
		if v != 0 {
			t.Fatal("non-latency observation leaked into the histogram")
		}
	}
}

func TestMetricsLatencyDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricSecurityCheckLatency, time.Millisecond)
	if _, ok := m.Snapshot().Histograms[MetricSecurityCheckLatency]; ok {
		t.Fatal("histogram must be absent when latency is disabled")
	}
}

func TestEngineMetricsDisabled(t *testing.T) {
	e, _, done := newTestEngine(t, func(c *Config) { c.Metrics.Enabled = false })
	defer done()

	e.SecurityCheck(context.Background(), Request{Method: http.MethodGet, SourceIP: "192.0.2.1"})
	snap := e.MetricsSnapshot()
	if len(snap.Counters) != 0 {
		t.Fatalf("expected no counters, got %+v", snap.Counters)
	}
}

func TestSecurityCheckRecordsLatency(t *testing.T) {
	e, _, done := newTestEngine(t, nil)
	defer done()

	for i := 0; i < 3; i++ {
		e.SecurityCheck(context.Background(), Request{Method: http.MethodGet, SourceIP: "192.0.2.1"})
	}
	var total uint64
	for _, v := range e.MetricsSnapshot().Histograms[MetricSecurityCheckLatency] {
		total += v
	}
	if total != 3 {
		t.Fatalf("expected 3 latency observations, got %d", total)
	}
}
