// Package prometheus exposes goSentinel counters through client_golang.
//
// [NewCollector] wraps an [goSentinel.Engine] in a prometheus.Collector that builds
// const metrics from [goSentinel.Engine.MetricsSnapshot] on each scrape. Counter
// names are prefixed sentinel_*_total; the single histogram is
// sentinel_security_check_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry. Callers register the
//     Collector or mount its Handler.
//   - Mutate engine state.
package prometheus
