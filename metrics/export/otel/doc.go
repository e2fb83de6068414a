// Package otel publishes goSentinel counters as OpenTelemetry instruments.
//
// [New] groups engine counters into attribute-keyed Int64ObservableCounters
// (sentinel.requests by outcome, sentinel.block.changes by kind,
// sentinel.logins by result and so on), exposes the SecurityCheck latency as
// cumulative gauges keyed by le, and reads blocked and suspicious totals from
// [goSentinel.Engine.Stats]. A single callback reads the engine on each
// collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider. Callers supply the Meter; sentinel serve --otel
//     builds one.
//   - Mutate engine state.
package otel
