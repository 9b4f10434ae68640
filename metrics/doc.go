// Package metrics holds the engine's in-process counters and the validate
// latency histogram. Counters are lock-free and padded to a cache line.
//
// Exporters under metrics/export read a [Snapshot] on each scrape; they never
// mutate counters.
package metrics
