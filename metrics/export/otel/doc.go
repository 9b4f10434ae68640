// Package otel exports restauth counters through OpenTelemetry asynchronous
// instruments. One callback reads a snapshot per collection cycle.
//
// Callers own the MeterProvider; this package only registers instruments on
// the Meter it is given.
package otel
