// Package prometheus exposes restauth counters through a
// client_golang [prometheus.Collector].
//
// [New] returns an Exporter that can be registered with any registry;
// [Exporter.Handler] serves a private registry for callers that do not
// run one. Counter names are prefixed restauth_*_total and the latency
// histogram is restauth_validate_latency_seconds.
package prometheus
