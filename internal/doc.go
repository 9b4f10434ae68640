// Package internal holds restauth helpers that are not part of the public API.
//
// # Sub-packages
//
//   - audit: asynchronous event dispatch (Dispatcher and sinks)
//   - geoip: cached reverse lookup of client addresses
//   - httpapi: HTTP routes used by cmd/restauthd
//   - limiters: failed-login counters in Redis or memory
package internal
