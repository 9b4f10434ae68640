// Package audit relays security events (logins, lockouts, token revocations,
// password changes) to a sink without blocking the request path.
//
// # Components
//
//   - [Sink]: event consumer ([NoOpSink], [ChannelSink], [JSONWriterSink], [LogrusSink]).
//   - [Dispatcher]: buffered relay that either drops or blocks when full.
//   - [Event]: one audit record.
//
// The engine decides which events to emit; this package only delivers them.
package audit
