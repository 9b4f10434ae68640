package restauth

import (
	"io"

	"github.com/MrEthical07/restauth/internal/audit"
	"github.com/sirupsen/logrus"
)

// AuditEvent is one audit record emitted by the Engine.
type AuditEvent = audit.Event

// AuditSink receives audit events from the Engine's background dispatcher.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// ChannelSink buffers audit events in a channel; see Events.
type ChannelSink = audit.ChannelSink

// NewChannelSink returns a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink writes one JSON object per event to w.
func NewJSONWriterSink(w io.Writer) AuditSink {
	return audit.NewJSONWriterSink(w)
}

// NewLogrusSink writes audit events as structured log entries.
func NewLogrusSink(logger logrus.FieldLogger) AuditSink {
	return audit.NewLogrusSink(logger)
}
