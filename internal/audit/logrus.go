package audit

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogrusSink writes audit events as structured log entries. Failed events
// are logged at warning level, successful ones at info.
type LogrusSink struct {
	logger logrus.FieldLogger
}

func NewLogrusSink(logger logrus.FieldLogger) *LogrusSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusSink{logger: logger}
}

func (s *LogrusSink) Emit(_ context.Context, event Event) {
	fields := logrus.Fields{
		"audit":   event.EventType,
		"success": event.Success,
	}
	if event.IdentityID != "" {
		fields["identity_id"] = event.IdentityID
	}
	if event.Login != "" {
		fields["login"] = event.Login
	}
	if event.TokenID != "" {
		fields["jti"] = event.TokenID
	}
	if event.IP != "" {
		fields["ip"] = event.IP
	}
	if event.Error != "" {
		fields["error"] = event.Error
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := s.logger.WithFields(fields)
	if event.Success {
		entry.Info("audit event")
		return
	}
	entry.Warn("audit event")
}
