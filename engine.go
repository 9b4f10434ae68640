package restauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/restauth/internal/audit"
	"github.com/MrEthical07/restauth/jwt"
	"github.com/MrEthical07/restauth/metrics"
	"github.com/MrEthical07/restauth/password"
	"github.com/sirupsen/logrus"
)

// Locator resolves a client IP to a human readable location. It is best
// effort: an unknown address yields "".
type Locator interface {
	Locate(ctx context.Context, ip string) string
}

// Engine authenticates identities, manages their bearer tokens and checks
// their roles. It is built once by a Builder and is safe for concurrent use.
type Engine struct {
	config  Config
	store   Store
	hasher  password.Hasher
	policy  *password.Policy
	codec   *jwt.Codec
	counter FailureCounter
	locator Locator
	totp    *totpManager
	audit   *audit.Dispatcher
	metrics *metrics.Metrics
	logger  logrus.FieldLogger
	now     func() time.Time
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// Config returns a copy of the configuration the engine was built with.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// AuditDropped reports audit events discarded because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns the current counter values.
func (e *Engine) MetricsSnapshot() metrics.Snapshot {
	if e == nil || e.metrics == nil {
		return metrics.Snapshot{
			Counters:      map[metrics.ID]uint64{},
			Histograms:    map[metrics.ID][]uint64{},
			HistogramSums: map[metrics.ID]float64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id metrics.ID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.codec == nil {
		return ErrEngineNotReady
	}
	return nil
}

// storeFailure logs a backend error and converts it into the client-facing
// 503 error. Raw backend errors never reach the caller.
func (e *Engine) storeFailure(op string, err error, fields logrus.Fields) error {
	entry := e.logger.WithError(err).WithField("op", op)
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		entry.Warn("Authentication backend call interrupted")
	default:
		entry.Error("Authentication backend unavailable")
	}
	e.metricInc(metrics.StoreUnavailable)
	return errStoreUnavailable()
}

func (e *Engine) locate(ctx context.Context, ip string) string {
	if e.locator == nil || ip == "" {
		return ""
	}
	location := e.locator.Locate(ctx, ip)
	if location == "" {
		e.logger.WithField("ip", ip).Debug("Unable to resolve client location")
	}
	return location
}
