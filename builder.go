package restauth

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/MrEthical07/restauth/internal/audit"
	"github.com/MrEthical07/restauth/internal/geoip"
	"github.com/MrEthical07/restauth/internal/limiters"
	"github.com/MrEthical07/restauth/jwt"
	"github.com/MrEthical07/restauth/metrics"
	"github.com/MrEthical07/restauth/password"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Builder assembles an Engine. A Builder is single use: Build may be
// called once.
type Builder struct {
	config Config
	store  Store
	redis  redis.UniversalClient

	counter   FailureCounter
	hasher    password.Hasher
	locator   Locator
	logger    logrus.FieldLogger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the identity, role and token store. It is required.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithRedis makes the failed-login counter shared through client instead
// of living in process memory. It is ignored when WithFailureCounter is used.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithFailureCounter overrides the failed-login counter.
func (b *Builder) WithFailureCounter(counter FailureCounter) *Builder {
	b.counter = counter
	return b
}

// WithHasher overrides the hasher selected by Config.Password.
func (b *Builder) WithHasher(hasher password.Hasher) *Builder {
	b.hasher = hasher
	return b
}

// WithLocator overrides the reverse DNS location resolver.
func (b *Builder) WithLocator(locator Locator) *Builder {
	b.locator = locator
	return b
}

// WithLogger sets the logger. The default discards everything.
func (b *Builder) WithLogger(logger logrus.FieldLogger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets where audit events go when auditing is enabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock replaces the time source. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the Engine.
//
// Build fails when the configuration is inconsistent, when no store was
// given, or when the hasher or token codec cannot be created from the
// configured parameters.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	hasher := b.hasher
	if hasher == nil {
		h, err := password.New(cfg.Password)
		if err != nil {
			return nil, err
		}
		hasher = h
	}

	signKey := cfg.Token.PrivateKey
	if len(signKey) == 0 && cfg.Token.Secret != "" {
		signKey = []byte(cfg.Token.Secret)
	}
	codec, err := jwt.NewCodec(jwt.Config{
		SigningMethod: jwt.SigningMethod(strings.ToLower(cfg.Token.SigningMethod)),
		PrivateKey:    signKey,
		PublicKey:     cfg.Token.PublicKey,
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	counter := b.counter
	if counter == nil {
		if b.redis != nil {
			counter = limiters.NewRedis(b.redis, cfg.Lockout.RedisPrefix, cfg.Lockout.Window)
		} else {
			counter = limiters.NewMemory(cfg.Lockout.Window).WithClock(now)
		}
	}

	locator := b.locator
	if locator == nil && cfg.Location.Enabled {
		locator = geoip.New(cfg.Location.CacheSize, cfg.Location.CacheTTL, cfg.Location.LookupTimeout)
	}

	logger := b.logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	dispatcher := audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true

	return &Engine{
		config:  cfg,
		store:   b.store,
		hasher:  hasher,
		policy:  password.NewPolicy(hasher),
		codec:   codec.WithClock(now),
		counter: counter,
		locator: locator,
		totp:    newTOTPManager(cfg.TOTP),
		audit:   dispatcher,
		metrics: metrics.New(metrics.Config{
			Enabled:                 cfg.Metrics.Enabled,
			EnableLatencyHistograms: cfg.Metrics.EnableLatencyHistograms,
		}),
		logger: logger,
		now:    now,
	}, nil
}
