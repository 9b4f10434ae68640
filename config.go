package restauth

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/restauth/password"
	"gopkg.in/yaml.v3"
)

// Second factor modes.
const (
	SecondFactorNone = "None"
	SecondFactorTOTP = "TOTP"
)

// Config is the complete engine configuration. It is copied into the Engine
// at Build time and never mutated afterwards.
type Config struct {
	Security SecurityConfig  `yaml:"security"`
	Token    TokenConfig     `yaml:"token"`
	TOTP     TOTPConfig      `yaml:"totp"`
	Password password.Config `yaml:"password"`
	Lockout  LockoutConfig   `yaml:"lockout"`
	Roles    RolesConfig     `yaml:"roles"`
	Location LocationConfig  `yaml:"location"`
	Audit    AuditConfig     `yaml:"audit"`
	Metrics  MetricsConfig   `yaml:"metrics"`
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds the login and password policy switches. Day counts
// of zero disable the corresponding check.
type SecurityConfig struct {
	RegisterFailedLogin           bool   `yaml:"register_failed_login"`
	ForceFirstPasswordChange      bool   `yaml:"force_first_password_change"`
	VerifyPasswordStrength        bool   `yaml:"verify_password_strength"`
	MaxPasswordValidity           int    `yaml:"max_password_validity"`
	DisableUnusedCredentialsAfter int    `yaml:"disable_unused_credentials_after"`
	MaxLoginAttempts              int    `yaml:"max_login_attempts"`
	SecondFactor                  string `yaml:"second_factor_authentication"`
	AllowAccessTokenParameter     bool   `yaml:"allow_access_token_parameter"`
}

// TOTPEnabled reports whether logins require a TOTP code.
func (s SecurityConfig) TOTPEnabled() bool {
	return strings.EqualFold(s.SecondFactor, SecondFactorTOTP)
}

// LockoutEnabled reports whether failed logins are counted and enforced.
func (s SecurityConfig) LockoutEnabled() bool {
	return s.RegisterFailedLogin && s.MaxLoginAttempts > 0
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures bearer strings. ShortTTL is the sliding expiration
// of access tokens; LongTTL is the hard cap of every bearer string and the
// expiration of non-access tokens.
type TokenConfig struct {
	ShortTTL       time.Duration `yaml:"short_ttl"`
	LongTTL        time.Duration `yaml:"long_ttl"`
	SigningMethod  string        `yaml:"signing_method"`
	Secret         string        `yaml:"secret"`
	PrivateKeyFile string        `yaml:"private_key_file"`
	PublicKeyFile  string        `yaml:"public_key_file"`
	PrivateKey     []byte        `yaml:"-"`
	PublicKey      []byte        `yaml:"-"`
	Issuer         string        `yaml:"issuer"`
	Leeway         time.Duration `yaml:"leeway"`
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig configures the second factor. SecretKey seeds the per-identity
// secrets and Issuer is the project title shown by authenticator apps.
type TOTPConfig struct {
	Issuer    string `yaml:"issuer"`
	SecretKey string `yaml:"secret_key"`
	Digits    int    `yaml:"digits"`
	Period    int    `yaml:"period"`
	Algorithm string `yaml:"algorithm"`
	Skew      int    `yaml:"skew"`
	QRSize    int    `yaml:"qr_size"`
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig configures the failed-login counter. A zero Window keeps
// failures until the next successful login.
type LockoutConfig struct {
	Window      time.Duration `yaml:"window"`
	RedisPrefix string        `yaml:"redis_prefix"`
}

/*
====================================
ROLES CONFIG
====================================
*/

// RolesConfig lists the roles created by Engine.Init and the account
// injected into an empty store.
type RolesConfig struct {
	Default         []Role `yaml:"default"`
	DefaultRole     string `yaml:"default_role"`
	AdminRole       string `yaml:"admin_role"`
	DefaultUser     string `yaml:"default_user"`
	DefaultPassword string `yaml:"default_password"`
}

/*
====================================
LOCATION CONFIG
====================================
*/

// LocationConfig configures the best-effort IP to location lookup recorded
// with every token.
type LocationConfig struct {
	Enabled       bool          `yaml:"enabled"`
	CacheSize     int           `yaml:"cache_size"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	LookupTimeout time.Duration `yaml:"lookup_timeout"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a configuration with every policy switch off, a
// one week sliding window and a thirty day hard cap. Secrets are left empty.
func DefaultConfig() Config {
	return Config{
		Security: SecurityConfig{
			SecondFactor: SecondFactorNone,
		},
		Token: TokenConfig{
			ShortTTL:      7 * 24 * time.Hour,
			LongTTL:       30 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "restauth",
		},
		TOTP: TOTPConfig{
			Issuer:    "restauth",
			Digits:    6,
			Period:    30,
			Algorithm: "SHA1",
			Skew:      1,
			QRSize:    256,
		},
		Password: password.DefaultConfig(),
		Lockout: LockoutConfig{
			RedisPrefix: "flc:",
		},
		Roles: RolesConfig{
			Default: []Role{
				{Name: "admin_root", Description: "Administrator"},
				{Name: "staff_user", Description: "Staff"},
				{Name: "normal_user", Description: "User"},
			},
			DefaultRole: "normal_user",
			AdminRole:   "admin_root",
			DefaultUser: "user@nomail.org",
		},
		Location: LocationConfig{
			Enabled:       true,
			CacheSize:     1024,
			CacheTTL:      time.Hour,
			LookupTimeout: 500 * time.Millisecond,
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = cloneBytes(cfg.Token.PrivateKey)
	out.Token.PublicKey = cloneBytes(cfg.Token.PublicKey)
	out.Roles.Default = append([]Role(nil), cfg.Roles.Default...)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first inconsistency in c.
func (c *Config) Validate() error {
	if c.Token.ShortTTL <= 0 {
		return errors.New("Token ShortTTL must be > 0")
	}
	if c.Token.LongTTL < c.Token.ShortTTL {
		return errors.New("Token LongTTL must be >= ShortTTL")
	}
	switch strings.ToLower(c.Token.SigningMethod) {
	case "hs256":
		if c.Token.Secret == "" && len(c.Token.PrivateKey) == 0 {
			return errors.New("hs256 requires Token Secret")
		}
	case "ed25519":
		if len(c.Token.PublicKey) == 0 {
			return errors.New("ed25519 requires Token PublicKey")
		}
		if len(c.Token.PrivateKey) == 0 {
			return errors.New("ed25519 requires Token PrivateKey")
		}
	default:
		return fmt.Errorf("unsupported token signing method %q", c.Token.SigningMethod)
	}

	if c.Security.MaxLoginAttempts < 0 {
		return errors.New("Security MaxLoginAttempts must be >= 0")
	}
	if c.Security.MaxPasswordValidity < 0 || c.Security.DisableUnusedCredentialsAfter < 0 {
		return errors.New("Security day counts must be >= 0")
	}
	switch {
	case c.Security.SecondFactor == "", strings.EqualFold(c.Security.SecondFactor, SecondFactorNone):
	case c.Security.TOTPEnabled():
		if c.TOTP.SecretKey == "" {
			return errors.New("TOTP SecretKey is required when the TOTP second factor is enabled")
		}
	default:
		return fmt.Errorf("unsupported second factor %q", c.Security.SecondFactor)
	}

	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("TOTP Digits must be between 6 and 8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("TOTP Skew must be between 0 and 2")
	}
	if _, err := hmacFunc(c.TOTP.Algorithm); err != nil {
		return err
	}

	if c.Lockout.Window < 0 {
		return errors.New("Lockout Window must be >= 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}
	return nil
}

/*
====================================
LOADING
====================================
*/

// LoadConfig resolves configuration in priority order: defaults, then the
// YAML file at path (a missing file is not an error), then AUTH_*
// environment variables. Key files named by the token section are read last.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if cfg.Token.PrivateKeyFile != "" {
		key, err := os.ReadFile(cfg.Token.PrivateKeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("read private key: %w", err)
		}
		cfg.Token.PrivateKey = key
	}
	if cfg.Token.PublicKeyFile != "" {
		key, err := os.ReadFile(cfg.Token.PublicKeyFile)
		if err != nil {
			return Config{}, fmt.Errorf("read public key: %w", err)
		}
		cfg.Token.PublicKey = key
	}

	return cfg, nil
}

func applyEnv(cfg *Config) error {
	var err error
	s := &cfg.Security

	if s.RegisterFailedLogin, err = envBool("AUTH_REGISTER_FAILED_LOGIN", s.RegisterFailedLogin); err != nil {
		return err
	}
	if s.ForceFirstPasswordChange, err = envBool("AUTH_FORCE_FIRST_PASSWORD_CHANGE", s.ForceFirstPasswordChange); err != nil {
		return err
	}
	if s.VerifyPasswordStrength, err = envBool("AUTH_VERIFY_PASSWORD_STRENGTH", s.VerifyPasswordStrength); err != nil {
		return err
	}
	if s.AllowAccessTokenParameter, err = envBool("AUTH_ALLOW_ACCESS_TOKEN_PARAMETER", s.AllowAccessTokenParameter); err != nil {
		return err
	}
	if s.MaxPasswordValidity, err = envInt("AUTH_MAX_PASSWORD_VALIDITY", s.MaxPasswordValidity); err != nil {
		return err
	}
	if s.DisableUnusedCredentialsAfter, err = envInt("AUTH_DISABLE_UNUSED_CREDENTIALS_AFTER", s.DisableUnusedCredentialsAfter); err != nil {
		return err
	}
	if s.MaxLoginAttempts, err = envInt("AUTH_MAX_LOGIN_ATTEMPTS", s.MaxLoginAttempts); err != nil {
		return err
	}
	s.SecondFactor = envOrDefault("AUTH_SECOND_FACTOR_AUTHENTICATION", s.SecondFactor)

	if cfg.Token.ShortTTL, err = envDuration("AUTH_SHORT_TTL", cfg.Token.ShortTTL); err != nil {
		return err
	}
	if cfg.Token.LongTTL, err = envDuration("AUTH_LONG_TTL", cfg.Token.LongTTL); err != nil {
		return err
	}
	cfg.Token.Secret = envOrDefault("AUTH_JWT_SECRET", cfg.Token.Secret)
	cfg.TOTP.SecretKey = envOrDefault("AUTH_TOTP_SECRET", cfg.TOTP.SecretKey)
	cfg.TOTP.Issuer = envOrDefault("AUTH_PROJECT_TITLE", cfg.TOTP.Issuer)
	cfg.Roles.DefaultUser = envOrDefault("AUTH_DEFAULT_USER", cfg.Roles.DefaultUser)
	cfg.Roles.DefaultPassword = envOrDefault("AUTH_DEFAULT_PASSWORD", cfg.Roles.DefaultPassword)
	return nil
}

func envOrDefault(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	v := envOrDefault(key, "")
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func envInt(key string, fallback int) (int, error) {
	v := envOrDefault(key, "")
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := envOrDefault(key, "")
	if v == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}
