package password

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedDigest is returned by Verify when the stored digest cannot be parsed.
var ErrMalformedDigest = errors.New("malformed password digest")

// Hasher turns a plaintext password into a salted digest and checks a
// plaintext against a digest. Implementations must be safe for concurrent use.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password string, encodedHash string) (bool, error)
}

const (
	// AlgorithmArgon2 selects the Argon2id hasher.
	AlgorithmArgon2 = "argon2id"
	// AlgorithmBcrypt selects the bcrypt hasher.
	AlgorithmBcrypt = "bcrypt"
)

// Config selects and parameterizes a Hasher.
type Config struct {
	Algorithm  string       `yaml:"algorithm"`
	Argon2     Argon2Config `yaml:"argon2"`
	BcryptCost int          `yaml:"bcrypt_cost"`
}

// DefaultConfig returns an Argon2id configuration.
func DefaultConfig() Config {
	return Config{
		Algorithm: AlgorithmArgon2,
		Argon2:    DefaultArgon2Config(),
	}
}

// New builds the Hasher named by cfg.Algorithm.
func New(cfg Config) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Algorithm)) {
	case "", AlgorithmArgon2:
		return NewArgon2(cfg.Argon2)
	case AlgorithmBcrypt:
		return NewBcrypt(cfg.BcryptCost)
	default:
		return nil, fmt.Errorf("unsupported password algorithm %q", cfg.Algorithm)
	}
}
