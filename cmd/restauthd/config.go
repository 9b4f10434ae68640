package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	storeMemory   = "memory"
	storeRedis    = "redis"
	storePostgres = "postgres"
)

type serverConfig struct {
	Addr            string        `yaml:"addr"`
	LogLevel        string        `yaml:"log_level"`
	TrustProxy      bool          `yaml:"trust_proxy"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Store           string        `yaml:"store"`
	RedisAddr       string        `yaml:"redis_addr"`
	RedisPrefix     string        `yaml:"redis_prefix"`
	PostgresDSN     string        `yaml:"postgres_dsn"`
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		Addr:            ":8080",
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
		Store:           storeMemory,
		RedisAddr:       "localhost:6379",
	}
}

// loadServerConfig reads the server section of path. RESTAUTH_STORE,
// RESTAUTH_REDIS_ADDR and RESTAUTH_POSTGRES_DSN override the file.
func loadServerConfig(path string) (serverConfig, error) {
	var file struct {
		Server serverConfig `yaml:"server"`
	}
	file.Server = defaultServerConfig()

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return serverConfig{}, fmt.Errorf("parse config file: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return serverConfig{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := file.Server
	if v := os.Getenv("RESTAUTH_STORE"); v != "" {
		cfg.Store = v
	}
	if v := os.Getenv("RESTAUTH_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("RESTAUTH_POSTGRES_DSN"); v != "" {
		cfg.PostgresDSN = v
	}

	switch cfg.Store {
	case storeMemory, storeRedis:
	case storePostgres:
		if cfg.PostgresDSN == "" {
			return serverConfig{}, errors.New("postgres store requires postgres_dsn")
		}
	default:
		return serverConfig{}, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return cfg, nil
}
