// Command restauthd serves a restauth Engine over HTTP.
//
// Configuration is read from the YAML file given with -config. The auth
// sections are described by restauth.Config; the server section selects
// the listen address and the store backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/restauth"
	"github.com/MrEthical07/restauth/internal/httpapi"
	promexport "github.com/MrEthical07/restauth/metrics/export/prometheus"
	"github.com/MrEthical07/restauth/store/memory"
	"github.com/MrEthical07/restauth/store/postgres"
	"github.com/MrEthical07/restauth/store/redisstore"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "restauth.yaml", "path to the YAML configuration file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	if err := run(*configPath, logger); err != nil {
		logger.WithError(err).Fatal("restauthd stopped")
	}
}

func run(configPath string, logger *logrus.Logger) error {
	srv, err := loadServerConfig(configPath)
	if err != nil {
		return err
	}
	level, err := logrus.ParseLevel(srv.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logger.SetLevel(level)

	cfg, err := restauth.LoadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder := restauth.New().
		WithConfig(cfg).
		WithLogger(logger.WithField("component", "restauth")).
		WithAuditSink(restauth.NewLogrusSink(logger.WithField("component", "audit")))

	closeStore, err := attachStore(ctx, builder, srv, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Init(ctx); err != nil {
		return fmt.Errorf("initialise engine: %w", err)
	}

	opts := httpapi.Options{
		Logger:     logger.WithField("component", "http"),
		TrustProxy: srv.TrustProxy,
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = promexport.New(engine).Handler()
	}

	server := &http.Server{
		Addr:              srv.Addr,
		Handler:           httpapi.NewRouter(engine, opts),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{"addr": srv.Addr, "store": srv.Store}).Info("restauthd listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), srv.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// attachStore wires the configured backend into b and returns its closer.
// The redis backend also backs the failed-login counter.
func attachStore(ctx context.Context, b *restauth.Builder, srv serverConfig, logger logrus.FieldLogger) (func(), error) {
	switch srv.Store {
	case storeMemory:
		logger.Warn("Using the in-memory store; data is lost on restart")
		b.WithStore(memory.New())
		return func() {}, nil

	case storeRedis:
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{srv.RedisAddr}})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("%w: %v", restauth.ErrStoreUnavailable, err)
		}
		b.WithStore(redisstore.New(client, srv.RedisPrefix)).WithRedis(client)
		return func() { _ = client.Close() }, nil

	case storePostgres:
		store, err := postgres.Open(ctx, srv.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		b.WithStore(store)
		return func() { _ = store.Close() }, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", srv.Store)
}
