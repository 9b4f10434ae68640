// Command restauth-loadtest measures Validate and RefreshToken latency of an
// Engine backed by the Redis store.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/restauth"
	"github.com/MrEthical07/restauth/password"
	"github.com/MrEthical07/restauth/store/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type seededToken struct {
	bearer string
	jti    string
}

func main() {
	var (
		identities  = flag.Int("identities", 1000, "number of identities to seed")
		perIdentity = flag.Int("tokens", 10, "access tokens issued per identity")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 200000, "operations per phase (validate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "ralt:", "store key prefix")
	)
	flag.Parse()

	if *identities <= 0 || *perIdentity <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "identities, tokens, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, err := buildEngine(client, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Printf("seeding %d identities x %d tokens...\n", *identities, *perIdentity)
	startSeed := time.Now()
	tokens, err := seed(ctx, engine, *identities, *perIdentity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runPhase(*ops, *concurrency, 7919, func(r *rand.Rand) error {
		_, err := engine.Validate(ctx, tokens[r.Intn(len(tokens))].bearer)
		return err
	})
	refreshStats := runPhase(*ops, *concurrency, 6151, func(r *rand.Rand) error {
		ok, err := engine.RefreshToken(ctx, tokens[r.Intn(len(tokens))].jti)
		if err == nil && !ok {
			return fmt.Errorf("token not refreshed")
		}
		return err
	})

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)
}

func buildEngine(client redis.UniversalClient, prefix string) (*restauth.Engine, error) {
	cfg := restauth.DefaultConfig()
	cfg.Token.Secret = "loadtest-secret"
	cfg.Location.Enabled = false
	cfg.Metrics.Enabled = true

	hasher, err := password.NewBcrypt(4)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return restauth.New().
		WithConfig(cfg).
		WithStore(redisstore.New(client, prefix)).
		WithRedis(client).
		WithHasher(hasher).
		WithLogger(logger).
		Build()
}

func seed(ctx context.Context, engine *restauth.Engine, identities, perIdentity int) ([]seededToken, error) {
	if err := engine.Init(ctx); err != nil {
		return nil, err
	}
	out := make([]seededToken, 0, identities*perIdentity)
	for i := 0; i < identities; i++ {
		identity, err := engine.CreateIdentity(ctx, restauth.NewIdentity{
			Email:    fmt.Sprintf("user-%d@loadtest.local", i),
			Password: "Aa1+loadtest",
		}, nil)
		if err != nil {
			return nil, err
		}
		for j := 0; j < perIdentity; j++ {
			token, err := engine.IssueToken(ctx, identity, restauth.TokenTypeAccess)
			if err != nil {
				return nil, err
			}
			out = append(out, seededToken{bearer: token.Token, jti: token.JTI})
		}
	}
	return out, nil
}

func runPhase(ops, concurrency int, seedSalt int64, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seedSalt))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
