package geoip

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLocateSpecialAddresses(t *testing.T) {
	r := NewWithLookup(8, time.Minute, time.Second, func(context.Context, string) ([]string, error) {
		t.Fatal("lookup must not run for special addresses")
		return nil, nil
	})
	ctx := context.Background()

	assert.Equal(t, Localhost, r.Locate(ctx, "127.0.0.1"))
	assert.Equal(t, Localhost, r.Locate(ctx, "::1"))
	assert.Equal(t, PrivateNetwork, r.Locate(ctx, "10.1.2.3"))
	assert.Equal(t, PrivateNetwork, r.Locate(ctx, "192.168.0.10"))
	assert.Equal(t, "", r.Locate(ctx, ""))
	assert.Equal(t, "", r.Locate(ctx, "not-an-ip"))
}

func TestLocateCachesAnswers(t *testing.T) {
	var calls atomic.Int32
	r := NewWithLookup(8, time.Minute, time.Second, func(_ context.Context, addr string) ([]string, error) {
		calls.Add(1)
		if addr == "8.8.8.8" {
			return []string{"dns.google."}, nil
		}
		return nil, errors.New("no such host")
	})
	ctx := context.Background()

	assert.Equal(t, "dns.google", r.Locate(ctx, "8.8.8.8"))
	assert.Equal(t, "dns.google", r.Locate(ctx, "8.8.8.8"))
	assert.Equal(t, "", r.Locate(ctx, "1.2.3.4"))
	assert.Equal(t, "", r.Locate(ctx, "1.2.3.4"))

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, r.Len())
}

func TestLocateSkipsCacheWhenCallerCancelled(t *testing.T) {
	r := NewWithLookup(8, time.Minute, time.Second, func(ctx context.Context, _ string) ([]string, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, "", r.Locate(ctx, "8.8.4.4"))
	assert.Equal(t, 0, r.Len())
}
