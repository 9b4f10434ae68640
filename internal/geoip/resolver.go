// Package geoip turns a client IP into the human readable location stored
// with each token. Lookups are best-effort: any failure yields "".
package geoip

import (
	"context"
	"net"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// Localhost is reported for loopback addresses.
	Localhost = "localhost"
	// PrivateNetwork is reported for private and link-local addresses.
	PrivateNetwork = "private network"
)

// LookupFunc resolves an address to host names, like net.Resolver.LookupAddr.
type LookupFunc func(ctx context.Context, addr string) ([]string, error)

// Resolver resolves public addresses by reverse DNS and caches answers,
// including negative ones, for a fixed TTL.
type Resolver struct {
	cache   *lru.LRU[string, string]
	lookup  LookupFunc
	timeout time.Duration
}

// New returns a Resolver backed by net.DefaultResolver.
func New(size int, ttl, timeout time.Duration) *Resolver {
	return NewWithLookup(size, ttl, timeout, net.DefaultResolver.LookupAddr)
}

// NewWithLookup returns a Resolver using lookup for public addresses.
func NewWithLookup(size int, ttl, timeout time.Duration, lookup LookupFunc) *Resolver {
	if size <= 0 {
		size = 1024
	}
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Resolver{
		cache:   lru.NewLRU[string, string](size, nil, ttl),
		lookup:  lookup,
		timeout: timeout,
	}
}

// Locate returns a location label for ip, or "" when none is known.
func (r *Resolver) Locate(ctx context.Context, ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return ""
	}
	switch {
	case parsed.IsLoopback():
		return Localhost
	case parsed.IsPrivate(), parsed.IsLinkLocalUnicast():
		return PrivateNetwork
	}

	key := parsed.String()
	if loc, ok := r.cache.Get(key); ok {
		return loc
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var loc string
	if names, err := r.lookup(lookupCtx, key); err == nil && len(names) > 0 {
		loc = strings.TrimSuffix(names[0], ".")
	} else if ctx.Err() != nil {
		// The caller gave up; do not cache a miss caused by it.
		return ""
	}

	r.cache.Add(key, loc)
	return loc
}

// Len reports the number of cached answers.
func (r *Resolver) Len() int {
	return r.cache.Len()
}
