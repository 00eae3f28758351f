// Package ratelimit throttles outbound requests to the catalog and cover
// providers. Each provider gets one limiter shared by every client talking
// to it, so concurrent lookups cannot multiply the request rate.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter throttles requests to one named provider.
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// New creates a limiter allowing requestsPerSecond sustained, with a burst
// of the same size.
func New(name string, requestsPerSecond int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		name:    name,
	}
}

// NewWithBurst creates a limiter with an explicit burst size, for providers
// that tolerate short spikes above their sustained rate.
func NewWithBurst(name string, requestsPerSecond, burst int) *Limiter {
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		name:    name,
	}
}

// Wait blocks until the provider may be called again, or the context ends.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", l.name, err)
	}
	return nil
}

// Allow reports whether a request may proceed right now, consuming a slot
// when it may. Clients on a request path should prefer Wait.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Name returns the provider name this limiter throttles.
func (l *Limiter) Name() string {
	return l.name
}

var (
	registryMu sync.Mutex
	registry   = map[string]*Limiter{}
)

// ForProvider returns the process-wide limiter for a named provider,
// creating it on first use. The rate argument only applies on creation;
// later callers share the existing limiter unchanged.
func ForProvider(name string, requestsPerSecond int) *Limiter {
	registryMu.Lock()
	defer registryMu.Unlock()

	if l, ok := registry[name]; ok {
		return l
	}
	l := New(name, requestsPerSecond)
	registry[name] = l
	return l
}
