// Package ratelimit provides a pluggable per-key rate limiting interface
// with an in-memory token bucket implementation.
package ratelimit

import "context"

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow returns true if the request should proceed. The key is opaque;
	// callers construct it (e.g. "project:<uuid>"). Errors signal a limiter
	// malfunction and should be treated as fail-open by callers.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases any resources held by the limiter.
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
