// Package ratelimit throttles selection log ingestion per account.
//
// A scheduler that loops on a failing task can emit thousands of batches a
// minute; the limiter bounds what one account can push into storage. The
// Limiter interface admits a shared backend for multi-instance deployments;
// the default is an in-process token bucket.
package ratelimit

import "context"

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow reports whether the request should proceed. An error means the
	// limiter itself failed; callers fail open.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases background resources.
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }
