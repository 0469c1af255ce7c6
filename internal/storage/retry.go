package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes haken reacts to.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// isRetriable returns true for Postgres error codes that indicate a transient conflict.
func isRetriable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	default:
		return false
	}
}

// isUniqueViolation reports whether err is a unique constraint violation,
// i.e. a concurrent writer created the same row first.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

// RetryPolicy bounds WithRetry.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// DefaultRetryPolicy is used when a caller passes a zero policy.
var DefaultRetryPolicy = RetryPolicy{MaxRetries: 3, BaseDelay: 10 * time.Millisecond}

// WithRetry executes fn, retrying on serialization or deadlock errors.
// Retries use jittered exponential backoff starting at p.BaseDelay.
func WithRetry(ctx context.Context, p RetryPolicy, fn func() error) error {
	if p.BaseDelay <= 0 {
		p = DefaultRetryPolicy
	}
	delay := p.BaseDelay
	var err error
	for attempt := range p.MaxRetries + 1 {
		err = fn()
		if err == nil || !isRetriable(err) {
			return err
		}
		if attempt == p.MaxRetries {
			break
		}
		jitter := time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter doesn't need crypto-strength randomness
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}
		delay *= 2
	}
	return err
}
