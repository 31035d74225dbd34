// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides a bounded retry helper for transactions
// that may fail on transient lock or serialization conflicts.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/gorm"
)

// ErrRetriesExhausted wraps the last transient error once the retry budget
// is spent.
var ErrRetriesExhausted = errors.New("storage retries exhausted")

// RetryPolicy bounds Retry.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy retries four times with 20ms..250ms jittered backoff.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      4,
	InitialInterval: 20 * time.Millisecond,
	MaxInterval:     250 * time.Millisecond,
}

// IsTransient reports whether err is a storage conflict worth retrying:
// SQLite busy/locked errors, PostgreSQL serialization failures and deadlocks,
// and dropped connections.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	low := strings.ToLower(err.Error())
	for _, s := range []string{
		"database is locked",
		"database table is locked",
		"sqlite_busy",
		"could not serialize access",
		"deadlock detected",
		"40001",
		"40p01",
		"bad connection",
		"connection reset",
	} {
		if strings.Contains(low, s) {
			return true
		}
	}
	return false
}

// Retry runs fn until it succeeds, returns a non-transient error, the context
// ends, or the policy is exhausted. Exhaustion is reported as an error
// wrapping both ErrRetriesExhausted and the last failure.
func Retry(ctx context.Context, p RetryPolicy, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	eb.MaxInterval = p.MaxInterval
	eb.MaxElapsedTime = 0

	var last error
	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		last = err
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(eb, p.MaxRetries), ctx))
	if err == nil {
		return nil
	}
	if last != nil && errors.Is(err, last) {
		return errors.Join(ErrRetriesExhausted, last)
	}
	return err
}

// Transaction runs fn in a transaction under Retry with the default policy.
func Transaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	return Retry(ctx, DefaultRetryPolicy, func() error {
		return db.WithContext(ctx).Transaction(fn)
	})
}
