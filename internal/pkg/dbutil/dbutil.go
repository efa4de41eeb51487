package dbutil

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErr "github.com/corpusd/corpusd/internal/pkg/errors"
)

// Finalize rewrites gendry's ? placeholders into the $n form lib/pq expects.
func Finalize(query string, args []interface{}) (string, []interface{}) {
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}

func IsConflict(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		// unique_violation or check_violation (the singleton id CHECK)
		return pgErr.Code == "23505" || pgErr.Code == "23514"
	}
	return false
}

// Classify maps driver-level failures onto the application taxonomy.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case IsConflict(err):
		return appErr.ErrConflict
	case errors.Is(err, context.DeadlineExceeded):
		return appErr.ErrPoolExhausted
	default:
		return err
	}
}

// IsTransient reports whether a retry with backoff may succeed:
// pool exhaustion, serialization failures, deadlocks and broken connections.
func IsTransient(err error) bool {
	if errors.Is(err, appErr.ErrPoolExhausted) {
		return true
	}
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
		return pgErr.Code.Class() == "08" // connection exceptions
	}
	return false
}

// WithRetry runs fn up to attempts times, backing off between transient
// failures. Non-transient errors surface immediately.
func WithRetry(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	backoff := 50 * time.Millisecond
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !IsTransient(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
