package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"unibox/internal/constants"
	"unibox/internal/retry"
)

// dbRetryPolicy is tuned for short SQLite lock contention: a handful of
// quick attempts rather than a long campaign. Package variable so tests
// can swap in a faster policy.
var dbRetryPolicy = retry.BackoffConfig{
	InitialDelay: time.Duration(constants.DefaultRetryBackoffMs) * time.Millisecond,
	MaxDelay:     time.Duration(constants.DefaultMaxBackoffMs) * time.Millisecond,
	Multiplier:   2.0,
	MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
	Jitter:       true,
}

// retryableDBOperation runs operation under the database retry policy,
// backing off between attempts while the failure looks transient. Results
// are captured by the operation closure.
func retryableDBOperation(ctx context.Context, operation func() error, operationName string) error {
	err := retry.NewBackoff(dbRetryPolicy).RetryWithPredicate(ctx, operation, isRetryableDBError)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return err
	case !isRetryableDBError(err):
		return fmt.Errorf("%s failed (non-retryable): %w", operationName, err)
	default:
		return fmt.Errorf("%s failed after %d attempts: %w", operationName, dbRetryPolicy.MaxAttempts, err)
	}
}

var retryableDBSubstrings = []string{
	"database is locked",
	"disk I/O error",
	"no such host",
	"connection refused",
}

// isRetryableDBError reports whether the error is worth another attempt.
// Constraint violations and context cancellation never are.
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	for _, s := range retryableDBSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// isUniqueConstraintError detects SQLite unique constraint violations so
// callers can treat duplicates as idempotent upserts.
func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}

// isForeignKeyError detects SQLite foreign key violations, which surface
// when a referenced conversation has been pruned.
func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint")
}
