package database

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/netassist/core/pkg/models"
)

// maxConflictRetries bounds how many times a conflicted write is retried
// before the ConcurrencyConflict is surfaced to the caller.
const maxConflictRetries = 3

// retryBaseDelay is the first backoff step; each retry doubles it and adds
// jitter so two conflicting writers do not collide again in lockstep.
const retryBaseDelay = 25 * time.Millisecond

// serialization failure and deadlock detected, the two SQLSTATEs that mean
// "retry the whole transaction".
var retryableSQLStates = map[string]bool{
	"40001": true,
	"40P01": true,
}

// IsConcurrencyConflict reports whether err is a retryable serialization
// conflict.
func IsConcurrencyConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryableSQLStates[pgErr.Code]
	}
	var execErr *models.ExecutionError
	return errors.As(err, &execErr) && execErr.Class == models.ClassConcurrencyConflict
}

// RetryOnConflict runs fn, retrying up to maxConflictRetries times with
// jittered exponential backoff when it fails with a serialization conflict.
// Any other error, or exhaustion, is returned as-is (wrapped as
// ConcurrencyConflict on exhaustion).
func RetryOnConflict(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil || !IsConcurrencyConflict(err) {
			return err
		}
		if attempt >= maxConflictRetries {
			return models.NewExecutionError(models.ClassConcurrencyConflict,
				"write conflicted after retries", err)
		}
		delay := retryBaseDelay << uint(attempt)
		delay += time.Duration(rand.Int63n(int64(delay)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
