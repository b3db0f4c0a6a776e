// Package retry re-invokes remote operations that fail with a transient transport
// error and surfaces every other failure immediately.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/youpoison/YM-Logs-API/internal/failure"
)

// Policy bounds the retries of a transient failure. A zero Policy retries forever
// without pausing, which is the production default.
type Policy struct {
	// MaxAttempts caps the total number of invocations (including the first).
	// Zero means unlimited.
	MaxAttempts int

	// MaxElapsed caps the wall-clock time spent retrying. Zero means unlimited.
	MaxElapsed time.Duration

	// Delay is the pause between attempts.
	Delay time.Duration
}

// Unbounded returns the production policy: retry transient failures forever.
func Unbounded() Policy {
	return Policy{}
}

// Do invokes fn until it succeeds, fails with a non-transient error, the policy is
// exhausted, or ctx is cancelled. Non-transient errors are returned as *failure.Error
// after exactly one invocation of the failing attempt.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()

	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}

		if !failure.Is(err, failure.Transient) {
			err = failure.Wrap(op, err)
			log.Error().Err(err).Str("op", op).Int("attempt", attempt).Msg("Remote operation failed")
			return zero, err
		}

		if ctx.Err() != nil {
			return zero, failure.New(failure.Transient, op, ctx.Err())
		}
		if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
			log.Error().Err(err).Str("op", op).Int("attempts", attempt).Msg("Retry budget exhausted")
			return zero, failure.New(failure.Transient, op, fmt.Errorf("gave up after %d attempts: %w", attempt, err))
		}
		if p.MaxElapsed > 0 && time.Since(start) >= p.MaxElapsed {
			log.Error().Err(err).Str("op", op).Dur("elapsed", time.Since(start)).Msg("Retry budget exhausted")
			return zero, failure.New(failure.Transient, op, fmt.Errorf("gave up after %s: %w", p.MaxElapsed, err))
		}

		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("Response from Logs API interrupted, retrying")

		if p.Delay > 0 {
			select {
			case <-ctx.Done():
				return zero, failure.New(failure.Transient, op, ctx.Err())
			case <-time.After(p.Delay):
			}
		}
	}
}

// Run is Do for operations that only return an error.
func Run(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
