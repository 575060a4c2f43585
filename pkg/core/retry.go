package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/oneconcern/collection-registry/pkg/core/status"
	"github.com/oneconcern/collection-registry/pkg/errors"
	storagestatus "github.com/oneconcern/collection-registry/pkg/storage/status"
)

const (
	// DefaultMaxConflicts is the default number of attempts to merge an aggregate view
	DefaultMaxConflicts = 5

	// DefaultMaxTransient is the default number of retries of a remote call failing with a transient error
	DefaultMaxTransient = 3

	// DefaultBackoffBase is the delay before the first retry
	DefaultBackoffBase = 500 * time.Millisecond

	// DefaultBackoffMax caps the delay between two retries
	DefaultBackoffMax = 10 * time.Second

	// DefaultCallTimeout bounds every single remote call
	DefaultCallTimeout = 30 * time.Second
)

// Backoff tells how long to wait before retry #attempt (starting at 0)
type Backoff func(attempt int) time.Duration

// Sleeper waits for some duration, or until the context is done
type Sleeper func(ctx context.Context, d time.Duration) error

// ExponentialBackoff doubles the delay at every attempt, starting at base and capped at max
func ExponentialBackoff(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt > 30 {
			attempt = 30
		}
		d := base * time.Duration(1<<uint(attempt))
		if max > 0 && (d > max || d < 0) {
			return max
		}
		return d
	}
}

// SleepContext waits for d, unless the context is done first
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy bounds the retries of a submission
type RetryPolicy struct {
	// MaxConflicts is the number of attempts to merge an aggregate view
	MaxConflicts int

	// MaxTransient is the number of retries of a single remote call failing with a transient error
	MaxTransient int

	Backoff     Backoff
	Sleep       Sleeper
	CallTimeout time.Duration
}

// DefaultRetryPolicy returns the default retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxConflicts: DefaultMaxConflicts,
		MaxTransient: DefaultMaxTransient,
		Backoff:      ExponentialBackoff(DefaultBackoffBase, DefaultBackoffMax),
		Sleep:        SleepContext,
		CallTimeout:  DefaultCallTimeout,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	defaults := DefaultRetryPolicy()
	if p.MaxConflicts <= 0 {
		p.MaxConflicts = defaults.MaxConflicts
	}
	if p.MaxTransient < 0 {
		p.MaxTransient = 0
	}
	if p.Backoff == nil {
		p.Backoff = defaults.Backoff
	}
	if p.Sleep == nil {
		p.Sleep = defaults.Sleep
	}
	return p
}

func isTransient(ctx context.Context, err error) bool {
	if errors.Is(err, storagestatus.ErrTransient) {
		return true
	}
	// a call timing out before its parent context is a transient failure
	return errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
}

// call runs a single remote call under the call timeout, retrying transient failures
func (p RetryPolicy) call(ctx context.Context, logger *zap.Logger, op string, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := p.once(ctx, fn)
		if err == nil {
			return nil
		}
		if !isTransient(ctx, err) {
			return err
		}
		if attempt >= p.MaxTransient {
			return status.ErrSubmissionFailed.WrapMessage("%s: giving up after %d attempts: %w", op, attempt+1, err)
		}

		delay := p.Backoff(attempt)
		logger.Warn("transient failure, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := p.Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (p RetryPolicy) once(ctx context.Context, fn func(context.Context) error) error {
	if p.CallTimeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, p.CallTimeout)
	defer cancel()
	return fn(cctx)
}
