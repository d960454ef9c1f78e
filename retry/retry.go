// Package retry runs operations that may fail transiently, with exponential
// backoff and jitter between attempts.
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//	    return fetchSchema(ctx)
//	}, retry.WithAttempts(5))
//
// Returning retry.Abort(err) stops retrying immediately.
package retry

import (
	"context"
	"errors"
	"time"
)

const (
	defaultAttempts      = 4
	defaultBaseDelay     = 100 * time.Millisecond
	defaultMaxDelay      = 2 * time.Second
	defaultBackoffFactor = 2.0
)

// Attempts is the total number of calls, including the first. Zero retries forever.
type Attempts uint

type options struct {
	attempts Attempts
	backoff  Backoff
	jitter   Jitter
}

type Option func(*options)

func WithAttempts(n Attempts) Option {
	return func(o *options) {
		o.attempts = n
	}
}

func WithBackoff(b Backoff) Option {
	return func(o *options) {
		o.backoff = b
	}
}

func WithJitter(j Jitter) Option {
	return func(o *options) {
		o.jitter = j
	}
}

func readOptions(opts []Option) *options {
	o := &options{
		attempts: defaultAttempts,
		backoff: ExpBackoff{
			Base:   defaultBaseDelay,
			Max:    defaultMaxDelay,
			Factor: defaultBackoffFactor,
		},
		jitter: FullJitter,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	return o
}

// Do calls f until it succeeds, returns an aborting error, the attempts run
// out, or ctx is done. It returns the last error seen.
func Do(ctx context.Context, f func(ctx context.Context) error, opts ...Option) error {
	o := readOptions(opts)

	var err error

	for attempt := uint(0); o.attempts == 0 || Attempts(attempt) < o.attempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = f(withAttempt(ctx, attempt))
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.error
		}

		if Attempts(attempt+1) == o.attempts {
			break
		}

		timer := time.NewTimer(o.jitter.apply(o.backoff.Delay(attempt)))
		select {
		case <-ctx.Done():
			timer.Stop()

			return ctx.Err()
		case <-timer.C:
		}
	}

	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, f func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var out T

	err := Do(ctx, func(ctx context.Context) error {
		var err error

		out, err = f(ctx)

		return err
	}, opts...)
	if err != nil {
		var zero T

		return zero, err
	}

	return out, nil
}
