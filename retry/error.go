package retry

import "context"

type permanentError struct {
	error
}

func (e *permanentError) Unwrap() error {
	return e.error
}

// Abort marks err as not worth retrying. Do returns err itself, unwrapped.
func Abort(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err}
}

type ctxKey string

const attemptKey ctxKey = "attempt"

func withAttempt(ctx context.Context, attempt uint) context.Context {
	return context.WithValue(ctx, attemptKey, attempt)
}

// Attempt returns the 0-based attempt number inside a Do callback.
func Attempt(ctx context.Context) uint {
	attempt, _ := ctx.Value(attemptKey).(uint)

	return attempt
}
