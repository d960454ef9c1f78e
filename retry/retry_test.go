package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTemporary = errors.New("temporary error")

func fast() Option {
	return WithBackoff(ExpBackoff{Base: time.Millisecond, Max: 2 * time.Millisecond, Factor: 2})
}

func TestDo_Success(t *testing.T) {
	t.Parallel()

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	t.Parallel()

	var attempts []uint

	err := Do(t.Context(), func(ctx context.Context) error {
		attempts = append(attempts, Attempt(ctx))
		if len(attempts) < 3 {
			return errTemporary
		}

		return nil
	}, WithAttempts(5), fast())

	require.NoError(t, err)
	assert.Equal(t, []uint{0, 1, 2}, attempts)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	t.Parallel()

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++

		return errTemporary
	}, WithAttempts(3), fast())

	require.ErrorIs(t, err, errTemporary)
	assert.Equal(t, 3, callCount)
}

func TestDo_Abort(t *testing.T) {
	t.Parallel()

	callCount := 0
	err := Do(t.Context(), func(ctx context.Context) error {
		callCount++

		return Abort(errTemporary)
	}, WithAttempts(5), fast())

	assert.Equal(t, errTemporary, err)
	assert.Equal(t, 1, callCount)
	assert.NoError(t, Abort(nil))
}

func TestDo_ContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	callCount := 0
	err := Do(ctx, func(ctx context.Context) error {
		callCount++

		return errTemporary
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, callCount)
}

func TestDo_CancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	err := Do(ctx, func(ctx context.Context) error {
		cancel()

		return errTemporary
	}, WithBackoff(ExpBackoff{Base: time.Hour, Max: time.Hour, Factor: 1}))

	require.ErrorIs(t, err, context.Canceled)
}

func TestDoValue(t *testing.T) {
	t.Parallel()

	v, err := DoValue(t.Context(), func(ctx context.Context) (string, error) {
		if Attempt(ctx) == 0 {
			return "partial", errTemporary
		}

		return "door", nil
	}, fast())
	require.NoError(t, err)
	assert.Equal(t, "door", v)

	v, err = DoValue(t.Context(), func(ctx context.Context) (string, error) {
		return "partial", errTemporary
	}, WithAttempts(1))
	require.ErrorIs(t, err, errTemporary)
	assert.Empty(t, v)
}

func TestExpBackoff(t *testing.T) {
	t.Parallel()

	b := ExpBackoff{Base: 100 * time.Millisecond, Max: time.Second, Factor: 2}

	assert.Equal(t, 100*time.Millisecond, b.Delay(0))
	assert.Equal(t, 200*time.Millisecond, b.Delay(1))
	assert.Equal(t, 800*time.Millisecond, b.Delay(3))
	assert.Equal(t, time.Second, b.Delay(10))
}

func TestJitter(t *testing.T) {
	t.Parallel()

	d := 100 * time.Millisecond

	assert.Equal(t, d, WithoutJitter.apply(d))

	for range 100 {
		full := FullJitter.apply(d)
		assert.GreaterOrEqual(t, full, time.Duration(0))
		assert.Less(t, full, d)

		equal := EqualJitter.apply(d)
		assert.GreaterOrEqual(t, equal, d/2)
		assert.LessOrEqual(t, equal, d)
	}
}

func TestAttempt_Outside(t *testing.T) {
	t.Parallel()

	assert.Zero(t, Attempt(t.Context()))
}
