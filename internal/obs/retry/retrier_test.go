package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedBackoff time.Duration

func (f fixedBackoff) Next(int) time.Duration { return time.Duration(f) }

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	var seen []int
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	}, Policy{
		Name:      "test_ok",
		Attempts:  5,
		Backoff:   fixedBackoff(time.Millisecond),
		OnAttempt: func(i int, _ error) { seen = append(seen, i) },
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{0, 1}, seen)
}

func TestDo_Exhausts(t *testing.T) {
	calls := 0
	var last error
	err := Do(context.Background(), func() error {
		calls++
		return fmt.Errorf("attempt %d", calls)
	}, Policy{
		Name:      "test_exhaust",
		Attempts:  3,
		Backoff:   fixedBackoff(time.Millisecond),
		OnExhaust: func(err error) { last = err },
	})
	require.EqualError(t, err, "attempt 3")
	assert.Equal(t, 3, calls)
	assert.Equal(t, err, last)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return fmt.Errorf("decode: %w", ErrPermanent)
	}, DefaultOutboxPolicy(nil))
	require.ErrorIs(t, err, ErrPermanent)
	assert.Equal(t, 1, calls)
}

func TestDo_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("boom")
	}, Policy{Attempts: 5, Backoff: fixedBackoff(time.Hour)})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestExpoJitter_Next(t *testing.T) {
	b := ExpoJitter{Base: 100 * time.Millisecond, Max: time.Second}
	assert.Equal(t, 100*time.Millisecond, b.Next(0))
	assert.Equal(t, 400*time.Millisecond, b.Next(2))
	assert.Equal(t, time.Second, b.Next(10))

	j := ExpoJitter{Base: 100 * time.Millisecond, Jitter: 0.2}
	for i := 0; i < 100; i++ {
		d := j.Next(0)
		assert.GreaterOrEqual(t, d, 80*time.Millisecond)
		assert.LessOrEqual(t, d, 120*time.Millisecond)
	}
}
