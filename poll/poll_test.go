package poll

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestUntil_SatisfiedImmediately(t *testing.T) {
	var calls int
	err := Until(context.Background(), Options{Interval: time.Hour}, func(attempt int) bool {
		calls++
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestUntil_PassesAttemptNumber(t *testing.T) {
	var seen []int
	err := Until(context.Background(), Options{Interval: time.Millisecond, MaxAttempts: 10}, func(attempt int) bool {
		seen = append(seen, attempt)
		return attempt == 3
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestUntil_Exhausted(t *testing.T) {
	var calls atomic.Int32
	err := Until(context.Background(), Options{Interval: time.Millisecond, MaxAttempts: 4}, func(int) bool {
		calls.Add(1)
		return false
	})
	require.ErrorIs(t, err, ErrExhausted)
	assert.EqualValues(t, 4, calls.Load())
}

func TestUntil_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Until(ctx, Options{Interval: time.Millisecond, MaxAttempts: 1 << 30}, func(int) bool {
		return false
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestOptions_Defaults(t *testing.T) {
	opt := Options{}.withDefaults()
	assert.Equal(t, DefaultInterval, opt.Interval)
	assert.Equal(t, DefaultMaxAttempts, opt.MaxAttempts)
}
