package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingSleep(count *int) func(context.Context, time.Duration) error {
	return func(ctx context.Context, _ time.Duration) error {
		*count++
		return ctx.Err()
	}
}

func rateHeaders(remaining, replenish, requested string) http.Header {
	h := http.Header{}
	if remaining != "" {
		h.Set(headerRemaining, remaining)
	}
	if replenish != "" {
		h.Set(headerReplenishRate, replenish)
	}
	if requested != "" {
		h.Set(headerRequestedTokens, requested)
	}
	return h
}

func TestRateBudget(t *testing.T) {
	t.Run("Uninitialized budget never waits", func(t *testing.T) {
		var sleeps int
		b := NewRateBudget(time.Second)
		b.sleep = countingSleep(&sleeps)

		require.NoError(t, b.Wait(context.Background()))
		assert.Zero(t, sleeps)

		_, ok := b.Remaining()
		assert.False(t, ok)
	})

	t.Run("Headers without remaining keep budget uninitialized", func(t *testing.T) {
		b := NewRateBudget(time.Second)
		b.Observe(rateHeaders("", "5", "1"))

		_, ok := b.Remaining()
		assert.False(t, ok)
	})

	t.Run("Exhausted budget waits until replenished", func(t *testing.T) {
		var sleeps int
		b := NewRateBudget(time.Second)
		b.sleep = countingSleep(&sleeps)

		b.Observe(rateHeaders("0", "1", ""))
		require.NoError(t, b.Wait(context.Background()))

		assert.Equal(t, 2, sleeps)
		remaining, _ := b.Remaining()
		assert.Equal(t, 2, remaining)
	})

	t.Run("Remaining header re-synchronizes the estimate", func(t *testing.T) {
		b := NewRateBudget(time.Second)
		b.Observe(rateHeaders("10", "", ""))
		b.Observe(rateHeaders("", "", "3"))

		remaining, _ := b.Remaining()
		assert.Equal(t, 7, remaining)

		b.Observe(rateHeaders("4", "", "3"))
		remaining, _ = b.Remaining()
		assert.Equal(t, 4, remaining)
	})

	t.Run("Missing requested tokens costs one", func(t *testing.T) {
		b := NewRateBudget(time.Second)
		b.Observe(rateHeaders("5", "", ""))
		b.Observe(http.Header{})

		remaining, _ := b.Remaining()
		assert.Equal(t, 4, remaining)
	})

	t.Run("Wait stops on cancellation", func(t *testing.T) {
		b := NewRateBudget(time.Hour)
		b.Observe(rateHeaders("0", "1", ""))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		assert.ErrorIs(t, b.Wait(ctx), context.Canceled)
	})

	t.Run("Non-positive wait step falls back to default", func(t *testing.T) {
		b := NewRateBudget(0)
		assert.Equal(t, defaultWaitStep, b.waitStep)
	})
}
