package services

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	headerRemaining       = "X-RateLimit-Remaining"
	headerReplenishRate   = "X-RateLimit-Replenish-Rate"
	headerRequestedTokens = "X-RateLimit-Requested-Tokens"

	defaultWaitStep = 3 * time.Second
)

// RateBudget is a client-side estimate of a service's token bucket.
//
// The estimate is advisory: every response re-synchronizes it from the reported headers. Until the first response
// carrying X-RateLimit-Remaining is observed, [RateBudget.Wait] never blocks.
type RateBudget struct {
	mu          sync.Mutex
	waitStep    time.Duration
	sleep       func(context.Context, time.Duration) error
	initialized bool
	remaining   int
	replenish   int
}

// NewRateBudget creates an uninitialized budget that waits in increments of waitStep.
func NewRateBudget(waitStep time.Duration) *RateBudget {
	if waitStep <= 0 {
		waitStep = defaultWaitStep
	}
	return &RateBudget{waitStep: waitStep, sleep: sleepContext, replenish: 1}
}

// Wait blocks while the estimated remaining tokens are at most one, crediting the replenish rate after each step.
func (b *RateBudget) Wait(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.initialized && b.remaining <= 1 {
		if err := b.sleep(ctx, b.waitStep); err != nil {
			return err
		}
		b.remaining += b.replenish
	}
	return nil
}

// Observe re-synchronizes the estimate from a response's rate-limit headers.
//
// A reported remaining count replaces the estimate. Without one, the requested token cost (default 1) is subtracted.
func (b *RateBudget) Observe(h http.Header) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rate, ok := headerInt(h, headerReplenishRate); ok && rate > 0 {
		b.replenish = rate
	}

	if remaining, ok := headerInt(h, headerRemaining); ok {
		b.remaining = remaining
		b.initialized = true
		return
	}

	if !b.initialized {
		return
	}

	requested, ok := headerInt(h, headerRequestedTokens)
	if !ok {
		requested = 1
	}
	b.remaining -= requested
}

// Remaining returns the current estimate and whether it has been initialized.
func (b *RateBudget) Remaining() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining, b.initialized
}

func headerInt(h http.Header, key string) (int, bool) {
	v := h.Get(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// sleepContext pauses for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
