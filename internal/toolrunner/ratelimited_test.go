package toolrunner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/nlabs/stomper/internal/types"
)

type countingAdapter struct {
	calls int
}

func (c *countingAdapter) Name() string           { return "counting" }
func (c *countingAdapter) Dependencies() []string { return nil }
func (c *countingAdapter) Available() bool        { return true }
func (c *countingAdapter) Run(context.Context, string, []string) ([]types.Finding, error) {
	c.calls++
	return nil, nil
}

func TestRateLimitedNilLimiterPassesThrough(t *testing.T) {
	inner := &countingAdapter{}
	wrapped := RateLimited(inner, nil)
	assert.Same(t, inner, wrapped)
}

func TestRateLimitedDelegatesNameAvailableDependencies(t *testing.T) {
	inner := &countingAdapter{}
	wrapped := RateLimited(inner, rate.NewLimiter(rate.Limit(1), 1))

	assert.Equal(t, "counting", wrapped.Name())
	assert.True(t, wrapped.Available())
	assert.Empty(t, wrapped.Dependencies())
}

func TestRateLimitedWaitsForToken(t *testing.T) {
	inner := &countingAdapter{}
	limiter := rate.NewLimiter(rate.Limit(1), 1)
	wrapped := RateLimited(inner, limiter)

	_, err := wrapped.Run(context.Background(), "/tmp", nil)
	require.NoError(t, err)

	// The burst of 1 token is now spent: a second call must wait for
	// the bucket to refill rather than running immediately.
	start := time.Now()
	_, err = wrapped.Run(context.Background(), "/tmp", nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)

	assert.Equal(t, 2, inner.calls)
}

func TestRateLimitedReturnsContextError(t *testing.T) {
	inner := &countingAdapter{}
	limiter := rate.NewLimiter(rate.Limit(1), 1)
	wrapped := RateLimited(inner, limiter)

	_, err := wrapped.Run(context.Background(), "/tmp", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = wrapped.Run(ctx, "/tmp", nil)
	assert.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}
