package toolrunner

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/nlabs/stomper/internal/types"
)

// rateLimited wraps an Adapter so that every Run call waits for a token
// from limiter first, throttling how often a tool's binary gets shelled
// out to. Name, Available, and Dependencies pass through unchanged.
type rateLimited struct {
	Adapter
	limiter *rate.Limiter
}

// RateLimited wraps adapter so its Run calls are paced by limiter. A nil
// limiter disables throttling and returns adapter unchanged.
func RateLimited(adapter Adapter, limiter *rate.Limiter) Adapter {
	if limiter == nil {
		return adapter
	}
	return &rateLimited{Adapter: adapter, limiter: limiter}
}

func (r *rateLimited) Run(ctx context.Context, dir string, files []string) ([]types.Finding, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Adapter.Run(ctx, dir, files)
}
