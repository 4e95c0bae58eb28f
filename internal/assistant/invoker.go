package assistant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nlabs/stomper/internal/learning"
	"github.com/nlabs/stomper/internal/types"
)

// Invoker drives one Backend under the mandatory-timeout, restore-on-
// failure, and mapper-recording rules.
type Invoker struct {
	backend Backend
	store   learning.Store
	breaker *CircuitBreaker
	timeout time.Duration
}

// New returns an Invoker. breaker may be nil to disable the
// session-wide circuit breaker.
func New(backend Backend, store learning.Store, breaker *CircuitBreaker, timeout time.Duration) *Invoker {
	return &Invoker{backend: backend, store: store, breaker: breaker, timeout: timeout}
}

// Invoke spawns the assistant once against file inside sandboxPath.
// On AssistantFailed or AssistantTimeout the file is restored to its
// pre-invocation content.
func (inv *Invoker) Invoke(ctx context.Context, sandboxPath, file, prompt string) error {
	if inv.breaker != nil {
		if err := inv.breaker.Allow(); err != nil {
			return fmt.Errorf("%w: %v", types.ErrAssistantUnavailable, err)
		}
	}

	fullPath := filepath.Join(sandboxPath, file)
	before, err := os.ReadFile(fullPath)
	if err != nil {
		return fmt.Errorf("%w: reading %s before invocation: %v", types.ErrAssistantFailed, file, err)
	}

	runErr := inv.backend.Run(ctx, Request{SandboxPath: sandboxPath, File: file, Prompt: prompt, Timeout: inv.timeout})
	if runErr != nil {
		if inv.breaker != nil {
			inv.breaker.RecordFailure()
		}
		if errors.Is(runErr, types.ErrAssistantFailed) || errors.Is(runErr, types.ErrAssistantTimeout) {
			_ = os.WriteFile(fullPath, before, 0o644)
		}
		return runErr
	}
	if inv.breaker != nil {
		inv.breaker.RecordSuccess()
	}

	after, err := os.ReadFile(fullPath)
	if err != nil {
		return fmt.Errorf("%w: reading %s after invocation: %v", types.ErrAssistantFailed, file, err)
	}
	if bytes.Equal(before, after) {
		return types.ErrAssistantProducedNoChange
	}
	return nil
}

// PromptFactory renders a prompt for the given adaptive strategy.
type PromptFactory func(types.AdaptiveStrategy) string

// InvokeWithFallback retries the assistant up to maxRetries times,
// choosing a strategy via the mapper's adapt (first attempt) or
// fallback (subsequent attempts) and recording every outcome.
func (inv *Invoker) InvokeWithFallback(ctx context.Context, sandboxPath, file, tool, code string, promptFactory PromptFactory, maxRetries int) error {
	var failedStrategies []types.Strategy
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		var strategy types.AdaptiveStrategy
		if attempt == 0 {
			strategy = inv.store.Adapt(tool, code, attempt)
		} else {
			next, ok := inv.store.Fallback(tool, code, failedStrategies)
			if !ok {
				break
			}
			strategy.Verbosity = next
		}

		prompt := promptFactory(strategy)
		err := inv.Invoke(ctx, sandboxPath, file, prompt)

		outcome := types.OutcomeSuccess
		if err != nil {
			outcome = types.OutcomeFailure
			failedStrategies = append(failedStrategies, strategy.Verbosity)
		}
		_ = inv.store.Record(tool, code, outcome, strategy.Verbosity, file, time.Now())

		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, types.ErrAssistantUnavailable) {
			// Fails fast: a tripped breaker or missing binary won't
			// resolve itself across retries within one file.
			return err
		}
	}

	if lastErr == nil {
		lastErr = types.ErrAssistantProducedNoChange
	}
	return lastErr
}
