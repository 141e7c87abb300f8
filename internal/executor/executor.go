// Package executor runs single generation requests through the full
// policy stack: cache lookup, rate-limit admission, retrying provider
// invocation, and cache population.
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/davidbz/kiln/internal/domain"
	"github.com/davidbz/kiln/internal/observability"
	"github.com/davidbz/kiln/internal/ratelimit"
	"github.com/davidbz/kiln/internal/retry"
)

// Executor combines the cache, per-provider rate limiters, and retry
// policy for stateless request execution.
type Executor struct {
	cache    domain.ResponseCache
	limiters *ratelimit.Registry
	retry    retry.Config
}

// New creates an executor. A nil cache disables caching regardless of the
// request's UseCache flag.
func New(cache domain.ResponseCache, limiters *ratelimit.Registry, retryConfig retry.Config) *Executor {
	if limiters == nil {
		limiters = ratelimit.NewRegistry()
	}
	return &Executor{
		cache:    cache,
		limiters: limiters,
		retry:    retryConfig,
	}
}

// Execute runs the request against the provider using the provider's
// memoized rate limiter.
func (e *Executor) Execute(ctx context.Context, req domain.Request, provider domain.Provider) (*domain.ResponseData, error) {
	return e.ExecuteWithLimiter(ctx, req, provider, nil)
}

// ExecuteWithLimiter runs the request with a caller-supplied limiter. A
// nil limiter falls back to the memoized per-provider default.
func (e *Executor) ExecuteWithLimiter(
	ctx context.Context,
	req domain.Request,
	provider domain.Provider,
	limiter *ratelimit.Limiter,
) (*domain.ResponseData, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	ctx = observability.WithProvider(ctx, provider.Name())
	ctx = observability.WithRequestID(ctx, req.ID)
	logger := observability.FromContext(ctx)

	var cacheKey string
	if req.UseCache && e.cache != nil {
		cacheKey = CacheKey(provider.Name(), req.Prompt, req.Parameters)

		data, err := e.cache.Get(ctx, provider.Name(), cacheKey)
		switch {
		case err == nil:
			logger.Info("cache hit, skipping provider invocation")
			return &domain.ResponseData{
				RequestID:  req.ID,
				ProviderID: provider.Name(),
				Content:    domain.BytesContent(data),
				FromCache:  true,
				ReceivedAt: time.Now(),
			}, nil
		case errors.Is(err, domain.ErrCacheMiss):
			// fall through to the provider
		default:
			logger.Warn("cache get failed, continuing without cache", observability.Error(err))
		}
	}

	// The sole blocking point before provider invocation.
	if limiter == nil {
		limiter = e.limiters.ForProvider(provider.Name())
	}
	if err := limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("rate limit acquire: %w", err)
	}

	generation, err := e.invokeWithRetry(ctx, req, provider)
	if err != nil {
		return nil, err
	}

	normalized, err := generation.Content.Normalize()
	if err != nil {
		return nil, fmt.Errorf("normalizing response content: %w", err)
	}

	response := &domain.ResponseData{
		RequestID:  req.ID,
		ProviderID: provider.Name(),
		Content:    generation.Content,
		Usage:      generation.Usage,
		Metadata:   generation.Metadata,
		ReceivedAt: time.Now(),
	}

	if cacheKey != "" {
		if setErr := e.cache.Set(ctx, provider.Name(), cacheKey, normalized); setErr != nil {
			logger.Warn("failed to store response in cache", observability.Error(setErr))
		}
	}

	return response, nil
}

// invokeWithRetry calls the provider until it succeeds, the error is
// classified non-retryable, or the retry budget is exhausted.
func (e *Executor) invokeWithRetry(
	ctx context.Context,
	req domain.Request,
	provider domain.Provider,
) (*domain.Generation, error) {
	logger := observability.FromContext(ctx)

	var lastErr error
	for attempt := 0; ; attempt++ {
		generation, err := provider.Generate(ctx, req.Prompt, req.Parameters)
		if err == nil {
			if generation == nil || generation.Content == nil {
				return nil, domain.E(domain.CodeResponseFormat, "provider returned empty generation")
			}
			return generation, nil
		}
		lastErr = err

		delay, ok := e.retry.ShouldRetry(err, attempt)
		if !ok {
			break
		}

		logger.Warn("provider invocation failed, backing off",
			observability.Int("attempt", attempt),
			observability.Duration("delay", delay),
			observability.Error(err),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("provider %s exhausted retries: %w", provider.Name(), lastErr)
}

// BatchResult pairs one batch item with its outcome.
type BatchResult struct {
	Request  domain.Request
	Response *domain.ResponseData
	Err      error
}

// ExecuteBatch runs the requests strictly one at a time against a shared
// provider, so any shared mutable collaborator sees serialized access. A
// failure never aborts the remaining items; every outcome is reported in
// input order.
func (e *Executor) ExecuteBatch(
	ctx context.Context,
	requests []domain.Request,
	provider domain.Provider,
) []BatchResult {
	results := make([]BatchResult, 0, len(requests))
	for _, req := range requests {
		response, err := e.Execute(ctx, req, provider)
		results = append(results, BatchResult{Request: req, Response: response, Err: err})
	}
	return results
}

// RunWithTimeout races fn against a timer. Whichever finishes first wins;
// the loser is cancelled through the context. Used to bound wall-clock
// time independent of the provider's own timeout.
func RunWithTimeout(
	ctx context.Context,
	timeout time.Duration,
	fn func(context.Context) (*domain.ResponseData, error),
) (*domain.ResponseData, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		response *domain.ResponseData
		err      error
	}

	done := make(chan outcome, 1)
	go func() {
		response, err := fn(ctx)
		done <- outcome{response: response, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result := <-done:
		return result.response, result.err
	case <-timer.C:
		cancel()
		return nil, domain.E(domain.CodeTimeout, fmt.Sprintf("operation exceeded %s", timeout))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CacheKey builds the deterministic composite key for a request: provider
// ID, prompt, and parameters in sorted key order, hashed for uniform
// length.
func CacheKey(providerID, prompt string, parameters map[string]any) string {
	keys := make([]string, 0, len(parameters))
	for k := range parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(providerID)
	b.WriteByte('\n')
	b.WriteString(prompt)
	for _, k := range keys {
		b.WriteByte('\n')
		b.WriteString(k)
		b.WriteByte('=')
		fmt.Fprintf(&b, "%v", parameters[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
