// Package echo provides a testing provider that echoes back the prompt.
// It implements the domain.Provider interface without making external API
// calls, providing deterministic responses for testing and development.
package echo

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/davidbz/kiln/internal/domain"
	"github.com/davidbz/kiln/internal/observability"
)

const providerName = "echo"

// Provider implements the domain.Provider interface for echo testing.
type Provider struct {
	name    string
	latency time.Duration

	mu        sync.Mutex
	failures  int
	failError error
}

// Option configures the echo provider.
type Option func(*Provider)

// WithLatency makes every generation take at least d, for exercising
// timeouts and cancellation.
func WithLatency(d time.Duration) Option {
	return func(p *Provider) { p.latency = d }
}

// WithFailures makes the first n generations fail with err, for
// exercising retry policy.
func WithFailures(n int, err error) Option {
	return func(p *Provider) {
		p.failures = n
		p.failError = err
	}
}

// NewProvider creates a new echo provider. No configuration is required;
// it operates entirely in-memory.
func NewProvider(opts ...Option) *Provider {
	p := &Provider{name: providerName}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Generate echoes the prompt back as text content.
func (p *Provider) Generate(ctx context.Context, prompt string, parameters map[string]any) (*domain.Generation, error) {
	if prompt == "" {
		return nil, domain.E(domain.CodeValidation, "prompt cannot be empty")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("echoing request")

	if p.latency > 0 {
		select {
		case <-time.After(p.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	if p.failures > 0 {
		p.failures--
		err := p.failError
		p.mu.Unlock()
		if err == nil {
			err = domain.E(domain.CodeProvider, "scripted failure")
		}
		return nil, err
	}
	p.mu.Unlock()

	content := buildEchoContent(prompt, parameters)
	tokens := countTokens(content)

	logger.Debug("echo completed", observability.Int("tokens", tokens))

	return &domain.Generation{
		Content: domain.TextContent(content),
		Usage: &domain.UsageStats{
			PromptTokens: countTokens(prompt),
			OutputTokens: tokens,
			TotalTokens:  countTokens(prompt) + tokens,
		},
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// buildEchoContent constructs the echo response from the prompt and any
// parameters that shape it.
func buildEchoContent(prompt string, parameters map[string]any) string {
	var builder strings.Builder
	builder.WriteString("echo: ")
	builder.WriteString(prompt)

	if prefix, ok := parameters["prefix"].(string); ok {
		return prefix + builder.String()
	}
	return builder.String()
}

// countTokens performs simple word-based token counting.
func countTokens(content string) int {
	if content == "" {
		return 0
	}
	return len(strings.Fields(content))
}
