package domain

import "context"

// Provider represents any generation backend. Implementations must be safe
// to call concurrently from multiple requests.
type Provider interface {
	// Generate produces content for the prompt and parameter map.
	Generate(ctx context.Context, prompt string, parameters map[string]any) (*Generation, error)

	// Name returns the provider identifier.
	Name() string
}

// ResponseCache is a byte-oriented response store. Keys are the core's
// deterministic composite of provider ID, prompt, and sorted parameters;
// eviction is the store's own business.
type ResponseCache interface {
	// Get returns the cached bytes or ErrCacheMiss.
	Get(ctx context.Context, providerID, key string) ([]byte, error)

	// Set stores normalized response bytes under the key.
	Set(ctx context.Context, providerID, key string, data []byte) error

	// Clear removes every cached entry.
	Clear(ctx context.Context) error
}

// ProviderRegistry manages available providers.
type ProviderRegistry interface {
	// Register adds a provider to the registry.
	Register(ctx context.Context, provider Provider) error

	// Get retrieves a provider by name.
	Get(ctx context.Context, providerName string) (Provider, error)

	// List returns all available provider names.
	List(ctx context.Context) ([]string, error)
}

// EventPublisher publishes lifecycle events for observability.
type EventPublisher interface {
	// Publish publishes an event with the given type and data.
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}
