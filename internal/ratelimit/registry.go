package ratelimit

import (
	"sync"
	"time"
)

const (
	// Default admission budget for providers without an explicit limiter.
	defaultMaxRequests = 60
	defaultWindow      = 60 * time.Second
)

// Registry memoizes one limiter per provider ID so repeated executions
// against the same provider share a single token bucket.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter

	defaultMax    int
	defaultWindow time.Duration
}

// NewRegistry creates an empty limiter registry with the 60 requests / 60s
// default budget.
func NewRegistry() *Registry {
	return NewRegistryWithDefaults(defaultMaxRequests, defaultWindow)
}

// NewRegistryWithDefaults creates an empty limiter registry whose lazily
// created limiters use the given budget.
func NewRegistryWithDefaults(maxRequests int, window time.Duration) *Registry {
	return &Registry{
		limiters:      make(map[string]*Limiter),
		defaultMax:    maxRequests,
		defaultWindow: window,
	}
}

// ForProvider returns the limiter registered for the provider, lazily
// creating one with the registry's default budget on first use.
func (r *Registry) ForProvider(providerID string) *Limiter {
	r.mu.RLock()
	limiter, exists := r.limiters[providerID]
	r.mu.RUnlock()
	if exists {
		return limiter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock; another caller may have won.
	if limiter, exists = r.limiters[providerID]; exists {
		return limiter
	}

	limiter = New(r.defaultMax, r.defaultWindow)
	r.limiters[providerID] = limiter
	return limiter
}

// Register installs a custom limiter for the provider, replacing any
// existing one.
func (r *Registry) Register(providerID string, limiter *Limiter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[providerID] = limiter
}
