package ratelimit_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/kiln/internal/ratelimit"
)

func TestRegistry_ForProviderMemoizes(t *testing.T) {
	registry := ratelimit.NewRegistry()

	first := registry.ForProvider("openai")
	second := registry.ForProvider("openai")
	other := registry.ForProvider("echo")

	require.Same(t, first, second, "same provider must share one bucket")
	require.NotSame(t, first, other)
}

func TestRegistry_DefaultBudget(t *testing.T) {
	registry := ratelimit.NewRegistry()

	limiter := registry.ForProvider("openai")

	require.Equal(t, 60, limiter.Max())
	require.Equal(t, 60*time.Second, limiter.Window())
}

func TestRegistry_CustomDefaults(t *testing.T) {
	registry := ratelimit.NewRegistryWithDefaults(10, 2*time.Second)

	limiter := registry.ForProvider("openai")

	require.Equal(t, 10, limiter.Max())
	require.Equal(t, 2*time.Second, limiter.Window())
}

func TestRegistry_RegisterOverrides(t *testing.T) {
	registry := ratelimit.NewRegistry()
	custom := ratelimit.New(5, time.Second)

	registry.Register("openai", custom)

	require.Same(t, custom, registry.ForProvider("openai"))
}

func TestRegistry_ConcurrentForProvider(t *testing.T) {
	registry := ratelimit.NewRegistry()

	var wg sync.WaitGroup
	limiters := make([]*ratelimit.Limiter, 16)
	for i := range limiters {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			limiters[i] = registry.ForProvider("shared")
		}(i)
	}
	wg.Wait()

	for _, l := range limiters {
		require.Same(t, limiters[0], l)
	}
}
