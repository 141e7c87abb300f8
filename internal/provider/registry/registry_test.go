package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/kiln/internal/domain"
	"github.com/davidbz/kiln/internal/provider/registry"
)

type stubProvider struct {
	name string
}

func (s *stubProvider) Generate(context.Context, string, map[string]any) (*domain.Generation, error) {
	return &domain.Generation{Content: domain.TextContent("stub")}, nil
}

func (s *stubProvider) Name() string { return s.name }

func TestRegistry_Register(t *testing.T) {
	t.Run("should register and retrieve a provider", func(t *testing.T) {
		r := registry.NewRegistry()
		ctx := context.Background()

		require.NoError(t, r.Register(ctx, &stubProvider{name: "echo"}))

		provider, err := r.Get(ctx, "echo")
		require.NoError(t, err)
		require.Equal(t, "echo", provider.Name())
	})

	t.Run("should reject a nil provider", func(t *testing.T) {
		r := registry.NewRegistry()

		require.Error(t, r.Register(context.Background(), nil))
	})

	t.Run("should reject an empty name", func(t *testing.T) {
		r := registry.NewRegistry()

		require.Error(t, r.Register(context.Background(), &stubProvider{name: ""}))
	})

	t.Run("should reject duplicate registration", func(t *testing.T) {
		r := registry.NewRegistry()
		ctx := context.Background()

		require.NoError(t, r.Register(ctx, &stubProvider{name: "echo"}))
		require.Error(t, r.Register(ctx, &stubProvider{name: "echo"}))
	})
}

func TestRegistry_Get(t *testing.T) {
	t.Run("should fail for an unknown provider", func(t *testing.T) {
		r := registry.NewRegistry()

		_, err := r.Get(context.Background(), "missing")

		require.Error(t, err)
	})

	t.Run("should fail for an empty name", func(t *testing.T) {
		r := registry.NewRegistry()

		_, err := r.Get(context.Background(), "")

		require.Error(t, err)
	})
}

func TestRegistry_List(t *testing.T) {
	r := registry.NewRegistry()
	ctx := context.Background()

	require.NoError(t, r.Register(ctx, &stubProvider{name: "echo"}))
	require.NoError(t, r.Register(ctx, &stubProvider{name: "openai"}))

	names, err := r.List(ctx)

	require.NoError(t, err)
	require.ElementsMatch(t, []string{"echo", "openai"}, names)
}
