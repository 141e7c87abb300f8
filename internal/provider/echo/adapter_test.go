package echo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/kiln/internal/domain"
	"github.com/davidbz/kiln/internal/provider/echo"
)

func TestProvider_Generate(t *testing.T) {
	t.Run("should echo the prompt", func(t *testing.T) {
		provider := echo.NewProvider()

		generation, err := provider.Generate(context.Background(), "hello world", nil)

		require.NoError(t, err)
		require.Equal(t, domain.ContentText, generation.Content.Kind)
		require.Equal(t, "echo: hello world", generation.Content.Text)
		require.NotNil(t, generation.Usage)
		require.Equal(t, 2, generation.Usage.PromptTokens)
	})

	t.Run("should apply the prefix parameter", func(t *testing.T) {
		provider := echo.NewProvider()

		generation, err := provider.Generate(context.Background(), "hi",
			map[string]any{"prefix": ">> "})

		require.NoError(t, err)
		require.Equal(t, ">> echo: hi", generation.Content.Text)
	})

	t.Run("should reject an empty prompt", func(t *testing.T) {
		provider := echo.NewProvider()

		_, err := provider.Generate(context.Background(), "", nil)

		require.Error(t, err)
		require.Equal(t, domain.CodeValidation, domain.CodeOf(err))
	})

	t.Run("should fail the scripted number of times", func(t *testing.T) {
		scripted := domain.E(domain.CodeNetwork, "flaky")
		provider := echo.NewProvider(echo.WithFailures(2, scripted))

		_, err := provider.Generate(context.Background(), "x", nil)
		require.ErrorIs(t, err, scripted)
		_, err = provider.Generate(context.Background(), "x", nil)
		require.ErrorIs(t, err, scripted)

		generation, err := provider.Generate(context.Background(), "x", nil)
		require.NoError(t, err)
		require.NotNil(t, generation.Content)
	})

	t.Run("should honor context cancellation during latency", func(t *testing.T) {
		provider := echo.NewProvider(echo.WithLatency(time.Second))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := provider.Generate(ctx, "slow", nil)

		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestProvider_Name(t *testing.T) {
	require.Equal(t, "echo", echo.NewProvider().Name())
}
