package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/kiln/internal/domain"
)

func TestResponseContentNormalize(t *testing.T) {
	t.Run("should encode text as UTF-8 bytes", func(t *testing.T) {
		content := domain.TextContent("hello, wörld")

		data, err := content.Normalize()

		require.NoError(t, err)
		require.Equal(t, []byte("hello, wörld"), data)
	})

	t.Run("should pass raw bytes through", func(t *testing.T) {
		raw := []byte{0x00, 0x01, 0xFF}

		for _, content := range []*domain.ResponseContent{
			domain.BytesContent(raw),
			domain.AudioContent(raw, "mp3"),
			domain.ImageContent(raw, "png"),
		} {
			data, err := content.Normalize()
			require.NoError(t, err)
			require.Equal(t, raw, data)
		}
	})

	t.Run("should encode structured content as JSON", func(t *testing.T) {
		content := domain.StructuredContent(map[string]any{
			"score":   0.92,
			"labels":  []any{"a", "b"},
			"nested":  map[string]any{"ok": true},
			"missing": nil,
		})

		data, err := content.Normalize()

		require.NoError(t, err)
		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		require.InDelta(t, 0.92, decoded["score"], 1e-9)
		require.Equal(t, map[string]any{"ok": true}, decoded["nested"])
	})

	t.Run("should fail on unknown kind", func(t *testing.T) {
		content := &domain.ResponseContent{Kind: domain.ContentKind(42)}

		_, err := content.Normalize()

		require.Error(t, err)
		require.Equal(t, domain.CodeDataConversion, domain.CodeOf(err))
	})
}

func TestRequestStatusTerminal(t *testing.T) {
	require.False(t, domain.Pending().Terminal())
	require.False(t, domain.Executing(0.5).Terminal())
	require.True(t, domain.Completed(nil).Terminal())
	require.True(t, domain.Failed(nil).Terminal())
	require.True(t, domain.Cancelled().Terminal())
}

func TestNewRequest(t *testing.T) {
	first := domain.NewRequest("same prompt", map[string]any{"k": "v"})
	second := domain.NewRequest("same prompt", map[string]any{"k": "v"})

	require.NotEmpty(t, first.ID)
	require.NotEqual(t, first.ID, second.ID, "identity is the ID, not the content")
	require.False(t, first.CreatedAt.IsZero())
}
