package openai

import (
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/require"

	"github.com/davidbz/kiln/internal/domain"
)

func TestNewProvider(t *testing.T) {
	t.Run("should require an API key", func(t *testing.T) {
		_, err := NewProvider(Config{})

		require.Error(t, err)
		require.Equal(t, domain.CodeMissingCredentials, domain.CodeOf(err))
	})

	t.Run("should build with a key", func(t *testing.T) {
		provider, err := NewProvider(Config{APIKey: "sk-test", DefaultModel: "gpt-4o-mini"})

		require.NoError(t, err)
		require.Equal(t, "openai", provider.Name())
	})
}

func TestToSDKParams(t *testing.T) {
	provider := &Provider{defaultModel: "gpt-4o-mini"}

	t.Run("should fall back to the default model", func(t *testing.T) {
		params := provider.toSDKParams("hi", nil)
		require.Equal(t, openai.ChatModel("gpt-4o-mini"), params.Model)
		require.Len(t, params.Messages, 1)
	})

	t.Run("should map parameters", func(t *testing.T) {
		params := provider.toSDKParams("hi", map[string]any{
			"model":       "gpt-4",
			"system":      "be terse",
			"temperature": 0.7,
			"max_tokens":  128,
		})

		require.Equal(t, openai.ChatModel("gpt-4"), params.Model)
		require.Len(t, params.Messages, 2, "system message precedes the prompt")
		require.InDelta(t, 0.7, params.Temperature.Value, 1e-9)
		require.EqualValues(t, 128, params.MaxTokens.Value)
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantCode   domain.Code
		retryable  bool
	}{
		{name: "unauthorized", statusCode: 401, wantCode: domain.CodeInvalidAPIKey, retryable: false},
		{name: "forbidden", statusCode: 403, wantCode: domain.CodeAuthentication, retryable: false},
		{name: "rate limited", statusCode: 429, wantCode: domain.CodeRateLimited, retryable: true},
		{name: "server error", statusCode: 500, wantCode: domain.CodeProvider, retryable: true},
		{name: "bad request", statusCode: 400, wantCode: domain.CodeInvalidRequest, retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(&openai.Error{StatusCode: tt.statusCode})

			require.Equal(t, tt.wantCode, domain.CodeOf(err))
			require.Equal(t, tt.retryable, domain.Retryable(err))
		})
	}
}

func TestClassifyTransportError(t *testing.T) {
	err := classify(errors.New("dial tcp: connection refused"))

	require.Equal(t, domain.CodeConnection, domain.CodeOf(err))
	require.True(t, domain.Retryable(err))
}
