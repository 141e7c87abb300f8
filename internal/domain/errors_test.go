package domain_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/kiln/internal/domain"
)

func TestCodeRetryable(t *testing.T) {
	tests := []struct {
		name      string
		code      domain.Code
		retryable bool
	}{
		{name: "network error", code: domain.CodeNetwork, retryable: true},
		{name: "rate limit exceeded", code: domain.CodeRateLimited, retryable: true},
		{name: "timeout", code: domain.CodeTimeout, retryable: true},
		{name: "connection failed", code: domain.CodeConnection, retryable: true},
		{name: "persistence error", code: domain.CodePersistence, retryable: true},
		{name: "provider error", code: domain.CodeProvider, retryable: true},
		{name: "unknown error", code: domain.CodeUnknown, retryable: true},
		{name: "invalid api key", code: domain.CodeInvalidAPIKey, retryable: false},
		{name: "missing credentials", code: domain.CodeMissingCredentials, retryable: false},
		{name: "authentication failed", code: domain.CodeAuthentication, retryable: false},
		{name: "configuration error", code: domain.CodeConfiguration, retryable: false},
		{name: "validation error", code: domain.CodeValidation, retryable: false},
		{name: "unsupported operation", code: domain.CodeUnsupported, retryable: false},
		{name: "invalid request", code: domain.CodeInvalidRequest, retryable: false},
		{name: "unexpected response format", code: domain.CodeResponseFormat, retryable: false},
		{name: "data conversion error", code: domain.CodeDataConversion, retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.retryable, tt.code.Retryable())
		})
	}
}

func TestRetryable(t *testing.T) {
	t.Run("should not retry nil error", func(t *testing.T) {
		require.False(t, domain.Retryable(nil))
	})

	t.Run("should not retry context cancellation", func(t *testing.T) {
		require.False(t, domain.Retryable(context.Canceled))
		require.False(t, domain.Retryable(context.DeadlineExceeded))
	})

	t.Run("should retry unclassified errors", func(t *testing.T) {
		require.True(t, domain.Retryable(errors.New("something odd")))
	})

	t.Run("should classify wrapped taxonomy errors", func(t *testing.T) {
		err := fmt.Errorf("attempt 2: %w", domain.E(domain.CodeInvalidAPIKey, "bad key"))
		require.False(t, domain.Retryable(err))
		require.Equal(t, domain.CodeInvalidAPIKey, domain.CodeOf(err))
	})
}

func TestErrorFormatting(t *testing.T) {
	t.Run("should include cause when wrapped", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := domain.Wrap(domain.CodeConnection, "dialing provider", cause)

		require.Contains(t, err.Error(), "connection_failed")
		require.Contains(t, err.Error(), "connection refused")
		require.ErrorIs(t, err, cause)
	})

	t.Run("should format without cause", func(t *testing.T) {
		err := domain.E(domain.CodeValidation, "prompt is empty")
		require.Equal(t, "validation_error: prompt is empty", err.Error())
	})
}
