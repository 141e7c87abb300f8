// Package openai provides an adapter for the OpenAI API using the
// official SDK. It implements the domain.Provider interface, translating
// prompt and parameters into a chat completion call and mapping SDK
// failures into the core's error taxonomy.
package openai

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/davidbz/kiln/internal/domain"
	"github.com/davidbz/kiln/internal/observability"
)

// Provider implements the domain.Provider interface for OpenAI.
type Provider struct {
	client       openai.Client
	name         string
	defaultModel string
}

// NewProvider creates a new OpenAI provider.
func NewProvider(config Config) (*Provider, error) {
	if config.APIKey == "" {
		return nil, domain.E(domain.CodeMissingCredentials, "OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(time.Duration(config.Timeout)*time.Second))
	}
	// The executor owns retry policy; the SDK's internal retries stay off
	// unless explicitly configured.
	opts = append(opts, option.WithMaxRetries(config.MaxRetries))

	return &Provider{
		client:       openai.NewClient(opts...),
		name:         "openai",
		defaultModel: config.DefaultModel,
	}, nil
}

// Generate sends a chat completion request built from the prompt and
// parameter map.
func (p *Provider) Generate(ctx context.Context, prompt string, parameters map[string]any) (*domain.Generation, error) {
	if prompt == "" {
		return nil, domain.E(domain.CodeValidation, "prompt cannot be empty")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("calling OpenAI API")

	params := p.toSDKParams(prompt, parameters)

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error("OpenAI API call failed", observability.Error(err))
		return nil, classify(err)
	}

	if len(resp.Choices) == 0 {
		return nil, domain.E(domain.CodeResponseFormat, "completion returned no choices")
	}

	logger.Debug("OpenAI API call succeeded",
		observability.Int("prompt_tokens", int(resp.Usage.PromptTokens)),
		observability.Int("completion_tokens", int(resp.Usage.CompletionTokens)),
	)

	return &domain.Generation{
		Content: domain.TextContent(resp.Choices[0].Message.Content),
		Usage: &domain.UsageStats{
			PromptTokens: int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
		Metadata: map[string]string{
			"model":         string(resp.Model),
			"completion_id": resp.ID,
		},
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// toSDKParams builds the SDK request from the prompt and the generic
// parameter map.
func (p *Provider) toSDKParams(prompt string, parameters map[string]any) openai.ChatCompletionNewParams {
	model := p.defaultModel
	if m, ok := parameters["model"].(string); ok && m != "" {
		model = m
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system, ok := parameters["system"].(string); ok && system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}

	if temperature, ok := toFloat(parameters["temperature"]); ok && temperature > 0 {
		params.Temperature = openai.Float(temperature)
	}
	if maxTokens, ok := toInt(parameters["max_tokens"]); ok && maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(maxTokens))
	}

	return params
}

// classify maps an SDK error onto the core taxonomy.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apierr *openai.Error
	if !errors.As(err, &apierr) {
		// No HTTP status means the request never got a response.
		return domain.Wrap(domain.CodeConnection, "OpenAI request failed", err)
	}

	switch {
	case apierr.StatusCode == http.StatusUnauthorized:
		return domain.Wrap(domain.CodeInvalidAPIKey, "OpenAI rejected the API key", err)
	case apierr.StatusCode == http.StatusForbidden:
		return domain.Wrap(domain.CodeAuthentication, "OpenAI denied access", err)
	case apierr.StatusCode == http.StatusTooManyRequests:
		return domain.Wrap(domain.CodeRateLimited, "OpenAI rate limit exceeded", err)
	case apierr.StatusCode == http.StatusRequestTimeout:
		return domain.Wrap(domain.CodeTimeout, "OpenAI request timed out", err)
	case apierr.StatusCode >= http.StatusInternalServerError:
		return domain.Wrap(domain.CodeProvider, "OpenAI server error", err)
	case apierr.StatusCode >= http.StatusBadRequest:
		return domain.Wrap(domain.CodeInvalidRequest, "OpenAI rejected the request", err)
	default:
		return domain.Wrap(domain.CodeUnknown, "OpenAI call failed", err)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
