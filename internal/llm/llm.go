package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ovrbk/matchcast/internal/ratelimit"
)

type Message struct {
	Role    string
	Content string
}

type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL  string
	jsonMode bool
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

// WithJSONMode asks the provider to constrain output to a JSON object, for
// structured responses that are parsed rather than spoken.
func WithJSONMode() Option {
	return func(o *clientOptions) {
		o.jsonMode = true
	}
}

func ParseModel(model string) (provider, modelName string, err error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider/model_name", model)
	}
	return parts[0], parts[1], nil
}

func NewClient(provider, apiKey, model string, opts ...Option) (Client, error) {
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}

	switch provider {
	case "openai":
		return newOpenAIClient(apiKey, model, o)
	case "anthropic":
		return newAnthropicClient(apiKey, model, o)
	case "gemini":
		return newGeminiClient(apiKey, model, o)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: supported providers are openai, anthropic, gemini", provider)
	}
}

// wrapQuota tags quota and rate-limit failures so the retry policy in
// ratelimit can tell them apart from everything else.
func wrapQuota(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		return fmt.Errorf("%w: %v", ratelimit.ErrQuotaExhausted, err)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"quota", "429", "resource_exhausted", "rate limit"} {
		if strings.Contains(msg, marker) {
			return fmt.Errorf("%w: %v", ratelimit.ErrQuotaExhausted, err)
		}
	}
	return err
}
