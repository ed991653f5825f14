package llm

import (
	"context"

	"github.com/m4xw311/tinker/config"
	"github.com/m4xw311/tinker/errors"
)

// NewBackend creates the backend named by cfg.LLMClient.
func NewBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch cfg.LLMClient {
	case "mistral", "":
		b, err = asBackend(NewMistralClient(ctx, cfg.Model))
	case "openai":
		b, err = asBackend(NewOpenAIClient(ctx, cfg.Model))
	case "anthropic":
		b, err = asBackend(NewAnthropicClient(ctx, cfg.Model))
	case "gemini":
		b, err = asBackend(NewGeminiClient(ctx, cfg.Model))
	case "bedrock":
		b, err = asBackend(NewBedrockClient(ctx, cfg.Model))
	case "mock":
		b = NewMockClient()
	default:
		err = errors.New("unsupported LLM client: %s", cfg.LLMClient)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// asBackend keeps a failed constructor's typed nil out of the interface.
func asBackend[T Backend](client T, err error) (Backend, error) {
	if err != nil {
		return nil, err
	}
	return client, nil
}
