package llmservice

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"sec-rag/internal/config"
	"sec-rag/internal/models"
)

var thinkRe = regexp.MustCompile(models.ThinkTag)

// NewModel creates the generation model for the configured provider
func NewModel(cfg *config.LLMConfig) (llms.Model, error) {
	log.Debug().Str("provider", cfg.Provider).Str("base_url", cfg.BaseURL).Str("model", cfg.Model).Msg("Creating generation model")

	switch cfg.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		return llm, nil
	default:
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return llm, nil
	}
}

// call llm
func GenerateContent(ctx context.Context, model llms.Model, prompt string, temperature float64) (string, error) {
	msgContent := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	res, err := model.GenerateContent(ctx, msgContent, llms.WithTemperature(temperature))
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrUnavailable, err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("%w: model returned no choices", models.ErrUnavailable)
	}
	return CleanResponse(res.Choices[0].Content), nil
}

// CleanResponse drops <think> blocks emitted by reasoning models.
func CleanResponse(s string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(s, ""))
}
