package llmservice

import (
	"context"
	"strings"

	"document-qa/internal/config"
	"document-qa/internal/models"

	"github.com/rs/zerolog/log"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// Completer turns one prompt into one generated answer.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewCompleter builds the completion client for the configured provider.
func NewCompleter(llmConfig *config.LLMConfig, temperature float64) (Completer, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("model", llmConfig.Model).Msg("Creating completion client")
	if err := RequireKey(llmConfig, "completion"); err != nil {
		return nil, err
	}

	switch llmConfig.Provider {
	case config.ProviderOllama:
		llm, err := ollama.New(
			ollama.WithServerURL(llmConfig.BaseURL),
			ollama.WithModel(llmConfig.Model),
		)
		if err != nil {
			return nil, Classify("completion", err)
		}
		return &langchainCompleter{llm: llm, temperature: temperature}, nil
	case config.ProviderOpenRouter:
		return NewOpenAICompatCompleter(llmConfig, temperature), nil
	default:
		llm, err := openai.New(
			openai.WithBaseURL(llmConfig.BaseURL),
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithModel(llmConfig.Model),
		)
		if err != nil {
			return nil, Classify("completion", err)
		}
		return &langchainCompleter{llm: llm, temperature: temperature}, nil
	}
}

// RequireKey fails with an authentication error when a hosted provider has no credential.
func RequireKey(llmConfig *config.LLMConfig, op string) error {
	if llmConfig.Provider == config.ProviderOllama || strings.TrimSpace(llmConfig.Key) != "" {
		return nil
	}
	return &models.ProviderError{
		Kind:    models.ErrAuthentication,
		Op:      op,
		Message: "no API key provided for " + llmConfig.Provider,
	}
}

type langchainCompleter struct {
	llm         llms.Model
	temperature float64
}

func (c *langchainCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}
	res, err := GenerateContent(ctx, c.llm, messages, llms.WithTemperature(c.temperature))
	if err != nil {
		return "", err
	}
	return res.Choices[0].Content, nil
}

// GenerateContent calls the model once and guarantees at least one choice on success.
func GenerateContent(ctx context.Context, llm llms.Model, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	res, err := llm.GenerateContent(ctx, messages, options...)
	if err != nil {
		return nil, Classify("completion", err)
	}
	if res == nil || len(res.Choices) == 0 {
		return nil, &models.ProviderError{Kind: models.ErrService, Op: "completion", Message: "model returned no choices"}
	}
	return res, nil
}

type openAICompatCompleter struct {
	client      *goopenai.Client
	model       string
	temperature float32
}

// NewOpenAICompatCompleter talks to any OpenAI-compatible chat endpoint such as OpenRouter.
func NewOpenAICompatCompleter(llmConfig *config.LLMConfig, temperature float64) Completer {
	cfg := goopenai.DefaultConfig(strings.TrimPrefix(llmConfig.Key, "Bearer "))
	if llmConfig.BaseURL != "" {
		cfg.BaseURL = llmConfig.BaseURL
	}
	return &openAICompatCompleter{
		client:      goopenai.NewClientWithConfig(cfg),
		model:       llmConfig.Model,
		temperature: float32(temperature),
	}
}

func (c *openAICompatCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", Classify("completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", &models.ProviderError{Kind: models.ErrService, Op: "completion", Message: "model returned no choices"}
	}
	return resp.Choices[0].Message.Content, nil
}
