package embedding

import (
	"context"
	"strings"

	"document-qa/internal/config"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"

	"github.com/rs/zerolog/log"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder turns texts into vectors, one per text and in the same order.
type Embedder interface {
	// Name identifies the provider and model; vectors from different names are not comparable.
	Name() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// NewEmbedder creates the embedder for the configured provider.
func NewEmbedder(llmConfig *config.LLMConfig) (Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        llmConfig.Provider,
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating embedder")

	if err := llmservice.RequireKey(llmConfig, "embedding"); err != nil {
		return nil, err
	}
	name := llmConfig.Provider + "/" + llmConfig.Model

	switch llmConfig.Provider {
	case config.ProviderOllama:
		return NewOllamaEmbedder(llmConfig)
	case config.ProviderOpenRouter:
		return NewOpenAICompatEmbedder(llmConfig), nil
	default:
		llm, err := openai.New(
			openai.WithBaseURL(llmConfig.BaseURL),
			openai.WithToken(strings.TrimPrefix(llmConfig.Key, "Bearer ")),
			openai.WithEmbeddingModel(llmConfig.Model),
		)
		if err != nil {
			return nil, llmservice.Classify("embedding", err)
		}
		embedder, err := embeddings.NewEmbedder(llm, embeddings.WithBatchSize(llmConfig.BatchSize))
		if err != nil {
			return nil, llmservice.Classify("embedding", err)
		}
		return &langchainEmbedder{embedder: embedder, name: name}, nil
	}
}

// new ollama embedder
func NewOllamaEmbedder(llmConfig *config.LLMConfig) (Embedder, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(llmConfig.BaseURL),
		ollama.WithModel(llmConfig.Model),
	)
	if err != nil {
		return nil, llmservice.Classify("embedding", err)
	}
	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithBatchSize(llmConfig.BatchSize))
	if err != nil {
		return nil, llmservice.Classify("embedding", err)
	}
	return &langchainEmbedder{embedder: embedder, name: llmConfig.Provider + "/" + llmConfig.Model}, nil
}

type langchainEmbedder struct {
	embedder *embeddings.EmbedderImpl
	name     string
}

func (e *langchainEmbedder) Name() string { return e.name }

func (e *langchainEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, llmservice.Classify("embedding", err)
	}
	return vectors, nil
}

type openAICompatEmbedder struct {
	client *goopenai.Client
	model  string
	name   string
}

// NewOpenAICompatEmbedder talks to any OpenAI-compatible embeddings endpoint such as OpenRouter.
func NewOpenAICompatEmbedder(llmConfig *config.LLMConfig) Embedder {
	cfg := goopenai.DefaultConfig(strings.TrimPrefix(llmConfig.Key, "Bearer "))
	if llmConfig.BaseURL != "" {
		cfg.BaseURL = llmConfig.BaseURL
	}
	return &openAICompatEmbedder{
		client: goopenai.NewClientWithConfig(cfg),
		model:  llmConfig.Model,
		name:   llmConfig.Provider + "/" + llmConfig.Model,
	}
}

func (e *openAICompatEmbedder) Name() string { return e.name }

func (e *openAICompatEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Model: goopenai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, llmservice.Classify("embedding", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, &models.ProviderError{Kind: models.ErrService, Op: "embedding", Message: "provider returned a different number of vectors than inputs"}
	}

	vectors := make([][]float32, len(texts))
	for _, datum := range resp.Data {
		if datum.Index < 0 || datum.Index >= len(texts) {
			return nil, &models.ProviderError{Kind: models.ErrService, Op: "embedding", Message: "provider returned an out-of-range vector index"}
		}
		vectors[datum.Index] = datum.Embedding
	}
	return vectors, nil
}
