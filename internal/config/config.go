package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI     = "openai"
	ProviderOllama     = "ollama"
	ProviderOpenRouter = "openrouter"
)

const (
	defaultChunkSize = 800
	defaultTopK      = 4
	defaultBatchSize = 16
	defaultLogLevel  = "info"
	defaultLogFile   = "document-qa.log"

	defaultOpenAIBase     = "https://api.openai.com/v1"
	defaultOpenRouterBase = "https://openrouter.ai/api/v1"
	defaultOllamaBase     = "http://localhost:11434"
)

type Config struct {
	EmbedLLM     LLMConfig   `yaml:"embed_llm"`
	InferenceLLM LLMConfig   `yaml:"inference_llm"`
	RAG          RAGConfig   `yaml:"rag"`
	Cache        CacheConfig `yaml:"cache"`
	Log          LogConfig   `yaml:"log"`
}

// LLMConfig configures one provider endpoint, used for embeddings or completions.
type LLMConfig struct {
	Provider  string `yaml:"provider"`
	BaseURL   string `yaml:"base_url"`
	Key       string `yaml:"key"`
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
}

type RAGConfig struct {
	ChunkSize            int     `yaml:"chunk_size"`
	TopK                 int     `yaml:"top_k"`
	Temperature          float64 `yaml:"temperature"`
	ResetHistoryOnUpload bool    `yaml:"reset_history_on_upload"`
}

// CacheConfig bounds the memo cache; zero means unbounded.
type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// LoadConfig reads the YAML file at path. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

func ApplyDefaults(cfg *Config) {
	if cfg.EmbedLLM.Provider == "" {
		cfg.EmbedLLM.Provider = ProviderOpenAI
	}
	if cfg.InferenceLLM.Provider == "" {
		cfg.InferenceLLM.Provider = cfg.EmbedLLM.Provider
	}
	applyLLMDefaults(&cfg.EmbedLLM, "text-embedding-3-small", "nomic-embed-text")
	applyLLMDefaults(&cfg.InferenceLLM, "gpt-4o-mini", "llama3.1")
	if cfg.EmbedLLM.BatchSize <= 0 {
		cfg.EmbedLLM.BatchSize = defaultBatchSize
	}
	if cfg.RAG.ChunkSize <= 0 {
		cfg.RAG.ChunkSize = defaultChunkSize
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = defaultTopK
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
	if cfg.Log.File == "" {
		cfg.Log.File = defaultLogFile
	}
}

func applyLLMDefaults(c *LLMConfig, openAIModel, ollamaModel string) {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	switch c.Provider {
	case ProviderOpenAI:
		if c.BaseURL == "" {
			c.BaseURL = defaultOpenAIBase
		}
		if c.Model == "" {
			c.Model = openAIModel
		}
	case ProviderOpenRouter:
		if c.BaseURL == "" {
			c.BaseURL = defaultOpenRouterBase
		}
		if c.Model == "" {
			c.Model = "openai/" + openAIModel
		}
	case ProviderOllama:
		if c.BaseURL == "" {
			c.BaseURL = defaultOllamaBase
		}
		if c.Model == "" {
			c.Model = ollamaModel
		}
	}
}

func (c *Config) Validate() error {
	for name, llm := range map[string]LLMConfig{"embed_llm": c.EmbedLLM, "inference_llm": c.InferenceLLM} {
		switch llm.Provider {
		case ProviderOpenAI, ProviderOllama, ProviderOpenRouter:
		default:
			return fmt.Errorf("%s: unsupported provider %q", name, llm.Provider)
		}
	}
	return nil
}

// ResolveKeys fills missing credentials. The flag value wins, then the file value, then the
// provider's environment variable.
func (c *Config) ResolveKeys(flagKey string) {
	for _, llm := range []*LLMConfig{&c.EmbedLLM, &c.InferenceLLM} {
		switch {
		case flagKey != "":
			llm.Key = flagKey
		case llm.Key != "":
		default:
			llm.Key = os.Getenv(EnvKey(llm.Provider))
		}
	}
}

// NeedsKey reports whether any configured provider still lacks a credential.
func (c *Config) NeedsKey() bool {
	for _, llm := range []LLMConfig{c.EmbedLLM, c.InferenceLLM} {
		if llm.Provider != ProviderOllama && llm.Key == "" {
			return true
		}
	}
	return false
}

func EnvKey(provider string) string {
	switch provider {
	case ProviderOpenRouter:
		return "OPENROUTER_API_KEY"
	case ProviderOllama:
		return ""
	default:
		return "OPENAI_API_KEY"
	}
}

// Masked returns a copy safe for logging.
func (c Config) Masked() Config {
	c.EmbedLLM.Key = mask(c.EmbedLLM.Key)
	c.InferenceLLM.Key = mask(c.InferenceLLM.Key)
	return c
}

func mask(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:3] + "****" + key[len(key)-4:]
}
