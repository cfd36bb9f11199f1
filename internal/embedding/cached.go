package embedding

import (
	"context"
	"fmt"
	"slices"

	"document-qa/internal/cache"
	"document-qa/internal/models"

	"github.com/rs/zerolog/log"
)

const defaultBatchSize = 16

// Progress receives the number of texts sent to the provider.
type Progress interface {
	Start(total int)
	Add(n int)
	Finish()
}

// CachedEmbedder memoizes vectors by exact text. Identical texts are embedded once and
// always map to the same vector. Nothing is cached unless the whole request succeeds.
type CachedEmbedder struct {
	embedder  Embedder
	memo      *cache.Store[[]float32]
	batchSize int
	progress  Progress
}

func NewCachedEmbedder(embedder Embedder, memo *cache.Store[[]float32], batchSize int) *CachedEmbedder {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &CachedEmbedder{embedder: embedder, memo: memo, batchSize: batchSize}
}

// SetProgress installs a progress reporter; nil disables reporting.
func (c *CachedEmbedder) SetProgress(p Progress) { c.progress = p }

func (c *CachedEmbedder) Name() string { return c.embedder.Name() }

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	namespace := "embed/" + c.embedder.Name()
	keys := make([]string, len(texts))
	resolved := make(map[string][]float32, len(texts))
	var (
		missTexts []string
		missKeys  []string
	)
	for i, text := range texts {
		keys[i] = cache.Key(namespace, []byte(text))
		if _, ok := resolved[keys[i]]; ok {
			continue
		}
		if v, ok := c.memo.Get(keys[i]); ok {
			resolved[keys[i]] = v
			continue
		}
		resolved[keys[i]] = nil
		missTexts = append(missTexts, text)
		missKeys = append(missKeys, keys[i])
	}
	log.Debug().
		Int("texts", len(texts)).
		Int("distinct", len(resolved)).
		Int("misses", len(missTexts)).
		Msg("Embedding texts")

	fresh, err := c.embedMisses(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for i, key := range missKeys {
		resolved[key] = fresh[i]
	}

	dimension := -1
	vectors := make([][]float32, len(texts))
	for i, key := range keys {
		v := resolved[key]
		if dimension == -1 {
			dimension = len(v)
		}
		if len(v) == 0 || len(v) != dimension {
			return nil, &models.ProviderError{
				Kind:    models.ErrService,
				Op:      "embedding",
				Message: fmt.Sprintf("inconsistent embedding dimension: expected %d, got %d", dimension, len(v)),
			}
		}
		vectors[i] = slices.Clone(v)
	}

	for i, key := range missKeys {
		c.memo.Put(key, fresh[i])
	}
	return vectors, nil
}

func (c *CachedEmbedder) embedMisses(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if c.progress != nil {
		c.progress.Start(len(texts))
		defer c.progress.Finish()
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		batch := texts[start:end]
		vectors, err := c.embedder.Embed(ctx, batch)
		if err != nil {
			return nil, err
		}
		if len(vectors) != len(batch) {
			return nil, &models.ProviderError{
				Kind:    models.ErrService,
				Op:      "embedding",
				Message: fmt.Sprintf("expected %d vectors for batch %d-%d, got %d", len(batch), start, end, len(vectors)),
			}
		}
		out = append(out, vectors...)
		if c.progress != nil {
			c.progress.Add(len(batch))
		}
	}
	return out, nil
}
