package rag

import (
	"context"
	"fmt"

	"document-qa/internal/chromemdb"
	"document-qa/internal/embedding"
	"document-qa/internal/models"

	"github.com/rs/zerolog/log"
)

const DefaultTopK = 4

// Retriever finds the chunks of an Index closest to a question.
type Retriever struct {
	embedder embedding.Embedder
	topK     int
}

func NewRetriever(embedder embedding.Embedder, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{embedder: embedder, topK: topK}
}

// Search embeds the question with the Index's embedder and returns up to k chunks,
// nearest first. k <= 0 uses the configured default. An absent or empty Index yields
// no chunks and no error.
func (r *Retriever) Search(ctx context.Context, idx *chromemdb.Index, question string, k int) ([]models.Chunk, error) {
	if idx.Len() == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = r.topK
	}
	if name := r.embedder.Name(); name != idx.Embedder() {
		return nil, fmt.Errorf("index was built with %s, cannot search it with %s", idx.Embedder(), name)
	}

	vectors, err := r.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, &models.ProviderError{Kind: models.ErrService, Op: "embedding", Message: "no vector returned for question"}
	}

	results, err := idx.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, err
	}
	chunks := make([]models.Chunk, len(results))
	for i, res := range results {
		chunks[i] = res.Chunk
	}
	log.Debug().Int("k", k).Int("found", len(chunks)).Msg("Retrieved chunks")
	return chunks, nil
}
