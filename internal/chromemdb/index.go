package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"

	"document-qa/internal/embedding"
	"document-qa/internal/models"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
)

const collectionName = "document"

var errNoEmbeddingFunc = errors.New("chromemdb: embeddings must be supplied by the caller")

// Index is the searchable form of one uploaded document: its chunks in insertion order
// and an in-memory chromem collection holding their vectors. Similarity is cosine.
type Index struct {
	db         *chromem.DB
	collection *chromem.Collection
	chunks     []models.Chunk
	dimension  int
	embedder   string
}

// Result is one search hit.
type Result struct {
	Chunk      models.Chunk
	Similarity float32
}

// Build embeds every chunk and loads the vectors into a fresh collection. It returns
// either a complete Index or an error, never a partial Index.
func Build(ctx context.Context, embedder embedding.Embedder, chunks []models.Chunk) (*Index, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, &models.ProviderError{
			Kind:    models.ErrService,
			Op:      "embedding",
			Message: fmt.Sprintf("expected %d vectors, got %d", len(chunks), len(vectors)),
		}
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection(collectionName, nil, refuseEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	idx := &Index{
		db:         db,
		collection: collection,
		chunks:     append([]models.Chunk(nil), chunks...),
		embedder:   embedder.Name(),
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		if i == 0 {
			idx.dimension = len(vectors[i])
		}
		if len(vectors[i]) == 0 || len(vectors[i]) != idx.dimension {
			return nil, &models.ProviderError{
				Kind:    models.ErrService,
				Op:      "embedding",
				Message: fmt.Sprintf("chunk %d has dimension %d, expected %d", i, len(vectors[i]), idx.dimension),
			}
		}
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(i),
			Content:   c.Content,
			Metadata:  CreateMetadata(c),
			Embedding: vectors[i],
		}
	}

	if len(docs) > 0 {
		if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return nil, fmt.Errorf("failed to add documents: %w", err)
		}
	}

	log.Debug().Int("chunks", len(chunks)).Int("dimension", idx.dimension).Str("embedder", idx.embedder).Msg("Built index")
	return idx, nil
}

func refuseEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// CreateMetadata is the chunk metadata stored next to each vector.
func CreateMetadata(c models.Chunk) map[string]string {
	return map[string]string{
		"page":  strconv.Itoa(c.PageNumber),
		"chunk": strconv.Itoa(c.ChunkID),
		"label": c.Label(),
	}
}

// Len is the number of indexed chunks. A nil Index is empty.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.chunks)
}

func (idx *Index) Dimension() int {
	if idx == nil {
		return 0
	}
	return idx.dimension
}

// Embedder names the embedder that produced the vectors.
func (idx *Index) Embedder() string {
	if idx == nil {
		return ""
	}
	return idx.embedder
}

// Chunks returns a copy of the indexed chunks in insertion order.
func (idx *Index) Chunks() []models.Chunk {
	if idx == nil {
		return nil
	}
	return append([]models.Chunk(nil), idx.chunks...)
}

// Search returns the k chunks most similar to query, nearest first. Equal similarity is
// broken by insertion order. A nil or empty Index yields no results.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	if idx.Len() == 0 || idx.collection == nil || k <= 0 {
		return nil, nil
	}
	if len(query) != idx.dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), idx.dimension)
	}

	// every document is scored so ties at the k boundary resolve deterministically
	hits, err := idx.collection.QueryEmbedding(ctx, query, idx.collection.Count(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	type ranked struct {
		pos int
		sim float32
	}
	order := make([]ranked, 0, len(hits))
	for _, h := range hits {
		pos, err := strconv.Atoi(h.ID)
		if err != nil || pos < 0 || pos >= len(idx.chunks) {
			return nil, fmt.Errorf("unknown document id %q in collection", h.ID)
		}
		order = append(order, ranked{pos: pos, sim: h.Similarity})
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].sim != order[j].sim {
			return order[i].sim > order[j].sim
		}
		return order[i].pos < order[j].pos
	})

	k = min(k, len(order))
	results := make([]Result, k)
	for i := 0; i < k; i++ {
		results[i] = Result{Chunk: idx.chunks[order[i].pos], Similarity: order[i].sim}
	}
	return results, nil
}

// Close drops the collection. A closed Index behaves as empty.
func (idx *Index) Close() error {
	if idx == nil || idx.collection == nil {
		return nil
	}
	err := idx.db.DeleteCollection(idx.collection.Name)
	idx.collection = nil
	idx.chunks = nil
	if err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}
