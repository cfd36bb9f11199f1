package rag

import (
	"context"
	"strings"

	"document-qa/internal/chromemdb"
	"document-qa/internal/chunker"
	"document-qa/internal/embedding"
	"document-qa/internal/helper"
	"document-qa/internal/llmservice"
	"document-qa/internal/models"
	"document-qa/internal/parser"

	"github.com/rs/zerolog/log"
)

type Options struct {
	TopK int
	// ResetHistoryOnUpload clears the conversation when a new document is indexed.
	ResetHistoryOnUpload bool
}

// UploadResult summarizes a successfully indexed document.
type UploadResult struct {
	Document string
	Pages    int
	Chunks   int
}

// Session is the state of one user's interaction: the active Index, the name of the
// document it was built from and the conversation history. It is not safe for
// concurrent use; callers serialize uploads and questions.
type Session struct {
	ID string

	extractor   *parser.Extractor
	chunker     *chunker.Chunker
	embedder    embedding.Embedder
	retriever   *Retriever
	synthesizer *Synthesizer
	opts        Options

	index    *chromemdb.Index
	document string
	history  []models.Turn
}

func NewSession(extractor *parser.Extractor, ch *chunker.Chunker, embedder embedding.Embedder, completer llmservice.Completer, opts Options) (*Session, error) {
	id, err := helper.NewSessionID()
	if err != nil {
		return nil, err
	}
	return &Session{
		ID:          id,
		extractor:   extractor,
		chunker:     ch,
		embedder:    embedder,
		retriever:   NewRetriever(embedder, opts.TopK),
		synthesizer: NewSynthesizer(completer),
		opts:        opts,
	}, nil
}

// Upload replaces the active Index with one built from the given file. The previous
// Index is discarded before anything else happens, so a failed upload leaves the
// session without an Index.
func (s *Session) Upload(ctx context.Context, filename string, data []byte) (UploadResult, error) {
	s.discardIndex()

	docs, err := s.extractor.Extract(filename, data)
	if err != nil {
		return UploadResult{}, err
	}
	chunks := s.chunker.Chunk(docs)
	if len(chunks) == 0 {
		return UploadResult{}, models.EmptyInput("the document contains no extractable text")
	}

	idx, err := chromemdb.Build(ctx, s.embedder, chunks)
	if err != nil {
		return UploadResult{}, err
	}

	s.index = idx
	s.document = filename
	if s.opts.ResetHistoryOnUpload {
		s.history = nil
	}
	log.Info().Str("session", s.ID).Str("document", filename).Int("pages", len(docs)).Int("chunks", len(chunks)).Msg("Document indexed")
	return UploadResult{Document: filename, Pages: len(docs), Chunks: len(chunks)}, nil
}

// Ask answers a question against the active Index. Only a successful answer is
// appended to the history.
func (s *Session) Ask(ctx context.Context, question string) (models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.Answer{}, models.EmptyInput("please enter a question")
	}
	if s.index.Len() == 0 {
		return models.Answer{}, models.EmptyInput("please upload a document first")
	}

	chunks, err := s.retriever.Search(ctx, s.index, question, s.opts.TopK)
	if err != nil {
		return models.Answer{}, err
	}
	if len(chunks) == 0 {
		return models.Answer{}, models.EmptyInput("no relevant context was found in the document")
	}

	answer, err := s.synthesizer.Answer(ctx, chunks, question)
	if err != nil {
		log.Warn().Err(err).Str("session", s.ID).Msg("Answer failed, history unchanged")
		return models.Answer{}, err
	}
	s.history = append(s.history, models.Turn{Question: question, Answer: answer})
	return answer, nil
}

// Search exposes retrieval without synthesis.
func (s *Session) Search(ctx context.Context, question string, k int) ([]models.Chunk, error) {
	return s.retriever.Search(ctx, s.index, question, k)
}

// History returns the conversation in the order it happened.
func (s *Session) History() []models.Turn {
	return append([]models.Turn(nil), s.history...)
}

// RecentFirst returns the conversation newest first, the order it is displayed in.
func (s *Session) RecentFirst() []models.Turn {
	out := make([]models.Turn, len(s.history))
	for i, t := range s.history {
		out[len(s.history)-1-i] = t
	}
	return out
}

func (s *Session) Document() string { return s.document }

func (s *Session) HasIndex() bool { return s.index.Len() > 0 }

// Reset discards the Index and the history.
func (s *Session) Reset() {
	s.discardIndex()
	s.history = nil
}

func (s *Session) discardIndex() {
	if s.index != nil {
		if err := s.index.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close previous index")
		}
	}
	s.index = nil
	s.document = ""
}
