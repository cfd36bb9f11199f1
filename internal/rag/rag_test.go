package rag

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"document-qa/internal/cache"
	"document-qa/internal/chunker"
	"document-qa/internal/embedding"
	"document-qa/internal/models"
	"document-qa/internal/parser"
)

// keywordEmbedder maps text onto axes by keyword so similarity is predictable.
type keywordEmbedder struct {
	calls int
	err   error
}

var axes = []string{"paris", "berlin", "rome"}

func (e *keywordEmbedder) Name() string { return "stub/keywords" }

func (e *keywordEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.calls += len(texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, len(axes)+1)
		lower := strings.ToLower(t)
		for j, a := range axes {
			if strings.Contains(lower, a) {
				v[j] = 1
			}
		}
		v[len(axes)] = 0.1
		out[i] = v
	}
	return out, nil
}

type stubCompleter struct {
	output  string
	err     error
	prompts []string
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.output, nil
}

func newTestSession(t *testing.T, emb embedding.Embedder, comp *stubCompleter, opts Options) *Session {
	t.Helper()
	s, err := NewSession(parser.NewExtractor(nil), chunker.New(60), emb, comp, opts)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

const cities = "Paris is the capital of France.\n\nBerlin is the capital of Germany.\n\nRome is the capital of Italy."

func TestParseOutput(t *testing.T) {
	answer, sources := ParseOutput("Paris is the capital. SOURCES: page1-chunk2")
	if answer != "Paris is the capital. " {
		t.Fatalf("unexpected answer %q", answer)
	}
	if !reflect.DeepEqual(sources, []string{"page1-chunk2"}) {
		t.Fatalf("unexpected sources %v", sources)
	}

	answer, sources = ParseOutput("No marker in this output.")
	if answer != "No marker in this output." || len(sources) != 0 {
		t.Fatalf("unexpected parse %q %v", answer, sources)
	}

	_, sources = ParseOutput("x SOURCES: page1-chunk1, page2-chunk3,page1-chunk1\n")
	if !reflect.DeepEqual(sources, []string{"page1-chunk1", "page2-chunk3"}) {
		t.Fatalf("unexpected sources %v", sources)
	}
}

func TestParseOutputDropsEmptySourcesLine(t *testing.T) {
	answer, sources := ParseOutput("I don't know.\nSOURCES:\n")
	if answer != "I don't know.\n" || len(sources) != 0 {
		t.Fatalf("unexpected parse %q %v", answer, sources)
	}

	answer, _ = ParseOutput("Trailing newline kept.\n")
	if answer != "Trailing newline kept.\n" {
		t.Fatalf("output without a marker must be unchanged, got %q", answer)
	}

	answer, _ = ParseOutput("Nothing relevant. SOURCES:")
	if answer != "Nothing relevant. " {
		t.Fatalf("unexpected answer %q", answer)
	}

	answer, _ = ParseOutput("See the SOURCES: section is not the end")
	if answer != "See the " {
		t.Fatalf("marker in the middle still splits, got %q", answer)
	}
}

func TestBuildPromptLabelsChunks(t *testing.T) {
	chunks := []models.Chunk{
		{Content: "Paris is the capital of France.", PageNumber: 1, ChunkID: 2},
		{Content: "Rome is old.", PageNumber: 3, ChunkID: 1},
	}
	prompt := BuildPrompt(chunks, "What is the capital of France?")
	for _, want := range []string{
		"Content: Paris is the capital of France.\nSource: page1-chunk2",
		"Source: page3-chunk1",
		"QUESTION: What is the capital of France?",
		models.SourcesMarker,
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt is missing %q:\n%s", want, prompt)
		}
	}
	if strings.Index(prompt, "page1-chunk2") > strings.Index(prompt, "page3-chunk1") {
		t.Fatal("chunks must appear in retrieval order")
	}
}

func TestSynthesizerRequiresChunks(t *testing.T) {
	comp := &stubCompleter{output: "x"}
	if _, err := NewSynthesizer(comp).Answer(context.Background(), nil, "q"); !errors.Is(err, models.ErrEmptyInput) {
		t.Fatalf("expected empty input error, got %v", err)
	}
	if len(comp.prompts) != 0 {
		t.Fatal("completion must not be called without context")
	}
}

func TestRetrieverAbsentIndex(t *testing.T) {
	emb := &keywordEmbedder{}
	chunks, err := NewRetriever(emb, 4).Search(context.Background(), nil, "anything", 4)
	if err != nil || len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %v %v", chunks, err)
	}
	if emb.calls != 0 {
		t.Fatal("question must not be embedded without an index")
	}
}

func TestSessionAskAnswersWithSources(t *testing.T) {
	comp := &stubCompleter{output: "Paris is the capital. SOURCES: page1-chunk1"}
	s := newTestSession(t, &keywordEmbedder{}, comp, Options{TopK: 1})

	res, err := s.Upload(context.Background(), "cities.txt", []byte(cities))
	if err != nil {
		t.Fatalf("unexpected upload error: %v", err)
	}
	if res.Chunks != 3 || res.Pages != 1 {
		t.Fatalf("unexpected upload result %+v", res)
	}

	answer, err := s.Ask(context.Background(), "  What is the capital of France? Paris?  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Content != "Paris is the capital. " || !reflect.DeepEqual(answer.Sources, []string{"page1-chunk1"}) {
		t.Fatalf("unexpected answer %+v", answer)
	}
	if len(answer.Context) != 1 || !strings.HasPrefix(answer.Context[0].Content, "Paris") {
		t.Fatalf("expected the Paris chunk as context, got %+v", answer.Context)
	}
	if !strings.Contains(comp.prompts[0], "Paris is the capital of France.") || strings.Contains(comp.prompts[0], "Berlin") {
		t.Fatalf("prompt should only contain the retrieved chunk:\n%s", comp.prompts[0])
	}

	history := s.History()
	if len(history) != 1 || history[0].Question != "What is the capital of France? Paris?" {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestSessionSearchKLargerThanIndex(t *testing.T) {
	s := newTestSession(t, &keywordEmbedder{}, &stubCompleter{}, Options{})
	if _, err := s.Upload(context.Background(), "cities.txt", []byte(cities)); err != nil {
		t.Fatal(err)
	}
	chunks, err := s.Search(context.Background(), "rome", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected all 3 chunks, got %d", len(chunks))
	}
	if !strings.HasPrefix(chunks[0].Content, "Rome") {
		t.Fatalf("nearest chunk should be first, got %q", chunks[0].Content)
	}
	if chunks[1].Order > chunks[2].Order {
		t.Fatal("equally distant chunks must keep insertion order")
	}
}

func TestSessionEmptyInputs(t *testing.T) {
	comp := &stubCompleter{output: "x"}
	s := newTestSession(t, &keywordEmbedder{}, comp, Options{})

	if _, err := s.Ask(context.Background(), "question"); !errors.Is(err, models.ErrEmptyInput) {
		t.Fatalf("expected empty input error without a document, got %v", err)
	}
	if _, err := s.Upload(context.Background(), "blank.txt", []byte(" \n\n \t")); !errors.Is(err, models.ErrEmptyInput) {
		t.Fatalf("expected empty input error for a blank document, got %v", err)
	}
	if s.HasIndex() {
		t.Fatal("blank document must not leave an index")
	}
	if _, err := s.Upload(context.Background(), "cities.txt", []byte(cities)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Ask(context.Background(), "   "); !errors.Is(err, models.ErrEmptyInput) {
		t.Fatalf("expected empty input error for blank question, got %v", err)
	}
	if len(comp.prompts) != 0 || len(s.History()) != 0 {
		t.Fatal("empty inputs must not reach the completion service or the history")
	}
}

func TestSessionFailedAnswerLeavesHistory(t *testing.T) {
	comp := &stubCompleter{output: "Berlin. SOURCES: page1-chunk2"}
	s := newTestSession(t, &keywordEmbedder{}, comp, Options{TopK: 2})
	if _, err := s.Upload(context.Background(), "cities.txt", []byte(cities)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Ask(context.Background(), "Berlin?"); err != nil {
		t.Fatal(err)
	}
	before := s.History()

	comp.err = &models.ProviderError{Kind: models.ErrService, Op: "completion", Message: "quota exceeded"}
	if _, err := s.Ask(context.Background(), "Rome?"); !errors.Is(err, models.ErrService) {
		t.Fatalf("expected service error, got %v", err)
	}
	if !reflect.DeepEqual(s.History(), before) {
		t.Fatalf("history changed after a failed answer: %+v", s.History())
	}
}

func TestSessionFailedBuildLeavesNoIndex(t *testing.T) {
	emb := &keywordEmbedder{}
	s := newTestSession(t, emb, &stubCompleter{output: "x"}, Options{})
	if _, err := s.Upload(context.Background(), "cities.txt", []byte(cities)); err != nil {
		t.Fatal(err)
	}

	emb.err = &models.ProviderError{Kind: models.ErrAuthentication, Op: "embedding", Message: "invalid key"}
	if _, err := s.Upload(context.Background(), "other.txt", []byte("Something else entirely.")); !errors.Is(err, models.ErrAuthentication) {
		t.Fatalf("expected authentication error, got %v", err)
	}
	if s.HasIndex() || s.Document() != "" {
		t.Fatal("failed upload must leave the session without an index")
	}
}

func TestSessionReuploadReplacesIndex(t *testing.T) {
	comp := &stubCompleter{output: "answer"}
	s := newTestSession(t, &keywordEmbedder{}, comp, Options{TopK: 10})
	if _, err := s.Upload(context.Background(), "cities.txt", []byte(cities)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Ask(context.Background(), "Paris?"); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Upload(context.Background(), "rome.txt", []byte("Rome was not built in a day.")); err != nil {
		t.Fatal(err)
	}
	chunks, err := s.Search(context.Background(), "Paris", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 || !strings.HasPrefix(chunks[0].Content, "Rome was") {
		t.Fatalf("search must only see the new document, got %+v", chunks)
	}
	if s.Document() != "rome.txt" {
		t.Fatalf("unexpected document %q", s.Document())
	}
	if len(s.History()) != 1 {
		t.Fatal("history is kept across uploads by default")
	}
}

func TestSessionResetHistoryOnUpload(t *testing.T) {
	s := newTestSession(t, &keywordEmbedder{}, &stubCompleter{output: "a"}, Options{ResetHistoryOnUpload: true})
	if _, err := s.Upload(context.Background(), "cities.txt", []byte(cities)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Ask(context.Background(), "Paris?"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Upload(context.Background(), "rome.txt", []byte("Rome.")); err != nil {
		t.Fatal(err)
	}
	if len(s.History()) != 0 {
		t.Fatal("history should be cleared on upload")
	}
}

func TestSessionRecentFirst(t *testing.T) {
	s := newTestSession(t, &keywordEmbedder{}, &stubCompleter{output: "a"}, Options{})
	if _, err := s.Upload(context.Background(), "cities.txt", []byte(cities)); err != nil {
		t.Fatal(err)
	}
	for _, q := range []string{"first", "second", "third"} {
		if _, err := s.Ask(context.Background(), q); err != nil {
			t.Fatal(err)
		}
	}
	recent := s.RecentFirst()
	if recent[0].Question != "third" || recent[2].Question != "first" {
		t.Fatalf("unexpected order %+v", recent)
	}
	if s.History()[0].Question != "first" {
		t.Fatal("History must stay chronological")
	}

	s.Reset()
	if s.HasIndex() || len(s.History()) != 0 {
		t.Fatal("Reset must drop index and history")
	}
}

func TestSessionCachesRepeatedUploads(t *testing.T) {
	emb := &keywordEmbedder{}
	memo, err := cache.New[[]float32](0)
	if err != nil {
		t.Fatal(err)
	}
	cached := embedding.NewCachedEmbedder(emb, memo, 8)
	s := newTestSession(t, cached, &stubCompleter{output: "a"}, Options{})

	text := cities + "\n\n" + cities
	if _, err := s.Upload(context.Background(), "twice.txt", []byte(text)); err != nil {
		t.Fatal(err)
	}
	if emb.calls != 3 {
		t.Fatalf("expected 3 distinct chunk embeddings, got %d", emb.calls)
	}
	if _, err := s.Upload(context.Background(), "again.txt", []byte(text)); err != nil {
		t.Fatal(err)
	}
	if emb.calls != 3 {
		t.Fatalf("re-upload must be served from cache, provider saw %d texts", emb.calls)
	}
}
