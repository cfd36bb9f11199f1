package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"document-qa/internal/chunker"
	"document-qa/internal/parser"
	"document-qa/internal/rag"
)

type letterEmbedder struct{}

func (letterEmbedder) Name() string { return "stub/letters" }

func (letterEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		lower := strings.ToLower(text)
		out[i] = []float32{
			float32(strings.Count(lower, "a")) + 0.1,
			float32(strings.Count(lower, "e")) + 0.1,
			float32(strings.Count(lower, "o")) + 0.1,
		}
	}
	return out, nil
}

type fixedCompleter struct{}

func (fixedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return "Paris is the capital. SOURCES: page1-chunk1", nil
}

func newRealSession(t *testing.T) *rag.Session {
	t.Helper()
	s, err := rag.NewSession(parser.NewExtractor(nil), chunker.New(80), letterEmbedder{}, fixedCompleter{}, rag.Options{TopK: 2})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// render keeps the event loop busy with View and resize handling until done closes.
func render(m Model, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		default:
			_ = m.View()
			next, _ := m.Update(tea.WindowSizeMsg{Width: 90, Height: 30})
			m = next.(Model)
		}
	}
}

func runWhileRendering(m Model, cmd tea.Cmd) tea.Msg {
	var (
		wg  sync.WaitGroup
		msg tea.Msg
	)
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		msg = cmd()
	}()
	render(m, done)
	wg.Wait()
	return msg
}

func TestViewDoesNotReadSessionDuringCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capitals.txt")
	text := "Paris is the capital of France.\n\nBerlin is the capital of Germany.\n\nRome is the capital of Italy."
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}

	session := newRealSession(t)
	m := sized(New(context.Background(), session))
	m.busy = true

	msg := runWhileRendering(m, m.upload(path))
	next, _ := m.Update(msg)
	m = next.(Model)
	if m.snap.document != "capitals.txt" {
		t.Fatalf("expected the uploaded document in the view, got %q", m.snap.document)
	}
	if !strings.Contains(m.View(), "capitals.txt") {
		t.Fatal("header should name the uploaded document")
	}

	m.busy = true
	msg = runWhileRendering(m, m.ask("What is the capital of France?"))
	next, _ = m.Update(msg)
	m = next.(Model)
	if m.busy {
		t.Fatal("model should be idle once the answer arrived")
	}
	if len(m.snap.turns) != 1 || m.snap.turns[0].Question != "What is the capital of France?" {
		t.Fatalf("unexpected turns in view: %+v", m.snap.turns)
	}
	if !strings.Contains(m.renderHistory(), "Sources: page1-chunk1") {
		t.Fatalf("history should show sources:\n%s", m.renderHistory())
	}
}
