package rag

import (
	"context"
	"fmt"
	"strings"

	"document-qa/internal/llmservice"
	"document-qa/internal/models"

	"github.com/rs/zerolog/log"
)

var bareSourcesMarker = strings.TrimSpace(models.SourcesMarker)

// Synthesizer answers a question from retrieved chunks with one completion call.
type Synthesizer struct {
	completer llmservice.Completer
}

func NewSynthesizer(completer llmservice.Completer) *Synthesizer {
	return &Synthesizer{completer: completer}
}

// Answer must be given at least one chunk; callers check for empty retrieval first.
func (s *Synthesizer) Answer(ctx context.Context, chunks []models.Chunk, question string) (models.Answer, error) {
	if len(chunks) == 0 {
		return models.Answer{}, models.EmptyInput("no document context to answer from")
	}

	raw, err := s.completer.Complete(ctx, BuildPrompt(chunks, question))
	if err != nil {
		return models.Answer{}, err
	}

	content, sources := ParseOutput(raw)
	log.Debug().Int("context_chunks", len(chunks)).Strs("sources", sources).Msg("Synthesized answer")
	return models.Answer{
		Content: content,
		Sources: sources,
		Context: append([]models.Chunk(nil), chunks...),
	}, nil
}

// BuildPrompt lists every chunk with its source label, then the question.
func BuildPrompt(chunks []models.Chunk, question string) string {
	var excerpts strings.Builder
	for _, c := range chunks {
		excerpts.WriteString(fmt.Sprintf(models.ExcerptTemplate, c.Content, c.Label()))
		excerpts.WriteString("\n")
	}
	return fmt.Sprintf(models.QAPromptTemplate, excerpts.String(), question)
}

// ParseOutput splits raw model output at the first SOURCES marker. Text before it is the
// answer, unmodified; text after it is a comma separated list of labels. Output without
// the marker is all answer, except for a trailing bare "SOURCES:" line, which is dropped.
func ParseOutput(raw string) (string, []string) {
	answer, rest, found := strings.Cut(raw, models.SourcesMarker)
	if !found {
		if trimmed := strings.TrimRight(raw, " \t\r\n"); strings.HasSuffix(trimmed, bareSourcesMarker) {
			return strings.TrimSuffix(trimmed, bareSourcesMarker), nil
		}
		return raw, nil
	}

	var sources []string
	seen := make(map[string]bool)
	for _, field := range strings.FieldsFunc(rest, func(r rune) bool { return r == ',' || r == '\n' }) {
		label := strings.TrimSpace(field)
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		sources = append(sources, label)
	}
	return answer, sources
}
