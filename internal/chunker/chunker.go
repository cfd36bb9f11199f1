// Package chunker splits extracted document text into bounded, non-overlapping chunks.
package chunker

import (
	"strings"
	"unicode/utf8"

	"document-qa/internal/models"
)

const DefaultChunkSize = 800

// Chunker splits text at the coarsest separator that keeps every piece within maxSize
// characters. Separators stay attached to the text before them, so the chunks of a page
// concatenate back to the page minus surrounding whitespace.
type Chunker struct {
	maxSize    int
	separators []string
}

func New(maxSize int) *Chunker {
	if maxSize <= 0 {
		maxSize = DefaultChunkSize
	}
	return &Chunker{maxSize: maxSize, separators: models.ChunkSeparators}
}

func (c *Chunker) MaxSize() int { return c.maxSize }

// Chunk splits every document. ChunkID restarts at 1 on each page; Order counts chunks
// across the whole input. Blank documents produce no chunks.
func (c *Chunker) Chunk(docs []models.Document) []models.Chunk {
	var chunks []models.Chunk
	for _, doc := range docs {
		text := strings.TrimSpace(doc.Content)
		if text == "" {
			continue
		}
		id := 0
		for _, piece := range c.split(text, c.separators) {
			piece = strings.TrimSpace(piece)
			if piece == "" {
				continue
			}
			id++
			chunks = append(chunks, models.Chunk{
				Content:    piece,
				PageNumber: doc.PageNumber,
				ChunkID:    id,
				Order:      len(chunks),
			})
		}
	}
	return chunks
}

func (c *Chunker) split(text string, separators []string) []string {
	if utf8.RuneCountInString(text) <= c.maxSize {
		return []string{text}
	}

	sep, rest := "", []string(nil)
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep, rest = s, separators[i+1:]
			break
		}
	}
	if sep == "" {
		return hardCut(text, c.maxSize)
	}

	var (
		out    []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
	}
	for _, piece := range strings.SplitAfter(text, sep) {
		n := utf8.RuneCountInString(piece)
		if n > c.maxSize {
			flush()
			out = append(out, c.split(piece, rest)...)
			continue
		}
		if curLen+n > c.maxSize {
			flush()
		}
		cur.WriteString(piece)
		curLen += n
	}
	flush()
	return out
}

func hardCut(text string, size int) []string {
	runes := []rune(text)
	out := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}
