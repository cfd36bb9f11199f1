package models

import "fmt"

// Document is one extracted text segment, usually a page.
type Document struct {
	Content    string
	PageNumber int
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content    string `json:"content"`
	PageNumber int    `json:"page_number"`
	ChunkID    int    `json:"chunk_id"`
	// Order is the chunk's position in the whole document, used to break ties.
	Order int `json:"order"`
}

// Label is the source identifier shown to the model and cited back by it.
func (c Chunk) Label() string {
	return fmt.Sprintf("page%d-chunk%d", c.PageNumber, c.ChunkID)
}

// Answer is the synthesized reply to one question.
type Answer struct {
	Content string   `json:"content"`
	Sources []string `json:"sources"`
	// Context holds the retrieved chunks the answer was built from.
	Context []Chunk `json:"-"`
}

// Turn is one entry of the conversation history.
type Turn struct {
	Question string `json:"question"`
	Answer   Answer `json:"answer"`
}
