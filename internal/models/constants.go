package models

const (
	// SourcesMarker separates the answer from the cited source labels in model output.
	SourcesMarker = "SOURCES: "
	NoAnswer      = "I don't know."
)

var (
	// ChunkSeparators are tried coarsest first; "" means a hard cut.
	ChunkSeparators = []string{"\n\n", "\n", ".", "!", "?", ",", " ", ""}

	QAPromptTemplate = `Create a final answer to the given question using only the provided document excerpts (in no particular order) as references. ALWAYS include a "SOURCES" section in your answer listing the labels of the excerpts you used. If you are asked for multiple choice, list all options.
If you don't know the answer, say "I don't know." and leave out the SOURCES line. Never make up an answer.
The SOURCES line must be the last line and look exactly like:
SOURCES: <label>, <label>

%s
QUESTION: %s
=========
FINAL ANSWER:`

	ExcerptTemplate = "Content: %s\nSource: %s\n"
)
