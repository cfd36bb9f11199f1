package transcript

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"document-qa/internal/models"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

const pageHeader = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; max-width: 50em; margin: 2em auto; }
pre.question { background: #f4f4f4; padding: .6em; white-space: pre-wrap; }
p.sources { color: #666; font-size: .9em; }
</style>
</head>
<body>
<h1>%s</h1>
`

// Render writes the conversation as a standalone HTML page in the order it was asked.
// Questions are shown verbatim; answers are rendered from Markdown. Raw HTML in
// answers is not passed through.
func Render(docName string, turns []models.Turn) ([]byte, error) {
	title := "Questions about " + docName
	if docName == "" {
		title = "Document Q&A"
	}
	title = html.EscapeString(title)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, pageHeader, title, title)
	if len(turns) == 0 {
		buf.WriteString("<p>No questions were asked.</p>\n")
	}
	for i, turn := range turns {
		fmt.Fprintf(&buf, "<section id=\"turn-%d\">\n", i+1)
		fmt.Fprintf(&buf, "<pre class=\"question\">%s</pre>\n", html.EscapeString(turn.Question))
		buf.WriteString("<div class=\"answer\">\n")
		if err := markdown.Convert([]byte(turn.Answer.Content), &buf); err != nil {
			return nil, fmt.Errorf("failed to render answer %d: %w", i+1, err)
		}
		buf.WriteString("</div>\n")
		if len(turn.Answer.Sources) > 0 {
			fmt.Fprintf(&buf, "<p class=\"sources\">Sources: %s</p>\n", html.EscapeString(strings.Join(turn.Answer.Sources, ", ")))
		}
		buf.WriteString("</section>\n")
	}
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes(), nil
}
