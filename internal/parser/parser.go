package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"document-qa/internal/cache"
	"document-qa/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"
)

const defaultPageNumber = 1

// Format is the declared type of an uploaded file.
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatDOCX    Format = "docx"
	FormatTXT     Format = "txt"
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatPPTX    Format = "pptx"
	FormatGeneric Format = "generic"
)

// SupportedExtensions lists the upload types offered to users.
var SupportedExtensions = []string{"pdf", "docx", "txt", "csv", "xlsx", "pptx", "js", "py", "json", "html", "css", "md"}

var (
	hyphenBreakRe   = regexp.MustCompile(`([\p{L}\p{N}_]+)-\n([\p{L}\p{N}_]+)`)
	paragraphGapRe  = regexp.MustCompile(`\n\s*\n`)
	slideNameNumber = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
)

// FormatOf maps a file name to its format; anything unknown is decoded as plain text.
func FormatOf(filename string) Format {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "pdf":
		return FormatPDF
	case "docx":
		return FormatDOCX
	case "txt":
		return FormatTXT
	case "csv":
		return FormatCSV
	case "xlsx":
		return FormatXLSX
	case "pptx":
		return FormatPPTX
	default:
		return FormatGeneric
	}
}

// Extractor converts uploaded bytes into page-level documents, memoized by content.
type Extractor struct {
	memo *cache.Store[[]models.Document]
}

func NewExtractor(memo *cache.Store[[]models.Document]) *Extractor {
	return &Extractor{memo: memo}
}

// Extract returns one Document per page (PDF), sheet (XLSX) or slide (PPTX), and a single
// Document for every other format. Page numbers start at 1.
func (e *Extractor) Extract(filename string, data []byte) ([]models.Document, error) {
	format := FormatOf(filename)
	key := cache.Key("extract", []byte(format), data)
	if e.memo != nil {
		if docs, ok := e.memo.Get(key); ok {
			log.Debug().Str("file", filename).Msg("Extraction cache hit")
			return docs, nil
		}
	}

	docs, err := Extract(format, data)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", filename, err)
	}
	log.Debug().Str("file", filename).Str("format", string(format)).Int("pages", len(docs)).Msg("Extracted document")
	if e.memo != nil {
		e.memo.Put(key, docs)
	}
	return docs, nil
}

// Extract parses data of the given format without caching.
func Extract(format Format, data []byte) ([]models.Document, error) {
	switch format {
	case FormatPDF:
		return parsePDF(data)
	case FormatDOCX:
		return parseDOCX(data)
	case FormatXLSX:
		return parseXLSX(data)
	case FormatPPTX:
		return parsePPTX(data)
	case FormatTXT:
		return single(CollapseBlankLines(decode(data))), nil
	default:
		// csv and generic text are passed through unmodified
		return single(decode(data)), nil
	}
}

func single(text string) []models.Document {
	return []models.Document{{Content: text, PageNumber: defaultPageNumber}}
}

func decode(data []byte) string {
	return strings.ToValidUTF8(string(data), "�")
}

func parsePDF(data []byte) ([]models.Document, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var docs []models.Document
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		docs = append(docs, models.Document{
			Content:    CleanPDFText(decode([]byte(pageText))),
			PageNumber: i,
		})
	}
	return docs, nil
}

// CleanPDFText merges words hyphenated across line breaks, joins lines inside a paragraph
// with spaces and keeps blank-line paragraph breaks as exactly two newlines.
func CleanPDFText(text string) string {
	text = hyphenBreakRe.ReplaceAllString(text, "${1}${2}")
	paragraphs := paragraphGapRe.Split(strings.TrimSpace(text), -1)
	for i, p := range paragraphs {
		paragraphs[i] = strings.ReplaceAll(p, "\n", " ")
	}
	return strings.Join(paragraphs, "\n\n")
}

// CollapseBlankLines replaces every run of blank lines with a single empty line.
func CollapseBlankLines(text string) string {
	return paragraphGapRe.ReplaceAllString(text, "\n\n")
}

func parseDOCX(data []byte) ([]models.Document, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	text, err := wordprocessingText(r.Editable().GetContent())
	if err != nil {
		return nil, err
	}
	return single(CollapseBlankLines(text)), nil
}

// wordprocessingText pulls the visible text out of document.xml, one line per paragraph.
func wordprocessingText(content string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	var (
		out    strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read docx body: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				out.WriteString("\t")
			case "br", "cr":
				out.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				out.Write(t)
			}
		}
	}
	return out.String(), nil
}

func parseXLSX(data []byte) ([]models.Document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var docs []models.Document
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			log.Warn().Err(err).Str("sheet", sheetName).Msg("Skipping unreadable sheet")
			continue
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("## Sheet: %s\n", sheetName))
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		docs = append(docs, models.Document{
			Content:    text.String(),
			PageNumber: sheetNum + 1,
		})
	}
	return docs, nil
}

func parsePPTX(data []byte) ([]models.Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	type slide struct {
		number int
		text   string
	}
	var slides []slide
	for _, file := range zr.File {
		m := slideNameNumber.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		slides = append(slides, slide{number: n, text: extractTextFromXML(string(body))})
	}
	// zip order is arbitrary
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	docs := make([]models.Document, 0, len(slides))
	for _, s := range slides {
		docs = append(docs, models.Document{Content: s.text, PageNumber: s.number})
	}
	return docs, nil
}

func extractTextFromXML(xmlContent string) string {
	var text strings.Builder
	parts := strings.Split(xmlContent, "<a:t>")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		endIdx := strings.Index(part, "</a:t>")
		if endIdx >= 0 {
			text.WriteString(html.UnescapeString(part[:endIdx]) + " ")
		}
	}
	return strings.TrimSpace(text.String())
}
