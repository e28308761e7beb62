// Package attachment converts files attached to pages into documents so they
// can be inlined into an assembled context.
package attachment

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/notionmd/internal/block"
	"github.com/dgallion1/notionmd/internal/budget"
)

// maxBlockRunes matches the upstream limit on one rich text item.
const maxBlockRunes = 2000

// Converter turns raw file bytes into a document.
type Converter interface {
	Convert(r io.Reader, filename string) (*block.Document, error)
}

// SupportedExtensions lists file extensions that can be converted.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the converter for a filename.
func ForFile(filename string, pdfFallback bool) (Converter, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextConverter{}, nil
	case ".md", ".markdown":
		return &MarkdownConverter{}, nil
	case ".csv":
		return &CSVConverter{}, nil
	case ".html", ".htm":
		return &HTMLConverter{}, nil
	case ".pdf":
		return &PDFConverter{FallbackPdftotext: pdfFallback}, nil
	case ".docx":
		return &DOCXConverter{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %q", ext)
	}
}

// IsSupported checks if a file extension can be converted.
func IsSupported(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

func titleFor(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// builder appends blocks to a flat document. Long text is split at
// paragraph and sentence boundaries so every block stays postable.
type builder struct {
	doc *block.Document
}

func newBuilder(filename string) *builder {
	return &builder{doc: &block.Document{Title: titleFor(filename)}}
}

func (b *builder) add(p block.Payload) {
	b.doc.Blocks = append(b.doc.Blocks, &block.Block{Payload: p})
}

func (b *builder) heading(level int, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if level > 3 {
		level = 3
	}
	b.add(block.Heading{Level: level, RichText: plain(text)})
}

func (b *builder) paragraph(text string) {
	for _, part := range budget.Split(text, budget.Runes, maxBlockRunes) {
		b.add(block.Paragraph{RichText: plain(part)})
	}
}

func (b *builder) item(text string, numbered bool) {
	for _, part := range budget.Split(text, budget.Runes, maxBlockRunes) {
		if numbered {
			b.add(block.NumberedListItem{RichText: plain(part)})
		} else {
			b.add(block.BulletedListItem{RichText: plain(part)})
		}
	}
}

func (b *builder) quote(text string) {
	for _, part := range budget.Split(text, budget.Runes, maxBlockRunes) {
		b.add(block.Quote{RichText: plain(part)})
	}
}

func plain(s string) []block.Span {
	if s == "" {
		return nil
	}
	return []block.Span{{Content: s}}
}
