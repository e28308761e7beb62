package attachment

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/notionmd/internal/block"
	"github.com/fumiama/go-docx"
)

// DOCXConverter handles .docx files. Heading styles become headings and
// list styles become bulleted items.
type DOCXConverter struct{}

func (c *DOCXConverter) Convert(r io.Reader, filename string) (*block.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read docx: %w", err)
	}
	doc, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	b := newBuilder(filename)
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		text := docxParagraphText(para)
		if text == "" {
			continue
		}
		style := docxStyle(para)
		switch {
		case docxHeadingLevel(style) > 0:
			b.heading(docxHeadingLevel(style), text)
		case strings.Contains(strings.ToLower(style), "list"):
			b.item(text, false)
		case strings.EqualFold(style, "Quote"):
			b.quote(text)
		default:
			b.paragraph(text)
		}
	}
	return b.doc, nil
}

func docxStyle(para *docx.Paragraph) string {
	if para.Properties == nil || para.Properties.Style == nil {
		return ""
	}
	return para.Properties.Style.Val
}

// docxHeadingLevel understands both "Heading2" and "heading 2".
func docxHeadingLevel(style string) int {
	s := strings.ReplaceAll(strings.ToLower(style), " ", "")
	rest, ok := strings.CutPrefix(s, "heading")
	if !ok || len(rest) != 1 || rest[0] < '1' || rest[0] > '6' {
		return 0
	}
	return int(rest[0] - '0')
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(buf.String())
}
