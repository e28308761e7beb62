package attachment

import (
	"io"
	"strings"

	"github.com/dgallion1/notionmd/internal/block"
	"github.com/dgallion1/notionmd/internal/markdown"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownConverter handles Markdown files using goldmark. Inline styling
// is kept through markdown.ParseInline.
type MarkdownConverter struct{}

func (c *MarkdownConverter) Convert(r io.Reader, filename string) (*block.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	root := goldmark.New().Parser().Parse(text.NewReader(src))
	b := newBuilder(filename)
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		convertMarkdownBlock(b, n, src)
	}
	return b.doc, nil
}

func convertMarkdownBlock(b *builder, n ast.Node, src []byte) {
	switch node := n.(type) {
	case *ast.Heading:
		level := min(node.Level, 3)
		b.add(block.Heading{Level: level, RichText: markdown.ParseInline(joinLines(node, src, " "))})
	case *ast.Paragraph, *ast.TextBlock:
		b.add(block.Paragraph{RichText: markdown.ParseInline(joinLines(node, src, " "))})
	case *ast.List:
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			rt := markdown.ParseInline(itemText(item, src))
			if node.IsOrdered() {
				b.add(block.NumberedListItem{RichText: rt})
			} else {
				b.add(block.BulletedListItem{RichText: rt})
			}
		}
	case *ast.FencedCodeBlock:
		b.add(block.Code{Language: string(node.Language(src)), RichText: plain(strings.TrimRight(joinLines(node, src, ""), "\n"))})
	case *ast.CodeBlock:
		b.add(block.Code{RichText: plain(strings.TrimRight(joinLines(node, src, ""), "\n"))})
	case *ast.Blockquote:
		var parts []string
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			parts = append(parts, joinLines(c, src, " "))
		}
		b.add(block.Quote{RichText: markdown.ParseInline(strings.Join(parts, " "))})
	case *ast.ThematicBreak:
		b.add(block.Divider{})
	case *ast.HTMLBlock:
		if t := strings.TrimSpace(joinLines(node, src, "")); t != "" {
			b.paragraph(t)
		}
	}
}

// itemText returns the text of the first block inside a list item.
func itemText(item ast.Node, src []byte) string {
	if first := item.FirstChild(); first != nil {
		return joinLines(first, src, " ")
	}
	return ""
}

// joinLines concatenates the source lines of a block node.
func joinLines(n ast.Node, src []byte, sep string) string {
	lines := n.Lines()
	parts := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		v := string(line.Value(src))
		if sep != "" {
			v = strings.TrimSpace(v)
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, sep)
}
