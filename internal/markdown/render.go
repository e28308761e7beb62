package markdown

import (
	"fmt"
	"strings"

	"github.com/dgallion1/notionmd/internal/block"
	"gopkg.in/yaml.v3"
)

const (
	markerPrefix  = "block_id: "
	commentPrefix = "comment_id: "
	indentUnit    = "  "
)

// Segment is the rendered form of one block without its descendants.
type Segment struct {
	BlockID string
	Depth   int
	Text    string
	Block   *block.Block
}

// header is the front matter labelling a rendered document.
type header struct {
	PageID string `yaml:"page_id,omitempty"`
	Title  string `yaml:"title,omitempty"`
}

// Render serializes a document to annotated Markdown: the header followed
// by one segment per block, separated by blank lines.
func Render(doc *block.Document) string {
	var parts []string
	if h := RenderHeader(doc); h != "" {
		parts = append(parts, h)
	}
	for _, seg := range Segments(doc) {
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, "\n\n")
}

// RenderHeader returns the YAML front matter for doc, or "" when the
// document has neither id nor title.
func RenderHeader(doc *block.Document) string {
	if doc == nil || (doc.ID == "" && doc.Title == "") {
		return ""
	}
	out, err := yaml.Marshal(header{PageID: doc.ID, Title: doc.Title})
	if err != nil {
		return ""
	}
	return "---\n" + string(out) + "---"
}

// Segments renders each block of doc in pre-order. Blocks with nothing to
// show (an empty paragraph without id) produce no segment and their
// children are rendered at their depth.
func Segments(doc *block.Document) []Segment {
	if doc == nil {
		return nil
	}
	ordinals := make(map[*block.Block]int)
	number := func(list []*block.Block) {
		n := 0
		for _, b := range list {
			if b == nil {
				continue
			}
			if _, ok := b.Payload.(block.NumberedListItem); ok {
				n++
				ordinals[b] = n
			} else {
				n = 0
			}
		}
	}
	number(doc.Blocks)
	block.Walk(doc.Blocks, func(b *block.Block, _ int) bool {
		number(b.Children)
		return true
	})

	// A block that renders to nothing has no line for its children to nest
	// under, so they take its depth.
	var out []Segment
	var visit func(list []*block.Block, depth int)
	visit = func(list []*block.Block, depth int) {
		for _, b := range list {
			if b == nil {
				continue
			}
			childDepth := depth + 1
			if text := renderBlock(b, depth, ordinals[b]); text != "" {
				out = append(out, Segment{BlockID: b.ID, Depth: depth, Text: text, Block: b})
			} else {
				childDepth = depth
			}
			visit(b.Children, childDepth)
		}
	}
	visit(doc.Blocks, 0)
	return out
}

// UnsupportedBlocks lists the blocks rendered through the plain-text
// fallback.
func UnsupportedBlocks(doc *block.Document) []*block.Block {
	if doc == nil {
		return nil
	}
	var out []*block.Block
	block.Walk(doc.Blocks, func(b *block.Block, _ int) bool {
		if _, ok := b.Payload.(block.Unsupported); ok || b.Payload == nil {
			out = append(out, b)
		}
		return true
	})
	return out
}

func renderBlock(b *block.Block, depth, ordinal int) string {
	var lines []string
	if b.ID != "" {
		lines = append(lines, markerPrefix+b.ID)
	}
	lines = append(lines, bodyLines(b, ordinal)...)
	for _, c := range b.Comments {
		lines = append(lines, commentPrefix+c.ID, commentHeader(c), RenderInline(c.RichText))
	}
	if len(lines) == 0 {
		return ""
	}
	indent := strings.Repeat(indentUnit, depth)
	for i, l := range lines {
		if l != "" {
			lines[i] = indent + l
		}
	}
	return strings.Join(lines, "\n")
}

func bodyLines(b *block.Block, ordinal int) []string {
	switch p := b.Payload.(type) {
	case block.Paragraph:
		if text := RenderInline(p.RichText); text != "" {
			return []string{text}
		}
		return nil
	case block.Heading:
		level := p.Level
		if level < 1 {
			level = 1
		} else if level > 3 {
			level = 3
		}
		return []string{prefixed(strings.Repeat("#", level), RenderInline(p.RichText))}
	case block.BulletedListItem:
		return []string{prefixed("-", RenderInline(p.RichText))}
	case block.NumberedListItem:
		if ordinal < 1 {
			ordinal = 1
		}
		return []string{prefixed(fmt.Sprintf("%d.", ordinal), RenderInline(p.RichText))}
	case block.ToDo:
		box := "- [ ]"
		if p.Checked {
			box = "- [x]"
		}
		return []string{prefixed(box, RenderInline(p.RichText))}
	case block.Code:
		return codeLines(p)
	case block.Quote:
		return []string{prefixed(">", RenderInline(p.RichText))}
	case block.Divider:
		return []string{"---"}
	case block.ChildPage:
		return []string{"child_page: " + linkText(p.Title, mentionDest("page", b.ID))}
	case block.LinkToPage:
		return []string{"link_to_page: " + linkText("page", mentionDest("page", p.PageID))}
	case block.File:
		return []string{p.Type() + ": " + linkText(p.Name, escapeDestination(p.URL))}
	case block.Unsupported:
		text := RenderInline([]block.Span{{Content: block.PlainText(p.RichText)}})
		if text == "" {
			return nil
		}
		return []string{text}
	}
	return nil
}

func prefixed(marker, text string) string {
	if text == "" {
		return marker
	}
	return marker + " " + text
}

func linkText(label, dest string) string {
	return "[" + escapeText(label, false) + "](" + dest + ")"
}

func codeLines(c block.Code) []string {
	content := block.PlainText(c.RichText)
	n := longestRun(content, '`') + 1
	if n < 3 {
		n = 3
	}
	fence := strings.Repeat("`", n)
	lines := []string{fence + c.Language}
	if content != "" {
		lines = append(lines, strings.Split(content, "\n")...)
	}
	return append(lines, fence)
}

func commentHeader(c block.Comment) string {
	if c.Author.ID == "" {
		return fmt.Sprintf("**Comment by Unknown User at %s:**", c.CreatedTime)
	}
	email := ""
	if c.Author.Email != "" {
		email = fmt.Sprintf(" %q", c.Author.Email)
	}
	return fmt.Sprintf("**Comment by %q%s (%s) at %s:**", c.Author.Name, email, c.Author.ID, c.CreatedTime)
}
