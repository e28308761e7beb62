package markdown

import (
	"strings"

	"github.com/dgallion1/notionmd/internal/block"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	"golang.org/x/net/html"
)

var inlineMarkdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough))

// ParseInline parses one line of Markdown into rich text spans. Anything
// that does not parse as a single paragraph is returned as plain text.
func ParseInline(line string) []block.Span {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	src := []byte(line)
	doc := inlineMarkdown.Parser().Parse(text.NewReader(src))
	para, ok := doc.FirstChild().(*ast.Paragraph)
	if !ok || para.NextSibling() != nil {
		return []block.Span{{Content: line}}
	}

	st := &inlineState{src: src}
	_ = ast.Walk(para, st.visit)
	return block.MergeSpans(st.spans)
}

// inlineState tracks the annotations in effect while walking an inline tree.
// Counters allow the same annotation to come from Markdown and HTML at once.
type inlineState struct {
	src   []byte
	spans []block.Span

	bold, italic, strike, underline, code int
	colors                                []string
	link                                  string
	mention                               *block.Mention
}

func step(entering bool) int {
	if entering {
		return 1
	}
	return -1
}

func (st *inlineState) visit(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch n := n.(type) {
	case *ast.Text:
		if entering {
			v := n.Segment.Value(st.src)
			if !n.IsRaw() {
				v = util.UnescapePunctuations(v)
			}
			st.emit(string(v))
		}
	case *ast.String:
		if entering {
			st.emit(string(n.Value))
		}
	case *ast.CodeSpan:
		st.code += step(entering)
	case *ast.Emphasis:
		if n.Level >= 2 {
			st.bold += step(entering)
		} else {
			st.italic += step(entering)
		}
	case *extast.Strikethrough:
		st.strike += step(entering)
	case *ast.Link:
		st.target(entering, n.Destination)
	case *ast.Image:
		st.target(entering, n.Destination)
	case *ast.AutoLink:
		if entering {
			st.target(true, n.URL(st.src))
			st.emit(string(n.Label(st.src)))
			st.target(false, nil)
		}
		return ast.WalkSkipChildren, nil
	case *ast.RawHTML:
		if entering {
			var raw strings.Builder
			for i := 0; i < n.Segments.Len(); i++ {
				seg := n.Segments.At(i)
				raw.Write(seg.Value(st.src))
			}
			st.html(raw.String())
		}
	}
	return ast.WalkContinue, nil
}

func (st *inlineState) target(entering bool, dest []byte) {
	if !entering {
		st.link, st.mention = "", nil
		return
	}
	d := string(util.UnescapePunctuations(dest))
	if m := parseMention(d); m != nil {
		st.mention = m
		return
	}
	st.link = d
}

// parseMention decodes a mention:<type>:<id> link target.
func parseMention(dest string) *block.Mention {
	rest, ok := strings.CutPrefix(dest, "mention:")
	if !ok {
		return nil
	}
	typ, id, ok := strings.Cut(rest, ":")
	if !ok || typ == "" || id == "" {
		return nil
	}
	return &block.Mention{Type: typ, ID: id}
}

// html interprets the inline tags the renderer emits. Unknown markup is
// kept as literal text.
func (st *inlineState) html(raw string) {
	z := html.NewTokenizer(strings.NewReader(raw))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return
		}
		literal := string(z.Raw())
		tok := z.Token()
		handled := false
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			handled = st.openTag(tok, tt == html.SelfClosingTagToken)
		case html.EndTagToken:
			handled = st.closeTag(tok)
		}
		if !handled {
			st.emit(literal)
		}
	}
}

func (st *inlineState) counter(tag string) *int {
	switch tag {
	case "b", "strong":
		return &st.bold
	case "i", "em":
		return &st.italic
	case "s", "del", "strike":
		return &st.strike
	case "u", "ins":
		return &st.underline
	case "code":
		return &st.code
	}
	return nil
}

func (st *inlineState) openTag(tok html.Token, selfClosing bool) bool {
	if tok.Data == "br" {
		st.emit("\n")
		return true
	}
	if selfClosing {
		return false
	}
	if tok.Data == "span" {
		color := ""
		for _, attr := range tok.Attr {
			if attr.Key == "color" {
				color = attr.Val
			}
		}
		st.colors = append(st.colors, color)
		return true
	}
	if c := st.counter(tok.Data); c != nil {
		*c++
		return true
	}
	return false
}

func (st *inlineState) closeTag(tok html.Token) bool {
	if tok.Data == "span" {
		if n := len(st.colors); n > 0 {
			st.colors = st.colors[:n-1]
		}
		return true
	}
	if c := st.counter(tok.Data); c != nil {
		if *c > 0 {
			*c--
		}
		return true
	}
	return false
}

func (st *inlineState) emit(s string) {
	if s == "" {
		return
	}
	span := block.Span{
		Content: s,
		Annotations: block.Annotations{
			Bold:          st.bold > 0,
			Italic:        st.italic > 0,
			Strikethrough: st.strike > 0,
			Underline:     st.underline > 0,
			Code:          st.code > 0,
		},
		Link: st.link,
	}
	if n := len(st.colors); n > 0 {
		span.Annotations.Color = st.colors[n-1]
	}
	if st.mention != nil {
		m := *st.mention
		span.Mention = &m
	}
	st.spans = append(st.spans, span)
}
