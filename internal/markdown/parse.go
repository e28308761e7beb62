package markdown

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/adrg/frontmatter"
	"github.com/dgallion1/notionmd/internal/block"
	"github.com/yuin/goldmark/util"
)

// ParseError reports Markdown that cannot be turned into blocks.
type ParseError struct {
	Line int // 1-based, counting the header
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("markdown line %d: %s", e.Line, e.Msg)
}

var (
	markerRe    = regexp.MustCompile(`^block_id:[ \t]*(\S+)$`)
	commentRe   = regexp.MustCompile(`^comment_id:[ \t]*(\S*)$`)
	fenceRe     = regexp.MustCompile("^(`{3,})([^`]*)$")
	headingRe   = regexp.MustCompile(`^(#{1,6})(?:[ \t]+(.*))?$`)
	todoRe      = regexp.MustCompile(`^[-*+][ \t]+\[([ xX])\](?:[ \t]+(.*))?$`)
	dividerRe   = regexp.MustCompile(`^(?:-{3,}|\*{3,}|_{3,})$`)
	bulletRe    = regexp.MustCompile(`^[-*+](?:[ \t]+(.*))?$`)
	numberedRe  = regexp.MustCompile(`^\d{1,9}[.)](?:[ \t]+(.*))?$`)
	quoteRe     = regexp.MustCompile(`^>[ \t]?(.*)$`)
	directiveRe = regexp.MustCompile(`^(child_page|link_to_page|file|pdf|image):[ \t]+(.*)$`)
	headerKeyRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*:`)

	quoted         = `"((?:[^"\\]|\\.)*)"`
	commentByRe    = regexp.MustCompile(`^\*\*Comment by ` + quoted + `(?: ` + quoted + `)? \(([^()]*)\) at (.*):\*\*$`)
	commentByAnyRe = regexp.MustCompile(`^\*\*Comment by Unknown User at (.*):\*\*$`)
)

// Parse reads annotated Markdown back into a document. Block id markers are
// restored onto the block that follows them. Unrecognised markup degrades to
// paragraphs; only an unterminated code fence is an error.
func Parse(src string) (*block.Document, error) {
	doc := &block.Document{}
	src = strings.ReplaceAll(src, "\r\n", "\n")
	body, offset := parseHeader(src, doc)
	p := &parser{doc: doc, lines: strings.Split(body, "\n"), offset: offset}
	if err := p.run(); err != nil {
		return nil, err
	}
	return doc, nil
}

func parseHeader(src string, doc *block.Document) (string, int) {
	rest, ok := strings.CutPrefix(src, "---\n")
	if !ok {
		return src, 0
	}
	first, _, _ := strings.Cut(rest, "\n")
	if !headerKeyRe.MatchString(first) {
		return src, 0
	}
	var h header
	body, err := frontmatter.Parse(strings.NewReader(src), &h)
	if err != nil {
		return src, 0
	}
	doc.ID, doc.Title = h.PageID, h.Title
	b := string(body)
	offset := 0
	if strings.HasSuffix(src, b) {
		offset = strings.Count(src[:len(src)-len(b)], "\n")
	}
	return b, offset
}

type parser struct {
	doc    *block.Document
	lines  []string
	offset int

	stack []*block.Block // last block seen at each depth
	last  *block.Block

	pending      string // block id waiting for its block
	pendingDepth int
	hasPending   bool
}

func (p *parser) run() error {
	for i := 0; i < len(p.lines); i++ {
		line := strings.TrimRight(p.lines[i], " \t")
		trimmed := strings.TrimLeft(line, " ")
		indent := len(line) - len(trimmed)
		trimmed = strings.TrimLeft(trimmed, "\t")
		depth := indent / len(indentUnit)

		if trimmed == "" {
			p.flushPending()
			continue
		}
		if m := markerRe.FindStringSubmatch(trimmed); m != nil {
			p.flushPending()
			p.pending, p.pendingDepth, p.hasPending = m[1], depth, true
			continue
		}
		if m := commentRe.FindStringSubmatch(trimmed); m != nil {
			p.flushPending()
			if n := p.comment(m[1], i); n > 0 {
				i += n
				continue
			}
		}
		if m := fenceRe.FindStringSubmatch(trimmed); m != nil {
			end, code, err := p.fence(i, indent, m[1], strings.TrimSpace(m[2]))
			if err != nil {
				return err
			}
			p.add(code, depth, "")
			i = end
			continue
		}
		payload, ref := classify(trimmed)
		p.add(payload, depth, ref)
	}
	p.flushPending()
	return nil
}

// add places a new block at depth, clamped to one level below the previous
// block. fallbackID is used when no marker preceded the block.
func (p *parser) add(payload block.Payload, depth int, fallbackID string) {
	b := &block.Block{Payload: payload}
	if p.hasPending {
		b.ID = p.pending
		p.hasPending = false
	} else {
		b.ID = fallbackID
	}
	if depth > len(p.stack) {
		depth = len(p.stack)
	}
	if depth == 0 {
		p.doc.Blocks = append(p.doc.Blocks, b)
	} else {
		parent := p.stack[depth-1]
		parent.Children = append(parent.Children, b)
		parent.HasChildren = true
	}
	p.stack = append(p.stack[:depth], b)
	p.last = b
}

// flushPending turns a marker with no block after it into an empty
// paragraph.
func (p *parser) flushPending() {
	if p.hasPending {
		p.add(block.Paragraph{}, p.pendingDepth, "")
	}
}

// comment attaches the comment starting at line i to the last block and
// returns the number of extra lines consumed, or 0 when the lines do not
// form a comment.
func (p *parser) comment(id string, i int) int {
	if p.last == nil || i+1 >= len(p.lines) {
		return 0
	}
	headerLine := strings.TrimSpace(p.lines[i+1])
	c := block.Comment{ID: id, BlockID: p.last.ID}
	if m := commentByRe.FindStringSubmatch(headerLine); m != nil {
		c.Author = block.User{Name: unquote(m[1]), Email: unquote(m[2]), ID: m[3]}
		c.CreatedTime = m[4]
	} else if m := commentByAnyRe.FindStringSubmatch(headerLine); m != nil {
		c.Author = block.User{Name: "Unknown User"}
		c.CreatedTime = m[1]
	} else {
		return 0
	}
	consumed := 1
	if i+2 < len(p.lines) {
		c.RichText = ParseInline(p.lines[i+2])
		consumed = 2
	}
	p.last.Comments = append(p.last.Comments, c)
	return consumed
}

func unquote(s string) string {
	if s == "" {
		return ""
	}
	if u, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return u
	}
	return s
}

// fence reads a fenced code block opened at line i and returns the index of
// its closing line.
func (p *parser) fence(i, indent int, fence, lang string) (int, block.Payload, error) {
	var content []string
	for j := i + 1; j < len(p.lines); j++ {
		l := p.lines[j]
		t := strings.TrimSpace(l)
		if len(t) >= len(fence) && strings.Trim(t, "`") == "" {
			code := block.Code{Language: lang}
			if text := strings.Join(content, "\n"); text != "" {
				code.RichText = []block.Span{{Content: text}}
			}
			return j, code, nil
		}
		content = append(content, stripIndent(l, indent))
	}
	return 0, nil, &ParseError{Line: p.offset + i + 1, Msg: "unterminated code fence"}
}

func stripIndent(l string, indent int) string {
	n := 0
	for n < indent && n < len(l) && l[n] == ' ' {
		n++
	}
	return l[n:]
}

// classify maps one non-blank, non-marker line to a payload. The second
// result is a page id carried by child page lines.
func classify(line string) (block.Payload, string) {
	if m := headingRe.FindStringSubmatch(line); m != nil {
		level := len(m[1])
		if level > 3 {
			level = 3
		}
		return block.Heading{Level: level, RichText: ParseInline(m[2])}, ""
	}
	if m := todoRe.FindStringSubmatch(line); m != nil {
		return block.ToDo{Checked: m[1] != " ", RichText: ParseInline(m[2])}, ""
	}
	if dividerRe.MatchString(line) {
		return block.Divider{}, ""
	}
	if m := bulletRe.FindStringSubmatch(line); m != nil {
		return block.BulletedListItem{RichText: ParseInline(m[1])}, ""
	}
	if m := numberedRe.FindStringSubmatch(line); m != nil {
		return block.NumberedListItem{RichText: ParseInline(m[1])}, ""
	}
	if m := quoteRe.FindStringSubmatch(line); m != nil {
		return block.Quote{RichText: ParseInline(m[1])}, ""
	}
	if m := directiveRe.FindStringSubmatch(line); m != nil {
		if payload, ref, ok := directive(m[1], m[2]); ok {
			return payload, ref
		}
		return block.Paragraph{RichText: []block.Span{{Content: line}}}, ""
	}
	return block.Paragraph{RichText: ParseInline(line)}, ""
}

func directive(kind, rest string) (block.Payload, string, bool) {
	label, dest, ok := splitLink(rest)
	if !ok {
		return nil, "", false
	}
	name := block.PlainText(ParseInline(label))
	switch kind {
	case "child_page", "link_to_page":
		m := parseMention(dest)
		if m == nil || !m.IsPage() {
			return nil, "", false
		}
		if kind == "child_page" {
			return block.ChildPage{Title: name}, m.ID, true
		}
		return block.LinkToPage{PageID: m.ID}, "", true
	}
	if dest == "" {
		return nil, "", false
	}
	return block.File{Kind: kind, Name: name, URL: dest}, "", true
}

// splitLink splits "[label](dest)" into its parts, undoing escapes in the
// destination.
func splitLink(s string) (label, dest string, ok bool) {
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, ")") {
		return "", "", false
	}
	idx := strings.LastIndex(s, "](")
	if idx < 0 {
		return "", "", false
	}
	label = s[1:idx]
	dest = s[idx+2 : len(s)-1]
	if strings.HasPrefix(dest, "<") && strings.HasSuffix(dest, ">") {
		dest = dest[1 : len(dest)-1]
	}
	return label, string(util.UnescapePunctuations([]byte(dest))), true
}
