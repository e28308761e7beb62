package markdown

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/notionmd/internal/block"
)

// RenderInline renders rich text as a single line of Markdown. Newlines
// become <br> tags.
func RenderInline(spans []block.Span) string {
	var b strings.Builder
	pieces := splitBreaks(block.MergeSpans(spans))
	for i, p := range pieces {
		if p.brk {
			b.WriteString("<br>")
			continue
		}
		atStart := strings.TrimSpace(b.String()) == ""
		writeSpan(&b, p.span, lastRune(b.String()), nextOK(pieces, i+1), atStart)
	}
	return b.String()
}

type piece struct {
	span block.Span
	brk  bool
}

// splitBreaks cuts spans at newlines so no delimiter pair crosses a <br>.
func splitBreaks(spans []block.Span) []piece {
	var out []piece
	for _, s := range spans {
		content := strings.ReplaceAll(s.Content, "\r\n", "\n")
		content = strings.ReplaceAll(content, "\r", "\n")
		for i, part := range strings.Split(content, "\n") {
			if i > 0 {
				out = append(out, piece{brk: true})
			}
			if part == "" {
				continue
			}
			ps := s
			ps.Content = part
			out = append(out, piece{span: ps})
		}
	}
	return out
}

func lastRune(written string) rune {
	if written == "" {
		return -1
	}
	r, _ := utf8.DecodeLastRuneInString(written)
	return r
}

// nextOK reports whether the piece after a closing delimiter lets it close
// even when preceded by punctuation.
func nextOK(pieces []piece, i int) bool {
	if i >= len(pieces) || pieces[i].brk {
		return true
	}
	s := pieces[i].span
	if hasMarkup(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s.Content)
	return unicode.IsSpace(r) || isPunct(r)
}

func hasMarkup(s block.Span) bool {
	a := s.Annotations
	return a.Bold || a.Italic || a.Strikethrough || a.Underline || a.Code || a.Color != "" ||
		s.Link != "" || s.Mention != nil
}

func writeSpan(b *strings.Builder, s block.Span, prev rune, nextFree, atStart bool) {
	lead, core, trail := splitSpace(s.Content)
	if atStart {
		// Leading spaces would read back as nesting.
		lead = ""
		if core == "" {
			trail = ""
		}
	}
	b.WriteString(lead)
	if core == "" {
		b.WriteString(trail)
		return
	}

	a := s.Annotations
	var text string
	if a.Code {
		text = codeSpan(core)
	} else {
		text = escapeText(core, atStart)
	}

	wrapped := a.Underline || a.Color != "" || s.Link != "" || s.Mention != nil
	if a.Strikethrough || a.Italic || a.Bold {
		if wrapped || lead != "" {
			prev = ' '
		}
		text = emphasize(text, a, prev, wrapped || trail != "" || nextFree)
	}
	if a.Underline {
		text = "<u>" + text + "</u>"
	}
	if a.Color != "" {
		text = `<span color="` + html.EscapeString(a.Color) + `">` + text + "</span>"
	}
	switch {
	case s.Mention != nil:
		text = "[" + text + "](" + mentionDest(s.Mention.Type, s.Mention.ID) + ")"
	case s.Link != "":
		text = "[" + text + "](" + escapeDestination(s.Link) + ")"
	}
	b.WriteString(text)
	b.WriteString(trail)
}

// emphasize applies strikethrough, italic and bold, innermost first. When
// the delimiter runs would not be recognised as flanking in their position,
// HTML tags are used instead. prev is the rune written before the span, or
// -1 at the start of the line.
func emphasize(text string, a block.Annotations, prev rune, nextFree bool) string {
	first, _ := utf8.DecodeRuneInString(text)
	last, _ := utf8.DecodeLastRuneInString(text)
	if a.Strikethrough && (a.Italic || a.Bold) {
		first, last = '~', '~'
	}
	prevFree := prev < 0 || unicode.IsSpace(prev) || isPunct(prev)
	// A tilde run directly after another one is never a strikethrough opener.
	tilde := prev == '~' && a.Strikethrough && !a.Italic && !a.Bold
	if tilde || (isPunct(first) && !prevFree) || (isPunct(last) && !nextFree) {
		if a.Strikethrough {
			text = "<s>" + text + "</s>"
		}
		if a.Italic {
			text = "<i>" + text + "</i>"
		}
		if a.Bold {
			text = "<b>" + text + "</b>"
		}
		return text
	}
	if a.Strikethrough {
		text = "~~" + text + "~~"
	}
	if a.Italic {
		text = "*" + text + "*"
	}
	if a.Bold {
		text = "**" + text + "**"
	}
	return text
}

func mentionDest(typ, id string) string {
	return "mention:" + typ + ":" + id
}
