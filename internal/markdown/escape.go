package markdown

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// escapable are the characters that would otherwise start inline markup.
const escapable = "\\`*_~[]<>#"

// escapeText backslash-escapes Markdown-significant characters. When
// lineStart is set, constructs that only matter at the start of a line
// (list markers, ordered list numbers, directives) are escaped as well.
func escapeText(s string, lineStart bool) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		if r < utf8.RuneSelf && strings.IndexByte(escapable, byte(r)) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	out := b.String()
	if lineStart {
		out = escapeLineStart(out)
	}
	return out
}

func escapeLineStart(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '-', '+', '=':
		return "\\" + s
	}
	digits := 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		digits++
	}
	if digits > 0 && digits < len(s) && (s[digits] == '.' || s[digits] == ')') {
		return s[:digits] + "\\" + s[digits:]
	}
	for _, word := range directiveWords {
		if strings.HasPrefix(s, word+":") {
			return word + "\\" + s[len(word):]
		}
	}
	return s
}

// directiveWords are line prefixes the parser treats specially that contain
// no escapable character of their own.
var directiveWords = []string{"file", "pdf", "image"}

// escapeDestination renders a link target. Targets with spaces, parentheses
// or angle brackets use the <...> form.
func escapeDestination(dest string) string {
	if strings.ContainsAny(dest, " \t()<>") || dest == "" {
		r := strings.NewReplacer(`\`, `\\`, `<`, `\<`, `>`, `\>`)
		return "<" + r.Replace(dest) + ">"
	}
	return strings.ReplaceAll(dest, `\`, `\\`)
}

// codeSpan wraps s in a backtick fence longer than any run inside it.
func codeSpan(s string) string {
	fence := strings.Repeat("`", longestRun(s, '`')+1)
	if strings.HasPrefix(s, "`") || strings.HasSuffix(s, "`") {
		s = " " + s + " "
	}
	return fence + s + fence
}

func longestRun(s string, c byte) int {
	longest, cur := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			cur++
			if cur > longest {
				longest = cur
			}
		} else {
			cur = 0
		}
	}
	return longest
}

// isPunct matches the Unicode punctuation and symbol classes used by the
// emphasis flanking rules.
func isPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

// splitSpace separates leading and trailing whitespace from s.
func splitSpace(s string) (lead, core, trail string) {
	core = strings.TrimLeftFunc(s, unicode.IsSpace)
	lead = s[:len(s)-len(core)]
	trimmed := strings.TrimRightFunc(core, unicode.IsSpace)
	trail = core[len(trimmed):]
	return lead, trimmed, trail
}
